package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
	"github.com/roach88/erpgen/internal/synth"
)

// Every writer below follows the store.InTx protocol: given tx it joins the
// caller's unit of work, given nil it commits at the end or rolls back on
// any error in the nested chain.

// Create inserts row and applies the plain registers, and the rz registers
// too when row is a line item of a realized document. Missing columns take
// their declared default; created_at and updated_at are stamped at write
// time. It returns the stored row with its id.
func (t *Table) Create(ctx context.Context, row Row, tx *sqlx.Tx) (Row, error) {
	if err := t.svc.authorize(ctx, t.plan.Rights.Create); err != nil {
		return nil, err
	}
	var out Row
	err := store.InTx(ctx, t.svc.db, tx, func(tx *sqlx.Tx) error {
		var err error
		out, err = t.create(ctx, tx, row)
		return err
	})
	return out, err
}

func (t *Table) create(ctx context.Context, tx *sqlx.Tx, in Row) (Row, error) {
	in = in.Clone()
	delete(in, "id")
	row, err := normalize(t.plan, in, nil)
	if err != nil {
		return nil, err
	}
	row["is_active"] = true
	if t.plan.Entity.IsDocument() {
		row["is_realized"] = false
	}
	if t.plan.CreatedAt && row.Text("created_at") == "" {
		row["created_at"] = t.svc.stamps.Stamp()
	}
	if t.plan.UpdatedAt {
		row["updated_at"] = t.svc.stamps.Stamp()
	}

	if err := t.svc.registry.runHooks(ctx, tx, t.plan.Entity, schema.HookCreate, schema.HookBefore, row); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, t.plan.Queries.Insert, args(row, t.plan.Queries.InsertColumns)...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.plan.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.plan.Name, err)
	}
	row["id"] = id

	for _, s := range t.plan.Ledger.Create() {
		if err := t.adjust(ctx, tx, s, row); err != nil {
			return nil, err
		}
	}
	// A line item added to a realized document is realized with it.
	realized, err := t.realized(ctx, tx, row)
	if err != nil {
		return nil, err
	}
	if realized {
		if err := t.applyRealized(ctx, tx, row); err != nil {
			return nil, err
		}
	}
	if err := t.svc.registry.runHooks(ctx, tx, t.plan.Entity, schema.HookCreate, schema.HookAfter, row); err != nil {
		return nil, err
	}
	t.log.DebugContext(ctx, "created", "id", id)
	return row, nil
}

// Update overwrites the row identified by row["id"] with the given columns;
// absent columns keep their stored value. Register contributions are undone
// on the previous version and re-applied for the new one, so a changed
// foreign key moves the contribution to the new related row. is_active and
// is_realized change only through Delete, Realize and Unrealize; a deleted
// row cannot be updated.
func (t *Table) Update(ctx context.Context, row Row, tx *sqlx.Tx) (Row, error) {
	if err := t.svc.authorize(ctx, t.plan.Rights.Update); err != nil {
		return nil, err
	}
	var out Row
	err := store.InTx(ctx, t.svc.db, tx, func(tx *sqlx.Tx) error {
		var err error
		out, err = t.update(ctx, tx, row)
		return err
	})
	return out, err
}

func (t *Table) update(ctx context.Context, tx *sqlx.Tx, in Row) (Row, error) {
	id := in.ID()
	if id == 0 {
		return nil, fmt.Errorf("update %s: row has no id", t.plan.Name)
	}
	prev, err := queryRow(ctx, tx, t.plan, id, t.plan.Queries.Get)
	if err != nil {
		return nil, err
	}
	if !prev.Bool("is_active") {
		return nil, &TransitionError{Entity: t.plan.Name, ID: id, Op: "update", State: "deleted"}
	}
	next, err := normalize(t.plan, in, prev)
	if err != nil {
		return nil, err
	}
	next["id"] = id
	next["is_active"] = prev["is_active"]
	if t.plan.Entity.IsDocument() {
		next["is_realized"] = prev["is_realized"]
	}
	if t.plan.UpdatedAt {
		next["updated_at"] = t.svc.stamps.Stamp()
	}

	wasRealized, err := t.realized(ctx, tx, prev)
	if err != nil {
		return nil, err
	}
	isRealized, err := t.realized(ctx, tx, next)
	if err != nil {
		return nil, err
	}
	if err := t.svc.registry.runHooks(ctx, tx, t.plan.Entity, schema.HookUpdate, schema.HookBefore, next); err != nil {
		return nil, err
	}

	undo, redo := t.plan.Ledger.Update(wasRealized, isRealized)
	for _, s := range undo {
		if err := t.adjust(ctx, tx, s, prev); err != nil {
			return nil, err
		}
	}
	for _, s := range redo {
		if err := t.adjust(ctx, tx, s, next); err != nil {
			return nil, err
		}
	}
	for _, name := range t.plan.Lifecycle.Complex {
		if !wasRealized && !isRealized {
			break
		}
		h, err := t.svc.registry.handler(name)
		if err != nil {
			return nil, err
		}
		switch {
		case wasRealized && isRealized:
			err = h.Update(ctx, tx, t.plan.Name, prev, next)
		case wasRealized:
			err = h.Delete(ctx, tx, t.plan.Name, prev)
		default:
			err = h.Create(ctx, tx, t.plan.Name, next)
		}
		if err != nil {
			return nil, fmt.Errorf("complex register %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, t.plan.Queries.Update, append(args(next, t.plan.Queries.UpdateColumns), id)...); err != nil {
		return nil, fmt.Errorf("update %s %d: %w", t.plan.Name, id, err)
	}
	if err := t.svc.registry.runHooks(ctx, tx, t.plan.Entity, schema.HookUpdate, schema.HookAfter, next); err != nil {
		return nil, err
	}
	t.log.DebugContext(ctx, "updated", "id", id, "realized", isRealized)
	return next, nil
}

// Delete reverses the row's register contributions, cascades to its related
// collections and then soft-deletes it. A line item of a draft document is
// removed instead. With isUnrealize the row stays active: a document only
// loses its realized flag and plain registers are kept.
func (t *Table) Delete(ctx context.Context, id int64, tx *sqlx.Tx, isUnrealize bool) error {
	if err := t.svc.authorize(ctx, t.plan.Rights.Delete); err != nil {
		return err
	}
	if isUnrealize && !t.plan.Entity.IsDocument() {
		return &TransitionError{Entity: t.plan.Name, ID: id, Op: "unrealize", State: "not a document"}
	}
	return store.InTx(ctx, t.svc.db, tx, func(tx *sqlx.Tx) error {
		return t.delete(ctx, tx, id, isUnrealize, true)
	})
}

// Unrealize takes a realized document back to draft.
func (t *Table) Unrealize(ctx context.Context, id int64, tx *sqlx.Tx) error {
	return t.Delete(ctx, id, tx, true)
}

func (t *Table) delete(ctx context.Context, tx *sqlx.Tx, id int64, unrealize, top bool) error {
	op := "delete"
	if unrealize {
		op = "unrealize"
	}
	row, err := queryRow(ctx, tx, t.plan, id, t.plan.Queries.Get)
	if err != nil {
		return err
	}
	if !row.Bool("is_active") {
		return &TransitionError{Entity: t.plan.Name, ID: id, Op: op, State: "deleted"}
	}
	realized, err := t.realized(ctx, tx, row)
	if err != nil {
		return err
	}
	if unrealize && t.plan.Entity.IsDocument() && !realized {
		if !top {
			return nil
		}
		return &TransitionError{Entity: t.plan.Name, ID: id, Op: op, State: "not realized"}
	}

	if !unrealize {
		if err := t.svc.registry.runHooks(ctx, tx, t.plan.Entity, schema.HookDelete, schema.HookBefore, row); err != nil {
			return err
		}
	}
	if realized {
		for _, name := range t.plan.Lifecycle.Complex {
			h, err := t.svc.registry.handler(name)
			if err != nil {
				return err
			}
			if err := h.Delete(ctx, tx, t.plan.Name, row); err != nil {
				return fmt.Errorf("complex register %s: %w", name, err)
			}
		}
	}
	for _, s := range t.plan.Ledger.Delete(realized, unrealize) {
		if err := t.adjust(ctx, tx, s, row); err != nil {
			return err
		}
	}
	if err := t.cascade(ctx, tx, row, func(child *Table, childID int64) error {
		return child.delete(ctx, tx, childID, unrealize, false)
	}); err != nil {
		return err
	}

	action := t.plan.Lifecycle.DeleteAction(realized, unrealize)
	var query string
	switch action {
	case synth.DeleteSoft:
		query = t.plan.Queries.SoftDelete
	case synth.DeleteHard:
		query = t.plan.Queries.HardDelete
	case synth.DeleteClearRealized:
		query = t.plan.Queries.ClearRealized
	}
	if query != "" {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("%s %s %d: %w", op, t.plan.Name, id, err)
		}
	}
	if !unrealize {
		if err := t.svc.registry.runHooks(ctx, tx, t.plan.Entity, schema.HookDelete, schema.HookAfter, row); err != nil {
			return err
		}
	}
	t.log.DebugContext(ctx, op, "id", id, "action", action, "realized", realized)
	return nil
}

// Realize runs the complex and rz registers of a document, realizes every
// active row of its related collections, and flags it realized. A failure
// anywhere leaves nothing realized.
func (t *Table) Realize(ctx context.Context, id int64, tx *sqlx.Tx) error {
	if err := t.svc.authorize(ctx, t.plan.Rights.Create); err != nil {
		return err
	}
	if !t.plan.Entity.IsDocument() {
		return &TransitionError{Entity: t.plan.Name, ID: id, Op: "realize", State: "not a document"}
	}
	return store.InTx(ctx, t.svc.db, tx, func(tx *sqlx.Tx) error {
		return t.realize(ctx, tx, id, true)
	})
}

func (t *Table) realize(ctx context.Context, tx *sqlx.Tx, id int64, top bool) error {
	row, err := queryRow(ctx, tx, t.plan, id, t.plan.Queries.Get)
	if err != nil {
		return err
	}
	if !row.Bool("is_active") {
		return &TransitionError{Entity: t.plan.Name, ID: id, Op: "realize", State: "deleted"}
	}
	if t.plan.Entity.IsDocument() && row.Bool("is_realized") {
		if !top {
			return nil
		}
		return &TransitionError{Entity: t.plan.Name, ID: id, Op: "realize", State: "already realized"}
	}

	if err := t.applyRealized(ctx, tx, row); err != nil {
		return err
	}
	if err := t.cascade(ctx, tx, row, func(child *Table, childID int64) error {
		return child.realize(ctx, tx, childID, false)
	}); err != nil {
		return err
	}

	if t.plan.Entity.IsDocument() {
		if _, err := tx.ExecContext(ctx, t.plan.Queries.SetRealized, id); err != nil {
			return fmt.Errorf("realize %s %d: %w", t.plan.Name, id, err)
		}
	}
	t.log.DebugContext(ctx, "realized", "id", id)
	return nil
}

// applyRealized runs the complex create phase and the rz registers of row.
func (t *Table) applyRealized(ctx context.Context, tx *sqlx.Tx, row Row) error {
	for _, name := range t.plan.Lifecycle.Complex {
		h, err := t.svc.registry.handler(name)
		if err != nil {
			return err
		}
		if err := h.Create(ctx, tx, t.plan.Name, row); err != nil {
			return fmt.Errorf("complex register %s: %w", name, err)
		}
	}
	for _, s := range t.plan.Ledger.Realize() {
		if err := t.adjust(ctx, tx, s, row); err != nil {
			return err
		}
	}
	return nil
}

// cascade calls fn for every active row of each related collection, in
// declaration order.
func (t *Table) cascade(ctx context.Context, tx *sqlx.Tx, row Row, fn func(child *Table, id int64) error) error {
	for _, rel := range t.plan.Lifecycle.Related {
		child, err := t.svc.Entity(rel.Entity)
		if err != nil {
			return err
		}
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, rel.SQL, row.Int(rel.FilterValue)); err != nil {
			return fmt.Errorf("related %s: %w", rel.Entity, err)
		}
		for _, id := range ids {
			if err := fn(child, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// realized reports whether row's registers are in effect: a document's own
// flag, a line item's owning document flag, false otherwise.
func (t *Table) realized(ctx context.Context, tx *sqlx.Tx, row Row) (bool, error) {
	switch {
	case t.plan.Entity.IsDocument():
		return row.Bool("is_realized"), nil
	case t.plan.Lifecycle.Owner != nil:
		owner := t.plan.Lifecycle.Owner
		var flag any
		err := tx.QueryRowxContext(ctx, owner.RealizedSQL, row.Int(owner.FK)).Scan(&flag)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%s %d: owning %s: %w", t.plan.Name, row.ID(), owner.Entity, err)
		}
		b, err := schema.Coerce(schema.TypeBool, flag)
		if err != nil {
			return false, err
		}
		return b.(bool), nil
	default:
		return false, nil
	}
}

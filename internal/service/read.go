package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
	"github.com/roach88/erpgen/internal/synth"
)

// Table is the access layer of one entity. Reads use the caller's tx when
// one is given and never open a transaction.
type Table struct {
	svc  *Service
	plan *synth.EntityPlan
	log  *slog.Logger
}

// Name returns the entity name.
func (t *Table) Name() string { return t.plan.Name }

// Plan returns the entity plan.
func (t *Table) Plan() *synth.EntityPlan { return t.plan }

// SumFilter narrows a Sum. Field and Value add a secondary equality; a
// non-nil Before bounds created_at from above.
type SumFilter struct {
	Field  string
	Value  any
	Before any
}

// Get returns the row with id, whatever its soft-delete flag.
func (t *Table) Get(ctx context.Context, id int64, tx *sqlx.Tx) (Row, error) {
	if err := t.svc.authorize(ctx, t.plan.Rights.Read); err != nil {
		return nil, err
	}
	return queryRow(ctx, store.Reader(t.svc.db, tx), t.plan, id, t.plan.Queries.Get)
}

// GetAll returns every row visible under vis, ordered by id.
func (t *Table) GetAll(ctx context.Context, vis synth.Visibility, tx *sqlx.Tx) ([]Row, error) {
	if err := t.svc.authorize(ctx, t.plan.Rights.Read); err != nil {
		return nil, err
	}
	return queryRows(ctx, store.Reader(t.svc.db, tx), t.plan, t.plan.Queries.GetAll[vis])
}

// FilterInt returns the rows whose field equals v.
func (t *Table) FilterInt(ctx context.Context, field string, v int64, vis synth.Visibility, tx *sqlx.Tx) ([]Row, error) {
	return t.filter(ctx, field, v, vis, tx, t.plan.Queries.Filter)
}

// FilterStr returns the rows whose field equals v.
func (t *Table) FilterStr(ctx context.Context, field, v string, vis synth.Visibility, tx *sqlx.Tx) ([]Row, error) {
	return t.filter(ctx, field, v, vis, tx, t.plan.Queries.Filter)
}

func (t *Table) filter(ctx context.Context, field string, v any, vis synth.Visibility, tx *sqlx.Tx, queries [3]string) ([]Row, error) {
	if !t.plan.HasField(field) {
		return nil, &UnknownFieldError{Entity: t.plan.Name, Field: field, Op: "filter"}
	}
	if err := t.svc.authorize(ctx, t.plan.Rights.Read); err != nil {
		return nil, err
	}
	return queryRows(ctx, store.Reader(t.svc.db, tx), t.plan, fmt.Sprintf(queries[vis], field), v)
}

// Between returns the rows whose field lies in [lo, hi].
func (t *Table) Between(ctx context.Context, field string, lo, hi any, vis synth.Visibility) ([]Row, error) {
	r, err := t.rangeQuery(field)
	if err != nil {
		return nil, err
	}
	return t.between(ctx, r, r.SQL[vis], lo, hi)
}

// BetweenW is Between over the enriched projection.
func (t *Table) BetweenW(ctx context.Context, field string, lo, hi any, vis synth.Visibility) ([]Row, error) {
	r, err := t.rangeQuery(field)
	if err != nil {
		return nil, err
	}
	return t.between(ctx, r, r.Enriched[vis], lo, hi)
}

// BetweenUp returns enriched rows whose parent's field lies in [lo, hi].
// key is parent.field as registered in between_up.
func (t *Table) BetweenUp(ctx context.Context, key string, lo, hi any, vis synth.Visibility) ([]Row, error) {
	r, ok := t.plan.RangeUp(key)
	if !ok {
		return nil, &UnknownFieldError{Entity: t.plan.Name, Field: key, Op: "between_up"}
	}
	return t.between(ctx, r, r.Enriched[vis], lo, hi)
}

func (t *Table) rangeQuery(field string) (synth.RangeQuery, error) {
	r, ok := t.plan.Range(field)
	if !ok {
		return synth.RangeQuery{}, &UnknownFieldError{Entity: t.plan.Name, Field: field, Op: "between"}
	}
	return r, nil
}

func (t *Table) between(ctx context.Context, r synth.RangeQuery, query string, lo, hi any) ([]Row, error) {
	lo, err := schema.Coerce(r.Type, lo)
	if err != nil {
		return nil, fmt.Errorf("%s between %s: %w", t.plan.Name, r.Key(), err)
	}
	hi, err = schema.Coerce(r.Type, hi)
	if err != nil {
		return nil, fmt.Errorf("%s between %s: %w", t.plan.Name, r.Key(), err)
	}
	if err := t.svc.authorize(ctx, t.plan.Rights.Read); err != nil {
		return nil, err
	}
	return queryRows(ctx, t.svc.db, t.plan, query, lo, hi)
}

// Sum totals field over active rows, narrowed by f.
func (t *Table) Sum(ctx context.Context, field string, f SumFilter) (float64, error) {
	s, ok := t.plan.Sum(field)
	if !ok {
		return 0, &UnknownFieldError{Entity: t.plan.Name, Field: field, Op: "sum"}
	}
	if f.Field != "" && !t.plan.HasField(f.Field) {
		return 0, &UnknownFieldError{Entity: t.plan.Name, Field: f.Field, Op: "sum"}
	}
	if f.Before != nil && s.Before == "" {
		return 0, &UnknownFieldError{Entity: t.plan.Name, Field: "created_at", Op: "sum"}
	}

	var query string
	var params []any
	switch {
	case f.Field != "" && f.Before != nil:
		query, params = fmt.Sprintf(s.FilteredBefore, f.Field), []any{f.Value, f.Before}
	case f.Field != "":
		query, params = fmt.Sprintf(s.Filtered, f.Field), []any{f.Value}
	case f.Before != nil:
		query, params = s.Before, []any{f.Before}
	default:
		query = s.Plain
	}
	if err := t.svc.authorize(ctx, t.plan.Rights.Read); err != nil {
		return 0, err
	}

	var total any
	if err := t.svc.db.QueryRowxContext(ctx, query, params...).Scan(&total); err != nil {
		return 0, fmt.Errorf("%s sum %s: %w", t.plan.Name, field, err)
	}
	v, err := schema.Coerce(schema.TypeReal, total)
	if err != nil {
		return 0, fmt.Errorf("%s sum %s: %w", t.plan.Name, field, err)
	}
	return v.(float64), nil
}

// Find runs the find registered as name with the search text.
func (t *Table) Find(ctx context.Context, name, text string) ([]Row, error) {
	return t.find(ctx, name, text, false)
}

// FindW is Find over the enriched projection.
func (t *Table) FindW(ctx context.Context, name, text string) ([]Row, error) {
	return t.find(ctx, name, text, true)
}

func (t *Table) find(ctx context.Context, name, text string, enriched bool) ([]Row, error) {
	f, ok := t.plan.Find(name)
	if !ok {
		return nil, &UnknownFindError{Entity: t.plan.Name, Name: name}
	}
	if err := t.svc.authorize(ctx, t.plan.Rights.Read); err != nil {
		return nil, err
	}
	query := f.SQL
	if enriched {
		query = f.Enriched
	}
	return queryRows(ctx, t.svc.db, t.plan, query, f.Args(text)...)
}

// GetW is Get over the enriched projection.
func (t *Table) GetW(ctx context.Context, id int64, tx *sqlx.Tx) (Row, error) {
	if err := t.svc.authorize(ctx, t.plan.Rights.Read); err != nil {
		return nil, err
	}
	return queryRow(ctx, store.Reader(t.svc.db, tx), t.plan, id, t.plan.Enriched.Get)
}

// GetAllW is GetAll over the enriched projection.
func (t *Table) GetAllW(ctx context.Context, vis synth.Visibility, tx *sqlx.Tx) ([]Row, error) {
	if err := t.svc.authorize(ctx, t.plan.Rights.Read); err != nil {
		return nil, err
	}
	return queryRows(ctx, store.Reader(t.svc.db, tx), t.plan, t.plan.Enriched.GetAll[vis])
}

// FilterW is the enriched filter; v is compared as given.
func (t *Table) FilterW(ctx context.Context, field string, v any, vis synth.Visibility, tx *sqlx.Tx) ([]Row, error) {
	return t.filter(ctx, field, v, vis, tx, t.plan.Enriched.Filter)
}

package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
)

// Pass identifies a row pass of the Data Migrator.
type Pass string

const (
	PassReload   Pass = "reload"
	PassExternal Pass = "external"
	PassClear    Pass = "clear"
)

// MigrationRowError reports that one entity's rows could not be copied.
// The entity is left empty and the remaining entities proceed.
type MigrationRowError struct {
	Entity string
	Pass   Pass
	Err    error
}

func (e *MigrationRowError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Pass, e.Entity, e.Err)
}

func (e *MigrationRowError) Unwrap() error { return e.Err }

// IsMigrationRowError reports whether err is or wraps a MigrationRowError.
func IsMigrationRowError(err error) bool {
	var re *MigrationRowError
	return errors.As(err, &re)
}

// Report counts what each pass did.
type Report struct {
	Steps    int              `json:"steps"`
	Reloaded map[string]int   `json:"reloaded"`
	External map[string]int   `json:"external"`
	Cleared  map[string]int64 `json:"cleared"`
	// Skipped entities had no source table.
	Skipped []string             `json:"skipped"`
	Failed  []*MigrationRowError `json:"-"`
}

func newReport() *Report {
	return &Report{
		Reloaded: map[string]int{},
		External: map[string]int{},
		Cleared:  map[string]int64{},
		Skipped:  []string{},
	}
}

// Rows returns the total rows copied by a pass.
func (r *Report) Rows(pass Pass) int {
	var n int
	switch pass {
	case PassReload:
		for _, c := range r.Reloaded {
			n += c
		}
	case PassExternal:
		for _, c := range r.External {
			n += c
		}
	case PassClear:
		for _, c := range r.Cleared {
			n += int(c)
		}
	}
	return n
}

// HasFailures reports whether any entity failed to reload.
func (r *Report) HasFailures() bool { return len(r.Failed) > 0 }

// Migrator applies migration plans.
type Migrator struct {
	Logger *slog.Logger
}

func (m Migrator) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}

// Apply runs the plan against tx in four passes: DDL, reload from snapshot,
// reload from external, field clear. Row failures are collected in the
// report; DDL and clear failures abort. The caller owns tx and decides
// whether to commit.
func (m Migrator) Apply(ctx context.Context, tx store.Querier, plan *MigrationPlan, snapshot, external store.Querier) (*Report, error) {
	if plan.Next == nil {
		return nil, errors.New("migration plan has no target model")
	}
	if len(plan.External) > 0 && external == nil {
		return nil, fmt.Errorf("plan reloads %s from an external database but none was given", strings.Join(plan.External, ", "))
	}
	if len(plan.Reloads) > 0 && snapshot == nil {
		return nil, errors.New("plan reloads rows but no snapshot was given")
	}
	log := m.logger()
	report := newReport()

	for _, step := range plan.Steps {
		if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
			return report, fmt.Errorf("%s %s: %w", step.Kind, step.Entity, err)
		}
		report.Steps++
		log.Debug("ddl", "kind", step.Kind, "entity", step.Entity, "reason", step.Reason)
	}

	for _, name := range plan.Reloads {
		e, _ := plan.Next.Entity(name)
		n, err := m.reload(ctx, tx, snapshot, e, PassReload, report)
		if err != nil {
			continue
		}
		report.Reloaded[name] = n
	}
	log.Info("reload pass done", "entities", len(plan.Reloads), "rows", report.Rows(PassReload))

	for _, name := range plan.External {
		e, ok := plan.Next.Entity(name)
		if !ok {
			return report, fmt.Errorf("external reload of unknown entity %s", name)
		}
		for _, stmt := range []string{DropTableSQL(name), CreateTableSQL(e)} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return report, fmt.Errorf("recreate %s: %w", name, err)
			}
		}
		n, err := m.reload(ctx, tx, external, e, PassExternal, report)
		if err != nil {
			continue
		}
		report.External[name] = n
	}
	if len(plan.External) > 0 {
		log.Info("external pass done", "entities", len(plan.External), "rows", report.Rows(PassExternal))
	}

	for _, c := range plan.Clears {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ?", c.Entity, c.Field), c.Default)
		if err != nil {
			return report, fmt.Errorf("clear %s.%s: %w", c.Entity, c.Field, err)
		}
		n, _ := res.RowsAffected()
		report.Cleared[c.Entity] += n
		log.Debug("cleared field", "entity", c.Entity, "field", c.Field, "rows", n)
	}
	return report, nil
}

// reload copies every row of e's table from src into tx inside a savepoint.
// A failure rolls back to the savepoint and is recorded in the report.
func (m Migrator) reload(ctx context.Context, tx, src store.Querier, e *schema.Entity, pass Pass, report *Report) (int, error) {
	log := m.logger().With("entity", e.Name, "pass", pass)

	exists, err := store.TableExists(ctx, src, e.Name)
	if err != nil {
		return 0, m.fail(log, report, e.Name, pass, err)
	}
	if !exists {
		report.Skipped = append(report.Skipped, e.Name)
		log.Info("source table absent, skipped")
		return 0, nil
	}

	sp := "reload_" + e.Name
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
		return 0, m.fail(log, report, e.Name, pass, err)
	}

	n, err := copyRows(ctx, log, tx, src, e)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO "+sp); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		tx.ExecContext(ctx, "RELEASE "+sp) //nolint:errcheck // best effort after rollback
		return 0, m.fail(log, report, e.Name, pass, err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE "+sp); err != nil {
		return 0, m.fail(log, report, e.Name, pass, err)
	}
	log.Debug("reloaded", "rows", n)
	return n, nil
}

func (m Migrator) fail(log *slog.Logger, report *Report, entity string, pass Pass, err error) error {
	re := &MigrationRowError{Entity: entity, Pass: pass, Err: err}
	report.Failed = append(report.Failed, re)
	log.Warn("entity reload failed", "error", err)
	return re
}

// copyRows reads the old layout by name and inserts rows in the new layout.
func copyRows(ctx context.Context, log *slog.Logger, tx, src store.Querier, e *schema.Entity) (int, error) {
	rows, err := src.QueryxContext(ctx, "SELECT * FROM "+e.Name)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	var old []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan: %w", err)
		}
		old = append(old, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("read: %w", err)
	}
	rows.Close()

	insert := InsertSQL(e)
	for _, row := range old {
		args := convertRow(log, e, row)
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
	}
	return len(old), nil
}

// convertRow maps an old row onto the new layout: the old value by name
// coerced to the declared type, else the declared default. Reals moving to int
// columns are rounded. A value that cannot be coerced at all takes the
// default and is logged, so one bad cell never empties the table.
func convertRow(log *slog.Logger, e *schema.Entity, row map[string]any) []any {
	args := make([]any, len(e.Columns))
	for i, c := range e.Columns {
		v, ok := row[c.Name]
		if !ok || v == nil {
			args[i] = schema.MustCoerce(c.Type, c.Default)
			continue
		}
		if f, isReal := v.(float64); isReal && c.Type == schema.TypeInt {
			v = math.Round(f)
		}
		coerced, err := schema.Coerce(c.Type, v)
		if err != nil {
			log.Warn("value replaced by default", "column", c.Name, "id", row["id"], "error", err)
			coerced = schema.MustCoerce(c.Type, c.Default)
		}
		args[i] = coerced
	}
	return args
}

// InsertSQL renders an insert with an explicit column list, id included.
func InsertSQL(e *schema.Entity) string {
	cols := e.ColumnNames()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.Name, strings.Join(cols, ", "), marks)
}

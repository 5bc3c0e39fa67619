package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Run is one recorded generator run against the live database.
type Run struct {
	Seq          int64  `db:"seq" json:"seq"`
	ID           string `db:"id" json:"id"`
	StartedAt    string `db:"started_at" json:"started_at"`
	Command      string `db:"command" json:"command"`
	SchemaHash   string `db:"schema_hash" json:"schema_hash"`
	PreviousHash string `db:"previous_hash" json:"previous_hash"`
	Steps        int    `db:"steps" json:"steps"`
	Reloaded     int    `db:"reloaded" json:"reloaded"`
	External     int    `db:"external" json:"external"`
	Cleared      int    `db:"cleared" json:"cleared"`
	Failed       int    `db:"failed" json:"failed"`
	Snapshot     string `db:"snapshot" json:"snapshot"`
	Summary      string `db:"summary" json:"summary"`
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() string
}

// UUIDv7 generates time-ordered run ids.
type UUIDv7 struct{}

// NewID returns a fresh UUIDv7 string.
func (UUIDv7) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RecordRun inserts a run. Pass the migration transaction so the record
// commits or rolls back with the migration itself.
func RecordRun(ctx context.Context, q Querier, run Run) error {
	_, err := sqlx.NamedExecContext(ctx, q, `
		INSERT INTO erpgen_runs
		(id, started_at, command, schema_hash, previous_hash, steps, reloaded, external, cleared, failed, snapshot, summary)
		VALUES (:id, :started_at, :command, :schema_hash, :previous_hash, :steps, :reloaded, :external, :cleared, :failed, :snapshot, :summary)
	`, run)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func Runs(ctx context.Context, q Querier, limit int) ([]Run, error) {
	query := `SELECT * FROM erpgen_runs ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	runs := []Run{}
	if err := sqlx.SelectContext(ctx, q, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return runs, nil
}

// LastRun returns the newest run, or false if none was recorded.
func LastRun(ctx context.Context, q Querier) (Run, bool, error) {
	runs, err := Runs(ctx, q, 1)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}

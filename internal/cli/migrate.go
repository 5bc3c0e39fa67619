package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/roach88/erpgen/internal/migrate"
	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
)

// MigrateOutput describes one applied migration.
type MigrateOutput struct {
	RunID    string          `json:"run_id"`
	Database string          `json:"database"`
	Snapshot string          `json:"snapshot"`
	Summary  string          `json:"summary"`
	Report   *migrate.Report `json:"report"`
	Failures []string        `json:"failures,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Snapshot the live database and migrate it to the current schema",
		Long: `Migrate the live database to the current schema.

The database is first copied to the snapshot directory with VACUUM INTO.
Inside one transaction, changed tables are dropped and recreated, their
rows reloaded from the snapshot, external tables reloaded from the update
database, and requested fields reset. The run is recorded in the history.

Rows that fail to reload are reported and the command exits 1; the rest
of the migration still commits.

Exit codes:
  0 - Migration applied
  1 - Migration applied, some tables failed to reload
  2 - Command error (bad schema, database error, rolled back)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, cmd)
		},
	}

	addPathFlags(cmd, pathFlagsSchema|pathFlagsDatabase)

	return cmd
}

func runMigrate(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	input, err := s.loadInput()
	if err != nil {
		return err
	}
	out, err := s.migrate(commandContext(cmd), input, "migrate")
	if err != nil {
		return err
	}
	return s.outputMigrate(out)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// migrate snapshots the live database and applies the plan for input in a
// single transaction, recording the run with it.
func (s *session) migrate(ctx context.Context, input *schema.Input, command string) (*MigrateOutput, error) {
	plan := migrate.Plan(input.Previous, input.Current, input.Changes)
	for _, w := range plan.Warnings {
		s.logger.Warn("column type change ignored", "detail", w)
	}

	currentHash, err := schema.Hash(input.Current)
	if err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeSchema, "hashing schema", err)
	}
	previousHash, err := schema.Hash(input.Previous)
	if err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeSchema, "hashing previous schema", err)
	}

	s.logger.Info("opening database", "path", s.cfg.Database)
	st, err := store.Open(s.cfg.Database)
	if err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			s.logger.Error("error closing database", "error", closeErr)
		}
	}()

	runID := s.ids.NewID()
	snapPath := filepath.Join(s.cfg.SnapshotDir, runID+".db")
	if err := st.Snapshot(ctx, snapPath); err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to snapshot database", err)
	}
	s.logger.Info("snapshot written", "path", snapPath)

	snap, err := store.OpenReadOnly(snapPath)
	if err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open snapshot", err)
	}
	defer snap.Close()

	// The update database is opened only when the directive names tables
	// to reload from it.
	var external store.Querier
	if len(plan.External) > 0 {
		if s.cfg.External == "" {
			return nil, s.formatter.Fail(ExitCommandError, ErrCodeConfig,
				fmt.Sprintf("change directive reloads %v from an external database but none is configured", plan.External), nil)
		}
		ext, err := store.OpenReadOnly(s.cfg.External)
		if err != nil {
			return nil, s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open external database", err)
		}
		defer ext.Close()
		external = ext.DB()
	}

	var report *migrate.Report
	err = store.InTx(ctx, st.DB(), nil, func(tx *sqlx.Tx) error {
		var err error
		report, err = migrate.Migrator{Logger: s.logger}.Apply(ctx, tx, plan, snap.DB(), external)
		if err != nil {
			return err
		}
		return store.RecordRun(ctx, tx, store.Run{
			ID:           runID,
			StartedAt:    s.now().UTC().Format(time.RFC3339),
			Command:      command,
			SchemaHash:   currentHash,
			PreviousHash: previousHash,
			Steps:        report.Steps,
			Reloaded:     report.Rows(migrate.PassReload),
			External:     report.Rows(migrate.PassExternal),
			Cleared:      report.Rows(migrate.PassClear),
			Failed:       len(report.Failed),
			Snapshot:     snapPath,
			Summary:      plan.Summary(),
		})
	})
	if err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeMigration, "migration rolled back", err)
	}
	s.logger.Info("migration committed", "run", runID, "steps", report.Steps, "failed", len(report.Failed))

	out := &MigrateOutput{
		RunID:    runID,
		Database: s.cfg.Database,
		Snapshot: snapPath,
		Summary:  plan.Summary(),
		Report:   report,
		Warnings: plan.Warnings,
	}
	for _, f := range report.Failed {
		out.Failures = append(out.Failures, f.Error())
	}
	return out, nil
}

// outputMigrate prints the result and maps reload failures to exit 1.
func (s *session) outputMigrate(out *MigrateOutput) error {
	f := s.formatter
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: out, RunID: out.RunID}
		if len(out.Failures) > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeReloadFailed,
				Message: fmt.Sprintf("%d table(s) failed to reload", len(out.Failures)),
				Details: out.Failures,
			}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		writeMigrateText(f, out)
	}

	if len(out.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d table(s) failed to reload", len(out.Failures)))
	}
	return nil
}

func writeMigrateText(f *OutputFormatter, out *MigrateOutput) {
	w := f.Writer
	mark := "✓"
	if len(out.Failures) > 0 {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s Migrated %s: %s\n", mark, out.Database, out.Summary)
	fmt.Fprintf(w, "  run:      %s\n", out.RunID)
	fmt.Fprintf(w, "  snapshot: %s\n", out.Snapshot)
	r := out.Report
	fmt.Fprintf(w, "  steps %d, reloaded %d, external %d, cleared %d\n",
		r.Steps, r.Rows(migrate.PassReload), r.Rows(migrate.PassExternal), r.Rows(migrate.PassClear))
	for _, name := range r.Skipped {
		fmt.Fprintf(w, "  skipped %s: no table in source\n", name)
	}
	for _, failure := range out.Failures {
		fmt.Fprintf(w, "  failed: %s\n", failure)
	}
	for _, warning := range out.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

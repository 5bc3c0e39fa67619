package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/erpgen/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// HistoryResult holds the recorded runs, newest first.
type HistoryResult struct {
	Database string      `json:"database"`
	Runs     []store.Run `json:"runs"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List generator runs recorded in the live database",
		Long: `List the migrate and build runs recorded in the live database,
newest first, with the schema hashes, the plan summary and the row counts
of each pass.

Examples:
  erpgen history
  erpgen history --limit 5 --database ./erp.db
  erpgen history --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().String("database", "", "live SQLite database (default erp.db)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	if _, err := os.Stat(s.cfg.Database); err != nil {
		return s.formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", s.cfg.Database), err)
	}
	st, err := store.Open(s.cfg.Database)
	if err != nil {
		return s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer st.Close()

	runs, err := store.Runs(commandContext(cmd), st.DB(), opts.Limit)
	if err != nil {
		return s.formatter.Fail(ExitCommandError, ErrCodeHistoryFailed, "failed to read run history", err)
	}

	result := HistoryResult{Database: s.cfg.Database, Runs: runs}
	if s.formatter.Format == "json" {
		return s.formatter.Success(result)
	}
	return outputHistoryText(s.formatter, result)
}

func outputHistoryText(f *OutputFormatter, result HistoryResult) error {
	if len(result.Runs) == 0 {
		fmt.Fprintf(f.Writer, "No runs recorded in %s\n", result.Database)
		return nil
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSTARTED\tCOMMAND\tSCHEMA\tSTEPS\tRELOADED\tEXTERNAL\tCLEARED\tFAILED\tSUMMARY")
	for _, r := range result.Runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Seq, r.StartedAt, r.Command, shortHash(r.SchemaHash),
			r.Steps, r.Reloaded, r.External, r.Cleared, r.Failed, r.Summary)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if f.Verbose {
		for _, r := range result.Runs {
			f.VerboseLog("run %d: id=%s snapshot=%s previous=%s", r.Seq, r.ID, r.Snapshot, shortHash(r.PreviousHash))
		}
	}
	return nil
}

// shortHash trims a schema hash for table display.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

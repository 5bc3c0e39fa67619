package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/erpgen/internal/config"
	"github.com/roach88/erpgen/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	// IDs and Now are overridden in tests.
	IDs store.IDGenerator
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the erpgen CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "erpgen",
		Short: "erpgen - ERP schema generator",
		Long: `Generate a SQLite-backed ERP data layer from a declarative schema.

erpgen migrates the live database to the current schema, keeping the rows
of every table whose column set is unchanged, and emits a typed Go access
layer with ledger registers and document realization.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default erpgen.yaml)")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// session is the per-command state shared by commands that read erpgen.yaml.
type session struct {
	cfg       *config.Config
	formatter *OutputFormatter
	logger    *slog.Logger
	ids       store.IDGenerator
	now       func() time.Time
}

// newSession loads the configuration, layering cmd's changed flags on top,
// and builds the formatter and logger from the result.
func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
	if err != nil {
		f := newFormatter(opts.Format, opts.Verbose, cmd)
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	s := &session{
		cfg:       cfg,
		formatter: newFormatter(cfg.Format, cfg.Verbose, cmd),
		logger:    newLogger(cmd.ErrOrStderr(), cfg.Verbose),
		ids:       opts.IDs,
		now:       opts.Now,
	}
	if s.ids == nil {
		s.ids = store.UUIDv7{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if cfg.File != "" {
		s.logger.Debug("config loaded", "file", cfg.File)
	}
	return s, nil
}

func newFormatter(format string, verbose bool, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   verbose,
	}
}

// newLogger returns a text logger on w at Info, or Debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

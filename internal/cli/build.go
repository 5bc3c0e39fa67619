package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/erpgen/internal/synth"
)

// BuildOutput is the combined result of a build.
type BuildOutput struct {
	Migrate  *MigrateOutput  `json:"migrate"`
	Generate *GenerateOutput `json:"generate"`
	Rotated  string          `json:"rotated"`
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Migrate the database, generate code and rotate the previous schema",
		Long: `Run a full generator pass:

  1. snapshot the live database and migrate it to the current schema
  2. record the run in the history
  3. emit the Go access layer into the output directory
  4. copy the current schema over the previous one

Once the migration commits, the previous schema is rotated even if some
tables failed to reload, since the live tables now have the current layout.
Such a build exits 1.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(rootOpts, cmd)
		},
	}

	addPathFlags(cmd, pathFlagsSchema|pathFlagsDatabase|pathFlagsOutput)

	return cmd
}

func runBuild(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	if filepath.Ext(s.cfg.Schema) != filepath.Ext(s.cfg.Previous) {
		return s.formatter.Fail(ExitCommandError, ErrCodeConfig,
			fmt.Sprintf("schema %s and previous schema %s must use the same format", s.cfg.Schema, s.cfg.Previous), nil)
	}

	input, err := s.loadInput()
	if err != nil {
		return err
	}
	// Synthesis and rendering problems must stop the build before the
	// database changes.
	plan, err := synth.Build(input.Current)
	if err != nil {
		return s.schemaFailure(err)
	}
	files, err := s.render(plan)
	if err != nil {
		return err
	}

	migrated, err := s.migrate(commandContext(cmd), input, "build")
	if err != nil {
		return err
	}
	generated, err := s.write(files)
	if err != nil {
		return err
	}
	if err := rotateSchema(s.cfg.Schema, s.cfg.Previous); err != nil {
		return s.formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "rotating previous schema", err)
	}
	s.logger.Info("previous schema rotated", "path", s.cfg.Previous)

	return s.outputBuild(&BuildOutput{Migrate: migrated, Generate: generated, Rotated: s.cfg.Previous})
}

// rotateSchema replaces previous with the contents of current.
func rotateSchema(current, previous string) error {
	data, err := os.ReadFile(current)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(previous), 0o755); err != nil {
		return err
	}
	tmp := previous + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, previous)
}

func (s *session) outputBuild(out *BuildOutput) error {
	f := s.formatter
	failures := out.Migrate.Failures
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: out, RunID: out.Migrate.RunID}
		if len(failures) > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeReloadFailed,
				Message: fmt.Sprintf("%d table(s) failed to reload", len(failures)),
				Details: failures,
			}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		writeMigrateText(f, out.Migrate)
		fmt.Fprintf(f.Writer, "✓ Generated %d file(s) in %s (package %s)\n",
			len(out.Generate.Files), out.Generate.Output, out.Generate.Package)
		fmt.Fprintf(f.Writer, "✓ Rotated %s\n", out.Rotated)
	}

	if len(failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d table(s) failed to reload", len(failures)))
	}
	return nil
}

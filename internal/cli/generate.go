package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/erpgen/internal/codegen"
	"github.com/roach88/erpgen/internal/synth"
)

// GenerateOutput lists the files written by generate.
type GenerateOutput struct {
	Output  string   `json:"output"`
	Package string   `json:"package"`
	Files   []string `json:"files"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Emit the Go access layer for the current schema",
		Long: `Synthesize the access layer, ledger and realization code for every
entity of the current schema and write it as gofmt-formatted Go source
into the output directory. The database is not touched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(rootOpts, cmd)
		},
	}

	addPathFlags(cmd, pathFlagsSchema|pathFlagsOutput)

	return cmd
}

func runGenerate(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	_, plan, err := loadModel(s.cfg.Schema)
	if err != nil {
		return s.schemaFailure(err)
	}
	out, err := s.generate(plan)
	if err != nil {
		return err
	}
	return s.outputGenerate(out)
}

// generate renders plan and writes the files under the output directory.
func (s *session) generate(plan *synth.Plan) (*GenerateOutput, error) {
	files, err := s.render(plan)
	if err != nil {
		return nil, err
	}
	return s.write(files)
}

func (s *session) render(plan *synth.Plan) (map[string][]byte, error) {
	files, err := codegen.Generate(plan, codegen.Options{Package: s.cfg.Package})
	if err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeGenerate, "code generation failed", err)
	}
	return files, nil
}

func (s *session) write(files map[string][]byte) (*GenerateOutput, error) {
	if err := codegen.WriteFiles(s.cfg.Output, files); err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("writing %s", s.cfg.Output), err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	s.logger.Info("code generated", "output", s.cfg.Output, "package", s.cfg.Package, "files", len(names))

	return &GenerateOutput{Output: s.cfg.Output, Package: s.cfg.Package, Files: names}, nil
}

func (s *session) outputGenerate(out *GenerateOutput) error {
	f := s.formatter
	if f.Format == "json" {
		return f.Success(out)
	}
	fmt.Fprintf(f.Writer, "✓ Generated %d file(s) in %s (package %s)\n", len(out.Files), out.Output, out.Package)
	for _, name := range out.Files {
		f.VerboseLog("  %s", name)
	}
	return nil
}

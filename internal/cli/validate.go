package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/erpgen/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Schema   string            `json:"schema"`
	Entities int               `json:"entities,omitempty"`
	Hash     string            `json:"hash,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema>",
		Short: "Validate a schema without touching the database",
		Long: `Validate a schema file (JSON, YAML or CUE).

Checks column types, identity columns, foreign keys, registers, find specs,
ranges and hooks, then runs the synthesizers. Every problem found is
reported with its code and position. No database or output is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.Format, opts.Verbose, cmd)

	m, plan, err := loadModel(path)
	if err != nil {
		errs := convertLoadError(err)
		if errs[0].Code == ErrCodeNotFound {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("schema not found: %s", path), err)
		}
		return outputValidationErrors(formatter, path, errs)
	}

	formatter.VerboseLog("Parsed %d entities from %s", len(m.Entities), path)
	for _, ep := range plan.Entities {
		formatter.VerboseLog("Synthesized %s", ep.Name)
	}

	hash, err := schema.Hash(m)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "hashing schema", err)
	}

	return outputValidateSuccess(formatter, ValidationResult{
		Valid:    true,
		Schema:   path,
		Entities: len(m.Entities),
		Hash:     hash,
	})
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s valid (%d entities)\n", result.Schema, result.Entities)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, path string, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Schema: path,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		switch {
		case err.Entity != "" && err.Field != "":
			fmt.Fprintf(formatter.Writer, "  %s: %s.%s: %s\n\n", err.Code, err.Entity, err.Field, err.Message)
		case err.Entity != "":
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Entity, err.Message)
		default:
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
		}
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

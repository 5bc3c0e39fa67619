package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/synth"
)

// LoadError represents an error that occurred while loading a schema.
type LoadError struct {
	Code    string
	Message string
	Line    int
	Err     error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidationError is one schema problem in command output.
type ValidationError struct {
	Code    string `json:"code"`
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// convertLoadError maps a schema package error to load errors, one per
// schema problem.
func convertLoadError(err error) []ValidationError {
	if errors.Is(err, fs.ErrNotExist) {
		return []ValidationError{{Code: ErrCodeNotFound, Message: err.Error()}}
	}
	list := schema.AsSchemaErrors(err)
	if len(list) == 0 {
		return []ValidationError{{Code: ErrCodeSchema, Message: err.Error()}}
	}
	out := make([]ValidationError, len(list))
	for i, se := range list {
		out[i] = ValidationError{
			Code:    se.Code,
			Entity:  se.Entity,
			Field:   se.Field,
			Message: se.Message,
		}
		if se.Pos.IsValid() {
			out[i].File = se.Pos.Filename()
			out[i].Line = se.Pos.Line()
		}
	}
	return out
}

// firstLoadError condenses err into a single LoadError for commands that
// stop at the first problem.
func firstLoadError(err error) *LoadError {
	v := convertLoadError(err)[0]
	return &LoadError{Code: v.Code, Message: v.Message, Line: v.Line, Err: err}
}

// loadModel parses a schema file and synthesizes its plan.
func loadModel(path string) (*schema.Model, *synth.Plan, error) {
	m, err := schema.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	p, err := synth.Build(m)
	if err != nil {
		return nil, nil, err
	}
	return m, p, nil
}

// loadInput reads the schema pair and change directive named by the
// config.
func (s *session) loadInput() (*schema.Input, error) {
	input, err := schema.Load(s.cfg.Schema, s.cfg.Previous, s.cfg.Changes)
	if err != nil {
		return nil, s.schemaFailure(err)
	}
	s.logger.Debug("schema loaded",
		"schema", s.cfg.Schema, "entities", len(input.Current.Entities),
		"previous", s.cfg.Previous, "previous_entities", len(input.Previous.Entities))
	return input, nil
}

// schemaFailure prints a load error and returns the command-level exit.
// Schema errors are fatal to a generator run.
func (s *session) schemaFailure(err error) error {
	le := firstLoadError(err)
	var details interface{}
	if errs := convertLoadError(err); len(errs) > 1 {
		details = errs
	}
	_ = s.formatter.Error(le.Code, le.Message, details)
	return WrapExitError(ExitCommandError, "failed to load schema", le)
}

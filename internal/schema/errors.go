package schema

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Schema error codes (E200-E299).
const (
	ErrUnknownType      = "E201" // column type not recognized
	ErrMissingIdentity  = "E202" // id, is_active or is_realized missing
	ErrDanglingRef      = "E203" // foreign key or reference to unknown entity/column
	ErrBadRegister      = "E204" // register target or sources invalid
	ErrBadFind          = "E205" // find spec not joinable or field unknown
	ErrBadRange         = "E206" // between/between_up/sum field invalid
	ErrLayoutMismatch   = "E207" // columns and model disagree
	ErrBadDirective     = "E208" // change directive names unknown table or field
	ErrBadRelated       = "E209" // related collection or hook invalid
	ErrDecode           = "E210" // CUE decode or unification failure
	ErrEntityClassified = "E211" // entity is both document and line item
	ErrBadName          = "E212" // entity or column name unusable as an SQL identifier
)

// SchemaError reports a malformed or inconsistent schema. It is fatal to a
// generator run.
type SchemaError struct {
	Code    string
	Entity  string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	fmt.Fprintf(&b, "[%s] ", e.Code)
	switch {
	case e.Entity != "" && e.Field != "":
		fmt.Fprintf(&b, "%s.%s: ", e.Entity, e.Field)
	case e.Entity != "":
		fmt.Fprintf(&b, "%s: ", e.Entity)
	}
	b.WriteString(e.Message)
	return b.String()
}

// SchemaErrors collects every problem found in one schema file.
type SchemaErrors []*SchemaError

func (es SchemaErrors) Error() string {
	switch len(es) {
	case 0:
		return "no schema errors"
	case 1:
		return es[0].Error()
	}
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d schema errors:\n  %s", len(es), strings.Join(msgs, "\n  "))
}

// Unwrap exposes the individual errors to errors.As.
func (es SchemaErrors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// IsSchemaError reports whether err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// AsSchemaErrors flattens err into its schema errors. Non-schema errors
// return nil.
func AsSchemaErrors(err error) SchemaErrors {
	var list SchemaErrors
	if errors.As(err, &list) {
		return list
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return SchemaErrors{se}
	}
	return nil
}

// fromCUE converts CUE errors to schema errors, keeping positions.
func fromCUE(err error) SchemaErrors {
	if err == nil {
		return nil
	}
	var out SchemaErrors
	for _, ce := range cueerrors.Errors(err) {
		se := &SchemaError{Code: ErrDecode, Message: ce.Error()}
		if positions := cueerrors.Positions(ce); len(positions) > 0 {
			se.Pos = positions[0]
		}
		out = append(out, se)
	}
	if len(out) == 0 {
		out = append(out, &SchemaError{Code: ErrDecode, Message: err.Error()})
	}
	return out
}

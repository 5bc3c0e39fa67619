package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is wrapped by every error about a row id that does not exist.
var ErrNotFound = errors.New("row not found")

// UnknownEntityError reports a Service.Entity lookup for a name the plan
// does not define.
type UnknownEntityError struct {
	Entity string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %q", e.Entity)
}

// UnknownFieldError reports a filter, range or sum call against a field the
// entity does not have, or has not registered for that operation. No query
// is issued.
type UnknownFieldError struct {
	Entity string
	Field  string
	Op     string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("%s %s: unknown field %q", e.Entity, e.Op, e.Field)
}

// IsUnknownField reports whether err is or wraps an UnknownFieldError.
func IsUnknownField(err error) bool {
	var ue *UnknownFieldError
	return errors.As(err, &ue)
}

// UnknownFindError reports a find name that was not registered in the schema.
type UnknownFindError struct {
	Entity string
	Name   string
}

func (e *UnknownFindError) Error() string {
	return fmt.Sprintf("%s: no find registered as %q", e.Entity, e.Name)
}

// TransitionError reports a lifecycle operation the row's state does not
// allow, such as realizing a realized document.
type TransitionError struct {
	Entity string
	ID     int64
	Op     string
	State  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s: %s", e.Entity, e.ID, e.Op, e.State)
}

// IsTransition reports whether err is or wraps a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// PermissionError reports an Authorizer denial.
type PermissionError struct {
	Right string
	Err   error
}

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("permission %s denied", e.Right)
	}
	return fmt.Sprintf("permission %s denied: %v", e.Right, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// IsPermission reports whether err is or wraps a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// RelatedLoadMiss records a register whose related row could not be read.
// It never reaches callers: the adjustment is skipped and the miss is
// logged at Debug. An absent row and a failed read are treated alike.
type RelatedLoadMiss struct {
	Entity string
	ID     int64
	Err    error
}

func (e *RelatedLoadMiss) Error() string {
	return fmt.Sprintf("related %s %d not loaded: %v", e.Entity, e.ID, e.Err)
}

func (e *RelatedLoadMiss) Unwrap() error { return e.Err }

// IsRelatedLoadMiss reports whether err is or wraps a RelatedLoadMiss.
func IsRelatedLoadMiss(err error) bool {
	var me *RelatedLoadMiss
	return errors.As(err, &me)
}

// MissingHandlerError lists complex registers and hooks named in the schema
// but absent from the Registry.
type MissingHandlerError struct {
	Complex []string
	Hooks   []string
}

func (e *MissingHandlerError) Error() string {
	var parts []string
	if len(e.Complex) > 0 {
		parts = append(parts, "complex registers "+strings.Join(e.Complex, ", "))
	}
	if len(e.Hooks) > 0 {
		parts = append(parts, "hooks "+strings.Join(e.Hooks, ", "))
	}
	return "unregistered " + strings.Join(parts, "; ")
}

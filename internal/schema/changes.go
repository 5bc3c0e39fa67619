package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// ChangeDirective is the one-shot instruction file consumed by a generator
// run. YAML and JSON spellings are both accepted.
type ChangeDirective struct {
	// TablesForClearing are recreated empty.
	TablesForClearing []string `yaml:"tables_for_clearing" json:"tables_for_clearing"`
	// FieldsForClearing resets each named field to its default, last.
	FieldsForClearing map[string][]string `yaml:"fields_for_clearing" json:"fields_for_clearing"`
	// Update entities are reloaded from the external snapshot.
	Update []string `yaml:"update" json:"update"`
}

// ParseChanges decodes a change directive. An empty document is an empty
// directive. Unknown keys are rejected.
func ParseChanges(data []byte) (ChangeDirective, error) {
	var d ChangeDirective
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return ChangeDirective{}, &SchemaError{Code: ErrBadDirective, Message: fmt.Sprintf("decoding change directive: %v", err)}
	}
	return d, nil
}

// ForceClear reports whether name is listed under tables_for_clearing.
func (d ChangeDirective) ForceClear(name string) bool {
	return contains(d.TablesForClearing, name)
}

// ExternalReload reports whether name is listed under update.
func (d ChangeDirective) ExternalReload(name string) bool {
	return contains(d.Update, name)
}

// ClearedTables returns the entities with fields to clear, sorted.
func (d ChangeDirective) ClearedTables() []string {
	names := make([]string, 0, len(d.FieldsForClearing))
	for name := range d.FieldsForClearing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether the directive asks for nothing.
func (d ChangeDirective) Empty() bool {
	return len(d.TablesForClearing) == 0 && len(d.FieldsForClearing) == 0 && len(d.Update) == 0
}

// Validate checks the directive against the model it will be applied to.
func (d ChangeDirective) Validate(m *Model) error {
	var errs SchemaErrors
	bad := func(entity, field, format string, args ...any) {
		errs = append(errs, &SchemaError{Code: ErrBadDirective, Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)})
	}
	for _, name := range d.TablesForClearing {
		if !m.Has(name) {
			bad(name, "", "tables_for_clearing names unknown entity")
		}
	}
	for _, name := range d.Update {
		if !m.Has(name) {
			bad(name, "", "update names unknown entity")
		}
	}
	for _, name := range d.ClearedTables() {
		e, ok := m.Entity(name)
		if !ok {
			bad(name, "", "fields_for_clearing names unknown entity")
			continue
		}
		for _, f := range d.FieldsForClearing[name] {
			if f == "id" {
				bad(name, f, "the identity column cannot be cleared")
			} else if !e.HasColumn(f) {
				bad(name, f, "fields_for_clearing names unknown field")
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

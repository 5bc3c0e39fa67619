package schema

import (
	"fmt"
	"strings"
)

// Type is the semantic type of a column.
type Type int

const (
	TypeText Type = iota // zero value: text is the default
	TypeInt
	TypeReal
	TypeBool
)

// String returns the schema spelling of the type.
func (t Type) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeReal:
		return "real"
	case TypeBool:
		return "bool"
	default:
		return "text"
	}
}

// SQL returns the column type used in CREATE TABLE.
func (t Type) SQL() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeReal:
		return "REAL"
	case TypeBool:
		return "BOOL"
	default:
		return "TEXT"
	}
}

// Numeric reports whether values of this type can feed a register or a sum.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeReal
}

// ParseType maps a declared type string to a Type.
func ParseType(s string) (Type, bool) {
	switch s {
	case "int", "integer":
		return TypeInt, true
	case "real", "float":
		return TypeReal, true
	case "bool", "boolean":
		return TypeBool, true
	case "text", "string", "":
		return TypeText, true
	default:
		return TypeText, false
	}
}

// Column is one physical column of an entity.
type Column struct {
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	Default any    `json:"def"`
	Label   string `json:"hum,omitempty"`
	Form    bool   `json:"form,omitempty"`

	// Ref is the referenced entity for foreign key columns.
	Ref string `json:"ref,omitempty"`
	// Alias is the join alias used by enriched projections.
	Alias string `json:"alias,omitempty"`
}

// IsForeignKey reports whether the column references another entity.
func (c Column) IsForeignKey() bool { return c.Ref != "" }

// Kind classifies an entity for realization.
type Kind int

const (
	KindPlain Kind = iota
	KindDocument
	KindLineItem
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindLineItem:
		return "line_item"
	default:
		return "plain"
	}
}

// Register keeps Target.Field in sync with the owner's Sources.
type Register struct {
	Target  string   `json:"target"`
	Field   string   `json:"field"`
	Op      Operator `json:"op"`
	Sources []string `json:"sources"`
	// Via is the owner's foreign key column pointing at Target.
	Via string `json:"via"`
}

// RegField renders the register target as entity.column.
func (r Register) RegField() string { return r.Target + "." + r.Field }

// FindTerm is one field of a find specification.
type FindTerm struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Negate bool   `json:"negate,omitempty"`
}

// Find is a pre-registered multi-table search.
type Find struct {
	Name     string     `json:"name"`
	Entities []string   `json:"entities"`
	Terms    []FindTerm `json:"terms"`
}

// Positive returns the terms matched with LIKE.
func (f Find) Positive() []FindTerm {
	var out []FindTerm
	for _, t := range f.Terms {
		if !t.Negate {
			out = append(out, t)
		}
	}
	return out
}

// Negative returns the terms matched with NOT LIKE.
func (f Find) Negative() []FindTerm {
	var out []FindTerm
	for _, t := range f.Terms {
		if t.Negate {
			out = append(out, t)
		}
	}
	return out
}

// RangeField is a field that supports inclusive range queries.
// Entity is the owner for between and the parent for between_up.
type RangeField struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Type   Type   `json:"type"`
	Via    string `json:"via,omitempty"`
}

// ComplexRegister names a hand-written register handler.
type ComplexRegister struct {
	Name string `json:"name"`
}

// Related is a dependent collection cascaded on realize and delete.
type Related struct {
	Entity      string `json:"table"`
	Filter      string `json:"filter"`
	FilterValue string `json:"filter_value"`
}

// HookAct is the write a hook attaches to.
type HookAct string

const (
	HookCreate HookAct = "create"
	HookUpdate HookAct = "update"
	HookDelete HookAct = "delete"
)

// HookWhen places a hook before or after the write.
type HookWhen string

const (
	HookBefore HookWhen = "before"
	HookAfter  HookWhen = "after"
)

// Hook is a named side effect around a write.
type Hook struct {
	Act  HookAct  `json:"act"`
	When HookWhen `json:"when"`
	Func string   `json:"func"`
}

// Entity is a schema-declared record type.
type Entity struct {
	Name             string            `json:"name"`
	Kind             Kind              `json:"kind"`
	Rights           string            `json:"rights"`
	Message          string            `json:"message,omitempty"`
	Columns          []Column          `json:"columns"`
	Find             []Find            `json:"find,omitempty"`
	Between          []RangeField      `json:"between,omitempty"`
	BetweenUp        []RangeField      `json:"between_up,omitempty"`
	Sum              []string          `json:"sum,omitempty"`
	Registers        []Register        `json:"register,omitempty"`
	RzRegisters      []Register        `json:"rz_register,omitempty"`
	ComplexRegisters []ComplexRegister `json:"complex_register,omitempty"`
	Related          []Related         `json:"related,omitempty"`
	Hooks            []Hook            `json:"hooks,omitempty"`
}

// Column looks up a column by name.
func (e *Entity) Column(name string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the entity has a column called name.
func (e *Entity) HasColumn(name string) bool {
	_, ok := e.Column(name)
	return ok
}

// ColumnNames returns the ordered physical layout.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = c.Name
	}
	return names
}

// ForeignKeys returns the foreign key columns in layout order.
func (e *Entity) ForeignKeys() []Column {
	var fks []Column
	for _, c := range e.Columns {
		if c.IsForeignKey() {
			fks = append(fks, c)
		}
	}
	return fks
}

// ForeignKeyTo returns the first foreign key column referencing entity.
func (e *Entity) ForeignKeyTo(entity string) (Column, bool) {
	for _, c := range e.Columns {
		if c.Ref == entity && c.Name == entity+"_id" {
			return c, true
		}
	}
	return Column{}, false
}

// IsDocument reports whether the entity is a realizable document.
func (e *Entity) IsDocument() bool { return e.Kind == KindDocument }

// IsLineItem reports whether the entity lives inside a document.
func (e *Entity) IsLineItem() bool { return e.Kind == KindLineItem }

// Realizable reports whether realize applies to the entity.
func (e *Entity) Realizable() bool { return e.Kind != KindPlain }

// HooksFor returns the hooks attached to act at when, in declaration order.
func (e *Entity) HooksFor(act HookAct, when HookWhen) []Hook {
	var out []Hook
	for _, h := range e.Hooks {
		if h.Act == act && h.When == when {
			out = append(out, h)
		}
	}
	return out
}

// Permission names derived from the rights tag.
func (e *Entity) ReadRight() string   { return e.Rights + "_READ" }
func (e *Entity) CreateRight() string { return e.Rights + "_CREATE" }
func (e *Entity) UpdateRight() string { return e.Rights + "_UPDATE" }
func (e *Entity) DeleteRight() string { return e.Rights + "_DELETE" }

// Model is the full set of entities of one schema version.
type Model struct {
	Entities []*Entity `json:"entities"`
	byName   map[string]*Entity
}

// NewModel indexes entities by name, preserving order.
func NewModel(entities []*Entity) *Model {
	m := &Model{Entities: entities, byName: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		m.byName[e.Name] = e
	}
	return m
}

// Entity looks up an entity by name.
func (m *Model) Entity(name string) (*Entity, bool) {
	if m == nil {
		return nil, false
	}
	e, ok := m.byName[name]
	return e, ok
}

// Has reports whether the model defines name.
func (m *Model) Has(name string) bool {
	_, ok := m.Entity(name)
	return ok
}

// Names returns entity names in declaration order.
func (m *Model) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, len(m.Entities))
	for i, e := range m.Entities {
		names[i] = e.Name
	}
	return names
}

// OwningDocument returns the foreign key column of a line item that points at
// its document.
func (m *Model) OwningDocument(e *Entity) (Column, bool) {
	for _, c := range e.ForeignKeys() {
		if ref, ok := m.Entity(c.Ref); ok && ref.IsDocument() {
			return c, true
		}
	}
	return Column{}, false
}

// EnrichedName is the display field appended by enriched projections.
func (c Column) EnrichedName() string {
	return strings.TrimSuffix(c.Name, "_id")
}

func (c Column) String() string {
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

package schema

import (
	"fmt"
	"regexp"
	"strings"

	"cuelang.org/go/cue/token"
)

// validateModel resolves foreign keys in place and checks cross-entity
// references. It does not fail fast.
func validateModel(m *Model, positions map[string]token.Pos) SchemaErrors {
	v := &validator{model: m, positions: positions}
	for _, e := range m.Entities {
		v.resolveRefs(e)
	}
	for _, e := range m.Entities {
		v.names(e)
		v.identity(e)
		v.lineItem(e)
		v.registers(e, e.Registers, "register")
		v.registers(e, e.RzRegisters, "rz_register")
		v.finds(e)
		v.ranges(e)
		v.related(e)
		v.hooks(e)
	}
	return v.errs
}

type validator struct {
	model     *Model
	positions map[string]token.Pos
	errs      SchemaErrors
}

func (v *validator) fail(code string, e *Entity, field, format string, args ...any) {
	v.errs = append(v.errs, &SchemaError{
		Code:    code,
		Entity:  e.Name,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Pos:     v.positions[e.Name],
	})
}

// resolveRefs sets Ref and Alias on every <x>_id column. A column named
// <x>2_id is a second reference to <x> joined under alias <x>2; a self
// reference is joined under the first two letters of the entity name.
func (v *validator) resolveRefs(e *Entity) {
	for i := range e.Columns {
		c := &e.Columns[i]
		if c.Name == "id" {
			c.Type = TypeInt
			continue
		}
		if !strings.HasSuffix(c.Name, "_id") {
			continue
		}
		base := strings.TrimSuffix(c.Name, "_id")
		switch {
		case base == e.Name:
			c.Ref, c.Alias = base, base
			if len(base) > 2 {
				c.Alias = base[:2]
			}
		case v.model.Has(base):
			c.Ref, c.Alias = base, base
		case strings.HasSuffix(base, "2") && v.model.Has(strings.TrimSuffix(base, "2")):
			c.Ref, c.Alias = strings.TrimSuffix(base, "2"), base
		default:
			v.fail(ErrDanglingRef, e, c.Name, "foreign key references unknown entity %q", base)
			continue
		}
		if c.Type != TypeInt {
			v.fail(ErrDanglingRef, e, c.Name, "foreign key must be int, got %s", c.Type)
		}
	}

	enriched := make(map[string]bool)
	for _, fk := range e.ForeignKeys() {
		name := fk.EnrichedName()
		if e.HasColumn(name) || enriched[name] {
			v.fail(ErrDanglingRef, e, fk.Name, "enriched field %q collides with another field", name)
		}
		enriched[name] = true
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlKeywords are rejected as table and column names; generated SQL does not
// quote identifiers.
var sqlKeywords = map[string]bool{
	"by": true, "check": true, "default": true, "from": true, "group": true,
	"index": true, "key": true, "limit": true, "order": true, "primary": true,
	"references": true, "select": true, "table": true, "values": true, "where": true,
}

func (v *validator) names(e *Entity) {
	check := func(name, field string) {
		if !identifier.MatchString(name) || sqlKeywords[strings.ToLower(name)] {
			v.fail(ErrBadName, e, field, "%q is not usable as an SQL identifier", name)
		}
	}
	check(e.Name, "")
	for _, c := range e.Columns {
		check(c.Name, c.Name)
	}
}

func (v *validator) identity(e *Entity) {
	if len(e.Columns) == 0 || e.Columns[0].Name != "id" {
		v.fail(ErrMissingIdentity, e, "id", "columns must start with the identity column id")
	}
	if c, ok := e.Column("is_active"); !ok {
		v.fail(ErrMissingIdentity, e, "is_active", "soft delete flag is_active is required")
	} else if c.Type != TypeBool {
		v.fail(ErrMissingIdentity, e, "is_active", "is_active must be bool")
	}
	if e.IsDocument() {
		if c, ok := e.Column("is_realized"); !ok {
			v.fail(ErrMissingIdentity, e, "is_realized", "documents require the is_realized flag")
		} else if c.Type != TypeBool {
			v.fail(ErrMissingIdentity, e, "is_realized", "is_realized must be bool")
		}
	}
	if e.Rights == "" {
		v.fail(ErrMissingIdentity, e, "rights", "rights tag is required")
	}
}

func (v *validator) lineItem(e *Entity) {
	if !e.IsLineItem() {
		return
	}
	if _, ok := v.model.OwningDocument(e); !ok {
		v.fail(ErrDanglingRef, e, "", "line item has no foreign key to a document")
	}
}

func (v *validator) registers(e *Entity, regs []Register, section string) {
	for _, r := range regs {
		field := section + "." + r.RegField()
		if section == "rz_register" && !e.Realizable() {
			v.fail(ErrBadRegister, e, field, "rz_register requires a document or a line item")
		}
		target, ok := v.model.Entity(r.Target)
		if !ok {
			v.fail(ErrBadRegister, e, field, "register targets unknown entity %q", r.Target)
			continue
		}
		if via, ok := e.Column(r.Via); !ok || via.Ref != r.Target {
			v.fail(ErrBadRegister, e, field, "entity %q is not reachable through a foreign key %s", r.Target, r.Via)
		}
		tc, ok := target.Column(r.Field)
		if !ok {
			v.fail(ErrBadRegister, e, field, "register target column %q does not exist", r.RegField())
			continue
		}
		if len(r.Sources) == 0 {
			v.fail(ErrBadRegister, e, field, "val_field must name at least one column")
		}
		if !r.Op.Accumulates() && len(r.Sources) != 1 {
			v.fail(ErrBadRegister, e, field, "a snapshot register takes exactly one val_field")
		}
		if r.Op.Accumulates() && !tc.Type.Numeric() {
			v.fail(ErrBadRegister, e, field, "register target column must be numeric, got %s", tc.Type)
		}
		for _, src := range r.Sources {
			sc, ok := e.Column(src)
			if !ok {
				v.fail(ErrBadRegister, e, field, "val_field %q is not a column", src)
				continue
			}
			if r.Op.Accumulates() && !sc.Type.Numeric() {
				v.fail(ErrBadRegister, e, field, "val_field %q must be numeric, got %s", src, sc.Type)
			}
		}
	}
}

func (v *validator) finds(e *Entity) {
	names := make(map[string]bool)
	for _, f := range e.Find {
		if names[f.Name] {
			v.fail(ErrBadFind, e, f.Name, "find registered twice")
		}
		names[f.Name] = true

		if len(f.Entities) == 0 || f.Entities[0] != e.Name {
			v.fail(ErrBadFind, e, f.Name, "find must start with the owning entity")
			continue
		}
		if len(f.Positive()) == 0 {
			v.fail(ErrBadFind, e, f.Name, "find needs at least one positive field")
		}
		for _, name := range f.Entities {
			other, ok := v.model.Entity(name)
			if !ok {
				v.fail(ErrBadFind, e, f.Name, "find references unknown entity %q", name)
				continue
			}
			if name != e.Name && !e.HasColumn(name+"_id") && !other.HasColumn(e.Name+"_id") {
				v.fail(ErrBadFind, e, f.Name, "entity %q cannot be joined to %q", name, e.Name)
			}
			for _, t := range f.Terms {
				if t.Entity == name && !other.HasColumn(t.Field) {
					v.fail(ErrBadFind, e, f.Name, "field %s.%s does not exist", name, t.Field)
				}
			}
		}
	}
}

func (v *validator) ranges(e *Entity) {
	for i, r := range e.Between {
		c, ok := e.Column(r.Field)
		if !ok {
			v.fail(ErrBadRange, e, r.Field, "between field does not exist")
			continue
		}
		e.Between[i].Type = c.Type
	}
	for i, r := range e.BetweenUp {
		if via, ok := e.Column(r.Via); !ok || via.Ref != r.Entity {
			v.fail(ErrBadRange, e, r.Entity+"."+r.Field, "parent %q is not reachable through %s", r.Entity, r.Via)
			continue
		}
		parent, _ := v.model.Entity(r.Entity)
		c, ok := parent.Column(r.Field)
		if !ok {
			v.fail(ErrBadRange, e, r.Entity+"."+r.Field, "between_up field does not exist on %q", r.Entity)
			continue
		}
		e.BetweenUp[i].Type = c.Type
	}
	for _, s := range e.Sum {
		c, ok := e.Column(s)
		if !ok {
			v.fail(ErrBadRange, e, s, "sum field does not exist")
			continue
		}
		if !c.Type.Numeric() {
			v.fail(ErrBadRange, e, s, "sum field must be numeric, got %s", c.Type)
		}
	}
}

func (v *validator) related(e *Entity) {
	for _, r := range e.Related {
		other, ok := v.model.Entity(r.Entity)
		if !ok {
			v.fail(ErrBadRelated, e, "related."+r.Entity, "related table does not exist")
			continue
		}
		if !other.Realizable() {
			v.fail(ErrBadRelated, e, "related."+r.Entity, "related table must be a document or a line item")
		}
		if fc, ok := other.Column(r.Filter); !ok {
			v.fail(ErrBadRelated, e, "related."+r.Entity, "filter %q is not a column of %s", r.Filter, r.Entity)
		} else if fc.Type != TypeInt {
			v.fail(ErrBadRelated, e, "related."+r.Entity, "filter %q must be int", r.Filter)
		}
		if !e.HasColumn(r.FilterValue) {
			v.fail(ErrBadRelated, e, "related."+r.Entity, "filter_value %q is not a column of %s", r.FilterValue, e.Name)
		}
	}
	for _, c := range e.ComplexRegisters {
		if c.Name == "" {
			v.fail(ErrBadRelated, e, "complex_register", "complex register needs a name")
		}
		if !e.Realizable() {
			v.fail(ErrBadRelated, e, "complex_register."+c.Name, "complex register requires a document or a line item")
		}
	}
}

func (v *validator) hooks(e *Entity) {
	for _, h := range e.Hooks {
		if h.Func == "" {
			v.fail(ErrBadRelated, e, "hooks", "hook on %s %s needs a func", h.When, h.Act)
		}
	}
}

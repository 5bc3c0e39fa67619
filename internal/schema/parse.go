package schema

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed file.cue
var fileCUE string

// ParseFile reads and parses a schema file. JSON, YAML and CUE are accepted,
// selected by extension.
func ParseFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes a schema document, unifies it with the #File definition and
// builds the typed model. All problems found are returned as SchemaErrors.
func Parse(filename string, data []byte) (*Model, error) {
	v, errs := decode(filename, data)
	if len(errs) > 0 {
		return nil, errs
	}

	b := &builder{positions: make(map[string]token.Pos)}
	model := b.build(v)
	b.errs = append(b.errs, validateModel(model, b.positions)...)
	if len(b.errs) > 0 {
		return nil, b.errs
	}
	return model, nil
}

func decode(filename string, data []byte) (cue.Value, SchemaErrors) {
	ctx := cuecontext.New()

	defs := ctx.CompileString(fileCUE, cue.Filename("file.cue"))
	if err := defs.Err(); err != nil {
		return cue.Value{}, fromCUE(err)
	}
	fileDef := defs.LookupPath(cue.ParsePath("#File"))

	var doc cue.Value
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		f, err := cueyaml.Extract(filename, data)
		if err != nil {
			return cue.Value{}, fromCUE(err)
		}
		doc = ctx.BuildFile(f)
	default:
		// JSON is valid CUE.
		doc = ctx.CompileBytes(data, cue.Filename(filename))
	}
	if err := doc.Err(); err != nil {
		return cue.Value{}, fromCUE(err)
	}

	v := fileDef.Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, fromCUE(err)
	}
	return v, nil
}

type builder struct {
	errs      SchemaErrors
	positions map[string]token.Pos
}

func (b *builder) fail(code, entity, field string, pos token.Pos, format string, args ...any) {
	b.errs = append(b.errs, &SchemaError{
		Code:    code,
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Pos:     pos,
	})
}

func (b *builder) build(v cue.Value) *Model {
	documents := b.stringSet(v.LookupPath(cue.ParsePath("documents")))
	lineItems := b.stringSet(v.LookupPath(cue.ParsePath("line_items")))

	var entities []*Entity
	iter, err := v.LookupPath(cue.ParsePath("entities")).Fields()
	if err != nil {
		b.errs = append(b.errs, fromCUE(err)...)
		return NewModel(nil)
	}
	for iter.Next() {
		name := iter.Label()
		ev := iter.Value()
		b.positions[name] = ev.Pos()

		e := b.buildEntity(name, ev)
		_, isDoc := documents[name]
		_, isItem := lineItems[name]
		switch {
		case isDoc && isItem:
			b.fail(ErrEntityClassified, name, "", ev.Pos(), "entity is listed both as a document and as a line item")
		case isDoc:
			e.Kind = KindDocument
		case isItem:
			e.Kind = KindLineItem
		}
		entities = append(entities, e)
	}

	model := NewModel(entities)
	for name := range documents {
		if !model.Has(name) {
			b.fail(ErrDanglingRef, name, "", token.NoPos, "documents lists unknown entity")
		}
	}
	for name := range lineItems {
		if !model.Has(name) {
			b.fail(ErrDanglingRef, name, "", token.NoPos, "line_items lists unknown entity")
		}
	}
	return model
}

func (b *builder) buildEntity(name string, v cue.Value) *Entity {
	e := &Entity{Name: name}
	e.Rights, _ = v.LookupPath(cue.ParsePath("rights")).String()
	if msg := v.LookupPath(cue.ParsePath("message")); msg.Exists() {
		e.Message, _ = msg.String()
	}

	order := b.strings(v.LookupPath(cue.ParsePath("columns")))
	model := v.LookupPath(cue.ParsePath("model"))
	seen := make(map[string]bool, len(order))
	for _, col := range order {
		if seen[col] {
			b.fail(ErrLayoutMismatch, name, col, v.Pos(), "column listed twice")
			continue
		}
		seen[col] = true
		cv := model.LookupPath(cue.MakePath(cue.Str(col)))
		if !cv.Exists() {
			b.fail(ErrLayoutMismatch, name, col, v.Pos(), "column has no model entry")
			continue
		}
		if c, ok := b.buildColumn(name, col, cv); ok {
			e.Columns = append(e.Columns, c)
		}
	}
	if iter, err := model.Fields(); err == nil {
		for iter.Next() {
			col := iter.Label()
			if !seen[col] {
				b.fail(ErrLayoutMismatch, name, col, iter.Value().Pos(), "model entry is not listed in columns")
			}
		}
	}

	e.Find = b.buildFinds(name, v.LookupPath(cue.ParsePath("find")))
	for _, f := range b.strings(v.LookupPath(cue.ParsePath("between"))) {
		e.Between = append(e.Between, RangeField{Entity: name, Field: f})
	}
	for _, ref := range b.strings(v.LookupPath(cue.ParsePath("between_up"))) {
		parent, field, ok := strings.Cut(ref, ".")
		if !ok || parent == "" || field == "" {
			b.fail(ErrBadRange, name, ref, v.Pos(), "between_up entry must be parent.field")
			continue
		}
		e.BetweenUp = append(e.BetweenUp, RangeField{Entity: parent, Field: field, Via: parent + "_id"})
	}
	e.Sum = b.strings(v.LookupPath(cue.ParsePath("sum")))
	e.Registers = b.buildRegisters(name, v.LookupPath(cue.ParsePath("register")))
	e.RzRegisters = b.buildRegisters(name, v.LookupPath(cue.ParsePath("rz_register")))

	if list, err := v.LookupPath(cue.ParsePath("complex_register")).List(); err == nil {
		for list.Next() {
			n, _ := list.Value().LookupPath(cue.ParsePath("name")).String()
			e.ComplexRegisters = append(e.ComplexRegisters, ComplexRegister{Name: n})
		}
	}
	if list, err := v.LookupPath(cue.ParsePath("related")).List(); err == nil {
		for list.Next() {
			rv := list.Value()
			var r Related
			r.Entity, _ = rv.LookupPath(cue.ParsePath("table")).String()
			r.Filter, _ = rv.LookupPath(cue.ParsePath("filter")).String()
			r.FilterValue, _ = rv.LookupPath(cue.ParsePath("filter_value")).String()
			e.Related = append(e.Related, r)
		}
	}
	if list, err := v.LookupPath(cue.ParsePath("hooks")).List(); err == nil {
		for list.Next() {
			hv := list.Value()
			var h Hook
			act, _ := hv.LookupPath(cue.ParsePath("act")).String()
			when, _ := hv.LookupPath(cue.ParsePath("when")).String()
			h.Act, h.When = HookAct(act), HookWhen(when)
			h.Func, _ = hv.LookupPath(cue.MakePath(cue.Str("func"))).String()
			e.Hooks = append(e.Hooks, h)
		}
	}
	return e
}

func (b *builder) buildColumn(entity, name string, v cue.Value) (Column, bool) {
	c := Column{Name: name}

	def := v.LookupPath(cue.ParsePath("def"))
	raw, kindType := extractDefault(def)

	if tv := v.LookupPath(cue.ParsePath("type")); tv.Exists() {
		declared, _ := tv.String()
		t, ok := ParseType(declared)
		if !ok {
			b.fail(ErrUnknownType, entity, name, tv.Pos(), "unrecognized column type %q", declared)
			return c, false
		}
		c.Type = t
	} else {
		c.Type = kindType
	}

	coerced, err := Coerce(c.Type, raw)
	if err != nil {
		b.fail(ErrUnknownType, entity, name, def.Pos(), "default does not fit type %s: %v", c.Type, err)
		return c, false
	}
	c.Default = coerced

	if hum := v.LookupPath(cue.ParsePath("hum")); hum.Exists() {
		c.Label, _ = hum.String()
	}
	if form := v.LookupPath(cue.ParsePath("form")); form.Exists() {
		if fb, err := form.Bool(); err == nil {
			c.Form = fb
		} else if fi, err := form.Int64(); err == nil {
			c.Form = fi != 0
		}
	}
	return c, true
}

// extractDefault returns the concrete default and the type implied by its kind.
func extractDefault(v cue.Value) (any, Type) {
	switch v.Kind() {
	case cue.IntKind:
		n, _ := v.Int64()
		return n, TypeInt
	case cue.FloatKind, cue.NumberKind:
		f, _ := v.Float64()
		return f, TypeReal
	case cue.BoolKind:
		x, _ := v.Bool()
		return x, TypeBool
	default:
		s, _ := v.String()
		return s, TypeText
	}
}

func (b *builder) buildFinds(entity string, v cue.Value) []Find {
	list, err := v.List()
	if err != nil {
		return nil
	}
	var finds []Find
	for list.Next() {
		fv := list.Value()
		var f Find
		iter, err := fv.Fields()
		if err != nil {
			continue
		}
		for iter.Next() {
			target := iter.Label()
			f.Entities = append(f.Entities, target)
			for _, field := range b.strings(iter.Value()) {
				term := FindTerm{Entity: target, Field: field}
				if strings.HasPrefix(field, "-") {
					term.Field, term.Negate = field[1:], true
				}
				f.Terms = append(f.Terms, term)
			}
		}
		f.Name = FindName(f)
		finds = append(finds, f)
	}
	return finds
}

func (b *builder) buildRegisters(entity string, v cue.Value) []Register {
	list, err := v.List()
	if err != nil {
		return nil
	}
	var regs []Register
	for list.Next() {
		rv := list.Value()
		regField, _ := rv.LookupPath(cue.ParsePath("reg_field")).String()
		fn, _ := rv.LookupPath(cue.MakePath(cue.Str("func"))).String()

		target, field, ok := strings.Cut(regField, ".")
		if !ok || target == "" || field == "" {
			b.fail(ErrBadRegister, entity, regField, rv.Pos(), "reg_field must be entity.column")
			continue
		}
		op, err := ParseOperator(fn)
		if err != nil {
			b.fail(ErrBadRegister, entity, regField, rv.Pos(), "%v", err)
			continue
		}
		regs = append(regs, Register{
			Target:  target,
			Field:   field,
			Op:      op,
			Sources: b.strings(rv.LookupPath(cue.ParsePath("val_field"))),
			Via:     target + "_id",
		})
	}
	return regs
}

func (b *builder) strings(v cue.Value) []string {
	if !v.Exists() {
		return nil
	}
	list, err := v.List()
	if err != nil {
		b.errs = append(b.errs, fromCUE(err)...)
		return nil
	}
	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			b.errs = append(b.errs, fromCUE(err)...)
			continue
		}
		out = append(out, s)
	}
	return out
}

func (b *builder) stringSet(v cue.Value) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range b.strings(v) {
		set[s] = struct{}{}
	}
	return set
}

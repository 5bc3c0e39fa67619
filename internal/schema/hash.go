package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSchema separates schema hashes from any other content address.
const DomainSchema = "erpgen/schema/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the content address of a model. Two models with the same
// entities, layouts and annotations hash identically regardless of the file
// format they were parsed from.
func Hash(m *Model) (string, error) {
	canonical, err := MarshalCanonical(m.canonicalForm())
	if err != nil {
		return "", fmt.Errorf("hashing schema: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}

func (m *Model) canonicalForm() map[string]any {
	entities := make([]any, 0, len(m.Entities))
	for _, e := range m.Entities {
		entities = append(entities, e.canonicalForm())
	}
	return map[string]any{"entities": entities}
}

func (e *Entity) canonicalForm() map[string]any {
	cols := make([]any, len(e.Columns))
	for i, c := range e.Columns {
		cols[i] = map[string]any{
			"name": c.Name,
			"type": c.Type.String(),
			"def":  c.Default,
			"hum":  c.Label,
			"form": c.Form,
		}
	}
	regs := func(rs []Register) []any {
		out := make([]any, len(rs))
		for i, r := range rs {
			out[i] = map[string]any{
				"reg_field": r.RegField(),
				"func":      r.Op.Symbol(),
				"val_field": r.Sources,
			}
		}
		return out
	}
	finds := make([]any, len(e.Find))
	for i, f := range e.Find {
		finds[i] = f.Name
	}
	ranges := func(rs []RangeField) []any {
		out := make([]any, len(rs))
		for i, r := range rs {
			out[i] = r.Entity + "." + r.Field
		}
		return out
	}
	related := make([]any, len(e.Related))
	for i, r := range e.Related {
		related[i] = map[string]any{"table": r.Entity, "filter": r.Filter, "filter_value": r.FilterValue}
	}
	complexRegs := make([]any, len(e.ComplexRegisters))
	for i, c := range e.ComplexRegisters {
		complexRegs[i] = c.Name
	}
	hooks := make([]any, len(e.Hooks))
	for i, h := range e.Hooks {
		hooks[i] = map[string]any{"act": string(h.Act), "when": string(h.When), "func": h.Func}
	}
	return map[string]any{
		"name":             e.Name,
		"kind":             e.Kind.String(),
		"rights":           e.Rights,
		"message":          e.Message,
		"columns":          cols,
		"find":             finds,
		"between":          ranges(e.Between),
		"between_up":       ranges(e.BetweenUp),
		"sum":              e.Sum,
		"register":         regs(e.Registers),
		"rz_register":      regs(e.RzRegisters),
		"complex_register": complexRegs,
		"related":          related,
		"hooks":            hooks,
	}
}

package synth

import (
	"fmt"
	"strings"

	"github.com/roach88/erpgen/internal/schema"
)

// EnrichedField is a display value joined in for one foreign key.
type EnrichedField struct {
	// Name is the result key: the foreign key without its _id suffix.
	Name  string `json:"name"`
	FK    string `json:"fk"`
	Ref   string `json:"ref"`
	Alias string `json:"alias"`
	// Display is the referenced column shown, or "" when the referenced
	// entity has no name column and the field is always empty.
	Display string `json:"display,omitempty"`
}

// EnrichedPlan is the denormalized read projection of an entity. A missed
// join yields '' for the display value, never an error.
type EnrichedPlan struct {
	Table  string          `json:"table"`
	Fields []EnrichedField `json:"fields"`
	// Head is SELECT ... FROM ... LEFT JOIN ..., without a WHERE clause.
	Head   string    `json:"head"`
	Get    string    `json:"get"`
	GetAll [3]string `json:"get_all"`
	// Filter has a %s placeholder for the validated field name.
	Filter [3]string `json:"filter"`
}

// Keys returns the row keys of an enriched result in scan order.
func (en EnrichedPlan) Keys(e *schema.Entity) []string {
	keys := e.ColumnNames()
	for _, f := range en.Fields {
		keys = append(keys, f.Name)
	}
	return keys
}

func buildEnriched(m *schema.Model, e *schema.Entity) EnrichedPlan {
	en := EnrichedPlan{Table: e.Name, Fields: enrichedFields(m, e)}
	en.Head = enrichedHead(e, en.Fields, e.Name)

	id := qualify(e.Name, "id")
	en.Get = fmt.Sprintf("%s WHERE %s = ?", en.Head, id)
	for _, v := range Visibilities {
		cond := v.condition(e.Name)
		en.GetAll[v] = fmt.Sprintf("%s%s ORDER BY %s", en.Head, where(cond), id)
		en.Filter[v] = fmt.Sprintf("%s WHERE %s.%%s = ?%s ORDER BY %s", en.Head, e.Name, and(cond), id)
	}
	return en
}

func enrichedFields(m *schema.Model, e *schema.Entity) []EnrichedField {
	var out []EnrichedField
	for _, fk := range e.ForeignKeys() {
		f := EnrichedField{Name: fk.EnrichedName(), FK: fk.Name, Ref: fk.Ref, Alias: fk.Alias}
		if ref, ok := m.Entity(fk.Ref); ok && ref.HasColumn("name") {
			f.Display = "name"
		}
		out = append(out, f)
	}
	return out
}

// enrichedHead renders the select head with the owner under table alias t.
func enrichedHead(e *schema.Entity, fields []EnrichedField, t string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectList(e, t))
	for _, f := range fields {
		if f.Display == "" {
			fmt.Fprintf(&b, ", '' AS %s", f.Name)
			continue
		}
		fmt.Fprintf(&b, ", IFNULL(%s.%s, '') AS %s", f.Alias, f.Display, f.Name)
	}
	b.WriteString(" FROM ")
	b.WriteString(tableAs(e.Name, t))
	for _, f := range fields {
		fmt.Fprintf(&b, " LEFT JOIN %s ON %s.id = %s", tableAs(f.Ref, f.Alias), f.Alias, qualify(t, f.FK))
	}
	return b.String()
}

func tableAs(table, alias string) string {
	if alias == "" || alias == table {
		return table
	}
	return table + " AS " + alias
}

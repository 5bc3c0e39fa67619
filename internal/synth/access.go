package synth

import (
	"fmt"
	"strings"

	"github.com/roach88/erpgen/internal/schema"
)

// Queries holds the SQL of the single-table operation families. Every
// statement is parameterized; every list query ends in ORDER BY id.
type Queries struct {
	Get    string    `json:"get"`
	GetAll [3]string `json:"get_all"`

	// Insert omits id; InsertColumns gives its argument order.
	Insert        string   `json:"insert"`
	InsertColumns []string `json:"insert_columns"`
	// Update sets every column but id; the id is the last argument.
	Update        string   `json:"update"`
	UpdateColumns []string `json:"update_columns"`

	SoftDelete    string `json:"soft_delete"`
	HardDelete    string `json:"hard_delete"`
	SetRealized   string `json:"set_realized,omitempty"`
	ClearRealized string `json:"clear_realized,omitempty"`

	// Filter has a %s placeholder for a field name validated against the
	// column list at call time.
	Filter [3]string `json:"filter"`
}

// RangeQuery is an inclusive BETWEEN query on an own field or, for
// between_up, on a field of the parent joined through Via.
type RangeQuery struct {
	Entity string      `json:"entity"`
	Field  string      `json:"field"`
	Type   schema.Type `json:"type"`
	Via    string      `json:"via,omitempty"`
	Up     bool        `json:"up,omitempty"`

	// SQL is empty for between_up, which is served enriched only.
	SQL      [3]string `json:"sql"`
	Enriched [3]string `json:"enriched"`
}

// Key is the name callers use: field, or parent.field for between_up.
func (r RangeQuery) Key() string {
	if r.Up {
		return r.Entity + "." + r.Field
	}
	return r.Field
}

// SumQuery holds the aggregate variants of one sum field. All of them
// count active rows only.
type SumQuery struct {
	Field string `json:"field"`
	Plain string `json:"plain"`
	// Filtered adds a secondary equality on a %s field.
	Filtered string `json:"filtered"`
	// Before and FilteredBefore bound created_at from above. They are empty
	// when the entity has no created_at column.
	Before         string `json:"before,omitempty"`
	FilteredBefore string `json:"filtered_before,omitempty"`
}

func buildQueries(e *schema.Entity) Queries {
	cols := selectList(e, "")
	var q Queries

	q.Get = fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", cols, e.Name)
	for _, v := range Visibilities {
		q.GetAll[v] = fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id", cols, e.Name, where(v.condition("")))
		q.Filter[v] = fmt.Sprintf("SELECT %s FROM %s WHERE %%s = ?%s ORDER BY id", cols, e.Name, and(v.condition("")))
	}

	for _, c := range e.Columns {
		if c.Name != "id" {
			q.InsertColumns = append(q.InsertColumns, c.Name)
		}
	}
	q.UpdateColumns = q.InsertColumns
	q.Insert = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.Name,
		strings.Join(q.InsertColumns, ", "), placeholders(len(q.InsertColumns)))

	sets := make([]string, len(q.UpdateColumns))
	for i, c := range q.UpdateColumns {
		sets[i] = c + " = ?"
	}
	q.Update = fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", e.Name, strings.Join(sets, ", "))

	q.SoftDelete = fmt.Sprintf("UPDATE %s SET is_active = 0 WHERE id = ?", e.Name)
	q.HardDelete = fmt.Sprintf("DELETE FROM %s WHERE id = ?", e.Name)
	if e.IsDocument() {
		q.SetRealized = fmt.Sprintf("UPDATE %s SET is_realized = 1 WHERE id = ?", e.Name)
		q.ClearRealized = fmt.Sprintf("UPDATE %s SET is_realized = 0 WHERE id = ?", e.Name)
	}
	return q
}

func buildRange(e *schema.Entity, en EnrichedPlan, r schema.RangeField) RangeQuery {
	rq := RangeQuery{Entity: e.Name, Field: r.Field, Type: r.Type}
	cols := selectList(e, "")
	for _, v := range Visibilities {
		rq.SQL[v] = fmt.Sprintf("SELECT %s FROM %s WHERE %s BETWEEN ? AND ?%s ORDER BY id",
			cols, e.Name, r.Field, and(v.condition("")))
		rq.Enriched[v] = fmt.Sprintf("%s WHERE %s BETWEEN ? AND ?%s ORDER BY %s",
			en.Head, qualify(e.Name, r.Field), and(v.condition(e.Name)), qualify(e.Name, "id"))
	}
	return rq
}

func buildRangeUp(en EnrichedPlan, r schema.RangeField) RangeQuery {
	rq := RangeQuery{Entity: r.Entity, Field: r.Field, Type: r.Type, Via: r.Via, Up: true}
	alias := r.Entity
	for _, f := range en.Fields {
		if f.FK == r.Via {
			alias = f.Alias
		}
	}
	for _, v := range Visibilities {
		rq.Enriched[v] = fmt.Sprintf("%s WHERE %s BETWEEN ? AND ?%s ORDER BY %s",
			en.Head, qualify(alias, r.Field), and(v.condition(en.Table)), qualify(en.Table, "id"))
	}
	return rq
}

func buildSum(e *schema.Entity, field string) SumQuery {
	base := fmt.Sprintf("SELECT IFNULL(SUM(%s), 0) FROM %s WHERE is_active = 1", field, e.Name)
	s := SumQuery{
		Field:    field,
		Plain:    base,
		Filtered: base + " AND %s = ?",
	}
	if e.HasColumn("created_at") {
		s.Before = base + " AND created_at <= ?"
		s.FilteredBefore = base + " AND %s = ? AND created_at <= ?"
	}
	return s
}

// selectList renders the column layout, qualified by t when t is set.
func selectList(e *schema.Entity, t string) string {
	cols := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		cols[i] = qualify(t, c.Name)
	}
	return strings.Join(cols, ", ")
}

func qualify(t, col string) string {
	if t == "" {
		return col
	}
	return t + "." + col
}

func where(cond string) string {
	if cond == "" {
		return ""
	}
	return " WHERE " + cond
}

func and(cond string) string {
	if cond == "" {
		return ""
	}
	return " AND " + cond
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

package migrate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/erpgen/internal/schema"
)

// StepKind is the DDL operation of a plan step.
type StepKind string

const (
	StepDrop   StepKind = "drop"
	StepCreate StepKind = "create"
)

// Reason explains why an entity is dropped or recreated.
type Reason string

const (
	ReasonRemoved        Reason = "removed"
	ReasonNew            Reason = "new"
	ReasonForceClear     Reason = "force-clear"
	ReasonColumnsChanged Reason = "columns-changed"
)

// Step is one DDL statement of a migration plan.
type Step struct {
	Kind   StepKind `json:"kind"`
	Entity string   `json:"entity"`
	SQL    string   `json:"sql"`
	Reason Reason   `json:"reason"`
}

// FieldClear resets one field to its declared default across all rows.
type FieldClear struct {
	Entity  string `json:"entity"`
	Field   string `json:"field"`
	Default any    `json:"default"`
}

// MigrationPlan is the ordered DDL plan followed by the row passes the Data
// Migrator runs.
type MigrationPlan struct {
	Steps []Step `json:"steps"`
	// Reloads are recreated entities that existed before and were not
	// force-cleared. Their rows are copied from the snapshot.
	Reloads []string `json:"reloads"`
	// External entities are recreated again and loaded from the external
	// snapshot, after Reloads.
	External []string `json:"external"`
	// Clears always run last.
	Clears []FieldClear `json:"clears"`
	// Warnings report differences the planner does not act on.
	Warnings []string `json:"warnings,omitempty"`

	// Next is the target model; the migrator reads layouts and defaults
	// from it.
	Next *schema.Model `json:"-"`
}

// Plan diffs two schema versions. Column sets are compared by name
// membership and count only; a type-only change leaves the table untouched
// and is reported in Warnings.
func Plan(prev, next *schema.Model, changes schema.ChangeDirective) *MigrationPlan {
	p := &MigrationPlan{
		Steps:    []Step{},
		Reloads:  []string{},
		External: []string{},
		Clears:   []FieldClear{},
		Next:     next,
	}
	if prev == nil {
		prev = schema.NewModel(nil)
	}

	for _, old := range prev.Entities {
		if !next.Has(old.Name) {
			p.Steps = append(p.Steps, Step{Kind: StepDrop, Entity: old.Name, SQL: DropTableSQL(old.Name), Reason: ReasonRemoved})
		}
	}

	for _, e := range next.Entities {
		old, existed := prev.Entity(e.Name)
		var reason Reason
		switch {
		case !existed:
			reason = ReasonNew
		case changes.ForceClear(e.Name):
			reason = ReasonForceClear
		case columnSetChanged(old, e):
			reason = ReasonColumnsChanged
		default:
			p.Warnings = append(p.Warnings, typeChanges(old, e)...)
			continue
		}
		p.Steps = append(p.Steps,
			Step{Kind: StepDrop, Entity: e.Name, SQL: DropTableSQL(e.Name), Reason: reason},
			Step{Kind: StepCreate, Entity: e.Name, SQL: CreateTableSQL(e), Reason: reason},
		)
		if reason == ReasonColumnsChanged {
			p.Reloads = append(p.Reloads, e.Name)
		}
	}

	for _, e := range next.Entities {
		if changes.ExternalReload(e.Name) {
			p.External = append(p.External, e.Name)
		}
	}

	for _, name := range changes.ClearedTables() {
		e, ok := next.Entity(name)
		if !ok {
			continue
		}
		for _, field := range changes.FieldsForClearing[name] {
			c, ok := e.Column(field)
			if !ok || field == "id" {
				continue
			}
			p.Clears = append(p.Clears, FieldClear{Entity: name, Field: field, Default: schema.MustCoerce(c.Type, c.Default)})
		}
	}
	return p
}

// Empty reports whether applying the plan would do nothing.
func (p *MigrationPlan) Empty() bool {
	return len(p.Steps) == 0 && len(p.Reloads) == 0 && len(p.External) == 0 && len(p.Clears) == 0
}

// Recreated returns the entities the plan drops and creates, in step order.
func (p *MigrationPlan) Recreated() []string {
	var names []string
	for _, s := range p.Steps {
		if s.Kind == StepCreate {
			names = append(names, s.Entity)
		}
	}
	return names
}

// Summary is a one-line description used in run history.
func (p *MigrationPlan) Summary() string {
	if p.Empty() {
		return "no changes"
	}
	var parts []string
	if created := p.Recreated(); len(created) > 0 {
		parts = append(parts, "recreate "+strings.Join(created, ","))
	}
	var dropped []string
	for _, s := range p.Steps {
		if s.Reason == ReasonRemoved {
			dropped = append(dropped, s.Entity)
		}
	}
	if len(dropped) > 0 {
		parts = append(parts, "drop "+strings.Join(dropped, ","))
	}
	if len(p.Reloads) > 0 {
		parts = append(parts, "reload "+strings.Join(p.Reloads, ","))
	}
	if len(p.External) > 0 {
		parts = append(parts, "external "+strings.Join(p.External, ","))
	}
	if len(p.Clears) > 0 {
		fields := make([]string, len(p.Clears))
		for i, c := range p.Clears {
			fields[i] = c.Entity + "." + c.Field
		}
		parts = append(parts, "clear "+strings.Join(fields, ","))
	}
	return strings.Join(parts, "; ")
}

// SQL renders the DDL script, one comment line per entity group.
func (p *MigrationPlan) SQL() string {
	var b strings.Builder
	for i, s := range p.Steps {
		if i == 0 || p.Steps[i-1].Entity != s.Entity {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "-- %s: %s\n", s.Entity, s.Reason)
		}
		b.WriteString(s.SQL)
		b.WriteString("\n")
	}
	return b.String()
}

// DropTableSQL renders the drop statement for an entity table.
func DropTableSQL(name string) string {
	return "DROP TABLE IF EXISTS " + name + ";"
}

// CreateTableSQL renders the create statement for an entity table.
func CreateTableSQL(e *schema.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", e.Name)
	for i, c := range e.Columns {
		if c.Name == "id" {
			b.WriteString("    id INTEGER PRIMARY KEY AUTOINCREMENT")
		} else {
			fmt.Fprintf(&b, "    %s %s NOT NULL DEFAULT %s", c.Name, c.Type.SQL(), schema.SQLLiteral(c.Type, c.Default))
		}
		if i < len(e.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

func columnSetChanged(old, next *schema.Entity) bool {
	if len(old.Columns) != len(next.Columns) {
		return true
	}
	for _, c := range next.Columns {
		if !old.HasColumn(c.Name) {
			return true
		}
	}
	return false
}

func typeChanges(old, next *schema.Entity) []string {
	var out []string
	for _, c := range next.Columns {
		if oc, ok := old.Column(c.Name); ok && oc.Type != c.Type {
			out = append(out, fmt.Sprintf("%s.%s: type changed %s -> %s; table is not recreated", next.Name, c.Name, oc.Type, c.Type))
		}
	}
	sort.Strings(out)
	return out
}

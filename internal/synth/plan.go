package synth

import (
	"fmt"

	"github.com/roach88/erpgen/internal/schema"
)

// Visibility selects rows by their soft-delete flag.
type Visibility int

const (
	ActiveOnly Visibility = iota
	IncludeDeleted
	DeletedOnly
)

// Visibilities lists every variant in index order.
var Visibilities = [3]Visibility{ActiveOnly, IncludeDeleted, DeletedOnly}

func (v Visibility) String() string {
	switch v {
	case IncludeDeleted:
		return "include-deleted"
	case DeletedOnly:
		return "deleted-only"
	default:
		return "active-only"
	}
}

// ParseVisibility maps the scenario and CLI spelling back to a Visibility.
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "", "active", "active-only":
		return ActiveOnly, nil
	case "all", "include-deleted":
		return IncludeDeleted, nil
	case "deleted", "deleted-only":
		return DeletedOnly, nil
	}
	return ActiveOnly, fmt.Errorf("unknown visibility %q", s)
}

// condition is the is_active predicate for v on table alias t, or "" when
// every row is visible.
func (v Visibility) condition(t string) string {
	switch v {
	case DeletedOnly:
		return qualify(t, "is_active") + " = 0"
	case IncludeDeleted:
		return ""
	default:
		return qualify(t, "is_active") + " = 1"
	}
}

// Rights are the permission names checked before each operation family.
type Rights struct {
	Read   string `json:"read"`
	Create string `json:"create"`
	Update string `json:"update"`
	Delete string `json:"delete"`
}

// Plan is the typed synthesis output for one schema version.
type Plan struct {
	Entities []*EntityPlan `json:"entities"`
	Model    *schema.Model `json:"-"`
	byName   map[string]*EntityPlan
}

// Entity looks up the plan of one entity.
func (p *Plan) Entity(name string) (*EntityPlan, bool) {
	ep, ok := p.byName[name]
	return ep, ok
}

// ComplexHandlers returns the distinct complex register names in first-use
// order.
func (p *Plan) ComplexHandlers() []string {
	seen := map[string]bool{}
	var out []string
	for _, ep := range p.Entities {
		for _, name := range ep.Lifecycle.Complex {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// HookFuncs returns the distinct hook function names in first-use order.
func (p *Plan) HookFuncs() []string {
	seen := map[string]bool{}
	var out []string
	for _, ep := range p.Entities {
		for _, h := range ep.Entity.Hooks {
			if !seen[h.Func] {
				seen[h.Func] = true
				out = append(out, h.Func)
			}
		}
	}
	return out
}

// EntityPlan carries everything the runtime and the emitter need for one
// entity: the SQL of every operation family, the ledger steps and the
// lifecycle.
type EntityPlan struct {
	Entity *schema.Entity `json:"-"`

	Name   string `json:"name"`
	GoName string `json:"go_name"`
	// Var is the local variable used for a row in emitted code.
	Var string `json:"var"`

	Columns []schema.Column `json:"columns"`
	Rights  Rights          `json:"rights"`

	// CreatedAt and UpdatedAt report the timestamp columns filled at write
	// time.
	CreatedAt bool `json:"created_at"`
	UpdatedAt bool `json:"updated_at"`

	Queries   Queries       `json:"queries"`
	Ranges    []RangeQuery  `json:"ranges,omitempty"`
	RangesUp  []RangeQuery  `json:"ranges_up,omitempty"`
	Sums      []SumQuery    `json:"sums,omitempty"`
	Finds     []FindQuery   `json:"finds,omitempty"`
	Enriched  EnrichedPlan  `json:"enriched"`
	Ledger    Ledger        `json:"ledger"`
	Lifecycle Lifecycle     `json:"lifecycle"`
	Hooks     []schema.Hook `json:"hooks,omitempty"`
}

// HasField reports whether name is a column of the entity.
func (ep *EntityPlan) HasField(name string) bool {
	return ep.Entity.HasColumn(name)
}

// Field returns the column called name.
func (ep *EntityPlan) Field(name string) (schema.Column, bool) {
	return ep.Entity.Column(name)
}

// Range returns the between query registered for field.
func (ep *EntityPlan) Range(field string) (RangeQuery, bool) {
	for _, r := range ep.Ranges {
		if r.Field == field {
			return r, true
		}
	}
	return RangeQuery{}, false
}

// RangeUp returns the between_up query registered for parent.field.
func (ep *EntityPlan) RangeUp(key string) (RangeQuery, bool) {
	for _, r := range ep.RangesUp {
		if r.Key() == key {
			return r, true
		}
	}
	return RangeQuery{}, false
}

// Sum returns the sum queries registered for field.
func (ep *EntityPlan) Sum(field string) (SumQuery, bool) {
	for _, s := range ep.Sums {
		if s.Field == field {
			return s, true
		}
	}
	return SumQuery{}, false
}

// Find returns the find registered under name.
func (ep *EntityPlan) Find(name string) (FindQuery, bool) {
	for _, f := range ep.Finds {
		if f.Name == name {
			return f, true
		}
	}
	return FindQuery{}, false
}

// Build synthesizes the plan of every entity in m. It reads only the model.
func Build(m *schema.Model) (*Plan, error) {
	if m == nil {
		return nil, fmt.Errorf("synth: nil model")
	}
	p := &Plan{Model: m, byName: make(map[string]*EntityPlan, len(m.Entities))}
	for _, e := range m.Entities {
		ep, err := buildEntity(m, e)
		if err != nil {
			return nil, fmt.Errorf("synth %s: %w", e.Name, err)
		}
		p.Entities = append(p.Entities, ep)
		p.byName[e.Name] = ep
	}
	return p, nil
}

func buildEntity(m *schema.Model, e *schema.Entity) (*EntityPlan, error) {
	ep := &EntityPlan{
		Entity:    e,
		Name:      e.Name,
		GoName:    schema.GoName(e.Name),
		Var:       schema.LowerGoName(e.Name),
		Columns:   e.Columns,
		CreatedAt: e.HasColumn("created_at"),
		UpdatedAt: e.HasColumn("updated_at"),
		Rights: Rights{
			Read:   e.ReadRight(),
			Create: e.CreateRight(),
			Update: e.UpdateRight(),
			Delete: e.DeleteRight(),
		},
		Hooks: e.Hooks,
	}

	ep.Queries = buildQueries(e)
	ep.Enriched = buildEnriched(m, e)
	for _, r := range e.Between {
		ep.Ranges = append(ep.Ranges, buildRange(e, ep.Enriched, r))
	}
	for _, r := range e.BetweenUp {
		ep.RangesUp = append(ep.RangesUp, buildRangeUp(ep.Enriched, r))
	}
	for _, field := range e.Sum {
		ep.Sums = append(ep.Sums, buildSum(e, field))
	}
	for _, f := range e.Find {
		fq, err := buildFind(m, e, f)
		if err != nil {
			return nil, err
		}
		ep.Finds = append(ep.Finds, fq)
	}

	ledger, err := buildLedger(m, e)
	if err != nil {
		return nil, err
	}
	ep.Ledger = ledger

	lc, err := buildLifecycle(m, e)
	if err != nil {
		return nil, err
	}
	ep.Lifecycle = lc
	return ep, nil
}

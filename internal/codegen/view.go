package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/synth"
)

// fileView is the template input shared by every emitted file.
type fileView struct {
	Package  string
	Entities []*entityView
	Complex  []handlerView
	Hooks    []handlerView
}

type handlerView struct {
	Name   string
	GoName string
}

type fieldView struct {
	Name    string
	GoName  string
	GoType  string
	Default string
	Label   string
}

type rangeView struct {
	Method   string
	Key      string
	GoType   string
	SQL      [3]string
	Enriched [3]string
}

type sumView struct {
	Method string
	Field  string
	synth.SumQuery
}

type findView struct {
	Method   string
	Name     string
	SQL      string
	Enriched string
	Params   int
}

type relatedView struct {
	Entity string
	GoName string
	SQL    string
	// Value is the Go expression of the filter value on the owner row.
	Value string
}

type hookCall struct {
	Entity string
	Method string
	Func   string
	Act    string
	When   string
}

type entityView struct {
	*synth.EntityPlan

	Message  string
	Fields   []fieldView
	Display  []fieldView
	Document bool
	LineItem bool
	// Realize is set when a realize path is emitted: for realizable
	// entities and for related targets.
	Realize bool

	// StampCreated and StampUpdated are set for text timestamp columns.
	StampCreated bool
	StampUpdated bool

	// ScanW are the Scan targets of an enriched row in select order.
	ScanW []string

	// Insert and Update are the argument lists of the write statements.
	Insert []string
	Update []string

	Ranges   []rangeView
	RangesUp []rangeView
	Sums     []sumView
	Finds    []findView
	Related  []relatedView
	Complex  []handlerView

	// Owner* are set for line items.
	OwnerFK  string
	OwnerSQL string

	hooks map[string][]hookCall
}

// HooksFor returns the hook calls attached to act and when, in declaration
// order.
func (ev *entityView) HooksFor(act, when string) []hookCall {
	return ev.hooks[act+"/"+when]
}

func newFileView(p *synth.Plan, pkg string) (*fileView, error) {
	fv := &fileView{Package: pkg}
	for _, name := range p.ComplexHandlers() {
		fv.Complex = append(fv.Complex, handlerView{Name: name, GoName: schema.GoName(name)})
	}
	for _, name := range p.HookFuncs() {
		fv.Hooks = append(fv.Hooks, handlerView{Name: name, GoName: schema.GoName(name)})
	}
	for _, ep := range p.Entities {
		ev, err := newEntityView(p, ep)
		if err != nil {
			return nil, fmt.Errorf("codegen %s: %w", ep.Name, err)
		}
		fv.Entities = append(fv.Entities, ev)
	}
	return fv, nil
}

func newEntityView(p *synth.Plan, ep *synth.EntityPlan) (*entityView, error) {
	ev := &entityView{
		EntityPlan: ep,
		Message:    strings.Join(strings.Fields(ep.Entity.Message), " "),
		Document:   ep.Entity.IsDocument(),
		LineItem:   ep.Entity.IsLineItem(),
		Realize:    ep.Lifecycle.Realizable() || relatedTarget(p, ep.Name),
		hooks:      map[string][]hookCall{},
	}
	if c, ok := ep.Field("created_at"); ok && c.Type == schema.TypeText {
		ev.StampCreated = true
	}
	if c, ok := ep.Field("updated_at"); ok && c.Type == schema.TypeText {
		ev.StampUpdated = true
	}
	for _, c := range ep.Columns {
		def, err := goLiteral(c.Type, c.Default)
		if err != nil {
			return nil, fmt.Errorf("default of %s: %w", c.Name, err)
		}
		ev.Fields = append(ev.Fields, fieldView{
			Name:    c.Name,
			GoName:  schema.GoName(c.Name),
			GoType:  goType(c.Type),
			Default: def,
			Label:   strings.Join(strings.Fields(c.Label), " "),
		})
	}
	for _, f := range ep.Enriched.Fields {
		name := schema.GoName(f.Name)
		if name == ep.GoName || ep.HasField(f.Name) {
			name += "Display"
		}
		ev.Display = append(ev.Display, fieldView{Name: f.Name, GoName: name, GoType: "string"})
	}
	scanW, err := enrichedScan(ev)
	if err != nil {
		return nil, err
	}
	ev.ScanW = scanW
	for _, c := range ep.Queries.InsertColumns {
		ev.Insert = append(ev.Insert, "row."+schema.GoName(c))
	}
	for _, c := range ep.Queries.UpdateColumns {
		ev.Update = append(ev.Update, "row."+schema.GoName(c))
	}

	for _, r := range ep.Ranges {
		ev.Ranges = append(ev.Ranges, rangeView{
			Method:   ep.GoName + "Between" + schema.GoName(r.Field),
			Key:      r.Key(),
			GoType:   goType(r.Type),
			SQL:      r.SQL,
			Enriched: r.Enriched,
		})
	}
	for _, r := range ep.RangesUp {
		ev.RangesUp = append(ev.RangesUp, rangeView{
			Method:   ep.GoName + "BetweenUp" + schema.GoName(r.Entity) + schema.GoName(r.Field),
			Key:      r.Key(),
			GoType:   goType(r.Type),
			Enriched: r.Enriched,
		})
	}
	for _, s := range ep.Sums {
		ev.Sums = append(ev.Sums, sumView{Method: "Sum" + ep.GoName + schema.GoName(s.Field), Field: s.Field, SumQuery: s})
	}
	for _, f := range ep.Finds {
		ev.Finds = append(ev.Finds, findView{
			Method:   "Find" + schema.GoName(f.Name),
			Name:     f.Name,
			SQL:      f.SQL,
			Enriched: f.Enriched,
			Params:   f.Params,
		})
	}
	for _, rel := range ep.Lifecycle.Related {
		child, ok := p.Entity(rel.Entity)
		if !ok {
			return nil, fmt.Errorf("related %s is not planned", rel.Entity)
		}
		ev.Related = append(ev.Related, relatedView{
			Entity: rel.Entity,
			GoName: child.GoName,
			SQL:    rel.SQL,
			Value:  "row." + schema.GoName(rel.FilterValue),
		})
	}
	for _, name := range ep.Lifecycle.Complex {
		ev.Complex = append(ev.Complex, handlerView{Name: name, GoName: schema.GoName(name)})
	}
	if o := ep.Lifecycle.Owner; o != nil {
		ev.OwnerFK = "row." + schema.GoName(o.FK)
		ev.OwnerSQL = o.RealizedSQL
	}
	for _, h := range ep.Hooks {
		key := string(h.Act) + "/" + string(h.When)
		ev.hooks[key] = append(ev.hooks[key], hookCall{
			Entity: ep.Name,
			Method: schema.GoName(h.Func),
			Func:   h.Func,
			Act:    string(h.Act),
			When:   string(h.When),
		})
	}
	return ev, nil
}

func relatedTarget(p *synth.Plan, name string) bool {
	for _, ep := range p.Entities {
		for _, rel := range ep.Lifecycle.Related {
			if rel.Entity == name {
				return true
			}
		}
	}
	return false
}

// stepArgs carries one ledger step into the redo template.
type stepArgs struct {
	E    *entityView
	Step synth.LedgerStep
}

func pair(ev *entityView, s synth.LedgerStep) stepArgs { return stepArgs{E: ev, Step: s} }

func goType(t schema.Type) string {
	switch t {
	case schema.TypeInt:
		return "int64"
	case schema.TypeReal:
		return "float64"
	case schema.TypeBool:
		return "bool"
	default:
		return "string"
	}
}

// goLiteral renders a declared default as a Go constant of type t.
func goLiteral(t schema.Type, v any) (string, error) {
	c, err := schema.Coerce(t, v)
	if err != nil {
		return "", err
	}
	switch x := c.(type) {
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s, nil
	case bool:
		return strconv.FormatBool(x), nil
	case string:
		return strconv.Quote(x), nil
	}
	return "", fmt.Errorf("unsupported default %T", c)
}

// floatExpr converts the Go field expr of type t to float64.
func floatExpr(t schema.Type, expr string) string {
	switch t {
	case schema.TypeInt:
		return "float64(" + expr + ")"
	case schema.TypeBool:
		return "boolFloat(" + expr + ")"
	case schema.TypeText:
		return "textFloat(" + expr + ")"
	default:
		return expr
	}
}

// convertExpr converts the Go field expr of type from to type to.
func convertExpr(from, to schema.Type, expr string) string {
	if from == to {
		return expr
	}
	switch to {
	case schema.TypeInt:
		return "roundInt(" + floatExpr(from, expr) + ")"
	case schema.TypeReal:
		return floatExpr(from, expr)
	case schema.TypeBool:
		return floatExpr(from, expr) + " != 0"
	default:
		return "fmt.Sprint(" + expr + ")"
	}
}

// enrichedScan maps the keys of the enriched projection onto the fields of
// the W struct: the entity columns first, then one display value per foreign
// key.
func enrichedScan(ev *entityView) ([]string, error) {
	keys := ev.Enriched.Keys(ev.Entity)
	if len(keys) != len(ev.Fields)+len(ev.Display) {
		return nil, fmt.Errorf("enriched projection has %d keys for %d fields", len(keys), len(ev.Fields)+len(ev.Display))
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		f, target := ev.fieldAt(i)
		if f.Name != k {
			return nil, fmt.Errorf("enriched key %s scanned into %s", k, f.Name)
		}
		out[i] = target
	}
	return out, nil
}

func (ev *entityView) fieldAt(i int) (fieldView, string) {
	if i < len(ev.Fields) {
		f := ev.Fields[i]
		return f, "&row." + ev.GoName + "." + f.GoName
	}
	f := ev.Display[i-len(ev.Fields)]
	return f, "&row." + f.GoName
}

// stepCall renders the statement applying one ledger step to the row held
// in the Go variable row.
func stepCall(ev *entityView, s synth.LedgerStep, row string) (string, error) {
	ep := ev.EntityPlan
	via := row + "." + schema.GoName(s.Via)
	if s.Snapshot() {
		src, ok := ep.Field(s.Sources[0])
		if !ok {
			return "", fmt.Errorf("register source %s is not a column", s.Sources[0])
		}
		value := convertExpr(src.Type, s.TargetType, row+"."+schema.GoName(src.Name))
		return fmt.Sprintf("assign(ctx, tx, %s, %s, %s)", strconv.Quote(s.Store), value, via), nil
	}
	terms := make([]string, len(s.Sources))
	for i, name := range s.Sources {
		src, ok := ep.Field(name)
		if !ok {
			return "", fmt.Errorf("register source %s is not a column", name)
		}
		terms[i] = floatExpr(src.Type, row+"."+schema.GoName(src.Name))
	}
	delta := strings.Join(terms, " + ")
	if s.Op.Sign() < 0 {
		delta = "-(" + delta + ")"
	}
	return fmt.Sprintf("adjust(ctx, tx, %s, %s, %s, %s, %t)",
		strconv.Quote(s.Load), strconv.Quote(s.Store), via, delta, s.TargetType == schema.TypeInt), nil
}

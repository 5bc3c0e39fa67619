package synth

import (
	"fmt"
	"strings"

	"github.com/roach88/erpgen/internal/schema"
)

// FindQuery is a pre-registered join+search query. Every joined entity is
// aliased f1..fn in declaration order, f1 being the owner. Each of the
// Params placeholders takes the same %text% pattern.
type FindQuery struct {
	Name     string   `json:"name"`
	Entities []string `json:"entities"`
	SQL      string   `json:"sql"`
	Enriched string   `json:"enriched"`
	Params   int      `json:"params"`
}

// Args expands the search text into the query arguments.
func (f FindQuery) Args(text string) []any {
	args := make([]any, f.Params)
	for i := range args {
		args[i] = "%" + text + "%"
	}
	return args
}

func buildFind(m *schema.Model, e *schema.Entity, f schema.Find) (FindQuery, error) {
	fq := FindQuery{Name: f.Name, Entities: f.Entities}

	aliases := make(map[string]string, len(f.Entities))
	var joins []string
	distinct := false
	for i, name := range f.Entities {
		alias := fmt.Sprintf("f%d", i+1)
		aliases[name] = alias
		if i == 0 {
			continue
		}
		if _, ok := m.Entity(name); !ok {
			return FindQuery{}, fmt.Errorf("find %s: unknown entity %s", f.Name, name)
		}
		switch {
		case e.HasColumn(name + "_id"):
			joins = append(joins, fmt.Sprintf("JOIN %s AS %s ON %s.id = f1.%s_id", name, alias, alias, name))
		default:
			joins = append(joins, fmt.Sprintf("JOIN %s AS %s ON %s.%s_id = f1.id", name, alias, alias, e.Name))
			distinct = true
		}
	}

	conds := make([]string, len(f.Entities))
	for i := range f.Entities {
		conds[i] = fmt.Sprintf("f%d.is_active = 1", i+1)
	}
	like := func(terms []schema.FindTerm) (string, error) {
		parts := make([]string, len(terms))
		for i, t := range terms {
			alias, ok := aliases[t.Entity]
			if !ok {
				return "", fmt.Errorf("find %s: term %s.%s is not joined", f.Name, t.Entity, t.Field)
			}
			parts[i] = alias + "." + t.Field + " LIKE ?"
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	}
	pos, err := like(f.Positive())
	if err != nil {
		return FindQuery{}, err
	}
	conds = append(conds, pos)
	if neg := f.Negative(); len(neg) > 0 {
		clause, err := like(neg)
		if err != nil {
			return FindQuery{}, err
		}
		conds = append(conds, "NOT "+clause)
	}
	fq.Params = len(f.Terms)

	tail := strings.Join(joins, " ")
	if tail != "" {
		tail = " " + tail
	}
	tail += " WHERE " + strings.Join(conds, " AND ") + " ORDER BY f1.id"

	sel := "SELECT "
	if distinct {
		sel = "SELECT DISTINCT "
	}
	fq.SQL = sel + selectList(e, "f1") + " FROM " + e.Name + " AS f1" + tail
	head := enrichedHead(e, enrichedFields(m, e), "f1")
	fq.Enriched = sel + strings.TrimPrefix(head, "SELECT ") + tail
	return fq, nil
}

package service

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
	"github.com/roach88/erpgen/internal/synth"
)

// Row is one record keyed by column name. Values are int64, float64, bool
// or string.
type Row map[string]any

// ID returns the row's id, or 0 when it has none.
func (r Row) ID() int64 { return asInt(r["id"]) }

// Int returns the named value as int64.
func (r Row) Int(key string) int64 { return asInt(r[key]) }

// Float returns the named value as float64.
func (r Row) Float(key string) float64 {
	v, _ := schema.Coerce(schema.TypeReal, r[key])
	f, _ := v.(float64)
	return f
}

// Text returns the named value as text.
func (r Row) Text(key string) string {
	v, _ := schema.Coerce(schema.TypeText, r[key])
	s, _ := v.(string)
	return s
}

// Bool returns the named value as bool.
func (r Row) Bool(key string) bool {
	v, _ := schema.Coerce(schema.TypeBool, r[key])
	b, _ := v.(bool)
	return b
}

// Clone returns a shallow copy.
func (r Row) Clone() Row { return maps.Clone(r) }

func asInt(v any) int64 {
	n, err := schema.Coerce(schema.TypeInt, v)
	if err != nil {
		return 0
	}
	return n.(int64)
}

// normalize checks in against the entity layout and returns a complete row:
// given values coerced to the column type, missing ones set to the declared
// default.
func normalize(ep *synth.EntityPlan, in Row, base Row) (Row, error) {
	for key := range in {
		if !ep.HasField(key) {
			return nil, &UnknownFieldError{Entity: ep.Name, Field: key, Op: "write"}
		}
	}
	out := make(Row, len(ep.Columns))
	for _, c := range ep.Columns {
		v, ok := in[c.Name]
		if !ok {
			if base != nil {
				out[c.Name] = base[c.Name]
			} else {
				out[c.Name] = schema.MustCoerce(c.Type, c.Default)
			}
			continue
		}
		coerced, err := schema.Coerce(c.Type, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", ep.Name, c.Name, err)
		}
		out[c.Name] = coerced
	}
	return out, nil
}

// args returns the row values in the order of cols.
func args(row Row, cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = row[c]
	}
	return out
}

// queryRows runs a select and normalizes every scanned value by layout.
// Keys outside the layout are enriched display values and become text.
func queryRows(ctx context.Context, q store.Querier, ep *synth.EntityPlan, query string, params ...any) ([]Row, error) {
	rows, err := q.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		raw := map[string]any{}
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ep.Name, err)
		}
		row := make(Row, len(raw))
		for key, v := range raw {
			if i := strings.LastIndexByte(key, '.'); i >= 0 {
				key = key[i+1:]
			}
			t := schema.TypeText
			if c, ok := ep.Field(key); ok {
				t = c.Type
			}
			norm, err := schema.Coerce(t, v)
			if err != nil {
				return nil, fmt.Errorf("scan %s.%s: %w", ep.Name, key, err)
			}
			row[key] = norm
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func queryRow(ctx context.Context, q store.Querier, ep *synth.EntityPlan, id int64, query string) (Row, error) {
	rows, err := queryRows(ctx, q, ep, query, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %d: %w", ep.Name, id, ErrNotFound)
	}
	return rows[0], nil
}

package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coerce normalizes v to the Go representation of t: int64, float64, bool
// or string. Values read from SQLite arrive as int64, float64, string or
// []byte; values from schema files as int64, float64, bool or string.
func Coerce(t Type, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch t {
	case TypeInt:
		return coerceInt(v)
	case TypeReal:
		return coerceReal(v)
	case TypeBool:
		return coerceBool(v)
	default:
		return coerceText(v)
	}
}

// MustCoerce is Coerce for values already validated against the schema.
func MustCoerce(t Type, v any) any {
	out, err := Coerce(t, v)
	if err != nil {
		panic(err)
	}
	return out
}

func coerceInt(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return int64(0), nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("cannot use %v as int", x)
		}
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		if x == "" {
			return int64(0), nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot use %q as int", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot use %T as int", v)
	}
}

func coerceReal(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return float64(0), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case bool:
		if x {
			return float64(1), nil
		}
		return float64(0), nil
	case string:
		if x == "" {
			return float64(0), nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot use %q as real", x)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot use %T as real", v)
	}
}

func coerceBool(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "0", "false", "f":
			return false, nil
		case "1", "true", "t":
			return true, nil
		}
		return nil, fmt.Errorf("cannot use %q as bool", x)
	default:
		return nil, fmt.Errorf("cannot use %T as bool", v)
	}
}

func coerceText(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// SQLLiteral renders a coerced value as an SQL literal for DEFAULT clauses.
func SQLLiteral(t Type, v any) string {
	c, err := Coerce(t, v)
	if err != nil {
		c = MustCoerce(t, nil)
	}
	switch x := c.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "NULL"
	}
}

package schema

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// initialisms are rendered in upper case by GoName.
var initialisms = map[string]string{
	"id":  "ID",
	"uid": "UID",
	"url": "URL",
	"api": "API",
	"sql": "SQL",
}

// GoName converts a snake_case schema name to an exported Go identifier.
// It is a pure function of its input.
//
//	GoName("item_to_invoice") == "ItemToInvoice"
//	GoName("contragent_id")   == "ContragentID"
func GoName(snake string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(snake, isSeparator) {
		if up, ok := initialisms[strings.ToLower(part)]; ok {
			b.WriteString(up)
			continue
		}
		b.WriteString(cases.Title(language.Und, cases.NoLower).String(part))
	}
	out := b.String()
	if out == "" {
		return "X"
	}
	if out[0] >= '0' && out[0] <= '9' {
		return "X" + out
	}
	return out
}

// LowerGoName converts a snake_case name to an unexported Go identifier.
//
//	LowerGoName("item_to_invoice") == "itemToInvoice"
//	LowerGoName("id")              == "id"
func LowerGoName(snake string) string {
	parts := strings.FieldsFunc(snake, isSeparator)
	if len(parts) == 0 {
		return "x"
	}
	out := strings.ToLower(parts[0])
	if len(parts) > 1 {
		out += GoName(strings.Join(parts[1:], "_"))
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "x" + out
	}
	if goKeywords[out] {
		return out + "_"
	}
	return out
}

// FindName derives the registered name of a find specification, e.g.
// contragent_search_contact_search or contact_name_contragent_no_search.
func FindName(f Find) string {
	var parts []string
	for _, entity := range f.Entities {
		parts = append(parts, entity)
		for _, t := range f.Terms {
			if t.Entity != entity {
				continue
			}
			if t.Negate {
				parts = append(parts, "no", t.Field)
			} else {
				parts = append(parts, t.Field)
			}
		}
	}
	return strings.Join(parts, "_")
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || r == '.' || r == ' '
}

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

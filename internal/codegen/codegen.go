package codegen

import (
	"bytes"
	"embed"
	"fmt"
	"go/format"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/roach88/erpgen/internal/synth"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("codegen").Funcs(template.FuncMap{
	"q":    strconv.Quote,
	"join": strings.Join,
	"list": quoteList,
	"step": stepCall,
	"pair": pair,
}).ParseFS(templateFS, "templates/*.tmpl"))

// DefaultPackage is the package name of emitted code when Options leaves it
// empty.
const DefaultPackage = "models"

// Options configure Generate.
type Options struct {
	// Package is the package clause of every emitted file.
	Package string
}

// reserved are the identifiers tx.go and models.go declare. An entity whose
// Go name collides with one of them cannot be emitted.
var reserved = map[string]bool{
	"DB": true, "Options": true, "Querier": true, "Authorizer": true,
	"ComplexHandler": true, "Handlers": true, "Hooks": true, "Visibility": true,
	"SumFilter": true, "TxError": true, "UnknownFieldError": true,
	"TransitionError": true, "InTx": true, "New": true, "ErrNotFound": true,
}

// Generate renders the access layer of plan as gofmt-formatted Go sources
// keyed by file name: models.go, tx.go and one <entity>.go per entity.
func Generate(plan *synth.Plan, opts Options) (map[string][]byte, error) {
	if plan == nil {
		return nil, fmt.Errorf("codegen: nil plan")
	}
	pkg := opts.Package
	if pkg == "" {
		pkg = DefaultPackage
	}
	if !isIdent(pkg) {
		return nil, fmt.Errorf("codegen: invalid package name %q", pkg)
	}
	for _, ep := range plan.Entities {
		if reserved[ep.GoName] || reserved[ep.GoName+"W"] {
			return nil, fmt.Errorf("codegen: entity %s collides with generated identifier %s", ep.Name, ep.GoName)
		}
	}

	fv, err := newFileView(plan, pkg)
	if err != nil {
		return nil, err
	}
	files := make(map[string][]byte, len(fv.Entities)+2)
	if files["models.go"], err = render("models.go.tmpl", "models.go", fv); err != nil {
		return nil, err
	}
	if files["tx.go"], err = render("tx.go.tmpl", "tx.go", fv); err != nil {
		return nil, err
	}
	for _, ev := range fv.Entities {
		name := ev.Name + ".go"
		if name == "models.go" || name == "tx.go" || strings.HasSuffix(ev.Name, "_test") {
			name = ev.Name + "_entity.go"
		}
		data := struct {
			Package string
			E       *entityView
		}{pkg, ev}
		if files[name], err = render("entity.go.tmpl", name, data); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func render(tmpl, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tmpl, data); err != nil {
		return nil, fmt.Errorf("codegen %s: %w", name, err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("codegen %s: format: %w", name, err)
	}
	return out, nil
}

// WriteFiles writes files into dir, creating it when needed. Files are
// written in name order.
func WriteFiles(dir string, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

func quoteList(qs [3]string) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = strconv.Quote(q)
	}
	return "[3]string{" + strings.Join(parts, ", ") + "}"
}

// isIdent reports whether s is a lower-case Go package name.
func isIdent(s string) bool {
	return token.IsIdentifier(s) && strings.ToLower(s) == s
}

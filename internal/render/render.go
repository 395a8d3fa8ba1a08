// Package render turns grouped declarations into generated interface text.
package render

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// DefaultTemplate names the embedded template used when no path is given.
const DefaultTemplate = "interface.hpp.tmpl"

// TargetInfo describes the interface being rendered.
type TargetInfo struct {
	Path     string
	GenPath  string
	Slug     string
	DocGroup string
	Sources  []string
}

// Data is the input of one render.
type Data struct {
	Target    TargetInfo
	Groups    []*model.NamespaceGroup
	Functions []*model.Function
}

// Renderer produces the artifact bytes for one target. Implementations
// must be deterministic and safe for concurrent use.
type Renderer interface {
	Render(Data) ([]byte, error)
}

// Template is a Renderer backed by text/template.
type Template struct {
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"join": func(parts []string, sep string) string {
		return strings.Join(parts, sep)
	},
	"signature": func(f *model.Function, named bool) string {
		return f.Signature(named)
	},
	"qualified": func(f *model.Function, named bool) string {
		return f.SignatureQualified(named)
	},
}

// NewTemplate loads the template at path, or the embedded default when path
// is empty.
func NewTemplate(path string) (*Template, error) {
	name := DefaultTemplate
	var (
		text []byte
		err  error
	)
	if path == "" {
		text, err = templateFS.ReadFile("templates/" + DefaultTemplate)
	} else {
		name = filepath.Base(path)
		text, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "reading template %s", name), errors.ErrRender)
	}
	return Parse(name, string(text))
}

// Parse compiles template text.
func Parse(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parsing template %s", name), errors.ErrRender)
	}
	return &Template{tmpl: tmpl}, nil
}

// Render executes the template.
func (t *Template) Render(d Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, d); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "rendering %s", d.Target.GenPath), errors.ErrRender)
	}
	return buf.Bytes(), nil
}

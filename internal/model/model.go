// Package model defines core data structures for igen.
package model

import (
	"strings"

	"github.com/phobologic/igen/internal/decl"
)

// Annotations with a meaning of their own.
const (
	AnnotationInterface = "igen_interface"
	AnnotationPrivate   = "igen_private"
	// MarkerDefault prefixes a parameter annotation carrying its default
	// value, as in "igen_default:5".
	MarkerDefault = "igen_default"
	// MarkerSeparator splits a "key:value" annotation marker.
	MarkerSeparator = ":"
)

// Location is a file and 1-based line.
type Location struct {
	File string
	Line int
}

// Parameter describes one function parameter. Values are built once by
// NewParameter and must not be modified.
type Parameter struct {
	Name             string // may be empty
	Type             string
	QualifiedName    string
	DefaultValue     string // empty when absent
	Signature        string // "type name[ = default]"
	SignatureUnnamed string // "type"
}

// NewParameter builds a Parameter and its signature strings.
func NewParameter(name, typ, qualifiedName, defaultValue string) Parameter {
	sig := typ
	if name != "" {
		sig = typ + " " + qualifiedName
	}
	if defaultValue != "" {
		sig += " = " + defaultValue
	}
	return Parameter{
		Name:             name,
		Type:             typ,
		QualifiedName:    qualifiedName,
		DefaultValue:     defaultValue,
		Signature:        sig,
		SignatureUnnamed: typ,
	}
}

// FunctionSpec holds the inputs of NewFunction.
type FunctionSpec struct {
	Name                  string
	ResultType            string
	Params                []Parameter
	NamespacePath         []string
	ExplicitQualification string
	Annotations           []string
	Comment               string
	Location              Location
}

// Function describes one extracted function declaration. Values are built
// once by NewFunction and must not be modified.
type Function struct {
	Name       string
	ResultType string
	Params     []Parameter
	// NamespacePath lists the namespaces the declaration sits in, outer to
	// inner.
	NamespacePath []string
	// QualifiedName is NamespacePath joined with Name.
	QualifiedName string
	// ExplicitQualification is the qualifier written on the declaration
	// itself when it lives outside its semantic namespace ("a::b" for
	// `void a::b::f()` at global scope). Empty otherwise.
	ExplicitQualification string
	Annotations           []string
	Comment               string
	Location              Location

	ArgsSignature        string
	ArgsSignatureUnnamed string
}

// NewFunction builds a Function and its derived strings.
func NewFunction(spec FunctionSpec) *Function {
	named := make([]string, len(spec.Params))
	unnamed := make([]string, len(spec.Params))
	for i := range spec.Params {
		named[i] = spec.Params[i].Signature
		unnamed[i] = spec.Params[i].SignatureUnnamed
	}

	return &Function{
		Name:                  spec.Name,
		ResultType:            spec.ResultType,
		Params:                spec.Params,
		NamespacePath:         spec.NamespacePath,
		QualifiedName:         decl.Join(append(append([]string(nil), spec.NamespacePath...), spec.Name)),
		ExplicitQualification: spec.ExplicitQualification,
		Annotations:           spec.Annotations,
		Comment:               spec.Comment,
		Location:              spec.Location,
		ArgsSignature:         strings.Join(named, ", "),
		ArgsSignatureUnnamed:  strings.Join(unnamed, ", "),
	}
}

// ExplicitName is Name prefixed by the explicit qualification, which is how
// the declaration is spelled inside its namespace block.
func (f *Function) ExplicitName() string {
	if f.ExplicitQualification == "" {
		return f.Name
	}
	return f.ExplicitQualification + decl.Separator + f.Name
}

// FullyQualifiedName joins the namespace path, the explicit qualification
// and the name.
func (f *Function) FullyQualifiedName() string {
	parts := append([]string(nil), f.NamespacePath...)
	parts = append(parts, f.ExplicitName())
	return decl.Join(parts)
}

// Signature renders "result name(args)" using the explicit name.
func (f *Function) Signature(named bool) string {
	return f.signature(f.ExplicitName(), named)
}

// SignatureQualified renders "result a::b::name(args)".
func (f *Function) SignatureQualified(named bool) string {
	return f.signature(f.FullyQualifiedName(), named)
}

func (f *Function) signature(name string, named bool) string {
	args := f.ArgsSignatureUnnamed
	if named {
		args = f.ArgsSignature
	}
	return f.ResultType + " " + name + "(" + args + ")"
}

// HasAnnotation reports whether the function carries the annotation.
func (f *Function) HasAnnotation(name string) bool {
	for _, a := range f.Annotations {
		if a == name {
			return true
		}
	}
	return false
}

// Private reports whether the function is marked igen_private.
func (f *Function) Private() bool {
	return f.HasAnnotation(AnnotationPrivate)
}

// RootKey is the group key of declarations outside any namespace.
const RootKey = "<root>"

// NamespaceGroup collects the functions declared in one namespace path.
type NamespaceGroup struct {
	Path      []string
	Functions []*Function
}

// Key identifies the group within one grouping run.
func (g *NamespaceGroup) Key() string {
	return PathKey(g.Path)
}

// PathKey returns the group key for a namespace path.
func PathKey(path []string) string {
	if len(path) == 0 {
		return RootKey
	}
	return decl.Join(path)
}


// Open returns the opening namespace brackets, one line per level.
func (g *NamespaceGroup) Open() string {
	var b strings.Builder
	for _, name := range g.Path {
		if name == "" {
			b.WriteString("namespace {\n")
			continue
		}
		b.WriteString("namespace " + name + " {\n")
	}
	return b.String()
}

// Close returns the closing brackets matching Open, innermost first.
func (g *NamespaceGroup) Close() string {
	var b strings.Builder
	for i := len(g.Path) - 1; i >= 0; i-- {
		name := g.Path[i]
		if name == "" {
			b.WriteString("} // anonymous namespace\n")
			continue
		}
		b.WriteString("} // namespace " + name + "\n")
	}
	return b.String()
}

// Source is one file feeding a generated interface.
type Source struct {
	Path string `json:"path"`
	// Included sources are pulled in by another source and never parsed as
	// roots themselves.
	Included bool `json:"included"`
}

// ManifestEntry is the discovery-time description of one generated
// interface.
type ManifestEntry struct {
	Slug     string   `json:"slug"`
	Path     string   `json:"path"`
	GenPath  string   `json:"gen_path"`
	Sources  []Source `json:"sources"`
	DocGroup string   `json:"doc_group"`
}

// RootSources returns the sources that are parsed independently.
func (e *ManifestEntry) RootSources() []Source {
	var out []Source
	for _, s := range e.Sources {
		if !s.Included {
			out = append(out, s)
		}
	}
	return out
}

// DependencyKind says how a file feeds a generated interface.
type DependencyKind string

const (
	DependencyOwner    DependencyKind = "owner"
	DependencySource   DependencyKind = "source"
	DependencyIncluded DependencyKind = "included"
)

// Dependency is an edge from a file to the artifact generated from it.
type Dependency struct {
	Source string
	Target string
	Kind   DependencyKind
}

// Package extract turns a parsed declaration tree into function
// descriptors.
package extract

import (
	"path/filepath"
	"strings"

	"github.com/phobologic/igen/internal/decl"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/model"
)

// Policy selects which function declarations are accepted.
type Policy int

const (
	// PolicyAll accepts every function.
	PolicyAll Policy = iota
	// PolicyDocumented accepts functions with a doc comment or a pass
	// annotation.
	PolicyDocumented
	// PolicyAnnotated accepts functions carrying a pass annotation.
	PolicyAnnotated
)

// Filter decides which function nodes are extracted. The path and policy
// checks must both pass.
type Filter struct {
	// Paths restricts declarations to these files. Nil accepts any file.
	Paths map[string]bool
	// Policy is the acceptance rule applied after the path check.
	Policy Policy
	// Annotations lists the pass annotations for PolicyDocumented and
	// PolicyAnnotated.
	Annotations []string
}

// PathSet builds a Filter.Paths set from file paths.
func PathSet(paths ...string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[normalize(p)] = true
	}
	return set
}

func normalize(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func (f Filter) acceptPath(file string) bool {
	if f.Paths == nil {
		return true
	}
	return f.Paths[normalize(file)]
}

func (f Filter) acceptPolicy(comment string, annotations []string) bool {
	switch f.Policy {
	case PolicyDocumented:
		return strings.TrimSpace(comment) != "" || f.hasPassAnnotation(annotations)
	case PolicyAnnotated:
		return f.hasPassAnnotation(annotations)
	default:
		return true
	}
}

func (f Filter) hasPassAnnotation(annotations []string) bool {
	for _, a := range annotations {
		for _, want := range f.Annotations {
			if a == want {
				return true
			}
		}
	}
	return false
}

// Extractor walks declaration trees of one parse session.
type Extractor struct {
	session *decl.Session
	filter  Filter
}

// New returns an Extractor reading children through session.
func New(session *decl.Session, filter Filter) *Extractor {
	return &Extractor{session: session, filter: filter}
}

// Extract returns the accepted functions under root in encounter order,
// along with one error per malformed declaration that was skipped.
func (e *Extractor) Extract(root decl.Node) ([]*model.Function, []error) {
	var (
		fns  []*model.Function
		errs []error
	)
	e.walk(root, &fns, &errs)
	return fns, errs
}

func (e *Extractor) walk(n decl.Node, fns *[]*model.Function, errs *[]error) {
	for _, c := range e.session.ChildrenOf(n) {
		switch c.Kind() {
		case decl.KindNamespace:
			e.walk(c, fns, errs)
		case decl.KindFunction:
			if !e.filter.acceptPath(c.Location().File) {
				continue
			}
			annotations := e.session.Annotations(c)
			if !e.filter.acceptPolicy(c.RawComment(), annotations) {
				continue
			}
			fn, err := e.function(c, annotations)
			if err != nil {
				*errs = append(*errs, err)
				continue
			}
			*fns = append(*fns, fn)
		}
	}
}

func (e *Extractor) function(n decl.Node, annotations []string) (*model.Function, error) {
	loc := n.Location()
	result, ok := n.TypeSpelling()
	if !ok || result == "" {
		return nil, malformed(n, "function %q has no result type", n.Spelling())
	}

	var params []model.Parameter
	for _, c := range e.session.ChildrenOf(n) {
		if c.Kind() != decl.KindParameter {
			continue
		}
		p, err := e.parameter(n, c)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}

	path := decl.NamespacePath(n.LexicalParent())
	return model.NewFunction(model.FunctionSpec{
		Name:                  n.Spelling(),
		ResultType:            result,
		Params:                params,
		NamespacePath:         path,
		ExplicitQualification: explicitQualification(path, n.SemanticParent()),
		Annotations:           annotations,
		Comment:               n.RawComment(),
		Location:              model.Location{File: loc.File, Line: loc.Line},
	}), nil
}

func (e *Extractor) parameter(fn, n decl.Node) (model.Parameter, error) {
	typ, ok := n.TypeSpelling()
	if !ok || typ == "" {
		return model.Parameter{}, malformed(fn, "parameter %q of %q has no type", n.Spelling(), fn.Spelling())
	}

	name := n.Spelling()
	qualified := ""
	if name != "" {
		qualified = decl.Join(decl.QualifiedParts(n))
	}
	def, _ := Marker(e.session.Annotations(n), model.MarkerDefault)
	return model.NewParameter(name, typ, qualified, def), nil
}

// explicitQualification returns the qualifier of an out-of-line
// declaration: the semantic parent's qualified parts minus the prefix they
// share with the lexical namespace path.
func explicitQualification(path []string, semantic decl.Node) string {
	if semantic == nil || semantic.Kind() == decl.KindTranslationUnit {
		return ""
	}
	parts := decl.QualifiedParts(semantic)
	i := 0
	for i < len(path) && i < len(parts) && path[i] == parts[i] {
		i++
	}
	if i == len(parts) {
		return ""
	}
	return decl.Join(parts[i:])
}

// Marker returns the value of the first "key:value" annotation for key.
func Marker(annotations []string, key string) (string, bool) {
	prefix := key + model.MarkerSeparator
	for _, a := range annotations {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix), true
		}
	}
	return "", false
}

func malformed(n decl.Node, format string, args ...any) error {
	loc := n.Location()
	err := errors.Newf(format, args...)
	err = errors.Wrapf(err, "%s:%d", loc.File, loc.Line)
	return errors.Mark(err, errors.ErrMalformedDeclaration)
}

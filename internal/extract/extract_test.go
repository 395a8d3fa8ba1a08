package extract_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/igen/internal/decl"
	"github.com/phobologic/igen/internal/decl/decltest"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/extract"
	"github.com/phobologic/igen/internal/model"
)

func names(fns []*model.Function) []string {
	out := make([]string, len(fns))
	for i, f := range fns {
		out[i] = f.QualifiedName
	}
	return out
}

func TestExtractOrderAndNamespaces(t *testing.T) {
	t.Parallel()

	root := decltest.NewTree("a.hpp")
	root.Function("top", "void")
	ab := root.Namespace("a").Namespace("b")
	ab.Function("f", "int").Param("x", "int")
	root.Namespace("c").Function("g", "void")
	root.Record("R").Function("method", "void")

	fns, errs := extract.New(decl.NewSession(), extract.Filter{}).Extract(root)
	require.Empty(t, errs)
	assert.Equal(t, []string{"top", "a::b::f", "c::g"}, names(fns), "records are not descended")

	f := fns[1]
	assert.Equal(t, []string{"a", "b"}, f.NamespacePath)
	assert.Empty(t, f.ExplicitQualification)
	assert.Equal(t, "int x", f.ArgsSignature)
	assert.Equal(t, "int", f.ArgsSignatureUnnamed)
}

func TestExtractDefaultFromMarker(t *testing.T) {
	t.Parallel()

	root := decltest.NewTree("a.hpp")
	ns := root.Namespace("ns")
	foo := ns.Record("Foo")
	bar := root.Function("bar", "void").WithSemanticParent(foo)
	bar.Param("x", "int").Annotate("other", "igen_default:5", "igen_default:7")

	fns, errs := extract.New(decl.NewSession(), extract.Filter{}).Extract(root)
	require.Empty(t, errs)
	require.Len(t, fns, 1)

	p := fns[0].Params[0]
	assert.Equal(t, "5", p.DefaultValue, "first marker wins")
	assert.Equal(t, "int x = 5", p.Signature)
	assert.True(t, len(p.Signature) >= 3 && p.Signature[len(p.Signature)-3:] == "= 5")
	assert.Equal(t, "ns::Foo", fns[0].ExplicitQualification)
	assert.Equal(t, "void ns::Foo::bar(int x = 5)", fns[0].SignatureQualified(true))
}

func TestExtractOutOfLineDefinition(t *testing.T) {
	t.Parallel()

	root := decltest.NewTree("a.hpp")
	b := decltest.Detached(decl.KindNamespace, "b", decltest.Detached(decl.KindNamespace, "a", nil))
	root.Function("f", "void").WithSemanticParent(b)

	fns, errs := extract.New(decl.NewSession(), extract.Filter{}).Extract(root)
	require.Empty(t, errs)
	require.Len(t, fns, 1)

	assert.Empty(t, fns[0].NamespacePath)
	assert.Equal(t, "a::b", fns[0].ExplicitQualification)
	assert.Equal(t, "f", fns[0].QualifiedName)
	assert.Equal(t, "a::b::f", fns[0].FullyQualifiedName())
}

func TestExtractSiblingQualification(t *testing.T) {
	t.Parallel()

	root := decltest.NewTree("a.hpp")
	b1 := root.Namespace("B1")
	b2 := b1.Namespace("B2")
	b1.Function("g", "void").WithSemanticParent(b2)

	fns, errs := extract.New(decl.NewSession(), extract.Filter{}).Extract(root)
	require.Empty(t, errs)
	require.Len(t, fns, 1)

	assert.Equal(t, []string{"B1"}, fns[0].NamespacePath)
	assert.Equal(t, "B2", fns[0].ExplicitQualification)
	assert.Equal(t, "void B2::g()", fns[0].Signature(false))
}

func TestExtractUnnamedParameter(t *testing.T) {
	t.Parallel()

	root := decltest.NewTree("a.hpp")
	f := root.Function("f", "void")
	f.Param("", "const char*")
	f.Param("n", "size_t")

	fns, errs := extract.New(decl.NewSession(), extract.Filter{}).Extract(root)
	require.Empty(t, errs)
	require.Len(t, fns, 1)
	assert.Equal(t, "const char*, size_t n", fns[0].ArgsSignature)
	assert.Equal(t, "const char*, size_t", fns[0].ArgsSignatureUnnamed)
}

func TestExtractSkipsMalformed(t *testing.T) {
	t.Parallel()

	root := decltest.NewTree("a.hpp")
	root.Function("good", "void")
	root.Function("badParam", "void").Param("x", "")
	root.Function("badResult", "").WithoutType()
	root.Function("after", "int")

	fns, errs := extract.New(decl.NewSession(), extract.Filter{}).Extract(root)
	assert.Equal(t, []string{"good", "after"}, names(fns))
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, errors.Is(err, errors.ErrMalformedDeclaration), "got %v", err)
	}
	assert.Contains(t, errs[0].Error(), "badParam")
}

func TestExtractPathFilter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.hpp")
	other := filepath.Join(dir, "other.hpp")

	root := decltest.NewTree(keep)
	root.Function("kept", "void").At(keep, 3)
	root.Function("dropped", "void").At(other, 4)
	root.Function("relative", "void").At(filepath.Join(dir, "sub", "..", "keep.hpp"), 9)

	filter := extract.Filter{Paths: extract.PathSet(keep)}
	fns, errs := extract.New(decl.NewSession(), filter).Extract(root)
	require.Empty(t, errs)
	assert.Equal(t, []string{"kept", "relative"}, names(fns))
}

func TestExtractPolicies(t *testing.T) {
	t.Parallel()

	build := func() *decltest.Node {
		root := decltest.NewTree("a.hpp")
		root.Function("plain", "void")
		root.Function("documented", "void").WithComment("/// Does things.")
		root.Function("annotated", "void").Annotate("igen_interface")
		root.Function("foreign", "void").Annotate("something_else")
		return root
	}

	tests := []struct {
		name   string
		policy extract.Policy
		want   []string
	}{
		{"all", extract.PolicyAll, []string{"plain", "documented", "annotated", "foreign"}},
		{"documented", extract.PolicyDocumented, []string{"documented", "annotated"}},
		{"annotated", extract.PolicyAnnotated, []string{"annotated"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			filter := extract.Filter{Policy: tt.policy, Annotations: []string{"igen_interface", "igen_private"}}
			fns, errs := extract.New(decl.NewSession(), filter).Extract(build())
			require.Empty(t, errs)
			assert.Equal(t, tt.want, names(fns))
		})
	}
}

func TestExtractCarriesAnnotationsAndComment(t *testing.T) {
	t.Parallel()

	root := decltest.NewTree("a.hpp")
	root.Function("f", "void").Annotate("igen_interface", "igen_private").WithComment("/// f").At("a.hpp", 12)

	fns, _ := extract.New(decl.NewSession(), extract.Filter{}).Extract(root)
	require.Len(t, fns, 1)
	assert.True(t, fns[0].Private())
	assert.Equal(t, "/// f", fns[0].Comment)
	assert.Equal(t, model.Location{File: "a.hpp", Line: 12}, fns[0].Location)
}

func TestExtractUsesSessionCache(t *testing.T) {
	t.Parallel()

	root := decltest.NewTree("a.hpp")
	f := root.Function("f", "void").Annotate("igen_interface")
	f.Param("x", "int")

	s := decl.NewSession()
	filter := extract.Filter{Policy: extract.PolicyAnnotated, Annotations: []string{"igen_interface"}}
	e := extract.New(s, filter)
	e.Extract(root)
	e.Extract(root)

	assert.Equal(t, 1, root.Visits)
	assert.Equal(t, 1, f.Visits, "annotations and parameters share one traversal")
}

func TestMarker(t *testing.T) {
	t.Parallel()

	v, ok := extract.Marker([]string{"a", "igen_default:x:y"}, "igen_default")
	assert.True(t, ok)
	assert.Equal(t, "x:y", v)

	_, ok = extract.Marker([]string{"igen_defaultx"}, "igen_default")
	assert.False(t, ok)
}

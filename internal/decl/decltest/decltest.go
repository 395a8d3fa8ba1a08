// Package decltest builds in-memory declaration trees for tests.
package decltest

import (
	"sync/atomic"

	"github.com/phobologic/igen/internal/decl"
)

var nextID atomic.Uint64

// Node is a decl.Node backed by plain fields. Visits counts VisitChildren
// calls.
type Node struct {
	id       uint64
	kind     decl.Kind
	spelling string
	loc      decl.Location
	semantic *Node
	lexical  *Node
	children []*Node
	typ      string
	hasType  bool
	comment  string

	Visits int
}

var _ decl.Node = (*Node)(nil)

func newNode(kind decl.Kind, spelling string, parent *Node) *Node {
	n := &Node{
		id:       nextID.Add(1),
		kind:     kind,
		spelling: spelling,
		semantic: parent,
		lexical:  parent,
	}
	if parent != nil {
		n.loc = parent.loc
		parent.children = append(parent.children, n)
	}
	return n
}

// NewTree returns a translation unit rooted at file.
func NewTree(file string) *Node {
	n := newNode(decl.KindTranslationUnit, file, nil)
	n.loc = decl.Location{File: file, Line: 1}
	return n
}

// Namespace appends a namespace child.
func (n *Node) Namespace(name string) *Node {
	return newNode(decl.KindNamespace, name, n)
}

// Record appends a class/struct child.
func (n *Node) Record(name string) *Node {
	return newNode(decl.KindRecord, name, n)
}

// Function appends a function child with the given result type.
func (n *Node) Function(name, result string) *Node {
	f := newNode(decl.KindFunction, name, n)
	f.typ, f.hasType = result, true
	return f
}

// Param appends a parameter child. An empty typ leaves the type unresolved.
func (n *Node) Param(name, typ string) *Node {
	p := newNode(decl.KindParameter, name, n)
	p.typ, p.hasType = typ, typ != ""
	return p
}

// Annotate appends an annotation child and returns n.
func (n *Node) Annotate(values ...string) *Node {
	for _, v := range values {
		newNode(decl.KindAnnotation, v, n)
	}
	return n
}

// Child appends a child of an arbitrary kind.
func (n *Node) Child(kind decl.Kind, spelling string) *Node {
	return newNode(kind, spelling, n)
}

// Detached returns a node with no parent links and no place in any tree,
// for use as an out-of-line semantic parent.
func Detached(kind decl.Kind, spelling string, semantic *Node) *Node {
	n := newNode(kind, spelling, nil)
	n.semantic = semantic
	n.lexical = semantic
	return n
}

// WithSemanticParent overrides the semantic parent and returns n.
func (n *Node) WithSemanticParent(p *Node) *Node {
	n.semantic = p
	return n
}

// WithComment sets the raw comment and returns n.
func (n *Node) WithComment(c string) *Node {
	n.comment = c
	return n
}

// At sets the location and returns n.
func (n *Node) At(file string, line int) *Node {
	n.loc = decl.Location{File: file, Line: line}
	return n
}

// WithoutType clears the type spelling and returns n.
func (n *Node) WithoutType() *Node {
	n.typ, n.hasType = "", false
	return n
}

func (n *Node) ID() uint64              { return n.id }
func (n *Node) Kind() decl.Kind         { return n.kind }
func (n *Node) Spelling() string        { return n.spelling }
func (n *Node) Location() decl.Location { return n.loc }
func (n *Node) RawComment() string      { return n.comment }

func (n *Node) TypeSpelling() (string, bool) {
	return n.typ, n.hasType
}

func (n *Node) SemanticParent() decl.Node {
	if n.semantic == nil {
		return nil
	}
	return n.semantic
}

func (n *Node) LexicalParent() decl.Node {
	if n.lexical == nil {
		return nil
	}
	return n.lexical
}

func (n *Node) VisitChildren(fn func(decl.Node) bool) {
	n.Visits++
	for _, c := range n.children {
		if !fn(c) {
			return
		}
	}
}

package parse

import "github.com/phobologic/igen/internal/decl"

// node is the eager declaration tree built from one parse. It owns only
// strings, so the tree-sitter tree can be released right after the walk.
type node struct {
	id       uint64
	kind     decl.Kind
	spelling string
	loc      decl.Location
	semantic *node
	lexical  *node
	children []*node
	typ      string
	hasType  bool
	comment  string
}

var _ decl.Node = (*node)(nil)

func (n *node) add(c *node) *node {
	n.children = append(n.children, c)
	return c
}

func (n *node) ID() uint64              { return n.id }
func (n *node) Kind() decl.Kind         { return n.kind }
func (n *node) Spelling() string        { return n.spelling }
func (n *node) Location() decl.Location { return n.loc }
func (n *node) RawComment() string      { return n.comment }

func (n *node) TypeSpelling() (string, bool) {
	return n.typ, n.hasType
}

func (n *node) SemanticParent() decl.Node {
	if n.semantic == nil {
		return nil
	}
	return n.semantic
}

func (n *node) LexicalParent() decl.Node {
	if n.lexical == nil {
		return nil
	}
	return n.lexical
}

func (n *node) VisitChildren(fn func(decl.Node) bool) {
	for _, c := range n.children {
		if !fn(c) {
			return
		}
	}
}

// Package decl defines the parsed declaration tree consumed by the extractor
// and the per-session cache of node children.
package decl

import "strings"

// Separator joins namespace parts in qualified names.
const Separator = "::"

// Kind classifies a declaration node.
type Kind int

const (
	KindUnknown Kind = iota
	KindTranslationUnit
	KindNamespace
	KindRecord
	KindFunction
	KindParameter
	KindAnnotation
)

func (k Kind) String() string {
	switch k {
	case KindTranslationUnit:
		return "translation_unit"
	case KindNamespace:
		return "namespace"
	case KindRecord:
		return "record"
	case KindFunction:
		return "function"
	case KindParameter:
		return "parameter"
	case KindAnnotation:
		return "annotation"
	default:
		return "unknown"
	}
}

// Location is where a node was declared.
type Location struct {
	File string
	Line int // 1-based
}

// Node is one entry of a parsed declaration tree.
//
// ID is stable and unique within one parse session only. Children are only
// reachable through VisitChildren; callers that revisit a node should go
// through a Session.
type Node interface {
	ID() uint64
	Kind() Kind
	Spelling() string
	Location() Location
	SemanticParent() Node
	LexicalParent() Node
	// VisitChildren calls fn for each child in declaration order until fn
	// returns false.
	VisitChildren(fn func(Node) bool)
	// TypeSpelling is the parameter type or the function result type.
	TypeSpelling() (string, bool)
	// RawComment is the doc comment attached to the node, or "".
	RawComment() string
}

// Join joins parts with Separator.
func Join(parts []string) string {
	return strings.Join(parts, Separator)
}

// NamespacePath returns the names of n and its enclosing namespaces, outer
// to inner, walking semantic parents while they are namespaces. The walk
// starts at n itself, so passing a non-namespace node yields nil.
func NamespacePath(n Node) []string {
	var parts []string
	for p := n; p != nil && p.Kind() == KindNamespace; p = p.SemanticParent() {
		parts = append(parts, p.Spelling())
	}
	reverse(parts)
	return parts
}

// QualifiedParts returns n's spelling prefixed by its enclosing namespaces,
// outer to inner. The walk stops at the first semantic parent that is not a
// namespace.
func QualifiedParts(n Node) []string {
	if n == nil {
		return nil
	}
	parts := []string{n.Spelling()}
	for p := n.SemanticParent(); p != nil && p.Kind() == KindNamespace; p = p.SemanticParent() {
		parts = append(parts, p.Spelling())
	}
	reverse(parts)
	return parts
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

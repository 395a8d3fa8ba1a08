package decl

// Session memoizes child enumeration for the nodes of one parse session.
//
// A Session must not outlive its parse session or be shared across
// sessions: node IDs are only unique within one. It is not safe for
// concurrent use.
type Session struct {
	children   map[uint64][]Node
	traversals int
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{children: make(map[uint64][]Node)}
}

// ChildrenOf returns n's children in declaration order. The first call for a
// node identity traverses it; later calls return the same slice, including
// when it is empty.
func (s *Session) ChildrenOf(n Node) []Node {
	if n == nil {
		return nil
	}
	if children, ok := s.children[n.ID()]; ok {
		return children
	}
	children := []Node{}
	n.VisitChildren(func(c Node) bool {
		children = append(children, c)
		return true
	})
	s.traversals++
	s.children[n.ID()] = children
	return children
}

// Annotations returns the spellings of n's annotation children.
func (s *Session) Annotations(n Node) []string {
	var out []string
	for _, c := range s.ChildrenOf(n) {
		if c.Kind() == KindAnnotation {
			out = append(out, c.Spelling())
		}
	}
	return out
}

// Traversals reports how many nodes have been traversed so far.
func (s *Session) Traversals() int {
	return s.traversals
}

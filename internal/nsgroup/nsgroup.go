// Package nsgroup buckets function descriptors by namespace path.
package nsgroup

import "github.com/phobologic/igen/internal/model"

// Set holds namespace groups in the order their paths were first seen.
type Set struct {
	groups []*model.NamespaceGroup
	byKey  map[string]*model.NamespaceGroup
}

// New returns an empty Set.
func New() *Set {
	return &Set{byKey: make(map[string]*model.NamespaceGroup)}
}

// Group builds a Set from fns.
func Group(fns []*model.Function) *Set {
	s := New()
	s.Add(fns...)
	return s
}

// Add appends each function to the group for its namespace path, creating
// the group on first use.
func (s *Set) Add(fns ...*model.Function) {
	for _, f := range fns {
		g := s.Lookup(f.NamespacePath...)
		if g == nil {
			g = &model.NamespaceGroup{Path: append([]string(nil), f.NamespacePath...)}
			s.byKey[g.Key()] = g
			s.groups = append(s.groups, g)
		}
		g.Functions = append(g.Functions, f)
	}
}

// Groups returns the groups in creation order.
func (s *Set) Groups() []*model.NamespaceGroup {
	return s.groups
}

// Lookup returns the group for path, or nil. No path means the root group.
func (s *Set) Lookup(path ...string) *model.NamespaceGroup {
	return s.byKey[model.PathKey(path)]
}

// Functions returns every function, group by group.
func (s *Set) Functions() []*model.Function {
	var out []*model.Function
	for _, g := range s.groups {
		out = append(out, g.Functions...)
	}
	return out
}

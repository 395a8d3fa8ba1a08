// Package graph indexes which files feed which generated interfaces.
package graph

import (
	"path/filepath"
	"sort"

	"github.com/phobologic/igen/internal/model"
)

// Index maps files to the generated interfaces built from them.
type Index struct {
	deps []model.Dependency
	// dependents maps an absolute file path to the generated paths it feeds.
	dependents map[string]map[string]struct{}
	// files maps an absolute file path to its manifest spelling.
	files     map[string]string
	generated map[string]struct{}
}

// BuildIndex creates dependency edges from manifest entries: the owning
// interface header, every root source and every included source point at
// the entry's generated path.
func BuildIndex(entries []model.ManifestEntry) *Index {
	idx := &Index{
		dependents: make(map[string]map[string]struct{}),
		files:      make(map[string]string),
		generated:  make(map[string]struct{}),
	}

	type edgeKey struct{ src, tgt string }
	seen := make(map[edgeKey]struct{})

	add := func(src, tgt string, kind model.DependencyKind) {
		if src == "" || tgt == "" {
			return
		}
		key := edgeKey{normalize(src), normalize(tgt)}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		idx.deps = append(idx.deps, model.Dependency{Source: src, Target: tgt, Kind: kind})
		if idx.dependents[key.src] == nil {
			idx.dependents[key.src] = make(map[string]struct{})
			idx.files[key.src] = src
		}
		idx.dependents[key.src][tgt] = struct{}{}
	}

	for i := range entries {
		e := &entries[i]
		if e.GenPath != "" {
			idx.generated[normalize(e.GenPath)] = struct{}{}
		}
		add(e.Path, e.GenPath, model.DependencyOwner)
		for _, s := range e.Sources {
			kind := model.DependencySource
			if s.Included {
				kind = model.DependencyIncluded
			}
			add(s.Path, e.GenPath, kind)
		}
	}

	// Sort for deterministic output
	sort.Slice(idx.deps, func(i, j int) bool {
		a, b := idx.deps[i], idx.deps[j]
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Kind != b.Kind {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		return a.Source < b.Source
	})

	return idx
}

func kindOrder(k model.DependencyKind) int {
	switch k {
	case model.DependencyOwner:
		return 0
	case model.DependencySource:
		return 1
	default:
		return 2
	}
}

// Dependencies returns every edge, grouped by generated path.
func (idx *Index) Dependencies() []model.Dependency {
	return idx.deps
}

// Affected returns the sorted generated paths that depend on path. Relative
// and absolute spellings of the same file match.
func (idx *Index) Affected(path string) []string {
	return sortedKeys(idx.dependents[normalize(path)])
}

// Tracked returns every file that feeds some generated interface, as
// spelled in the manifest, sorted.
func (idx *Index) Tracked() []string {
	files := make(map[string]struct{}, len(idx.files))
	for _, f := range idx.files {
		files[f] = struct{}{}
	}
	return sortedKeys(files)
}

// IsGenerated reports whether path is one of the generated interfaces.
func (idx *Index) IsGenerated(path string) bool {
	_, ok := idx.generated[normalize(path)]
	return ok
}

func normalize(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

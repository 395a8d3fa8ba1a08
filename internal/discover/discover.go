// Package discover finds source files under a directory tree.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// FileEntry represents a discovered file.
type FileEntry struct {
	Path string // Relative to the walk root
}

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	"CMakeFiles":   {},
	".cache":       {},
	"vendor":       {},
}

// Options narrows a walk.
type Options struct {
	// Ignore holds extra gitignore-style patterns.
	Ignore []string
}

// Files discovers files under root, sorted by path. Hidden entries, vendor
// directories, symlinks and gitignored files are skipped.
func Files(root string, opts Options) ([]FileEntry, error) {
	m := NewMatcher(root, opts.Ignore)

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if m.Ignored(rel) {
			return nil
		}

		results = append(results, FileEntry{Path: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// Dirs returns root and every directory below it that Files would descend
// into, sorted.
func Dirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			name := d.Name()
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Matcher decides whether a path under root is ignored.
type Matcher struct {
	gitFiles map[string]struct{}
	gi       *ignore.GitIgnore
	extra    *ignore.GitIgnore
}

// NewMatcher builds a Matcher for root. Inside a git work tree the tracked
// and untracked-but-not-ignored files are authoritative; elsewhere the
// root .gitignore is used. Extra patterns always apply.
func NewMatcher(root string, patterns []string) *Matcher {
	m := &Matcher{gitFiles: gitLsFiles(root)}
	if m.gitFiles == nil {
		m.gi = loadGitignore(root)
	}
	if len(patterns) > 0 {
		m.extra = ignore.CompileIgnoreLines(patterns...)
	}
	return m
}

// Ignored reports whether rel, relative to the matcher root, is excluded.
func (m *Matcher) Ignored(rel string) bool {
	if m == nil {
		return false
	}
	if m.extra != nil && m.extra.MatchesPath(rel) {
		return true
	}
	if m.gitFiles != nil {
		_, ok := m.gitFiles[filepath.ToSlash(rel)]
		return !ok
	}
	return m.gi != nil && m.gi.MatchesPath(rel)
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}

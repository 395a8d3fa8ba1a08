package discover

import (
	"os"
	"path/filepath"
	"testing"
)

func paths(entries []FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestDiscoverSorted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "iface.hpp", "#pragma once")
	writeFile(t, dir, "impl/detail.hpp", "#pragma once")
	writeFile(t, dir, "iface.cpp", "int x;")
	// Hidden file should be ignored
	writeFile(t, dir, ".hidden.hpp", "secret")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(entries), paths(entries))
	}

	// Should be sorted
	want := []string{"iface.cpp", "iface.hpp", filepath.Join("impl", "detail.hpp")}
	for i, w := range want {
		if entries[i].Path != w {
			t.Errorf("entry %d: got %q, want %q", i, entries[i].Path, w)
		}
	}
}

func TestDiscoverAllFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.hpp", "")
	writeFile(t, dir, "a.inl", "")
	writeFile(t, dir, "notes.txt", "")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %v", paths(entries))
	}
	if entries[1].Path != "a.inl" {
		t.Errorf("unclaimed file = %+v", entries[1])
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "main.hpp", "")
	writeFile(t, dir, "node_modules/pkg.hpp", "")
	writeFile(t, dir, "vendor/dep.hpp", "")
	writeFile(t, dir, ".hidden/secret.hpp", "")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %v", paths(entries))
	}
	if entries[0].Path != "main.hpp" {
		t.Errorf("expected main.hpp, got %q", entries[0].Path)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "generated/\n*.gen.hpp\n")
	writeFile(t, dir, "keep.hpp", "")
	writeFile(t, dir, "iface.gen.hpp", "")
	writeFile(t, dir, "generated/out.hpp", "")

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "keep.hpp" {
		t.Errorf("entries = %v, want [keep.hpp]", paths(entries))
	}
}

func TestDiscoverExtraIgnore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "keep.hpp", "")
	writeFile(t, dir, "skip_me.hpp", "")

	entries, err := Files(dir, Options{Ignore: []string{"skip_*"}})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "keep.hpp" {
		t.Errorf("entries = %v, want [keep.hpp]", paths(entries))
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.hpp", "")

	// Create symlink
	err := os.Symlink(filepath.Join(dir, "real.hpp"), filepath.Join(dir, "link.hpp"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, Options{})
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("expected 1 entry (no symlink), got %d", len(entries))
	}
	if entries[0].Path != "real.hpp" {
		t.Errorf("expected real.hpp, got %q", entries[0].Path)
	}
}

func TestMatcherNil(t *testing.T) {
	t.Parallel()

	var m *Matcher
	if m.Ignored("anything") {
		t.Error("nil matcher must not ignore")
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a/b/x.hpp", "")
	writeFile(t, dir, "a/.hidden/x.hpp", "")
	writeFile(t, dir, "CMakeFiles/x.cpp", "")
	writeFile(t, dir, "c/x.cpp", "")

	got, err := Dirs(dir)
	if err != nil {
		t.Fatalf("Dirs: %v", err)
	}
	want := []string{
		dir,
		filepath.Join(dir, "a"),
		filepath.Join(dir, "a", "b"),
		filepath.Join(dir, "c"),
	}
	if len(got) != len(want) {
		t.Fatalf("Dirs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dir %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

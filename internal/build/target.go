package build

import (
	"os"
	"path/filepath"
	"time"

	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/model"
)

// State is where a target ended up after a run.
type State int

const (
	StateUnchecked State = iota
	// StateClean targets were not checked: nothing changed since the last
	// check.
	StateClean
	// StateRewritten targets had their artifact written.
	StateRewritten
	// StateUnchanged targets were checked and rendered identically.
	StateUnchanged
	// StateFailed targets hit an error; other targets are unaffected.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateRewritten:
		return "rewritten"
	case StateUnchanged:
		return "unchanged"
	case StateFailed:
		return "failed"
	default:
		return "unchecked"
	}
}

// sourceRef is a manifest source with its modification time.
type sourceRef struct {
	model.Source
	ModTime time.Time
}

// Target is one generated interface and its inputs.
type Target struct {
	Path     string
	GenPath  string
	Slug     string
	DocGroup string
	Sources  []sourceRef
	// CheckTime is the last check time in Unix seconds; 0 if never.
	CheckTime int64
	// Hash is the xxhash of the artifact on disk, known once checked.
	Hash  uint64
	State State

	ownerTime  time.Time
	needsCheck bool
	// placeholder is set when the artifact did not exist and an empty one
	// was created.
	placeholder bool
	functions   int
}

// newTarget validates entry and stats its files. prev is the cached state.
func newTarget(entry model.ManifestEntry, prev RecordEntry) (*Target, error) {
	t := &Target{
		Path:      entry.Path,
		GenPath:   entry.GenPath,
		Slug:      entry.Slug,
		DocGroup:  entry.DocGroup,
		CheckTime: prev.CheckTime,
	}
	if entry.GenPath == "" {
		return t, errors.Mark(errors.Newf("%s: no generated path", entry.Path), errors.ErrManifest)
	}
	if len(entry.RootSources()) == 0 {
		return t, errors.Mark(errors.Newf("%s: no non-included sources", entry.GenPath), errors.ErrManifest)
	}

	info, err := os.Stat(entry.Path)
	if err != nil {
		return t, errors.Mark(errors.Wrapf(err, "interface %s", entry.Path), errors.ErrSourceMissing)
	}
	t.ownerTime = info.ModTime()

	for _, s := range entry.Sources {
		info, err := os.Stat(s.Path)
		if err != nil {
			return t, errors.Mark(errors.Wrapf(err, "source %s of %s", s.Path, entry.GenPath), errors.ErrSourceMissing)
		}
		t.Sources = append(t.Sources, sourceRef{Source: s, ModTime: info.ModTime()})
	}
	return t, nil
}

// stale reports whether any input was modified at or after the last check,
// at one-second granularity.
func (t *Target) stale() bool {
	if t.CheckTime <= t.ownerTime.Unix() {
		return true
	}
	for _, s := range t.Sources {
		if t.CheckTime <= s.ModTime.Unix() {
			return true
		}
	}
	return false
}

// ensurePlaceholder creates an empty artifact when none exists, so sources
// that include it can be parsed.
func (t *Target) ensurePlaceholder() error {
	if _, err := os.Stat(t.GenPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "stat %s", t.GenPath)
	}
	if err := os.MkdirAll(filepath.Dir(t.GenPath), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(t.GenPath))
	}
	if err := os.WriteFile(t.GenPath, nil, 0o644); err != nil {
		return errors.Wrapf(err, "creating placeholder %s", t.GenPath)
	}
	t.placeholder = true
	return nil
}

// paths returns every source path, included ones too.
func (t *Target) paths() []string {
	out := make([]string, len(t.Sources))
	for i, s := range t.Sources {
		out[i] = s.Path
	}
	return out
}

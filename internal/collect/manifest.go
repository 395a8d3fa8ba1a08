package collect

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/model"
)

// manifestFile is the on-disk manifest layout.
type manifestFile struct {
	Users []model.ManifestEntry `json:"users"`
}

// WriteManifest writes entries to path, creating its directory.
func WriteManifest(path string, entries []model.ManifestEntry) error {
	if entries == nil {
		entries = []model.ManifestEntry{}
	}
	data, err := json.MarshalIndent(manifestFile{Users: entries}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "writing manifest %s", path)
	}
	return nil
}

// ReadManifest reads the entries written by WriteManifest. A missing file
// keeps os.ErrNotExist in its chain; an undecodable one is marked
// ErrManifest.
func ReadManifest(path string) ([]model.ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decoding manifest %s", path), errors.ErrManifest)
	}
	return mf.Users, nil
}

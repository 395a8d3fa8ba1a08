package build

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/phobologic/igen/internal/errors"
)

// RecordEntry is the persisted state of one generated interface.
type RecordEntry struct {
	// CheckTime is when the artifact was last checked, in Unix seconds.
	CheckTime int64 `json:"check_time"`
}

// Record is the build cache, keyed by generated path.
type Record map[string]RecordEntry

// LoadRecord reads the build cache at path. A missing file yields an empty
// record. An unreadable one yields an empty record and an error marked
// ErrCacheCorruption, which callers should report and otherwise ignore.
func LoadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, nil
		}
		return Record{}, errors.Mark(errors.Wrapf(err, "reading build cache %s", path), errors.ErrCacheCorruption)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Mark(errors.Wrapf(err, "decoding build cache %s", path), errors.ErrCacheCorruption)
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, nil
}

// Save writes the record to path, creating its directory.
func (r Record) Save(path string) error {
	if r == nil {
		r = Record{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encoding build cache")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing build cache %s", path)
	}
	return nil
}

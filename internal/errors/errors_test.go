package errors

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkClassifies(t *testing.T) {
	t.Parallel()

	err := Mark(Wrapf(fs.ErrNotExist, "stat %s", "a.hpp"), ErrSourceMissing)

	assert.True(t, Is(err, ErrSourceMissing))
	assert.True(t, Is(err, fs.ErrNotExist), "wrapped cause must stay visible")
	assert.False(t, Is(err, ErrParse))
	assert.Contains(t, err.Error(), "stat a.hpp")
}

func TestSentinelsAreDistinct(t *testing.T) {
	t.Parallel()

	all := []error{ErrManifest, ErrSourceMissing, ErrParse, ErrMalformedDeclaration, ErrRender, ErrCacheCorruption}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b), "%v must not match %v", a, b)
		}
	}
}

package build

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/phobologic/igen/internal/errors"
)

// DocSlug maps an interface path to its doc link name:
// "lib/x/src/<basepath>/y/z.hpp" becomes "lib_x_y_z.dox".
func DocSlug(path, basepath string) string {
	path = filepath.ToSlash(path)
	inner := "/src/"
	if basepath != "" {
		inner += regexp.QuoteMeta(filepath.ToSlash(basepath)) + "/"
	}
	re := regexp.MustCompile(`^(.+)` + inner + `(.+)\.[^./]+$`)
	slug := re.ReplaceAllString(path, "${1}_${2}.dox")
	if slug == path {
		slug = strings.TrimSuffix(path, filepath.Ext(path)) + ".dox"
	}
	return strings.ReplaceAll(slug, "/", "_")
}

// linkDoc points <docDir>/<slug> at the artifact with a relative symlink,
// replacing any existing link.
func linkDoc(docDir, slug, genPath string) error {
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", docDir)
	}
	absDir, err := filepath.Abs(docDir)
	if err != nil {
		return errors.WithStack(err)
	}
	absGen, err := filepath.Abs(genPath)
	if err != nil {
		return errors.WithStack(err)
	}
	target, err := filepath.Rel(absDir, absGen)
	if err != nil {
		return errors.Wrapf(err, "relative path to %s", genPath)
	}

	link := filepath.Join(docDir, slug)
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "removing %s", link)
	}
	if err := os.Symlink(target, link); err != nil {
		return errors.Wrapf(err, "linking %s", link)
	}
	return nil
}

package collect

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/model"
)

// commentLead matches an optional comment opener before a doc command.
const commentLead = `^\s*(?:(?://[/!]?|/\*[*!]?|\*)\s*)?`

// scanState is the per-file state of the directive scan.
type scanState struct {
	group    *Group
	path     string
	entry    model.ManifestEntry
	included bool
	ingroups []string
}

// matcher handles one directive. apply returns stop to end the scan.
type matcher struct {
	name  string
	re    *regexp.Regexp
	apply func(c *Collector, st *scanState, m []string) (stop bool, err error)
}

// matchers are tried in order; the first match consumes the line.
var matchers = []matcher{
	{"defgroup", regexp.MustCompile(commentLead + `[@\\]defgroup\s+(\S+)\s+\S`), (*Collector).defgroup},
	{"ingroup", regexp.MustCompile(commentLead + `[@\\]ingroup\s+(\S+)`), (*Collector).ingroup},
	{"include", regexp.MustCompile(`^\s*#\s*include\s*([<"])([^>"]+)[>"]`), (*Collector).include},
	{"sources-included", regexp.MustCompile(`^\s*//\s*igen-following-sources-included\s*$`), (*Collector).sourcesIncluded},
	{"source", regexp.MustCompile(`^\s*//\s*igen-source:\s*(\S+)\s*$`), (*Collector).source},
	{"source-pattern", regexp.MustCompile(`^\s*//\s*igen-source-pattern:\s*(\S+)\s*$`), (*Collector).sourcePattern},
}

// scanFile reads the directives in the first LineLimit lines of path. It
// returns nil when the file does not include a generated interface.
func (c *Collector) scanFile(g *Group, path string) (*model.ManifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "opening %s", path), errors.ErrManifest)
	}
	defer f.Close()

	st := &scanState{
		group: g,
		path:  path,
		entry: model.ManifestEntry{
			Slug: strings.TrimSuffix(path, filepath.Ext(path)),
			Path: path,
		},
	}

	primary := st.entry.Slug + c.opts.PrimaryExtension
	if c.exists[primary] {
		st.entry.Sources = append(st.entry.Sources, model.Source{Path: primary})
	}

	r := bufio.NewReader(f)
	for n := 1; n <= c.opts.LineLimit; n++ {
		line, readErr := r.ReadString('\n')
		if line == "" && readErr != nil {
			break
		}
		stop, err := c.scanLine(st, strings.TrimRight(line, "\r\n"))
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, n)
		}
		if stop || readErr == io.EOF {
			break
		}
	}

	if st.entry.GenPath == "" {
		return nil, nil
	}
	if st.entry.DocGroup == "" && len(st.ingroups) > 0 {
		st.entry.DocGroup = st.ingroups[len(st.ingroups)-1]
	}
	if len(st.entry.RootSources()) == 0 {
		return nil, errors.Mark(errors.Newf("%s: no non-included sources for %s", path, st.entry.GenPath), errors.ErrManifest)
	}
	return &st.entry, nil
}

func (c *Collector) scanLine(st *scanState, line string) (bool, error) {
	for _, m := range matchers {
		groups := m.re.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		return m.apply(c, st, groups[1:])
	}
	return false, nil
}

func (c *Collector) defgroup(st *scanState, m []string) (bool, error) {
	if st.entry.DocGroup != "" {
		return false, errors.Mark(errors.Newf("second @defgroup %q after %q", m[0], st.entry.DocGroup), errors.ErrManifest)
	}
	st.entry.DocGroup = m[0]
	return false, nil
}

func (c *Collector) ingroup(st *scanState, m []string) (bool, error) {
	st.ingroups = append(st.ingroups, m[0])
	return false, nil
}

func (c *Collector) include(st *scanState, m []string) (bool, error) {
	delim, target := m[0], m[1]
	if !strings.HasSuffix(target, c.opts.GeneratedSuffix) {
		return false, nil
	}
	base := st.group.Src
	if delim == `"` {
		base = filepath.Dir(st.path)
	}
	st.entry.GenPath = filepath.Join(base, target)
	// The scan ends here, so a later generated include is never seen.
	return true, nil
}

func (c *Collector) sourcesIncluded(st *scanState, _ []string) (bool, error) {
	st.included = true
	return false, nil
}

func (c *Collector) source(st *scanState, m []string) (bool, error) {
	st.entry.Sources = append(st.entry.Sources, model.Source{
		Path:     filepath.Join(st.group.SrcInner, m[0]),
		Included: st.included,
	})
	return false, nil
}

func (c *Collector) sourcePattern(st *scanState, m []string) (bool, error) {
	re, err := regexp.Compile("^" + regexp.QuoteMeta(st.group.SrcInner) + "/" + m[0] + "$")
	if err != nil {
		return false, errors.Mark(errors.Wrapf(err, "bad igen-source-pattern %q", m[0]), errors.ErrManifest)
	}
	for _, path := range c.paths {
		if re.MatchString(path) {
			st.entry.Sources = append(st.entry.Sources, model.Source{Path: path, Included: st.included})
		}
	}
	return false, nil
}

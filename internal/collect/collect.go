// Package collect scans source trees for igen directives and builds the
// manifest of generated interfaces.
package collect

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/igen/internal/discover"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/logger"
	"github.com/phobologic/igen/internal/model"
)

// Defaults for Options fields left zero.
const (
	DefaultPrimaryExtension = ".cpp"
	DefaultGeneratedSuffix  = ".gen.hpp"
	DefaultLineLimit        = 150
)

// DefaultExtensions is the candidate allow-list used when none is set.
var DefaultExtensions = []string{".hpp"}

// GroupRoot is a directory whose subdirectories are source groups.
type GroupRoot struct {
	Path        string `mapstructure:"path" yaml:"path"`
	InnerPrefix string `mapstructure:"inner_prefix" yaml:"inner_prefix"`
}

// Options configures a Collector.
type Options struct {
	Roots            []GroupRoot
	SourceBasepath   string
	Extensions       []string
	PrimaryExtension string
	GeneratedSuffix  string
	LineLimit        int
	Jobs             int
	Ignore           []string
}

func (o *Options) setDefaults() {
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions
	}
	if o.PrimaryExtension == "" {
		o.PrimaryExtension = DefaultPrimaryExtension
	}
	if o.GeneratedSuffix == "" {
		o.GeneratedSuffix = DefaultGeneratedSuffix
	}
	if o.LineLimit <= 0 {
		o.LineLimit = DefaultLineLimit
	}
	if o.Jobs <= 0 {
		o.Jobs = runtime.GOMAXPROCS(0)
	}
}

// Group is one source group: a named subdirectory of a group root.
type Group struct {
	Name string
	// Src is <root>/<name>/src.
	Src string
	// SrcInner is <Src>/<basepath>/<prefix><name>, the base of igen-source
	// paths.
	SrcInner string

	candidates []string
}

// Collector builds manifest entries. A Collector is single-use.
type Collector struct {
	opts   Options
	groups []*Group
	paths  []string
	exists map[string]bool

	mu   sync.Mutex
	errs []error
}

// New returns a Collector for opts.
func New(opts Options) *Collector {
	opts.setDefaults()
	return &Collector{opts: opts, exists: map[string]bool{}}
}

// Groups returns the groups found by the last Collect.
func (c *Collector) Groups() []*Group {
	return c.groups
}

// Errors returns the per-file errors of the last Collect. Each one caused
// its file to be skipped.
func (c *Collector) Errors() []error {
	return c.errs
}

// Collect scans every group and returns one entry per file that includes a
// generated interface, ordered by group and path.
func (c *Collector) Collect() ([]model.ManifestEntry, error) {
	if err := c.index(); err != nil {
		return nil, err
	}

	var entries []model.ManifestEntry
	for _, g := range c.groups {
		results := make([]*model.ManifestEntry, len(g.candidates))

		var eg errgroup.Group
		eg.SetLimit(c.opts.Jobs)
		for i, path := range g.candidates {
			eg.Go(func() error {
				entry, err := c.scanFile(g, path)
				if err != nil {
					c.addError(err)
					logger.Warnw("skipping file", "path", path, "error", err)
					return nil
				}
				results[i] = entry
				return nil
			})
		}
		_ = eg.Wait()

		for _, e := range results {
			if e != nil {
				entries = append(entries, *e)
			}
		}
	}
	return entries, nil
}

func (c *Collector) addError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// index lists the groups and every file below them.
func (c *Collector) index() error {
	allowed := make(map[string]bool, len(c.opts.Extensions))
	for _, e := range c.opts.Extensions {
		allowed[e] = true
	}

	for _, root := range c.opts.Roots {
		dirents, err := os.ReadDir(root.Path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warnw("group root does not exist", "path", root.Path)
				continue
			}
			return errors.Wrapf(err, "reading group root %s", root.Path)
		}
		for _, d := range dirents {
			if !d.IsDir() {
				continue
			}
			src := filepath.Join(root.Path, d.Name(), "src")
			c.groups = append(c.groups, &Group{
				Name:     d.Name(),
				Src:      src,
				SrcInner: filepath.Join(src, c.opts.SourceBasepath, root.InnerPrefix+d.Name()),
			})
		}
	}

	for _, g := range c.groups {
		files, err := discover.Files(g.Src, discover.Options{Ignore: c.opts.Ignore})
		if err != nil {
			return errors.Wrapf(err, "listing %s", g.Src)
		}
		for _, f := range files {
			path := filepath.Join(g.Src, f.Path)
			c.paths = append(c.paths, path)
			c.exists[path] = true
			if allowed[filepath.Ext(path)] && !strings.HasSuffix(path, c.opts.GeneratedSuffix) {
				g.candidates = append(g.candidates, path)
			}
		}
		sort.Strings(g.candidates)
	}
	sort.Strings(c.paths)
	return nil
}

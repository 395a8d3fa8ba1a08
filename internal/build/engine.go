// Package build decides which generated interfaces are stale, regenerates
// them and maintains the build cache.
package build

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/phobologic/igen/internal/decl"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/extract"
	"github.com/phobologic/igen/internal/logger"
	"github.com/phobologic/igen/internal/model"
	"github.com/phobologic/igen/internal/nsgroup"
	"github.com/phobologic/igen/internal/parse"
	"github.com/phobologic/igen/internal/render"
)

// Parser produces a declaration tree for one source file.
type Parser interface {
	Parse(path string) (decl.Node, error)
}

// DefaultPassAnnotations mark declarations exported without a doc comment.
var DefaultPassAnnotations = []string{model.AnnotationInterface, model.AnnotationPrivate}

// Options configures an Engine.
type Options struct {
	// Force rewrites every checked artifact and checks every target.
	Force bool
	// Check checks every target regardless of modification times.
	Check bool
	// Debug logs the signatures found for each checked target.
	Debug bool

	ParserFlags     []string
	PassAnnotations []string
	// DocDir receives the doc links; empty disables them.
	DocDir         string
	SourceBasepath string
	Jobs           int

	// NewParser builds one parser per worker. Defaults to parse.New.
	NewParser func(flags []string) Parser
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result is the outcome for one manifest entry.
type Result struct {
	Path      string
	GenPath   string
	State     State
	Sources   int
	Functions int
	Err       error
}

// Report lists results in manifest order.
type Report struct {
	Results []Result
}

// Counts tallies results by state.
func (r *Report) Counts() map[State]int {
	out := map[State]int{}
	for _, res := range r.Results {
		out[res.State]++
	}
	return out
}

// Failed returns the failed results.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.State == StateFailed {
			out = append(out, res)
		}
	}
	return out
}

// Engine runs incremental builds.
type Engine struct {
	opts     Options
	renderer render.Renderer
}

// NewEngine returns an Engine rendering with renderer.
func NewEngine(opts Options, renderer render.Renderer) *Engine {
	if opts.PassAnnotations == nil {
		opts.PassAnnotations = DefaultPassAnnotations
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	if opts.NewParser == nil {
		opts.NewParser = func(flags []string) Parser { return parse.New(flags) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts, renderer: renderer}
}

// Run brings every entry's artifact up to date and returns the report and
// the new build cache. record is not modified.
func (e *Engine) Run(entries []model.ManifestEntry, record Record) (*Report, Record) {
	targets := make([]*Target, len(entries))
	errs := make([]error, len(entries))
	seen := map[string]bool{}

	for i, entry := range entries {
		t, err := newTarget(entry, record[entry.GenPath])
		targets[i] = t
		if err == nil && seen[entry.GenPath] {
			err = errors.Mark(errors.Newf("%s: generated path already claimed by another interface", entry.GenPath), errors.ErrManifest)
		}
		if err != nil {
			errs[i] = err
			continue
		}
		seen[entry.GenPath] = true
		t.needsCheck = e.opts.Force || e.opts.Check || t.stale()
	}

	// Every artifact exists before any source that includes it is parsed.
	for i, t := range targets {
		if errs[i] != nil {
			continue
		}
		if err := t.ensurePlaceholder(); err != nil {
			errs[i] = err
			continue
		}
		// A missing artifact is rebuilt even when the cache says it is fresh.
		t.needsCheck = t.needsCheck || t.placeholder
	}

	var work []int
	for i, t := range targets {
		if errs[i] == nil && t.needsCheck {
			work = append(work, i)
		}
	}
	for i, err := range e.checkConcurrent(targets, work) {
		if err != nil {
			errs[work[i]] = err
		}
	}

	report := &Report{Results: make([]Result, len(entries))}
	next := Record{}
	for i, t := range targets {
		res := Result{
			Path:      t.Path,
			GenPath:   t.GenPath,
			Sources:   len(entries[i].Sources),
			Functions: t.functions,
		}
		switch {
		case errs[i] != nil:
			t.State = StateFailed
			res.Err = errs[i]
			logger.Errorw("failed", "gen", t.GenPath, "error", errs[i])
		case !t.needsCheck:
			t.State = StateClean
		}
		res.State = t.State
		report.Results[i] = res

		if t.State != StateFailed {
			next[t.GenPath] = RecordEntry{CheckTime: t.CheckTime}
		}
	}
	return report, next
}

// checkConcurrent checks the targets at the given indexes on a worker
// pool, one parser per worker. Errors are returned in work order.
func (e *Engine) checkConcurrent(targets []*Target, work []int) []error {
	type result struct {
		index int
		err   error
	}

	numWorkers := e.opts.Jobs
	if numWorkers > len(work) {
		numWorkers = len(work)
	}

	queue := make(chan int, len(work))
	results := make(chan result, len(work))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Each goroutine gets its own parser
			parser := e.opts.NewParser(e.opts.ParserFlags)
			for idx := range queue {
				results <- result{index: idx, err: e.check(parser, targets[work[idx]])}
			}
		}()
	}

	for i := range work {
		queue <- i
	}
	close(queue)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results in original order
	errs := make([]error, len(work))
	for r := range results {
		errs[r.index] = r.err
	}
	return errs
}

// check re-extracts and renders t, writing the artifact when its content
// changed.
func (e *Engine) check(parser Parser, t *Target) error {
	checkTime := e.opts.Now().Unix()

	logger.Infow("check", "gen", t.GenPath)
	for _, s := range t.Sources {
		logger.Infow("from", "path", s.Path, "included", s.Included)
	}

	fns, err := e.extract(parser, t)
	if err != nil {
		return err
	}
	t.functions = len(fns)
	if e.opts.Debug {
		for _, f := range fns {
			logger.Debugw("function", "gen", t.GenPath, "signature", f.SignatureQualified(true))
		}
	}

	set := nsgroup.Group(fns)
	data, err := e.renderer.Render(render.Data{
		Target: render.TargetInfo{
			Path:     t.Path,
			GenPath:  t.GenPath,
			Slug:     t.Slug,
			DocGroup: t.DocGroup,
			Sources:  t.paths(),
		},
		Groups:    set.Groups(),
		Functions: set.Functions(),
	})
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "rendering %s", t.GenPath), errors.ErrRender)
	}

	oldHash, ok := fileHash(t.GenPath)
	newHash := xxhash.Sum64(data)
	if e.opts.Force || t.placeholder || !ok || oldHash != newHash {
		logger.Infow("writing", "gen", t.GenPath)
		if err := os.WriteFile(t.GenPath, data, 0o644); err != nil {
			return errors.Wrapf(err, "writing %s", t.GenPath)
		}
		if e.opts.DocDir != "" {
			if err := linkDoc(e.opts.DocDir, DocSlug(t.Path, e.opts.SourceBasepath), t.GenPath); err != nil {
				logger.Warnw("doc link failed", "gen", t.GenPath, "error", err)
			}
		}
		t.State = StateRewritten
		t.Hash = newHash
	} else {
		t.Hash = oldHash
		t.State = StateUnchanged
	}
	t.CheckTime = checkTime
	return nil
}

// extract parses every non-included source with a fresh session and
// returns the accepted functions, de-duplicated by location.
func (e *Engine) extract(parser Parser, t *Target) ([]*model.Function, error) {
	filter := extract.Filter{
		Paths:       extract.PathSet(t.paths()...),
		Policy:      extract.PolicyDocumented,
		Annotations: e.opts.PassAnnotations,
	}

	seen := map[model.Location]bool{}
	var fns []*model.Function
	for _, s := range t.Sources {
		if s.Included {
			continue
		}
		root, err := parser.Parse(s.Path)
		if err != nil {
			if !errors.Is(err, errors.ErrParse) {
				err = errors.Mark(err, errors.ErrParse)
			}
			return nil, errors.Wrapf(err, "target %s", t.GenPath)
		}

		session := decl.NewSession()
		found, warnings := extract.New(session, filter).Extract(root)
		for _, w := range warnings {
			logger.Warnw("skipping declaration", "gen", t.GenPath, "error", w)
		}
		logger.Debugw("extracted", "gen", t.GenPath, "source", s.Path,
			"functions", len(found), "nodes", session.Traversals())
		for _, f := range found {
			if seen[f.Location] {
				continue
			}
			seen[f.Location] = true
			fns = append(fns, f)
		}
	}
	return fns, nil
}

// fileHash hashes the file at path. ok is false when it cannot be read.
func fileHash(path string) (sum uint64, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}

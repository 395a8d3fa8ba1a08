package build

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/igen/internal/decl"
	"github.com/phobologic/igen/internal/decl/decltest"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/model"
	"github.com/phobologic/igen/internal/render"
)

// fakeParser serves declaration trees built per call and records which
// paths were parsed.
type fakeParser struct {
	mu     sync.Mutex
	trees  map[string]func(path string) decl.Node
	fail   map[string]bool
	parsed []string
}

func newFakeParser() *fakeParser {
	return &fakeParser{
		trees: map[string]func(string) decl.Node{},
		fail:  map[string]bool{},
	}
}

func (p *fakeParser) Parse(path string) (decl.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parsed = append(p.parsed, path)
	if p.fail[path] {
		return nil, errors.Newf("%s: cannot parse", path)
	}
	if build, ok := p.trees[path]; ok {
		return build(path), nil
	}
	return decltest.NewTree(path), nil
}

func (p *fakeParser) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.parsed...)
}

// documented declares ns::name in path with a doc comment.
func documented(names ...string) func(string) decl.Node {
	return func(path string) decl.Node {
		tree := decltest.NewTree(path)
		ns := tree.Namespace("ns")
		for i, name := range names {
			ns.Function(name, "void").WithComment("/// " + name).At(path, i+1)
		}
		return tree
	}
}

type harness struct {
	root   string
	parser *fakeParser
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		root:   t.TempDir(),
		parser: newFakeParser(),
		// Ahead of every file mtime so checked targets are not stale again.
		now: time.Now().Add(time.Hour),
	}
}

func (h *harness) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// entry creates <name>.hpp and <name>.cpp and returns their manifest entry.
func (h *harness) entry(t *testing.T, name string) model.ManifestEntry {
	t.Helper()
	hpp := h.write(t, name+".hpp", "#pragma once\n")
	cpp := h.write(t, name+".cpp", "#include \""+name+".gen.hpp\"\n")
	return model.ManifestEntry{
		Slug:    name,
		Path:    hpp,
		GenPath: filepath.Join(h.root, name+".gen.hpp"),
		Sources: []model.Source{{Path: cpp}},
	}
}

func (h *harness) engine(t *testing.T, opts Options) *Engine {
	t.Helper()
	tmpl, err := render.Parse("test", "{{range .Functions}}{{qualified . true}};\n{{end}}")
	require.NoError(t, err)
	return h.engineWith(opts, tmpl)
}

func (h *harness) engineWith(opts Options, r render.Renderer) *Engine {
	opts.NewParser = func([]string) Parser { return h.parser }
	opts.Now = func() time.Time { return h.now }
	if opts.Jobs == 0 {
		opts.Jobs = 2
	}
	return NewEngine(opts, r)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRunWritesArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	h.parser.trees[e.Sources[0].Path] = documented("f", "g")

	report, rec := h.engine(t, Options{}).Run([]model.ManifestEntry{e}, Record{})

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, StateRewritten, res.State)
	assert.Equal(t, 2, res.Functions)
	assert.Equal(t, 1, res.Sources)
	assert.Equal(t, "void ns::f();\nvoid ns::g();\n", readFile(t, e.GenPath))
	assert.Equal(t, Record{e.GenPath: {CheckTime: h.now.Unix()}}, rec)
}

func TestRunCleanSecondPass(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	h.parser.trees[e.Sources[0].Path] = documented("f")
	eng := h.engine(t, Options{})

	_, rec := eng.Run([]model.ManifestEntry{e}, Record{})
	before := len(h.parser.calls())

	report, rec2 := eng.Run([]model.ManifestEntry{e}, rec)
	assert.Equal(t, StateClean, report.Results[0].State)
	assert.Equal(t, before, len(h.parser.calls()), "clean targets are not parsed")
	assert.Equal(t, rec, rec2)
}

func TestRunRestoresDeletedArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	h.parser.trees[e.Sources[0].Path] = documented("f")
	eng := h.engine(t, Options{})

	_, rec := eng.Run([]model.ManifestEntry{e}, Record{})
	want := readFile(t, e.GenPath)
	require.NoError(t, os.Remove(e.GenPath))

	report, _ := eng.Run([]model.ManifestEntry{e}, rec)
	require.NoError(t, report.Results[0].Err)
	assert.Equal(t, StateRewritten, report.Results[0].State)
	assert.Equal(t, want, readFile(t, e.GenPath))
}

func TestRunCheckUnchangedKeepsMtime(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	h.parser.trees[e.Sources[0].Path] = documented("f")

	_, rec := h.engine(t, Options{}).Run([]model.ManifestEntry{e}, Record{})

	old := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(e.GenPath, old, old))

	h.now = h.now.Add(time.Minute)
	report, rec2 := h.engine(t, Options{Check: true}).Run([]model.ManifestEntry{e}, rec)

	assert.Equal(t, StateUnchanged, report.Results[0].State)
	info, err := os.Stat(e.GenPath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "unchanged artifact must not be touched")
	assert.Equal(t, h.now.Unix(), rec2[e.GenPath].CheckTime)
}

func TestRunStaleSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	h.parser.trees[e.Sources[0].Path] = documented("f")
	eng := h.engine(t, Options{})

	_, rec := eng.Run([]model.ManifestEntry{e}, Record{})

	// A modification in the same second as the check still counts.
	touched := time.Unix(rec[e.GenPath].CheckTime, 0)
	require.NoError(t, os.Chtimes(e.Sources[0].Path, touched, touched))
	h.parser.trees[e.Sources[0].Path] = documented("f", "g")

	report, _ := eng.Run([]model.ManifestEntry{e}, rec)
	assert.Equal(t, StateRewritten, report.Results[0].State)
	assert.Equal(t, "void ns::f();\nvoid ns::g();\n", readFile(t, e.GenPath))
}

func TestRunForceRewrites(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	h.parser.trees[e.Sources[0].Path] = documented("f")

	_, rec := h.engine(t, Options{}).Run([]model.ManifestEntry{e}, Record{})
	report, _ := h.engine(t, Options{Force: true}).Run([]model.ManifestEntry{e}, rec)
	assert.Equal(t, StateRewritten, report.Results[0].State)
}

func TestRunCreatesPlaceholders(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	e.GenPath = filepath.Join(h.root, "gen", "nested", "a.gen.hpp")

	var sawPlaceholder bool
	h.parser.trees[e.Sources[0].Path] = func(path string) decl.Node {
		_, err := os.Stat(e.GenPath)
		sawPlaceholder = err == nil
		return decltest.NewTree(path)
	}

	report, _ := h.engine(t, Options{Jobs: 1}).Run([]model.ManifestEntry{e}, Record{})
	assert.True(t, sawPlaceholder, "artifact must exist before sources are parsed")
	assert.Equal(t, StateRewritten, report.Results[0].State)
	assert.Equal(t, "", readFile(t, e.GenPath))
}

func TestRunSkipsIncludedSources(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	inc := h.write(t, "detail.cpp", "")
	e.Sources = append(e.Sources, model.Source{Path: inc, Included: true})

	// detail.cpp declarations reach the artifact through the root source.
	h.parser.trees[e.Sources[0].Path] = func(path string) decl.Node {
		tree := decltest.NewTree(path)
		tree.Function("root", "void").WithComment("/// r").At(path, 1)
		tree.Function("detail", "void").WithComment("/// d").At(inc, 1)
		tree.Function("elsewhere", "void").WithComment("/// e").At("/other.cpp", 1)
		return tree
	}

	report, _ := h.engine(t, Options{}).Run([]model.ManifestEntry{e}, Record{})
	require.NoError(t, report.Results[0].Err)
	assert.NotContains(t, h.parser.calls(), inc)
	assert.Equal(t, "void root();\nvoid detail();\n", readFile(t, e.GenPath))
}

func TestRunDeduplicatesAcrossSources(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	second := h.write(t, "a_more.cpp", "")
	e.Sources = append(e.Sources, model.Source{Path: second})

	shared := h.write(t, "shared.hpp", "")
	e.Sources = append(e.Sources, model.Source{Path: shared, Included: true})
	both := func(path string) decl.Node {
		tree := decltest.NewTree(path)
		tree.Function("s", "void").WithComment("/// s").At(shared, 4)
		return tree
	}
	h.parser.trees[e.Sources[0].Path] = both
	h.parser.trees[second] = both

	report, _ := h.engine(t, Options{}).Run([]model.ManifestEntry{e}, Record{})
	assert.Equal(t, 1, report.Results[0].Functions)
	assert.Equal(t, "void s();\n", readFile(t, e.GenPath))
}

func TestRunFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	good := h.entry(t, "good")
	h.parser.trees[good.Sources[0].Path] = documented("f")

	missing := h.entry(t, "missing")
	missing.Sources = []model.Source{{Path: filepath.Join(h.root, "gone.cpp")}}

	broken := h.entry(t, "broken")
	h.parser.fail[broken.Sources[0].Path] = true

	dup := h.entry(t, "dup")
	dup.GenPath = good.GenPath

	noRoot := h.entry(t, "noroot")
	noRoot.Sources[0].Included = true

	entries := []model.ManifestEntry{good, missing, broken, dup, noRoot}
	report, rec := h.engine(t, Options{}).Run(entries, Record{})

	require.Len(t, report.Results, len(entries))
	assert.Equal(t, StateRewritten, report.Results[0].State)

	tests := []struct {
		idx  int
		mark error
	}{
		{1, errors.ErrSourceMissing},
		{2, errors.ErrParse},
		{3, errors.ErrManifest},
		{4, errors.ErrManifest},
	}
	for _, tt := range tests {
		res := report.Results[tt.idx]
		assert.Equal(t, StateFailed, res.State, entries[tt.idx].Slug)
		assert.True(t, errors.Is(res.Err, tt.mark), "%s: got %v", entries[tt.idx].Slug, res.Err)
	}

	assert.Len(t, report.Failed(), 4)
	assert.Equal(t, map[State]int{StateRewritten: 1, StateFailed: 4}, report.Counts())
	assert.Equal(t, Record{good.GenPath: {CheckTime: h.now.Unix()}}, rec)
}

func TestRunFailedTargetDropsRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	h.parser.fail[e.Sources[0].Path] = true

	prev := Record{e.GenPath: {CheckTime: 1}}
	report, rec := h.engine(t, Options{}).Run([]model.ManifestEntry{e}, prev)
	assert.Equal(t, StateFailed, report.Results[0].State)
	assert.Empty(t, rec)
	assert.Equal(t, int64(1), prev[e.GenPath].CheckTime, "input record is not modified")
}

func TestRunRenderFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	tmpl, err := render.Parse("bad", "{{.Nope}}")
	require.NoError(t, err)

	report, _ := h.engineWith(Options{}, tmpl).Run([]model.ManifestEntry{e}, Record{})
	res := report.Results[0]
	assert.Equal(t, StateFailed, res.State)
	assert.True(t, errors.Is(res.Err, errors.ErrRender), "got %v", res.Err)
}

func TestRunLinksDocs(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	e := h.entry(t, "a")
	docDir := filepath.Join(h.root, "doc", "gen")

	report, _ := h.engine(t, Options{DocDir: docDir}).Run([]model.ManifestEntry{e}, Record{})
	require.NoError(t, report.Results[0].Err)

	link := filepath.Join(docDir, DocSlug(e.Path, ""))
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.False(t, filepath.IsAbs(target))
	assert.Equal(t, e.GenPath, filepath.Join(docDir, target))

	// A second rewrite replaces the link.
	report, _ = h.engine(t, Options{DocDir: docDir, Force: true}).Run([]model.ManifestEntry{e}, Record{})
	require.NoError(t, report.Results[0].Err)
	_, err = os.Readlink(link)
	assert.NoError(t, err)
}

func TestDocSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path, basepath, want string
	}{
		{"lib/phys/src/phys/body.hpp", "", "lib_phys_phys_body.dox"},
		{"lib/phys/src/proj/phys/body.hpp", "proj", "lib_phys_phys_body.dox"},
		{"lib/phys/src/other/body.hpp", "proj", "lib_phys_src_other_body.dox"},
		{"include/body.hpp", "", "include_body.dox"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DocSlug(tt.path, tt.basepath), tt.path)
	}
}

func TestStale(t *testing.T) {
	t.Parallel()

	at := time.Unix(1000, 500)
	tgt := &Target{
		ownerTime: time.Unix(900, 0),
		Sources:   []sourceRef{{ModTime: at}},
	}

	tgt.CheckTime = 0
	assert.True(t, tgt.stale(), "never checked")
	tgt.CheckTime = 1000
	assert.True(t, tgt.stale(), "same second")
	tgt.CheckTime = 1001
	assert.False(t, tgt.stale())
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache", "record.json")
	rec, err := LoadRecord(path)
	require.NoError(t, err)
	assert.Empty(t, rec)

	rec["a.gen.hpp"] = RecordEntry{CheckTime: 42}
	require.NoError(t, rec.Save(path))
	assert.JSONEq(t, `{"a.gen.hpp":{"check_time":42}}`, readFile(t, path))

	got, err := LoadRecord(path)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRecordCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := map[string]string{
		"garbage": "{not json",
		"null":    "null",
	}
	for name, content := range tests {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		rec, err := LoadRecord(path)
		assert.NotNil(t, rec, name)
		assert.Empty(t, rec, name)
		if name == "null" {
			assert.NoError(t, err)
			continue
		}
		assert.True(t, errors.Is(err, errors.ErrCacheCorruption), "got %v", err)
	}
}

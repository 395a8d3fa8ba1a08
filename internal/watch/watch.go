// Package watch reports batches of changed source files.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/igen/internal/discover"
	"github.com/phobologic/igen/internal/errors"
	"github.com/phobologic/igen/internal/logger"
)

// DefaultDebounce is how long the watcher waits for events to settle.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Root anchors the ignore rules.
	Root string
	// Paths are files known to feed generated interfaces. Their directories
	// are watched.
	Paths []string
	// Dirs are trees watched recursively for new candidate files.
	Dirs []string
	// Extensions mark untracked files worth reporting.
	Extensions []string
	// Ignore holds extra gitignore-style patterns.
	Ignore []string
	// Generated reports paths that never trigger a change, such as the
	// interfaces a rebuild writes. It is called on the Run goroutine.
	Generated func(path string) bool
	Debounce  time.Duration
}

// Watcher turns fsnotify events into debounced change batches.
type Watcher struct {
	opts    Options
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	dirs    map[string]struct{}
	tracked map[string]struct{}
	exts    map[string]struct{}
}

// New starts watching opts.Paths and opts.Dirs.
func New(opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Generated == nil {
		opts.Generated = func(string) bool { return false }
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}

	w := &Watcher{
		opts:    opts,
		watcher: fw,
		dirs:    make(map[string]struct{}),
		tracked: make(map[string]struct{}),
		exts:    make(map[string]struct{}, len(opts.Extensions)),
	}
	for _, e := range opts.Extensions {
		w.exts[e] = struct{}{}
	}

	for _, d := range opts.Dirs {
		dirs, err := discover.Dirs(d)
		if err != nil {
			logger.Warnw("cannot walk watch root", "dir", d, "error", err)
			continue
		}
		for _, sub := range dirs {
			w.addDir(sub)
		}
	}
	w.Track(opts.Paths...)
	return w, nil
}

// Track adds files to the tracked set and watches their directories.
func (w *Watcher) Track(paths ...string) {
	for _, p := range paths {
		p = abs(p)
		w.mu.Lock()
		w.tracked[p] = struct{}{}
		w.mu.Unlock()
		w.addDir(filepath.Dir(p))
	}
}

func (w *Watcher) addDir(dir string) {
	dir = abs(dir)
	w.mu.Lock()
	_, ok := w.dirs[dir]
	if !ok {
		w.dirs[dir] = struct{}{}
	}
	w.mu.Unlock()
	if ok {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		logger.Warnw("cannot watch directory", "dir", dir, "error", err)
		w.mu.Lock()
		delete(w.dirs, dir)
		w.mu.Unlock()
		return
	}
	logger.Debugw("watching", "dir", dir)
}

// Run delivers change batches to onChange until ctx is done. onChange runs
// on the Run goroutine; events arriving meanwhile join the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func([]string)) error {
	defer w.watcher.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := abs(event.Name)
			if event.Op&fsnotify.Create != 0 && w.underDirs(name) && !strings.HasPrefix(filepath.Base(name), ".") {
				if dirs, err := discover.Dirs(name); err == nil {
					for _, d := range dirs {
						w.addDir(d)
					}
				}
			}
			if !w.interesting(name) {
				continue
			}
			logger.Debugw("change", "path", name, "op", event.Op.String())
			pending[name] = struct{}{}
			timer.Reset(w.opts.Debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("watcher error", "error", err)

		case <-timer.C:
			changed := w.filterIgnored(pending)
			pending = make(map[string]struct{})
			if len(changed) > 0 {
				onChange(changed)
			}
		}
	}
}

// interesting is the cheap first pass: tracked files and candidate
// extensions, never generated paths.
func (w *Watcher) interesting(path string) bool {
	if w.opts.Generated(path) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.tracked[path]; ok {
		return true
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	_, ok := w.exts[filepath.Ext(path)]
	return ok
}

// filterIgnored drops untracked paths the ignore rules exclude. The
// matcher is rebuilt per batch so new files are judged against the current
// work tree.
func (w *Watcher) filterIgnored(pending map[string]struct{}) []string {
	m := discover.NewMatcher(w.opts.Root, w.opts.Ignore)
	root := abs(w.opts.Root)

	var out []string
	for p := range pending {
		w.mu.Lock()
		_, tracked := w.tracked[p]
		w.mu.Unlock()
		if !tracked {
			rel, err := filepath.Rel(root, p)
			if err == nil && !strings.HasPrefix(rel, "..") && m.Ignored(rel) {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) underDirs(path string) bool {
	for _, d := range w.opts.Dirs {
		d = abs(d)
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func abs(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return filepath.Clean(p)
}

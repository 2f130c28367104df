// Package watcher turns file system activity in a set of directories into
// debounced change notifications.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultRescan is how often directories that could not be watched are
// retried.
const DefaultRescan = 5 * time.Second

// relevantOps are the event kinds that can change what a reader sees.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove

// Config describes what to watch.
type Config struct {
	// Dirs returns the directories to watch. It is called on start and on
	// every rescan, so directories that appear later are picked up.
	Dirs func() []string
	// Filter, when set, drops events for paths it rejects.
	Filter func(path string) bool
	// Debounce is the quiet window before onChange runs.
	Debounce time.Duration
	// Rescan is the retry interval for missing directories.
	Rescan time.Duration
}

// Watcher watches directories non-recursively and calls onChange with the
// paths that changed once activity settles.
type Watcher struct {
	cfg       Config
	onChange  func(changed []string)
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	running bool
	watched map[string]bool
	pending map[string]struct{}
}

// New creates a Watcher. Call Start to begin watching.
func New(cfg Config, onChange func(changed []string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Rescan <= 0 {
		cfg.Rescan = DefaultRescan
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		cfg:      cfg,
		onChange: onChange,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		watched:  make(map[string]bool),
		pending:  make(map[string]struct{}),
	}
	w.debouncer = NewDebouncer(cfg.Debounce, w.flush)
	return w, nil
}

// Start adds the initial watches and begins the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.sync(false)

	go w.watchLoop()
	go w.rescanLoop()
	return nil
}

// Stop stops the watcher and cancels any pending notification.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	w.debouncer.Stop()
	return w.watcher.Close()
}

// Watched returns the directories currently under watch, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirs := make([]string, 0, len(w.watched))
	for d := range w.watched {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// sync adds a watch for every configured directory not yet watched. A
// directory that shows up after start may already hold files, so when
// notifyNew is set its arrival counts as a change.
func (w *Watcher) sync(notifyNew bool) {
	if w.cfg.Dirs == nil {
		return
	}
	for _, dir := range w.cfg.Dirs() {
		dir = filepath.Clean(dir)

		w.mu.Lock()
		known := w.watched[dir]
		w.mu.Unlock()
		if known {
			continue
		}

		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to add watch")
			continue
		}

		w.mu.Lock()
		w.watched[dir] = true
		w.mu.Unlock()
		log.Debug().Str("path", dir).Msg("Watching directory")

		if notifyNew {
			w.record(dir)
		}
	}
}

func (w *Watcher) rescanLoop() {
	ticker := time.NewTicker(w.cfg.Rescan)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.sync(true)
		}
	}
}

// watchLoop is the main event loop.
func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&relevantOps == 0 {
		return
	}
	path := filepath.Clean(event.Name)

	// fsnotify drops the watch of a removed directory; the rescan loop
	// re-adds it if it comes back.
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.mu.Lock()
		wasWatched := w.watched[path]
		delete(w.watched, path)
		w.mu.Unlock()
		if wasWatched {
			log.Info().Str("path", path).Msg("Watched directory removed")
			w.record(path)
			return
		}
	}

	if w.cfg.Filter != nil && !w.cfg.Filter(path) {
		return
	}
	w.record(path)
}

// record notes path as changed and re-arms the debouncer.
func (w *Watcher) record(path string) {
	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.mu.Unlock()
	w.debouncer.Trigger()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(changed)
	log.Debug().Int("paths", len(changed)).Msg("Change settled")
	if w.onChange != nil {
		w.onChange(changed)
	}
}

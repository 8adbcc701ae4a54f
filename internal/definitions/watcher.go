package definitions

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"acolyte/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports settled changes to definition files. Rapid saves to the
// same file are collapsed into one notification once the debounce window
// passes without further events.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dirs        []string
	files       map[string]bool // explicitly named files
	wholeDirs   map[string]bool // directories whose every definition file counts
	debounceMap map[string]time.Time
	debounceDur time.Duration
	onChange    func(paths []string)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events        int
	Reloads       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// NewWatcher watches paths, which may name files or directories, and calls
// onChange with the settled paths after debounce.
func NewWatcher(paths []string, debounce time.Duration, onChange func(paths []string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Watcher{
		watcher:     fw,
		files:       make(map[string]bool),
		wholeDirs:   make(map[string]bool),
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		onChange:    onChange,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		dir := filepath.Clean(p)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			w.files[dir] = true
			dir = filepath.Dir(dir)
		} else {
			w.wholeDirs[dir] = true
		}
		if !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			logging.DefinitionsWarn("watcher: cannot watch %s: %v", dir, err)
			continue
		}
		logging.Definitions("watcher: watching %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryDefinitions).Error("watcher: close: %v", err)
	}
	logging.Definitions("watcher: stopped")
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryDefinitions).Error("watcher: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) relevant(path string) bool {
	if !IsDefinitionFile(path) {
		return false
	}
	path = filepath.Clean(path)
	return w.files[path] || w.wholeDirs[filepath.Dir(path)]
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.relevant(event.Name) {
		return
	}

	var kind string
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = "create"
	case event.Op&fsnotify.Write != 0:
		kind = "modify"
	case event.Op&fsnotify.Remove != 0:
		kind = "delete"
	case event.Op&fsnotify.Rename != 0:
		kind = "rename"
	default:
		return
	}
	logging.DefinitionsDebug("watcher: %s %s", kind, event.Name)

	w.mu.Lock()
	now := time.Now()
	w.stats.Events++
	w.stats.LastEventTime = now
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = kind
	w.debounceMap[event.Name] = now
	w.mu.Unlock()
}

// flush reports every path whose last event is older than the debounce
// window, as one batch.
func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	if len(settled) > 0 {
		w.stats.Reloads++
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	sort.Strings(settled)
	logging.Definitions("watcher: %d definition files changed", len(settled))
	if w.onChange != nil {
		w.onChange(settled)
	}
}

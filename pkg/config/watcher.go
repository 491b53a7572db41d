package config

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a scenario directory and calls onChange once per changed
// scenario file after the debounce period.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	onChange func(path string)
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	timers  map[string]*time.Timer
	stopCh  chan struct{}
	done    chan struct{}
	pending sync.WaitGroup
}

// WatcherConfig holds dependencies for creating a Watcher.
type WatcherConfig struct {
	Root     string
	OnChange func(path string)
	Logger   *slog.Logger
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
}

// NewWatcher creates a watcher; call Start to begin receiving events.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     cfg.Root,
		watcher:  fw,
		onChange: cfg.OnChange,
		logger:   logger,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start adds the root and its subdirectories and begins the event loop. A
// file root is watched through its parent directory.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.logger.Info("scenario watcher started", "path", w.root)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) addTree() error {
	root := w.root
	if !isDir(root) {
		return w.watcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(p)
		}
		return nil
	})
}

// Stop ends the event loop, cancels pending callbacks and waits for running
// ones to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	for path, t := range w.timers {
		if t.Stop() {
			w.pending.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()

	close(w.stopCh)
	err := w.watcher.Close()
	<-w.done
	w.pending.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("scenario file event", "event", event.Op.String(), "file", event.Name)
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule(filepath.Clean(event.Name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("scenario watcher error", "error", err)

		case <-w.stopCh:
			w.logger.Info("scenario watcher stopped")
			return

		case <-ctx.Done():
			w.logger.Info("scenario watcher context cancelled")
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !IsScenarioFile(event.Name) {
		return false
	}
	if isDir(w.root) {
		return true
	}
	ev, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	root, err := filepath.Abs(w.root)
	if err != nil {
		return false
	}
	return ev == root
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if t, ok := w.timers[path]; ok && t.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() { w.fire(path, &t) })
	w.timers[path] = t
}

// fire runs when the timer *self expires. *self is only read under w.mu, and
// the map entry is removed only while it still holds that timer.
func (w *Watcher) fire(path string, self **time.Timer) {
	defer w.pending.Done()
	w.mu.Lock()
	if w.timers[path] == *self {
		delete(w.timers, path)
	}
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}
	w.logger.Info("scenario file changed", "path", path)
	w.onChange(path)
}

package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a directory tree for IIIF JSON documents, with fsnotify
// or by polling.
type Watcher struct {
	opts      Options
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}
	root      string

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// New creates a Watcher. It falls back to polling when fsnotify cannot be
// initialised.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	w := &Watcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	if !opts.Polling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		} else {
			w.fsWatcher = fsw
		}
	}
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Root returns the watched directory.
func (w *Watcher) Root() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root
}

// Start watches path until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", abs)
	}
	opts, err := withIgnore(abs, w.opts)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.root = abs
	w.opts = opts
	w.mu.Unlock()

	go w.forward(ctx)

	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

// Scan returns the watched documents currently under root, sorted.
func Scan(root string, opts Options) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	opts, err = withIgnore(abs, opts.WithDefaults())
	if err != nil {
		return nil, err
	}
	state := snapshot(abs, opts)
	out := make([]string, 0, len(state))
	for path := range state {
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	prev := snapshot(w.root, w.opts)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case now := <-ticker.C:
			cur := snapshot(w.root, w.opts)
			for _, e := range diff(prev, cur, now) {
				w.debouncer.Add(e)
			}
			prev = cur
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !w.opts.skipDir(w.root, ev.Name) {
				if err := w.addTree(ev.Name); err != nil {
					w.emitError(err)
				}
			}
			return
		}
	}
	if !w.opts.Matches(w.root, ev.Name) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()})
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.opts.skipDir(w.root, path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.dropped.Add(1)
		slog.Warn("event_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Dropped returns the number of batches dropped on a full buffer.
func (w *Watcher) Dropped() uint64 {
	return w.dropped.Load()
}

// Events returns the channel of event batches. It is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// withIgnore loads root/.iiifignore unless opts already carries patterns.
func withIgnore(root string, opts Options) (Options, error) {
	if opts.Ignore != nil {
		return opts, nil
	}
	ig, err := LoadIgnore(root)
	if err != nil {
		return opts, err
	}
	opts.Ignore = ig
	return opts, nil
}

package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// ReindexFunc regenerates the indexables of one resource and returns how
// many it produced.
type ReindexFunc func(ctx context.Context, id string) (int, error)

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Workers   int
	QueueSize int
}

// Worker reindexes resources on a bounded queue. An id is queued at most
// once until a worker picks it up.
type Worker struct {
	config   WorkerConfig
	fn       ReindexFunc
	jobs     chan string
	pending  mapset.Set[string]
	progress *IndexProgress
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewWorker creates a Worker. Call Start before enqueueing.
func NewWorker(cfg WorkerConfig, fn ReindexFunc, logger *slog.Logger) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		config:   cfg,
		fn:       fn,
		jobs:     make(chan string, cfg.QueueSize),
		pending:  mapset.NewSet[string](),
		progress: NewIndexProgress(),
		logger:   logger,
	}
}

// Progress returns the worker's progress tracker.
func (w *Worker) Progress() *IndexProgress {
	return w.progress
}

// Start launches the worker goroutines. They run until Stop or until ctx
// is done.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	for i := 0; i < w.config.Workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}
}

// Enqueue schedules a reindex of id without blocking. It reports false
// when id is already pending, the queue is full or the worker is stopped.
func (w *Worker) Enqueue(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	if !w.pending.Add(id) {
		return false
	}
	w.progress.queued()
	select {
	case w.jobs <- id:
		return true
	default:
		w.pending.Remove(id)
		w.progress.droppedJob()
		w.logger.Warn("reindex_queue_full", slog.String("id", id), slog.Int("queue_size", w.config.QueueSize))
		return false
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-w.jobs:
			if !ok {
				return
			}
			w.pending.Remove(id)
			w.progress.started()
			w.run(ctx, id)
		}
	}
}

func (w *Worker) run(ctx context.Context, id string) {
	start := time.Now()
	n, err := w.fn(ctx, id)
	w.progress.finished(n, err)
	if err != nil {
		w.logger.Warn("reindex_job_failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("reindex_job_done",
		slog.String("id", id),
		slog.Int("indexables", n),
		slog.Duration("duration", time.Since(start)))
}

// Drain blocks until nothing is queued or running, or ctx is done.
func (w *Worker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for w.progress.Busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stop stops accepting jobs, lets the workers finish what is queued and
// waits for them. It is safe to call more than once.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
	w.progress.stop()
}

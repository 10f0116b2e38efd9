// Package async runs deferred reindexing and scheduled index reconciliation
// in process.
package async

import (
	"sync"
	"time"
)

// WorkerStatus is the overall state of the worker.
type WorkerStatus string

const (
	// StatusIdle means nothing is queued or running.
	StatusIdle WorkerStatus = "idle"
	// StatusIndexing means jobs are queued or running.
	StatusIndexing WorkerStatus = "indexing"
	// StatusStopped means the worker no longer accepts jobs.
	StatusStopped WorkerStatus = "stopped"
)

// ProgressSnapshot is an immutable copy of IndexProgress.
type ProgressSnapshot struct {
	Status        string     `json:"status"`
	Pending       int        `json:"pending"`
	Running       int        `json:"running"`
	Processed     int        `json:"processed"`
	Failed        int        `json:"failed"`
	Dropped       int        `json:"dropped"`
	Indexables    int        `json:"indexables"`
	LastError     string     `json:"last_error,omitempty"`
	LastReconcile *time.Time `json:"last_reconcile,omitempty"`
	Orphans       int        `json:"orphans"`
	Missing       int        `json:"missing"`
	UptimeSeconds int        `json:"uptime_seconds"`
}

// IndexProgress tracks worker and reconciliation counters. It is safe for
// concurrent use.
type IndexProgress struct {
	mu sync.RWMutex

	stopped       bool
	pending       int
	running       int
	processed     int
	failed        int
	dropped       int
	indexables    int
	lastError     string
	lastReconcile time.Time
	orphans       int
	missing       int
	startTime     time.Time
}

// NewIndexProgress creates a tracker.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{startTime: time.Now()}
}

func (p *IndexProgress) queued() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending++
}

func (p *IndexProgress) droppedJob() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending--
	p.dropped++
}

func (p *IndexProgress) started() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending--
	p.running++
}

func (p *IndexProgress) finished(indexables int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running--
	if err != nil {
		p.failed++
		p.lastError = err.Error()
		return
	}
	p.processed++
	p.indexables += indexables
}

func (p *IndexProgress) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// RecordReconcile stores the outcome of a reconciliation run.
func (p *IndexProgress) RecordReconcile(at time.Time, orphans, missing int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastReconcile = at
	p.orphans = orphans
	p.missing = missing
	if err != nil {
		p.lastError = err.Error()
	}
}

// Busy reports whether jobs are queued or running.
func (p *IndexProgress) Busy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pending > 0 || p.running > 0
}

// Snapshot returns a copy of the current counters.
func (p *IndexProgress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := StatusIdle
	switch {
	case p.stopped:
		status = StatusStopped
	case p.pending > 0 || p.running > 0:
		status = StatusIndexing
	}
	snap := ProgressSnapshot{
		Status:        string(status),
		Pending:       p.pending,
		Running:       p.running,
		Processed:     p.processed,
		Failed:        p.failed,
		Dropped:       p.dropped,
		Indexables:    p.indexables,
		LastError:     p.lastError,
		Orphans:       p.orphans,
		Missing:       p.missing,
		UptimeSeconds: int(time.Since(p.startTime).Seconds()),
	}
	if !p.lastReconcile.IsZero() {
		at := p.lastReconcile
		snap.LastReconcile = &at
	}
	return snap
}

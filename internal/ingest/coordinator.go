package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/store"
	"github.com/Aman-CERP/iiifstore/internal/watcher"
)

// watchStatePrefix keys the state entries mapping a watched file to the
// root resource it produced.
const watchStatePrefix = "watch:"

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Service *Service

	// Contexts are attached to every resource ingested from a file.
	Contexts []store.Context

	// MaxFileSize skips larger files. Zero means DefaultMaxFileSize.
	MaxFileSize int64
}

// DefaultMaxFileSize is the largest document ingested from a watched
// directory (50MB).
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// Coordinator applies watched file changes to the store: created and
// modified documents are ingested, removed ones delete the resource they
// produced.
type Coordinator struct {
	config CoordinatorConfig
	mu     sync.Mutex
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	return &Coordinator{config: config}
}

// HandleEvents processes a batch of file events. A failing event is
// logged and the rest of the batch continues; the number of events applied
// is returned.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	applied := 0
	for _, event := range events {
		if err := c.handleEvent(ctx, event); err != nil {
			slog.Warn("file_event_failed",
				slog.String("path", event.Path),
				slog.String("operation", event.Operation.String()),
				slog.String("error", err.Error()))
			continue
		}
		applied++
	}
	return applied
}

func (c *Coordinator) handleEvent(ctx context.Context, event watcher.FileEvent) error {
	slog.Debug("file_event",
		slog.String("path", event.Path),
		slog.String("operation", event.Operation.String()))

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		return c.IngestFile(ctx, event.Path)
	case watcher.OpDelete:
		return c.RemoveFile(ctx, event.Path)
	default:
		return nil
	}
}

// IngestFile ingests one document and records which resource it produced.
// When the document now has a different root id, the previous resource is
// deleted.
func (c *Coordinator) IngestFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > c.config.MaxFileSize {
		slog.Warn("file_too_large",
			slog.String("path", path),
			slog.Int64("size", info.Size()),
			slog.Int64("max", c.config.MaxFileSize))
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	svc := c.config.Service
	report, err := svc.Ingest(ctx, raw, IngestOptions{Contexts: c.config.Contexts, Cascade: true})
	if err != nil {
		return err
	}

	key := watchStatePrefix + path
	previous, err := svc.store.GetState(ctx, key)
	if err != nil {
		return err
	}
	if previous != "" && previous != report.RootID {
		if _, err := svc.Delete(ctx, previous); err != nil && !ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound) {
			return err
		}
	}
	return svc.store.SetState(ctx, key, report.RootID)
}

// RemoveFile deletes the resource produced by a document. Files that were
// never ingested are ignored.
func (c *Coordinator) RemoveFile(ctx context.Context, path string) error {
	svc := c.config.Service
	key := watchStatePrefix + path
	id, err := svc.store.GetState(ctx, key)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	if _, err := svc.Delete(ctx, id); err != nil && !ierrors.HasCode(err, ierrors.ErrCodeResourceNotFound) {
		return err
	}
	return svc.store.DeleteState(ctx, key)
}

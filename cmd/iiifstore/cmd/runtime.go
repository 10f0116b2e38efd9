package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Aman-CERP/iiifstore/internal/async"
	"github.com/Aman-CERP/iiifstore/internal/config"
	"github.com/Aman-CERP/iiifstore/internal/iiif"
	"github.com/Aman-CERP/iiifstore/internal/index"
	"github.com/Aman-CERP/iiifstore/internal/ingest"
	"github.com/Aman-CERP/iiifstore/internal/search"
	"github.com/Aman-CERP/iiifstore/internal/store"
	"github.com/Aman-CERP/iiifstore/internal/telemetry"
)

// drainTimeout bounds how long closing waits for deferred indexing jobs.
const drainTimeout = 5 * time.Minute

// loadConfig loads the configuration from --config-dir (default: the
// working directory) and applies --data-dir.
func loadConfig() (*config.Config, error) {
	dir := configDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.Paths.DataDir = dataDirFlag
	}
	return cfg, nil
}

// runtime holds everything a command needs to work on the store.
type runtime struct {
	cfg     *config.Config
	store   *store.GormStore
	index   index.TextIndex
	service *ingest.Service
	engine  *search.Engine

	// worker is set when worker.async defers indexing.
	worker *async.Worker

	// metrics is set when search.query_metrics is on.
	metrics *telemetry.QueryMetrics
}

// openRuntime opens the store and the text index under the configured data
// directory and builds the ingest service and the search engine on them.
func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := slog.Default()

	s, err := store.Open(store.Options{
		DataDir:           cfg.Paths.DataDir,
		Driver:            cfg.Store.Driver,
		CanonicalHostname: cfg.Server.CanonicalHostname,
		ResourcePath:      cfg.Server.ResourcePath,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	basePath := cfg.IndexBasePath()
	if found := index.Detect(basePath); found != "" && string(found) != cfg.Search.Backend {
		logger.Warn("text_index_backend_mismatch",
			slog.String("configured", cfg.Search.Backend),
			slog.String("found", string(found)))
	}
	idx, err := index.New(basePath, cfg.Search.Backend)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	rt := &runtime{cfg: cfg, store: s, index: idx}
	if err := rt.build(ctx, logger); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) build(ctx context.Context, logger *slog.Logger) error {
	cfg := rt.cfg

	fetcher, err := iiif.NewServiceFetcher(iiif.FetcherConfig{
		Timeout:         cfg.ImageTimeout(),
		Retries:         cfg.Images.Retries,
		RequestsPerSec:  cfg.Images.RequestsPerSec,
		Burst:           cfg.Images.Burst,
		CacheSize:       cfg.Images.CacheSize,
		CircuitFailures: cfg.Images.CircuitFailures,
		CircuitReset:    cfg.CircuitReset(),
	}, nil, logger)
	if err != nil {
		return err
	}

	opts := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithResolver(iiif.NewResolver(fetcher, logger)),
	}
	if cfg.Worker.Async {
		rt.worker = async.NewWorker(async.WorkerConfig{
			Workers:   cfg.Worker.Workers,
			QueueSize: cfg.Worker.QueueSize,
		}, rt.reindexOne, logger)
		rt.worker.Start(ctx)
		opts = append(opts, ingest.WithDeferredIndexing(rt.worker))
	}

	rt.service, err = ingest.NewService(rt.store, rt.index, ingest.ConfigFrom(cfg), opts...)
	if err != nil {
		return err
	}

	engineOpts := []search.EngineOption{search.WithLogger(logger)}
	if cfg.Search.QueryMetrics {
		ms, err := telemetry.NewGormStore(ctx, rt.store.DB(ctx))
		if err != nil {
			return err
		}
		rt.metrics = telemetry.NewQueryMetrics(ms, telemetry.DefaultConfig(), logger)
		engineOpts = append(engineOpts, search.WithRecorder(rt.metrics))
	}

	rt.engine, err = search.NewEngine(rt.store, rt.index, search.EngineConfig{
		DefaultLanguage: cfg.Languages.Default,
		PageSize:        cfg.Search.PageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		HitBatchSize:    cfg.Search.HitBatchSize,
		Snippet: search.SnippetOptions{
			MinWords:     cfg.Search.SnippetMinWords,
			MaxWords:     cfg.Search.SnippetMaxWords,
			MaxFragments: cfg.Search.SnippetMaxFragments,
		},
		ThumbnailWidth: cfg.Images.ThumbnailWidth,
	}, engineOpts...)
	return err
}

// reindexOne is the deferred indexing job.
func (rt *runtime) reindexOne(ctx context.Context, id string) (int, error) {
	report, err := rt.service.Reindex(ctx, id)
	if err != nil {
		return 0, err
	}
	return report.Indexables, nil
}

// progress returns the deferred indexing progress, or a fresh tracker
// when indexing is synchronous.
func (rt *runtime) progress() *async.IndexProgress {
	if rt.worker != nil {
		return rt.worker.Progress()
	}
	return async.NewIndexProgress()
}

// Close finishes deferred work and closes the index and the store.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.worker != nil {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
		if err := rt.worker.Drain(drainCtx); err != nil {
			errs = append(errs, fmt.Errorf("deferred indexing did not finish: %w", err))
		}
		cancel()
		rt.worker.Stop()
	}
	if rt.metrics != nil {
		if err := rt.metrics.Close(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("saving query metrics: %w", err))
		}
	}
	if rt.index != nil {
		errs = append(errs, rt.index.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	return errors.Join(errs...)
}

// withRuntime loads the configuration, opens the runtime, runs fn and
// closes the runtime.
func withRuntime(ctx context.Context, fn func(rt *runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(rt)
	if closeErr := rt.Close(ctx); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}

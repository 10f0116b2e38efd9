package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/ingest"
	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/store"
	"github.com/Aman-CERP/iiifstore/internal/watcher"
)

// watchOptions holds CLI flags for watch.
type watchOptions struct {
	contexts []string
	poll     bool
	noScan   bool
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest IIIF documents as they change in a directory",
		Long: `Watch a directory for *.json documents. Created and modified documents are
ingested, removed ones delete the resources they produced. Changes are
debounced per file (worker.watch_debounce).

Documents already in the directory are ingested first unless --no-scan is
given. Paths matching the patterns in a .iiifignore file at the root of the
directory are skipped; the syntax follows .gitignore.`,
		Example: `  iiifstore watch ./manifests --context site:library`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.contexts, "context", "c", nil, "Attach a context, type:slug (repeatable)")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll the directory instead of using file system events")
	cmd.Flags().BoolVar(&opts.noScan, "no-scan", false, "Skip ingesting the documents already present")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string, opts watchOptions) error {
	contexts := make([]store.Context, 0, len(opts.contexts))
	for _, c := range opts.contexts {
		parsed, err := store.ParseContext(c)
		if err != nil {
			return err
		}
		contexts = append(contexts, parsed)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()
	out := output.New(cmd.OutOrStdout())

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("runtime_close_failed", slog.String("error", err.Error()))
		}
	}()

	scheduler, err := startReconcile(ctx, rt, cfg, rt.progress(), logger)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer scheduler.Stop()
	}

	coordinator := ingest.NewCoordinator(ingest.CoordinatorConfig{
		Service:  rt.service,
		Contexts: contexts,
	})
	watchOpts := watcher.Options{
		DebounceWindow: cfg.WatchDebounce(),
		Polling:        opts.poll,
	}

	if !opts.noScan {
		paths, err := watcher.Scan(dir, watchOpts)
		if err != nil {
			return err
		}
		ingested := 0
		for i, path := range paths {
			if err := coordinator.IngestFile(ctx, path); err != nil {
				out.Warningf("%s: %v", path, err)
				continue
			}
			ingested++
			out.Progress(i+1, len(paths), path)
		}
		out.Successf("Ingested %d of %d documents", ingested, len(paths))
	}

	w, err := watcher.New(watchOpts)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx, dir) }()
	out.Statusf("👀", "Watching %s (%s), press Ctrl+C to stop", dir, w.Mode())

	watchErrs := w.Errors()
	for {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			applied := coordinator.HandleEvents(ctx, batch)
			out.Statusf("", "%d of %d changes applied", applied, len(batch))
		case werr, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			logger.Warn("watcher_error", slog.String("error", werr.Error()))
		case err := <-errCh:
			_ = w.Stop()
			if err == nil || errors.Is(err, context.Canceled) {
				out.Success("Stopped watching")
				return nil
			}
			return err
		}
	}
}

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/async"
	"github.com/Aman-CERP/iiifstore/internal/config"
	"github.com/Aman-CERP/iiifstore/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio. It exposes the search, get_resource,
list_contexts and index_status tools and the iiif://resource/{id}
resource template.

Stdout carries the protocol only; logs go to the log file. The text index
is reconciled with the store on worker.reconcile_schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport (default: server.transport)")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.Server.Transport
	}
	// The configured level applies unless --debug asked for more.
	if !debugMode {
		if logger, cleanup, err := loggingFor(cfg); err == nil {
			if loggingCleanup != nil {
				loggingCleanup()
			}
			loggingCleanup = cleanup
			slog.SetDefault(logger)
		}
	}
	logger := slog.Default()

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("runtime_close_failed", slog.String("error", err.Error()))
		}
	}()

	srv, err := mcp.NewServer(rt.engine, rt.service, cfg, logger)
	if err != nil {
		return err
	}
	progress := rt.progress()
	srv.SetIndexProgress(progress)

	scheduler, err := startReconcile(ctx, rt, cfg, progress, logger)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer scheduler.Stop()
	}

	return srv.Serve(ctx, transport)
}

// startReconcile starts scheduled reconciliation, or returns nil when no
// schedule is configured.
func startReconcile(ctx context.Context, rt *runtime, cfg *config.Config, progress *async.IndexProgress, logger *slog.Logger) (*async.Scheduler, error) {
	if cfg.Worker.ReconcileSchedule == "" {
		return nil, nil
	}
	scheduler, err := async.NewScheduler(cfg.Worker.ReconcileSchedule, rt.service.Reconcile, progress, logger)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Start(ctx); err != nil {
		return nil, err
	}
	return scheduler, nil
}

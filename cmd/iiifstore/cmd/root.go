// Package cmd provides the CLI commands for iiifstore.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/config"
	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/logging"
	"github.com/Aman-CERP/iiifstore/internal/profiling"
	"github.com/Aman-CERP/iiifstore/pkg/version"
)

// Global flags
var (
	debugMode      bool
	configDir      string
	dataDirFlag    string
	loggingCleanup func()
)

// Profiling flags
var (
	profileOpts profiling.Options
	profiler    *profiling.Profiler
)

// NewRootCmd creates the root command for the iiifstore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iiifstore",
		Short: "Store, index and search IIIF Presentation resources",
		Long: `iiifstore ingests IIIF Presentation API 2 and 3 documents, decomposes them
into manifests, canvases, ranges and annotations, and keeps a searchable
index of their descriptive properties.

Resources are stored in SQLite under the data directory and served with
canonical ids. Search combines full-text ranking with facets, resource
filters and sort keys.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("iiifstore version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also written to stderr)")
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding .iiifstore.yaml (default: current directory)")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (overrides paths.data_dir)")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write an execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newContextsCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts the requested profiles and logging.
func startProfilingAndLogging(cmd *cobra.Command, args []string) error {
	if profileOpts.Enabled() {
		p, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profiler = p
	}
	return startLogging(cmd, args)
}

// stopProfilingAndLogging writes the profiles and closes the log file.
func stopProfilingAndLogging(cmd *cobra.Command, args []string) error {
	err := stopProfiling()
	_ = stopLogging(cmd, args)
	return err
}

func stopProfiling() error {
	p := profiler
	profiler = nil
	return p.Stop()
}

// startLogging installs the file logger. The MCP server never logs to
// stderr; other commands do so only with --debug.
func startLogging(cmd *cobra.Command, _ []string) error {
	level := "info"
	if debugMode {
		level = "debug"
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.WriteToStderr = debugMode
	if cmd.Name() == "serve" {
		logCfg = logging.ServerConfig(level)
	}
	if cmd.Name() == "logs" {
		logCfg.FilePath = ""
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		if debugMode {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		// Without a writable log directory the CLI still works, silently.
		logger = slog.New(slog.DiscardHandler)
		cleanup = func() {}
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("logging_started",
		slog.String("command", cmd.Name()),
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Short()))
	return nil
}

// loggingFor builds the MCP server logger at the configured level.
func loggingFor(cfg *config.Config) (*slog.Logger, func(), error) {
	return logging.Setup(logging.ServerConfig(cfg.Server.LogLevel))
}

// stopLogging flushes and closes the log file.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints errors for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_ = stopProfilingAndLogging(nil, nil)
		_, _ = fmt.Fprint(os.Stderr, ierrors.FormatForCLI(err))
	}
	return err
}

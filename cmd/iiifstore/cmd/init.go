package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/config"
	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/output"
)

// projectConfigFile is the file written by init.
const projectConfigFile = ".iiifstore.yaml"

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a .iiifstore.yaml configuration",
		Long: `Write a .iiifstore.yaml with the default configuration to the config
directory (default: the current directory).

Edit server.canonical_hostname before ingesting: it is part of every
canonical id written to the store.`,
		Example: `  # Write the default configuration
  iiifstore init

  # Overwrite an existing configuration, with a custom data directory
  iiifstore init --force --data-dir /var/lib/iiifstore`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	dir := configDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	path := filepath.Join(dir, projectConfigFile)

	if _, err := os.Stat(path); err == nil && !force {
		return ierrors.New(ierrors.ErrCodeConfigInvalid, "configuration already exists", nil).
			WithDetail("path", path).
			WithSuggestion("Use --force to overwrite it")
	}

	cfg := config.NewConfig()
	if dataDirFlag != "" {
		cfg.Paths.DataDir = dataDirFlag
	}
	if err := cfg.WriteYAML(path); err != nil {
		return err
	}

	out.Success("Wrote " + path)
	out.Field("Data directory", cfg.Paths.DataDir)
	out.Field("Canonical host", cfg.Server.CanonicalHostname)
	return nil
}

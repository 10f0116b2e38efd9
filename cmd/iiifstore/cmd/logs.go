package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		lines  int
		follow bool
		file   string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the log file",
		Long: `Print the last lines of the iiifstore log file
(~/.iiifstore/logs/iiifstore.log). Each line is a JSON record.`,
		Example: `  iiifstore logs -n 100
  iiifstore logs -f | jq 'select(.level == "WARN")'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return logging.Tail(ctx, path, lines, follow, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&file, "file", "", "Log file (default: ~/.iiifstore/logs/iiifstore.log)")

	return cmd
}

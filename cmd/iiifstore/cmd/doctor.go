package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var verbose bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that iiifstore can run here",
		Long: `Check the configuration, the data directory, free disk space, the open
file limit, the database and the text index.

Exits with an error when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker := preflight.New(preflight.WithVerbose(verbose), preflight.WithOutput(cmd.OutOrStdout()))

			var results []preflight.CheckResult
			cfg, err := loadConfig()
			if err != nil {
				results = append(results, preflight.CheckResult{
					Name:     "config",
					Status:   preflight.StatusFail,
					Message:  err.Error(),
					Required: true,
				})
			} else {
				results = append(results, preflight.CheckResult{Name: "config", Status: preflight.StatusPass, Message: "valid"})
				results = append(results, checker.RunAll(cmd.Context(), cfg)...)
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"status": checker.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return ierrors.New(ierrors.ErrCodeConfigInvalid, "system check failed", nil).
					WithSuggestion("Fix the errors listed above")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details of passing checks")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

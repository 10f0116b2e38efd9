package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/output"
)

func newReindexCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "reindex [id]",
		Short: "Rebuild indexables from stored IIIF JSON",
		Long: `Regenerate the indexables of a resource from its stored IIIF JSON and
update the text index. Without an id every resource is reindexed.

Run it after changing indexing.fields or languages.default.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runReindex(cmd.Context(), cmd, id, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runReindex(ctx context.Context, cmd *cobra.Command, ref string, jsonOutput bool) error {
	return withRuntime(ctx, func(rt *runtime) error {
		id := ""
		if ref != "" {
			r, err := rt.service.Lookup(ctx, ref)
			if err != nil {
				return err
			}
			id = r.ID
		}

		report, err := rt.service.Reindex(ctx, id)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		out := output.New(cmd.OutOrStdout())
		out.Successf("Reindexed %d resources", report.Resources)
		out.Field("Indexables", fmt.Sprint(report.Indexables))
		out.Field("Duration", report.Duration.Round(time.Millisecond).String())
		if len(report.Failed) > 0 {
			out.Warningf("%d resources failed: %s", len(report.Failed), strings.Join(report.Failed, ", "))
		}
		return nil
	})
}

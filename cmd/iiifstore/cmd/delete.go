package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/ingest"
	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/view"
)

// deleteOutput is a delete report with the resource as it was before
// deletion.
type deleteOutput struct {
	*ingest.DeleteReport
	Resource any `json:"resource"`
}

func newDeleteCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a resource",
		Long: `Delete a resource by internal id or by the id it was ingested with.

Deleting a manifest also deletes its canvases, ranges and annotations, their
indexables and their text index entries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd, args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, ref string, jsonOutput bool) error {
	return withRuntime(ctx, func(rt *runtime) error {
		r, err := rt.service.Lookup(ctx, ref)
		if err != nil {
			return err
		}
		deleted := view.For(view.OpDelete).Resource(r)
		report, err := rt.service.Delete(ctx, r.ID)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(deleteOutput{DeleteReport: report, Resource: deleted})
		}
		out := output.New(cmd.OutOrStdout())
		out.Successf("Deleted %s %s", r.IIIFType, r.ID)
		out.Field("Resources", fmt.Sprint(len(report.ResourceIDs)))
		out.Field("Indexables", fmt.Sprint(report.Indexables))
		return nil
	})
}

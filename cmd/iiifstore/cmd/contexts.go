package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/view"
)

func newContextsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "List contexts with their resource counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runContexts(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runContexts(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	return withRuntime(ctx, func(rt *runtime) error {
		contexts, err := rt.store.ListContexts(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			v := view.For(view.OpContext)
			docs := make([]view.Document, 0, len(contexts))
			for _, c := range contexts {
				docs = append(docs, v.Context(c))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}

		out := output.New(cmd.OutOrStdout())
		if len(contexts) == 0 {
			out.Status("", "No contexts defined")
			return nil
		}
		for _, c := range contexts {
			out.Field(c.ID, fmt.Sprintf("%d resources", c.Resources))
		}
		return nil
	})
}

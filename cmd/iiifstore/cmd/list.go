package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/store"
	"github.com/Aman-CERP/iiifstore/internal/view"
)

func newListCmd() *cobra.Command {
	var (
		types      []string
		contexts   []string
		offset     int
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored resources",
		Example: `  iiifstore list --type manifest
  iiifstore list --context books --limit 10 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), cmd, store.ListOptions{
				Types:    types,
				Contexts: contexts,
				Offset:   offset,
				Limit:    limit,
			}, jsonOutput)
		},
	}

	cmd.Flags().StringArrayVarP(&types, "type", "t", nil, "Only resources of this IIIF type (repeatable)")
	cmd.Flags().StringArrayVar(&contexts, "context", nil, "Only resources in this context slug (repeatable)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many resources")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of resources")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, opts store.ListOptions, jsonOutput bool) error {
	return withRuntime(ctx, func(rt *runtime) error {
		resources, total, err := rt.service.List(ctx, opts)
		if err != nil {
			return err
		}

		v := view.For(view.OpList)
		v.ThumbnailWidth = rt.cfg.Images.ThumbnailWidth
		if jsonOutput {
			docs := make([]any, 0, len(resources))
			for i := range resources {
				docs = append(docs, v.Resource(&resources[i]))
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"count": total, "results": docs})
		}

		out := output.New(cmd.OutOrStdout())
		if total == 0 {
			out.Status("", "No resources stored")
			return nil
		}
		out.Statusf("", "%d resources (showing %d from %d):", total, len(resources), opts.Offset+1)
		out.Newline()
		for i := range resources {
			r := &resources[i]
			out.Status("", fmt.Sprintf("%-10s %s  %s", r.IIIFType, r.ID, view.DisplayLabel(r.LabelMap(), r.OriginalID)))
		}
		return nil
	})
}

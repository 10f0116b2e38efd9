package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/store"
	"github.com/Aman-CERP/iiifstore/internal/view"
)

func newShowCmd() *cobra.Command {
	var iiifOutput bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one stored resource",
		Long: `Show a stored resource by internal id or by the id it was ingested with.

With --iiif the stored IIIF JSON is printed, with canonical ids.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), cmd, args[0], iiifOutput, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&iiifOutput, "iiif", false, "Print the stored IIIF JSON")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runShow(ctx context.Context, cmd *cobra.Command, ref string, iiifOutput, jsonOutput bool) error {
	return withRuntime(ctx, func(rt *runtime) error {
		r, err := rt.service.Lookup(ctx, strings.TrimSpace(ref))
		if err != nil {
			return err
		}

		op := view.OpRetrieve
		if iiifOutput {
			op = view.OpIIIF
		}
		v := view.For(op)
		v.ThumbnailWidth = rt.cfg.Images.ThumbnailWidth
		if jsonOutput || v.Raw {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(v.Resource(r)); err != nil {
				return fmt.Errorf("render %s view of %s: %w", op, r.ID, err)
			}
			return nil
		}

		printResource(output.New(cmd.OutOrStdout()), v, r)
		return nil
	})
}

// printResource prints the detail view of a resource.
func printResource(out *output.Writer, v view.View, r *store.Resource) {
	doc, _ := v.Resource(r).(view.Document)
	out.Heading(view.DisplayLabel(r.LabelMap(), r.OriginalID))
	for _, f := range doc {
		switch val := f.Value.(type) {
		case string:
			out.Field(f.Key, val)
		case nil:
		default:
			data, err := json.Marshal(val)
			if err != nil || string(data) == "null" || string(data) == "[]" || string(data) == "{}" {
				continue
			}
			out.Field(f.Key, string(data))
		}
	}
}

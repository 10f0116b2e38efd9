package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/ingest"
	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/store"
	"github.com/Aman-CERP/iiifstore/internal/view"
)

// ingestOutput is one ingest report with the root resource as created or
// updated.
type ingestOutput struct {
	*ingest.IngestReport
	Resource any `json:"resource"`
}

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	contexts   []string
	noCascade  bool
	jsonOutput bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file|url|->...",
		Short: "Ingest IIIF manifests",
		Long: `Ingest IIIF Presentation 2 or 3 documents from files, http(s) URLs or
stdin ("-").

Each document is decomposed into its manifest, canvases, ranges and
annotations. A resource whose id was ingested before is updated in place.

Examples:
  iiifstore ingest manifest.json
  iiifstore ingest https://example.org/iiif/book1/manifest --context site:books
  curl -s https://example.org/m.json | iiifstore ingest - --no-cascade`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.contexts, "context", "c", nil, "Attach a context, type:slug (repeatable)")
	cmd.Flags().BoolVar(&opts.noCascade, "no-cascade", false, "Store only the root resource")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output reports as JSON")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, sources []string, opts ingestOptions) error {
	contexts := make([]store.Context, 0, len(opts.contexts))
	for _, c := range opts.contexts {
		parsed, err := store.ParseContext(c)
		if err != nil {
			return err
		}
		contexts = append(contexts, parsed)
	}

	return withRuntime(ctx, func(rt *runtime) error {
		out := output.New(cmd.OutOrStdout())
		reports := make([]ingestOutput, 0, len(sources))

		for _, src := range sources {
			raw, err := ingest.ReadSource(ctx, src, cmd.InOrStdin(), nil)
			if err != nil {
				return err
			}
			report, err := rt.service.Ingest(ctx, raw, ingest.IngestOptions{
				Contexts: contexts,
				Cascade:  !opts.noCascade,
			})
			if err != nil {
				slog.Error("ingest_failed", slog.String("source", src), slog.String("error", err.Error()))
				return err
			}
			root, err := rt.service.Get(ctx, report.RootID)
			if err != nil {
				return err
			}
			op, verb := view.OpUpdate, "Updated"
			if report.RootCreated {
				op, verb = view.OpCreate, "Created"
			}
			v := view.For(op)
			v.ThumbnailWidth = rt.cfg.Images.ThumbnailWidth
			reports = append(reports, ingestOutput{IngestReport: report, Resource: v.Resource(root)})

			if !opts.jsonOutput {
				out.Successf("Ingested %s %s", report.RootType, report.RootID)
				out.Field(verb, view.DisplayLabel(root.LabelMap(), root.OriginalID))
				out.Field("Source", src)
				out.Field("Resources", fmt.Sprintf("%d created, %d updated", report.Created, report.Updated))
				out.Field("Relationships", fmt.Sprint(report.Relationships))
				if report.Deferred {
					out.Field("Indexables", "deferred")
				} else {
					out.Field("Indexables", fmt.Sprint(report.Indexables))
				}
			}
		}

		if opts.jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}
		return nil
	})
}

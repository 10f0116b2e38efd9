package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/iiifstore/internal/index"
	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

// CheckOutput is the JSON output of check.
type CheckOutput struct {
	Store      *store.Stats       `json:"store"`
	Disk       store.Info         `json:"disk"`
	Backend    string             `json:"backend"`
	Documents  int                `json:"documents"`
	Checked    int                `json:"checked"`
	Orphans    int                `json:"orphans"`
	Missing    int                `json:"missing"`
	Repaired   bool               `json:"repaired"`
	Consistent bool               `json:"consistent"`
	Result     *index.CheckResult `json:"result,omitempty"`
}

func newCheckCmd() *cobra.Command {
	var repair bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the text index against the store",
		Long: `Compare the stored indexables with the text index and report entries
that exist only in the index (orphans) or only in the store (missing).

With --repair orphans are removed and missing entries indexed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd, repair, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Repair what the check finds")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, repair, jsonOutput bool) error {
	return withRuntime(ctx, func(rt *runtime) error {
		stats, err := rt.store.Stats(ctx)
		if err != nil {
			return err
		}

		var result *index.CheckResult
		if repair {
			result, err = rt.service.Reconcile(ctx)
		} else {
			result, err = rt.service.Check(ctx)
		}
		if err != nil {
			return err
		}
		orphans, missing := result.Counts()

		res := CheckOutput{
			Store:      stats,
			Disk:       store.DiskInfo(rt.cfg.Paths.DataDir, index.Path(rt.cfg.IndexBasePath(), rt.cfg.Search.Backend)),
			Backend:    rt.cfg.Search.Backend,
			Documents:  rt.index.Stats().DocumentCount,
			Checked:    result.Checked,
			Orphans:    orphans,
			Missing:    missing,
			Repaired:   repair && len(result.Inconsistencies) > 0,
			Consistent: len(result.Inconsistencies) == 0,
		}
		if jsonOutput {
			res.Result = result
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		printCheck(output.New(cmd.OutOrStdout()), res)
		return nil
	})
}

func printCheck(out *output.Writer, res CheckOutput) {
	out.Heading("Store")
	out.Field("Data directory", res.Disk.DataDir)
	out.Field("Database", store.FormatBytes(res.Disk.DatabaseBytes))
	out.Field("Last write", store.FormatTime(res.Disk.UpdatedAt))
	out.Field("Resources", fmt.Sprint(res.Store.Resources))
	types := make([]string, 0, len(res.Store.ByType))
	for t := range res.Store.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		out.Field("  "+t, fmt.Sprint(res.Store.ByType[t]))
	}
	out.Field("Relationships", fmt.Sprint(res.Store.Relationships))
	out.Field("Indexables", fmt.Sprint(res.Store.Indexables))
	out.Field("Contexts", fmt.Sprint(res.Store.Contexts))
	out.Newline()

	out.Heading("Text index")
	out.Field("Backend", res.Backend)
	out.Field("Size", store.FormatBytes(res.Disk.IndexBytes))
	out.Field("Documents", fmt.Sprint(res.Documents))
	out.Field("Checked", fmt.Sprint(res.Checked))
	out.Newline()

	switch {
	case res.Consistent:
		out.Success("Text index is consistent")
	case res.Repaired:
		out.Successf("Repaired %d orphaned and %d missing entries", res.Orphans, res.Missing)
	default:
		out.Warningf("%d orphaned and %d missing entries", res.Orphans, res.Missing)
		out.Status("", "Run 'iiifstore check --repair' to fix them")
	}
}

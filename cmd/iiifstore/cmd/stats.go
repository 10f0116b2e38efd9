package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var days int
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show search query statistics",
		Long: `Show what was searched: query types, latency, the most frequent terms
and recent queries without results.

Queries are only recorded with search.query_metrics: true.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 {
				return ierrors.New(ierrors.ErrCodeInvalidInput, "--days must be at least 1", nil)
			}
			return runStats(cmd.Context(), cmd, days, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "Only count queries of the last N days")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of terms and zero-result queries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, days, limit int, jsonOutput bool) error {
	return withRuntime(ctx, func(rt *runtime) error {
		ms, err := telemetry.NewGormStore(ctx, rt.store.DB(ctx))
		if err != nil {
			return err
		}
		snap, err := ms.Report(ctx, time.Now().AddDate(0, 0, -(days-1)), limit)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		out := output.New(cmd.OutOrStdout())
		if snap.TotalQueries == 0 {
			out.Status("", fmt.Sprintf("No queries recorded in the last %d days", days))
			if !rt.cfg.Search.QueryMetrics {
				out.Dim("Set search.query_metrics: true to record them")
			}
			return nil
		}
		printStats(out, snap, days)
		return nil
	})
}

func printStats(out *output.Writer, snap *telemetry.Snapshot, days int) {
	out.Heading(fmt.Sprintf("Queries (last %d days)", days))
	out.Field("Total", fmt.Sprint(snap.TotalQueries))
	out.Field("Without results", fmt.Sprintf("%d (%.1f%%)", snap.ZeroResultCount, snap.ZeroResultPercentage()))
	types := make([]string, 0, len(snap.TypeCounts))
	for t := range snap.TypeCounts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		out.Field("  "+t, fmt.Sprint(snap.TypeCounts[telemetry.QueryType(t)]))
	}
	out.Newline()

	out.Heading("Latency")
	for _, b := range telemetry.Buckets {
		if n := snap.Latency[b]; n > 0 {
			out.Field(string(b), fmt.Sprint(n))
		}
	}
	out.Newline()

	if len(snap.TopTerms) > 0 {
		out.Heading("Top terms")
		for _, tc := range snap.TopTerms {
			out.Field(tc.Term, fmt.Sprint(tc.Count))
		}
		out.Newline()
	}

	if len(snap.ZeroResultQueries) > 0 {
		out.Heading("Recent queries without results")
		for _, q := range snap.ZeroResultQueries {
			out.Status("", "  "+q)
		}
	}
}

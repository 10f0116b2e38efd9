package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/output"
	"github.com/Aman-CERP/iiifstore/internal/search"
	"github.com/Aman-CERP/iiifstore/internal/view"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	query         string
	searchType    string
	language      string
	facets        []string
	facetOp       string
	facetOn       string
	filters       []string
	sort          string
	contexts      []string
	types         []string
	matchingParts bool
	page          int
	pageSize      int
	request       string
	jsonOutput    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search stored resources",
		Long: `Search stored resources by full text, facets, resource filters and
contexts. Without any criteria every resource is listed.

Facets have the form type:subtype=value and match the indexables of a
resource. Facets on the same type:subtype are ORed, different ones ANDed.
Filters have the form "class.field operator value", where class is
iiifresource or context and operator is exact, iexact, contains,
icontains or in (comma-separated values).

Examples:
  iiifstore search heron
  iiifstore search --query "grey heron" --search-type phrase
  iiifstore search --facet metadata:author=Audubon --type manifest
  iiifstore search --facet metadata:author=Audubon --facet-on Manifest --type canvas
  iiifstore search --filter "iiifresource.label icontains birds"
  iiifstore search --sort descriptive:navdate:indexable_date_range_start
  iiifstore search --request query.json --json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.query == "" {
				opts.query = strings.Join(args, " ")
			}
			return runSearch(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "Full-text query (default: the arguments)")
	cmd.Flags().StringVar(&opts.searchType, "search-type", "", "websearch, plain, phrase or raw")
	cmd.Flags().StringVarP(&opts.language, "lang", "l", "", "Query language: a code (en, deu) or a name (german)")
	cmd.Flags().StringArrayVarP(&opts.facets, "facet", "f", nil, "Facet type:subtype=value (repeatable)")
	cmd.Flags().StringVar(&opts.facetOp, "facet-op", "", "Facet operator: exact, iexact (default), contains or icontains")
	cmd.Flags().StringVar(&opts.facetOn, "facet-on", "", "Match facets on ancestors of this IIIF type instead of the resource")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, `Resource filter "class.field operator value" (repeatable)`)
	cmd.Flags().StringVar(&opts.sort, "sort", "", "Sort by indexable type:subtype[:column]")
	cmd.Flags().StringArrayVar(&opts.contexts, "context", nil, "Only resources in this context slug (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.types, "type", "t", nil, "Only resources of this IIIF type (repeatable)")
	cmd.Flags().BoolVar(&opts.matchingParts, "matching-parts", false, "List the canvases and ranges with their own hits")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 0, "Page number (1-based)")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Results per page (default: search.page_size)")
	cmd.Flags().StringVar(&opts.request, "request", "", "Read the whole search request from a JSON file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, opts searchOptions) error {
	req, err := buildSearchRequest(opts)
	if err != nil {
		return err
	}

	return withRuntime(ctx, func(rt *runtime) error {
		resp, err := rt.engine.Query(ctx, req)
		if err != nil {
			return err
		}

		v := view.For(view.OpSearch)
		v.ThumbnailWidth = rt.cfg.Images.ThumbnailWidth
		if opts.jsonOutput {
			results := make([]view.Document, 0, len(resp.Results))
			for _, r := range resp.Results {
				doc, err := v.Result(r)
				if err != nil {
					return ierrors.InternalError("failed to render result", err)
				}
				results = append(results, doc)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"count":     resp.Count,
				"page":      resp.Page,
				"page_size": resp.PageSize,
				"results":   results,
			})
		}

		formatSearchText(output.New(cmd.OutOrStdout()), req, resp)
		return nil
	})
}

// buildSearchRequest reads --request or assembles a request from flags.
// Flags given next to --request override the file.
func buildSearchRequest(opts searchOptions) (*search.Request, error) {
	req := &search.Request{}
	if opts.request != "" {
		data, err := os.ReadFile(opts.request)
		if err != nil {
			return nil, ierrors.New(ierrors.ErrCodeFileNotFound, "cannot read search request", err).
				WithDetail("path", opts.request)
		}
		if err := json.Unmarshal(data, req); err != nil {
			return nil, ierrors.InvalidQuery("search request is not valid JSON").
				WithDetail("path", opts.request).
				WithDetail("error", err.Error())
		}
	}

	if q := strings.TrimSpace(opts.query); q != "" {
		req.Fulltext = q
	}
	if opts.searchType != "" {
		req.SearchType = opts.searchType
	}
	if opts.language != "" {
		req.SearchLanguage = opts.language
	}
	for _, f := range opts.facets {
		facet, err := parseFacet(f, opts.facetOp)
		if err != nil {
			return nil, err
		}
		req.Facets = append(req.Facets, facet)
	}
	if opts.facetOn != "" {
		req.FacetOn = &search.FacetOn{ResourceType: opts.facetOn}
	}
	for _, f := range opts.filters {
		filter, err := parseFilter(f)
		if err != nil {
			return nil, err
		}
		req.ResourceFilters = append(req.ResourceFilters, filter)
	}
	if opts.sort != "" {
		order, err := parseSort(opts.sort)
		if err != nil {
			return nil, err
		}
		req.SortOrder = order
	}
	req.Contexts = append(req.Contexts, opts.contexts...)
	req.Types = append(req.Types, opts.types...)
	if opts.matchingParts {
		req.MatchingParts = true
	}
	if opts.page > 0 {
		req.Page = opts.page
	}
	if opts.pageSize > 0 {
		req.PageSize = opts.pageSize
	}
	return req, nil
}

// parseFacet parses "type:subtype=value".
func parseFacet(s, operator string) (search.Facet, error) {
	key, value, ok := strings.Cut(s, "=")
	typ, subtype, hasSub := strings.Cut(key, ":")
	if !ok || !hasSub || typ == "" || subtype == "" {
		return search.Facet{}, ierrors.InvalidQuery(fmt.Sprintf("invalid facet %q", s)).
			WithSuggestion("Use type:subtype=value, e.g. metadata:author=Audubon")
	}
	return search.Facet{
		Type:     strings.TrimSpace(typ),
		Subtype:  strings.TrimSpace(subtype),
		Value:    value,
		Operator: operator,
	}, nil
}

// parseFilter parses "class.field operator value". The value of "in" is a
// comma-separated list.
func parseFilter(s string) (search.ResourceFilter, error) {
	invalid := func() error {
		return ierrors.InvalidQuery(fmt.Sprintf("invalid filter %q", s)).
			WithSuggestion(`Use "class.field operator value", e.g. "iiifresource.label icontains birds"`)
	}

	parts := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(parts) != 3 {
		return search.ResourceFilter{}, invalid()
	}
	class, field, ok := strings.Cut(parts[0], ".")
	if !ok || class == "" || field == "" {
		return search.ResourceFilter{}, invalid()
	}

	filter := search.ResourceFilter{
		ResourceClass: class,
		Field:         field,
		Operator:      strings.ToLower(parts[1]),
		Value:         strings.TrimSpace(parts[2]),
	}
	if filter.Operator == search.OpIn {
		values := strings.Split(parts[2], ",")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		filter.Value = values
	}
	return filter, nil
}

// parseSort parses "type:subtype[:column]".
func parseSort(s string) (*search.SortOrder, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, ierrors.InvalidQuery(fmt.Sprintf("invalid sort %q", s)).
			WithSuggestion("Use type:subtype or type:subtype:column, e.g. descriptive:navdate:indexable_date_range_start")
	}
	order := &search.SortOrder{Type: parts[0], Subtype: parts[1]}
	if len(parts) == 3 {
		order.ValueForSort = parts[2]
	}
	return order, nil
}

// formatSearchText prints a page of results for the terminal.
func formatSearchText(out *output.Writer, req *search.Request, resp *search.Response) {
	if resp.Count == 0 {
		if req.Fulltext != "" {
			out.Status("", fmt.Sprintf("No results found for %q", req.Fulltext))
		} else {
			out.Status("", "No results found")
		}
		return
	}

	pages := 1
	if resp.PageSize > 0 {
		pages = (resp.Count + resp.PageSize - 1) / resp.PageSize
	}
	if req.Fulltext != "" {
		out.Statusf("🔍", "Found %d results for %q (page %d of %d):", resp.Count, req.Fulltext, resp.Page, pages)
	} else {
		out.Statusf("🔍", "Found %d results (page %d of %d):", resp.Count, resp.Page, pages)
	}
	out.Newline()

	for i, r := range resp.Results {
		num := (resp.Page-1)*resp.PageSize + i + 1
		out.Statusf("", "%d. %s (%s, rank: %.2f)", num, view.DisplayLabel(r.Label, r.OriginalID), r.IIIFType, r.Rank)
		out.Dim(r.ID + "  " + r.OriginalID)
		if r.Snippet != "" {
			out.Status("", "   "+out.Highlight(r.Snippet))
		}
		for _, p := range r.MatchingParts {
			out.Status("", fmt.Sprintf("   - %s (%s) %s", view.DisplayLabel(p.Label, p.ID), p.IIIFType, p.ID))
		}
		out.Newline()
	}
}

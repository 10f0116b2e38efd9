package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/iiifstore/internal/search"
	"github.com/Aman-CERP/iiifstore/internal/store"
	"github.com/Aman-CERP/iiifstore/internal/view"
)

// FormatSearchResults formats a search response as markdown.
func FormatSearchResults(req *search.Request, resp *search.Response) string {
	if resp == nil || len(resp.Results) == 0 {
		if req != nil && req.Fulltext != "" {
			return fmt.Sprintf("No results found for \"%s\"", req.Fulltext)
		}
		return "No results found"
	}

	var sb strings.Builder
	if req != nil && req.Fulltext != "" {
		fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", req.Fulltext)
	} else {
		sb.WriteString("## Search Results\n\n")
	}
	fmt.Fprintf(&sb, "Found %d result", resp.Count)
	if resp.Count != 1 {
		sb.WriteString("s")
	}
	if pages := pageCount(resp); pages > 1 {
		fmt.Fprintf(&sb, " (page %d of %d)", resp.Page, pages)
	}
	sb.WriteString("\n\n")

	for i, r := range resp.Results {
		formatResult(&sb, (resp.Page-1)*resp.PageSize+i+1, r)
	}
	return sb.String()
}

func pageCount(resp *search.Response) int {
	if resp.PageSize <= 0 {
		return 1
	}
	return (resp.Count + resp.PageSize - 1) / resp.PageSize
}

// formatResult formats a single result.
func formatResult(sb *strings.Builder, num int, r *search.Result) {
	if r == nil {
		return
	}

	fmt.Fprintf(sb, "### %d. %s (%s, rank: %.2f)\n", num, view.DisplayLabel(r.Label, r.ID), r.IIIFType, r.Rank)
	fmt.Fprintf(sb, "**ID:** `%s`\n", r.ID)
	fmt.Fprintf(sb, "**Original ID:** %s\n", r.OriginalID)
	if r.ThumbnailURL != "" {
		fmt.Fprintf(sb, "**Thumbnail:** %s\n", r.ThumbnailURL)
	}
	if len(r.Contexts) > 0 {
		names := make([]string, len(r.Contexts))
		for i, c := range r.Contexts {
			names[i] = fmt.Sprintf("`%s`", c.ID)
		}
		fmt.Fprintf(sb, "**Contexts:** %s\n", strings.Join(names, ", "))
	}
	if r.Snippet != "" {
		fmt.Fprintf(sb, "\n> %s\n", r.Snippet)
	}
	if len(r.MatchingParts) > 0 {
		sb.WriteString("\nMatching parts:\n")
		for _, p := range r.MatchingParts {
			fmt.Fprintf(sb, "- %s (%s) `%s`\n", view.DisplayLabel(p.Label, p.ID), p.IIIFType, p.ID)
		}
	}
	sb.WriteString("\n")
}

// FormatContexts formats the context list as a markdown table.
func FormatContexts(contexts []store.ContextSummary) string {
	if len(contexts) == 0 {
		return "No contexts defined"
	}
	var sb strings.Builder
	sb.WriteString("| context | resources |\n|---|---|\n")
	for _, c := range contexts {
		fmt.Fprintf(&sb, "| `%s` | %d |\n", c.ID, c.Resources)
	}
	return sb.String()
}

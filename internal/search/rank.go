package search

import (
	"sort"

	"github.com/Aman-CERP/iiifstore/internal/index"
)

// CoverDensity ranks one document from its matched term locations.
//
// A cover is a shortest run of positions containing every distinct matched
// term. Each cover adds terms/length, so one occurrence of a one-term query
// scores 1.0, adjacent phrase words score 1.0, and scattered words score
// less. Covers are found left to right, the next search starting just after
// the previous cover's first position.
func CoverDensity(locs []index.Location) float64 {
	if len(locs) == 0 {
		return 0
	}
	sorted := make([]index.Location, len(locs))
	copy(sorted, locs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Pos < sorted[j].Pos })

	terms := make(map[string]bool)
	for _, l := range sorted {
		terms[l.Term] = true
	}
	want := len(terms)

	var rank float64
	for from := 0; from < len(sorted); {
		end := coverEnd(sorted, from, want)
		if end < 0 {
			break
		}
		start := coverStart(sorted, from, end, want)
		length := sorted[end].Pos - sorted[start].Pos + 1
		if length < 1 {
			length = 1
		}
		rank += float64(want) / float64(length)
		from = start + 1
	}
	return rank
}

// coverEnd returns the first index at which locs[from:] has seen want
// distinct terms, or -1.
func coverEnd(locs []index.Location, from, want int) int {
	seen := make(map[string]bool, want)
	for i := from; i < len(locs); i++ {
		seen[locs[i].Term] = true
		if len(seen) == want {
			return i
		}
	}
	return -1
}

// coverStart returns the last index s in [from, end] such that
// locs[s:end+1] still holds want distinct terms.
func coverStart(locs []index.Location, from, end, want int) int {
	seen := make(map[string]bool, want)
	for i := end; i >= from; i-- {
		seen[locs[i].Term] = true
		if len(seen) == want {
			return i
		}
	}
	return from
}

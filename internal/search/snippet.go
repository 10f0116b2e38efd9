package search

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/iiifstore/internal/index"
)

// SnippetOptions shapes highlighted snippets.
type SnippetOptions struct {
	MinWords     int
	MaxWords     int
	MaxFragments int

	StartSel  string
	StopSel   string
	Separator string
}

// DefaultSnippetOptions returns 25 to 50 word fragments, at most three,
// with matches in <b> tags.
func DefaultSnippetOptions() SnippetOptions {
	return SnippetOptions{
		MinWords:     25,
		MaxWords:     50,
		MaxFragments: 3,
		StartSel:     "<b>",
		StopSel:      "</b>",
		Separator:    " ... ",
	}
}

func (o SnippetOptions) withDefaults() SnippetOptions {
	d := DefaultSnippetOptions()
	if o.MinWords <= 0 {
		o.MinWords = d.MinWords
	}
	if o.MaxWords <= 0 {
		o.MaxWords = d.MaxWords
	}
	if o.MaxWords < o.MinWords {
		o.MaxWords = o.MinWords
	}
	if o.MaxFragments <= 0 {
		o.MaxFragments = d.MaxFragments
	}
	if o.StartSel == "" && o.StopSel == "" {
		o.StartSel, o.StopSel = d.StartSel, d.StopSel
	}
	if o.Separator == "" {
		o.Separator = d.Separator
	}
	return o
}

// fragment is an inclusive range of word indexes.
type fragment struct{ first, last int }

// Snippet highlights the matched locations of text inside up to
// MaxFragments fragments of MinWords to MaxWords words. Without matches it
// returns the first MinWords words.
func Snippet(text string, locs []index.Location, opts SnippetOptions) string {
	opts = opts.withDefaults()
	words := index.Tokenize(text)
	if len(words) == 0 {
		return ""
	}

	matched := matchedWords(words, locs)
	if len(matched) == 0 {
		last := min(opts.MinWords, len(words)) - 1
		return text[words[0].Start:words[last].End]
	}

	frags := fragments(matched, len(words), opts)
	parts := make([]string, 0, len(frags))
	for _, f := range frags {
		parts = append(parts, render(text, words, f, matched, opts))
	}
	return strings.Join(parts, opts.Separator)
}

// matchedWords returns the sorted indexes of the words overlapping a
// location's byte span.
func matchedWords(words []index.Token, locs []index.Location) []int {
	hit := make(map[int]bool)
	for _, l := range locs {
		i := sort.Search(len(words), func(i int) bool { return words[i].End > l.Start })
		for ; i < len(words) && words[i].Start < l.End; i++ {
			hit[i] = true
		}
	}
	out := make([]int, 0, len(hit))
	for i := range hit {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// fragments groups matched words into windows. Each window starts at the
// first uncovered match, takes in following matches while it stays within
// MaxWords, then pads to MinWords around them.
func fragments(matched []int, total int, opts SnippetOptions) []fragment {
	var out []fragment
	for i := 0; i < len(matched) && len(out) < opts.MaxFragments; {
		first, last := matched[i], matched[i]
		j := i + 1
		for j < len(matched) && matched[j]-first+1 <= opts.MaxWords {
			last = matched[j]
			j++
		}

		if pad := opts.MinWords - (last - first + 1); pad > 0 {
			before := pad / 2
			first -= before
			last += pad - before
			if first < 0 {
				last -= first
				first = 0
			}
			if last >= total {
				first -= last - total + 1
				last = total - 1
				if first < 0 {
					first = 0
				}
			}
		}

		if n := len(out); n > 0 && first <= out[n-1].last+1 {
			out[n-1].last = max(out[n-1].last, last)
		} else {
			out = append(out, fragment{first, last})
		}

		for j < len(matched) && matched[j] <= last {
			j++
		}
		i = j
	}
	return out
}

// render writes the text of f with matched words wrapped in the selectors.
func render(text string, words []index.Token, f fragment, matched []int, opts SnippetOptions) string {
	var b strings.Builder
	pos := words[f.first].Start
	for _, m := range matched {
		if m < f.first || m > f.last {
			continue
		}
		w := words[m]
		b.WriteString(text[pos:w.Start])
		b.WriteString(opts.StartSel)
		b.WriteString(text[w.Start:w.End])
		b.WriteString(opts.StopSel)
		pos = w.End
	}
	b.WriteString(text[pos:words[f.last].End])
	return b.String()
}

package index

import (
	"fmt"
	"strings"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

// SearchType selects how query text is interpreted.
type SearchType string

const (
	// SearchWebsearch accepts quoted phrases, "or" and -negation, with
	// implicit AND between everything else.
	SearchWebsearch SearchType = "websearch"

	// SearchPlain requires every word.
	SearchPlain SearchType = "plain"

	// SearchPhrase requires the words in order.
	SearchPhrase SearchType = "phrase"

	// SearchRaw passes the text to the backend's own query syntax.
	SearchRaw SearchType = "raw"
)

// ParseSearchType parses a search type name. Empty means websearch.
func ParseSearchType(s string) (SearchType, error) {
	switch t := SearchType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return SearchWebsearch, nil
	case SearchWebsearch, SearchPlain, SearchPhrase, SearchRaw:
		return t, nil
	default:
		return "", ierrors.InvalidQuery(fmt.Sprintf("unknown search type %q", s)).
			WithSuggestion("use websearch, plain, phrase or raw")
	}
}

// Term is a word or a quoted phrase.
type Term struct {
	Text   string
	Phrase bool
}

// Clause is one ANDed part of a parsed query. Any of its alternatives
// matches the clause; a negated clause excludes documents matching any of
// them.
type Clause struct {
	Alternatives []Term
	Negated      bool
}

// Parse turns query text into clauses. Raw queries are returned as a
// single phrase-less term and left to the backend. Text without any word
// gives no clauses. A query made only of negations is rejected.
func Parse(text string, typ SearchType) ([]Clause, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var clauses []Clause
	switch typ {
	case SearchRaw:
		return []Clause{{Alternatives: []Term{{Text: text}}}}, nil
	case SearchPhrase:
		if len(Words(text)) > 0 {
			clauses = []Clause{{Alternatives: []Term{{Text: text, Phrase: true}}}}
		}
	case SearchPlain:
		for _, w := range strings.Fields(text) {
			if len(Words(w)) > 0 {
				clauses = append(clauses, Clause{Alternatives: []Term{{Text: w}}})
			}
		}
	default:
		clauses = parseWebsearch(text)
	}

	if len(clauses) > 0 && !hasPositive(clauses) {
		return nil, ierrors.InvalidQuery("query has only excluded terms").
			WithSuggestion("add at least one term without a leading -")
	}
	return clauses, nil
}

func hasPositive(clauses []Clause) bool {
	for _, c := range clauses {
		if !c.Negated {
			return true
		}
	}
	return false
}

type webToken struct {
	term    Term
	negated bool
	or      bool
}

// parseWebsearch follows web search engine conventions: "a b" is a phrase,
// -a excludes a, a or b needs either, and everything else is required.
func parseWebsearch(text string) []Clause {
	var clauses []Clause
	pendingOr := false
	for _, tok := range lexWebsearch(text) {
		if tok.or {
			pendingOr = len(clauses) > 0 && !clauses[len(clauses)-1].Negated
			continue
		}
		if pendingOr && !tok.negated {
			last := &clauses[len(clauses)-1]
			last.Alternatives = append(last.Alternatives, tok.term)
			pendingOr = false
			continue
		}
		pendingOr = false
		clauses = append(clauses, Clause{Alternatives: []Term{tok.term}, Negated: tok.negated})
	}
	return clauses
}

func lexWebsearch(text string) []webToken {
	var out []webToken
	rs := []rune(text)
	for i := 0; i < len(rs); {
		if rs[i] == ' ' || rs[i] == '\t' || rs[i] == '\n' || rs[i] == '\r' {
			i++
			continue
		}

		negated := false
		if rs[i] == '-' && i+1 < len(rs) && rs[i+1] != ' ' {
			negated = true
			i++
		}

		if rs[i] == '"' {
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				j++
			}
			phrase := strings.TrimSpace(string(rs[i+1 : j]))
			if len(Words(phrase)) > 0 {
				out = append(out, webToken{term: Term{Text: phrase, Phrase: true}, negated: negated})
			}
			i = j + 1
			continue
		}

		j := i
		for j < len(rs) && rs[j] != ' ' && rs[j] != '\t' && rs[j] != '\n' && rs[j] != '\r' && rs[j] != '"' {
			j++
		}
		word := string(rs[i:j])
		i = j
		switch {
		case !negated && strings.EqualFold(word, "or"):
			out = append(out, webToken{or: true})
		case len(Words(word)) > 0:
			out = append(out, webToken{term: Term{Text: word}, negated: negated})
		}
	}
	return out
}

package index

import (
	"strings"
	"unicode"
	"unicode/utf8"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// Token is one word of a text with its byte span.
type Token struct {
	// Text is the lowercased word.
	Text string

	// Pos is the 1-based word position.
	Pos int

	Start int
	End   int
}

// Tokenize splits text into words. A word is a run of letters, digits and
// marks; everything else separates words.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, newToken(text, start, i, len(tokens)+1))
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, newToken(text, start, len(text), len(tokens)+1))
	}
	return tokens
}

func newToken(text string, start, end, pos int) Token {
	return Token{Text: strings.ToLower(text[start:end]), Pos: pos, Start: start, End: end}
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r))
}

// Words returns the lowercased words of text.
func Words(text string) []string {
	tokens := Tokenize(text)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

// Stem returns the porter stem of a lowercased word.
func Stem(word string) string {
	return porterstemmer.StemString(word)
}

// stemLocations finds the words of content whose stem is in terms.
func stemLocations(content string, terms map[string]bool) []Location {
	if len(terms) == 0 {
		return nil
	}
	var out []Location
	for _, tok := range Tokenize(content) {
		stem := Stem(tok.Text)
		if terms[stem] {
			out = append(out, Location{Term: stem, Pos: tok.Pos, Start: tok.Start, End: tok.End})
		}
	}
	return out
}

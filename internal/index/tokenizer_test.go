package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_OffsetsAndPositions(t *testing.T) {
	text := "Grey-Heron, (1850)"
	tokens := Tokenize(text)

	assert.Equal(t, []Token{
		{Text: "grey", Pos: 1, Start: 0, End: 4},
		{Text: "heron", Pos: 2, Start: 5, End: 10},
		{Text: "1850", Pos: 3, Start: 13, End: 17},
	}, tokens)
	assert.Equal(t, "Heron", text[tokens[1].Start:tokens[1].End])
}

func TestTokenize_Unicode(t *testing.T) {
	text := "Éléphant à Köln"
	words := Words(text)
	assert.Equal(t, []string{"éléphant", "à", "köln"}, words)

	tokens := Tokenize(text)
	assert.Equal(t, "Köln", text[tokens[2].Start:tokens[2].End])
}

func TestTokenize_Empty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize(" -- "))
}

func TestStemLocations(t *testing.T) {
	locs := stemLocations("Herons and a heron", map[string]bool{"heron": true})
	assert.Equal(t, []Location{
		{Term: "heron", Pos: 1, Start: 0, End: 6},
		{Term: "heron", Pos: 4, Start: 13, End: 18},
	}, locs)

	assert.Nil(t, stemLocations("anything", nil))
}

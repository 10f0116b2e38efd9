package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/iiifstore/internal/index"
)

func locs(pairs ...any) []index.Location {
	var out []index.Location
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, index.Location{Term: pairs[i].(string), Pos: pairs[i+1].(int)})
	}
	return out
}

func TestCoverDensity(t *testing.T) {
	tests := []struct {
		name string
		locs []index.Location
		want float64
	}{
		{"no locations", nil, 0},
		{"one occurrence", locs("heron", 3), 1},
		{"repeated occurrences add up", locs("heron", 1, "heron", 5, "heron", 9), 3},
		{"adjacent phrase", locs("grei", 2, "heron", 3), 1},
		{"scattered words rank lower", locs("grei", 1, "heron", 4), 0.5},
		{"unsorted input", locs("heron", 4, "grei", 1), 0.5},
		{"overlapping covers", locs("grei", 1, "heron", 2, "grei", 10, "heron", 11), 1 + 2.0/9 + 1},
		{"shortest cover wins", locs("grei", 1, "grei", 5, "heron", 6), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CoverDensity(tt.locs), 1e-9)
		})
	}
}

func TestCoverDensity_ConcentrationBeatsCount(t *testing.T) {
	dense := CoverDensity(locs("grei", 1, "heron", 2))
	spread := CoverDensity(locs("grei", 1, "heron", 20, "grei", 40))
	assert.Greater(t, dense, spread)
}

package flatten

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	utc := func(y int, m time.Month, d, h, min, s int) time.Time {
		return time.Date(y, m, d, h, min, s, 0, time.UTC)
	}
	tests := []struct {
		in         string
		start, end time.Time
	}{
		{"1856-01-01T00:00:00Z", utc(1856, 1, 1, 0, 0, 0), utc(1856, 1, 1, 0, 0, 0)},
		{"1856-03-14", utc(1856, 3, 14, 0, 0, 0), utc(1856, 3, 14, 23, 59, 59)},
		{"1856-03", utc(1856, 3, 1, 0, 0, 0), utc(1856, 3, 31, 23, 59, 59)},
		{"1856", utc(1856, 1, 1, 0, 0, 0), utc(1856, 12, 31, 23, 59, 59)},
		{"14 March 1856", utc(1856, 3, 14, 0, 0, 0), utc(1856, 3, 14, 23, 59, 59)},
		{"1850/1859", utc(1850, 1, 1, 0, 0, 0), utc(1859, 12, 31, 23, 59, 59)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, end, ok := ParseDate(tt.in)
			assert.True(t, ok)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}

	for _, bad := range []string{"", "spring", "1859/1850", "13/13/13"} {
		_, _, ok := ParseDate(bad)
		assert.False(t, ok, bad)
	}
}

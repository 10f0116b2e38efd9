package flatten

import (
	"strings"
	"time"
)

type dateLayout struct {
	layout string
	// span extends the parsed instant to the end of the layout's precision.
	span func(time.Time) time.Time
}

func endOfDay(t time.Time) time.Time   { return t.AddDate(0, 0, 1).Add(-time.Second) }
func endOfMonth(t time.Time) time.Time { return t.AddDate(0, 1, 0).Add(-time.Second) }
func endOfYear(t time.Time) time.Time  { return t.AddDate(1, 0, 0).Add(-time.Second) }
func instant(t time.Time) time.Time    { return t }

var dateLayouts = []dateLayout{
	{time.RFC3339Nano, instant},
	{time.RFC3339, instant},
	{"2006-01-02T15:04:05", instant},
	{"2006-01-02 15:04:05", instant},
	{"2006-01-02", endOfDay},
	{"2006/01/02", endOfDay},
	{"02.01.2006", endOfDay},
	{"2 January 2006", endOfDay},
	{"January 2, 2006", endOfDay},
	{"Jan 2, 2006", endOfDay},
	{"2 Jan 2006", endOfDay},
	{"2006-01", endOfMonth},
	{"January 2006", endOfMonth},
	{"Jan 2006", endOfMonth},
	{"2006", endOfYear},
}

// ParseDate parses a date value into a UTC range covering its precision:
// "1850" covers the whole year, "1850-03" the month, a timestamp is an
// instant. "start/end" intervals are accepted. ok is false when the value
// cannot be parsed.
func ParseDate(s string) (start, end time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, time.Time{}, false
	}
	if before, after, found := strings.Cut(s, "/"); found && !strings.Contains(after, "/") {
		s1, _, ok1 := parseOne(before)
		_, e2, ok2 := parseOne(after)
		if ok1 && ok2 && !e2.Before(s1) {
			return s1, e2, true
		}
	}
	return parseOne(s)
}

func parseOne(s string) (time.Time, time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		t = t.UTC()
		return t, l.span(t).UTC(), true
	}
	return time.Time{}, time.Time{}, false
}

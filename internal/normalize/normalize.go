// Package normalize turns the loosely formatted entity strings a language
// model extracts from a user message into the canonical forms the metric
// store expects: ISO dates, HH:MM:SS times, split composite readings and
// canonical metric type names.
//
// Every function is pure. The reference instant is always supplied by the
// caller, so nothing here reads the wall clock.
package normalize

import (
	"strconv"
	"strings"
	"time"
)

// Layouts of resolved dates and times.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// DefaultSeparator separates the two halves of a composite reading such as
// "120/80".
const DefaultSeparator = "/"

// dayOffsets maps relative day words to their offset from the reference day.
var dayOffsets = map[string]int{
	"today":     0,
	"yesterday": -1,
	"tomorrow":  1,
}

// timesOfDay is searched in order; the first substring hit wins.
var timesOfDay = []struct {
	word  string
	clock string
}{
	{"night", "21:00:00"},
	{"morning", "09:00:00"},
	{"afternoon", "14:00:00"},
	{"evening", "18:00:00"},
}

// ResolveDate resolves "today", "yesterday" and "tomorrow" (case-insensitive)
// to a calendar date relative to ref in ref's location. Any other input is
// assumed to be a date already and is returned unchanged.
func ResolveDate(text string, ref time.Time) string {
	off, ok := dayOffsets[strings.ToLower(strings.TrimSpace(text))]
	if !ok {
		return text
	}
	return ref.AddDate(0, 0, off).Format(DateLayout)
}

// ResolveTime resolves a time-of-day phrase. Phrases containing "night",
// "morning", "afternoon" or "evening" map to fixed clock times (searched in
// that order). "now" and the empty string resolve to ref's clock time. Any
// other input is returned unchanged.
func ResolveTime(text string, ref time.Time) string {
	lower := strings.ToLower(text)
	for _, tod := range timesOfDay {
		if strings.Contains(lower, tod.word) {
			return tod.clock
		}
	}
	switch strings.TrimSpace(lower) {
	case "", "now":
		return ref.Format(TimeLayout)
	}
	return text
}

// SplitComposite splits value on sep into exactly two parts. ok is false
// unless both parts are non-empty and parse as numbers. Returned parts are
// trimmed of surrounding whitespace.
func SplitComposite(value, sep string) (parts []string, ok bool) {
	if sep == "" {
		sep = DefaultSeparator
	}
	raw := strings.Split(value, sep)
	if len(raw) != 2 {
		return nil, false
	}
	out := make([]string, 0, 2)
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, false
		}
		if _, err := strconv.ParseFloat(p, 64); err != nil {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

// OrderRange returns the two ISO dates in ascending order. Bounds that are
// empty or not ISO dates are returned as given.
func OrderRange(start, end string) (string, string) {
	s, errS := time.Parse(DateLayout, start)
	e, errE := time.Parse(DateLayout, end)
	if errS != nil || errE != nil {
		return start, end
	}
	if s.After(e) {
		return end, start
	}
	return start, end
}

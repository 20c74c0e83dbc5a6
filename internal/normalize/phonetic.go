package normalize

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.85
	defaultFuzzyThreshold    = 0.92
)

// matcher picks the closest known name for a misspelled one. Names are
// compared as underscore-separated tokens, position by position: both names
// must have the same number of tokens, and every token pair must be equal or
// similar on its own. Token pairs whose Double Metaphone codes agree need
// a Jaro-Winkler similarity of phoneticThreshold; other pairs need the
// stricter fuzzyThreshold.
//
// So "blod_presure" matches "blood_pressure", while "blood_ketones" and
// "heart_rate_variability" match nothing.
type matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

type matcherOption func(*matcher)

func withPhoneticThreshold(threshold float64) matcherOption {
	return func(m *matcher) { m.phoneticThreshold = threshold }
}

func withFuzzyThreshold(threshold float64) matcherOption {
	return func(m *matcher) { m.fuzzyThreshold = threshold }
}

func newMatcher(opts ...matcherOption) *matcher {
	m := &matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// match returns the best candidate for name, or ok == false when no
// candidate pairs up token by token.
func (m *matcher) match(name string, candidates []string) (string, bool) {
	nameTokens := tokens(name)
	if len(nameTokens) == 0 {
		return "", false
	}

	var (
		best      string
		bestScore float64
	)
	for _, c := range candidates {
		score, ok := m.tokenwise(nameTokens, tokens(c))
		if ok && score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, best != ""
}

// tokenwise returns the mean token similarity of a and b. ok is false when
// the token counts differ or any single pair falls below its threshold.
func (m *matcher) tokenwise(a, b []string) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var sum float64
	for i := range a {
		score, ok := m.tokenScore(a[i], b[i])
		if !ok {
			return 0, false
		}
		sum += score
	}
	return sum / float64(len(a)), true
}

func (m *matcher) tokenScore(a, b string) (float64, bool) {
	if a == b {
		return 1, true
	}
	score := matchr.JaroWinkler(a, b, false)
	if soundAlike(a, b) {
		return score, score >= m.phoneticThreshold
	}
	return score, score >= m.fuzzyThreshold
}

func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == ' '
	})
}

// soundAlike reports whether any Double Metaphone code of a equals one of b.
// Empty codes never match.
func soundAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

package scanner

import (
	"context"
	"strings"
)

// DenylistScanner fails any text containing one of a configured set of
// case-insensitive phrases. It is a classifier, not a sanitizer: it never
// rewrites text, only judges it. A reference implementation standing in for
// the opaque ML classifiers spec.md treats as out of scope (§1).
type DenylistScanner struct {
	name    string
	phrases []string
}

// NewDenylistScanner builds a scanner that fails on any of the given
// phrases appearing in scanned text (case-insensitive, substring match).
func NewDenylistScanner(name string, phrases []string) *DenylistScanner {
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return &DenylistScanner{name: name, phrases: lowered}
}

// Name implements Scanner.
func (s *DenylistScanner) Name() string { return s.name }

// Scan implements Scanner. Risk is 1.0 on a hit, 0.0 otherwise — the
// denylist has no graded notion of severity.
func (s *DenylistScanner) Scan(_ context.Context, _, text string) (string, bool, float64, error) {
	lowered := strings.ToLower(text)
	for _, phrase := range s.phrases {
		if strings.Contains(lowered, phrase) {
			return text, false, 1.0, nil
		}
	}
	return text, true, 0, nil
}

// Package guess compares free-text guesses against a puzzle subject.
//
// Comparison is exact after normalization: surrounding whitespace is
// trimmed and both sides are Unicode case-folded. There is no fuzzy or
// partial matching.
package guess

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize trims surrounding whitespace and case-folds s.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	// Casers are stateful; build one per call so Normalize is goroutine safe.
	return cases.Fold().String(strings.TrimSpace(s))
}

// IsBlank reports whether s is empty after trimming.
func IsBlank(s string) bool { return strings.TrimSpace(s) == "" }

// Evaluate reports whether raw names target.
// Callers reject blank guesses before calling Evaluate.
func Evaluate(raw, target string) bool {
	return Normalize(raw) == Normalize(target)
}

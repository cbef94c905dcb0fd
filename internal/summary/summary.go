// Package summary renders completed sessions as shareable text.
package summary

import (
	"fmt"
	"math"
	"strings"

	"github.com/robalobadob/birdle/internal/game"
)

// Clock renders seconds as MM:SS. Minutes are zero-padded to two digits
// and unbounded; fractional seconds are truncated.
func Clock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Attempts renders "n/5" for a success and "X/5" for a failure.
func Attempts(r game.PuzzleResult) string {
	if !r.Success() {
		return fmt.Sprintf("X/%d", game.MaxAttempts)
	}
	return fmt.Sprintf("%d/%d", r.Attempts, game.MaxAttempts)
}

// Headline is the outcome label.
func Headline(r game.PuzzleResult) string {
	if r.Success() {
		return "You got it!"
	}
	return "Nope, try again!"
}

// Format renders r as share text. The output depends only on r.
func Format(r game.PuzzleResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Birdle %s\n", r.CompletedAt.Format("Jan 2, 2006"))
	fmt.Fprintf(&b, "%s\n", Headline(r))
	fmt.Fprintf(&b, "Attempts: %s\n", Attempts(r))
	fmt.Fprintf(&b, "Bird: %s\n", r.SubjectName)
	fmt.Fprintf(&b, "Time: %s\n", Clock(r.TimeSpentSeconds))
	b.WriteString("\nPlay at: Birdle App")
	return b.String()
}

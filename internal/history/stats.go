package history

import "github.com/robalobadob/birdle/internal/game"

// Stats summarises a player's history.
type Stats struct {
	Played        int     `json:"played"`
	Wins          int     `json:"wins"`
	CurrentStreak int     `json:"currentStreak"` // consecutive daily wins, newest first
	MaxStreak     int     `json:"maxStreak"`
	BestTime      float64 `json:"bestTimeSeconds,omitempty"`
	// Distribution[i] counts wins in i+1 attempts.
	Distribution [game.MaxAttempts]int `json:"distribution"`
}

// Summarize computes Stats from records ordered newest first, as returned by
// Store.All. Only daily records count toward streaks.
func Summarize(records []Record) Stats {
	var (
		s       Stats
		run     int
		hasBest bool
	)
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		s.Played++
		if r.Success {
			s.Wins++
			if r.Attempts >= 1 && r.Attempts <= game.MaxAttempts {
				s.Distribution[r.Attempts-1]++
			}
			if !hasBest || r.TimeSpentSeconds < s.BestTime {
				s.BestTime, hasBest = r.TimeSpentSeconds, true
			}
		}
		if r.Mode != game.ModeDaily {
			continue
		}
		if r.Success {
			run++
			s.MaxStreak = max(s.MaxStreak, run)
		} else {
			run = 0
		}
	}
	s.CurrentStreak = run
	return s
}

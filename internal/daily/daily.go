// Package daily implements the one-play-per-day rule.
//
// A calendar day is the half-open interval [start of day, start of next
// day) in a single location. The next day is found with calendar
// arithmetic, so 23- and 25-hour DST days are handled.
package daily

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/birdle/internal/game"
	"github.com/robalobadob/birdle/internal/history"
)

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// DateKey returns YYYY-MM-DD for t in loc; it is the daily puzzle id.
func DateKey(t time.Time, loc *time.Location) string {
	start, _ := DayBounds(t, loc)
	return start.Format("2006-01-02")
}

// MayStart reports whether no daily record in history completed on the day
// of today (in loc). Practice records never lock the daily puzzle.
func MayStart(records []history.Record, today time.Time, loc *time.Location) bool {
	start, end := DayBounds(today, loc)
	for _, r := range records {
		if r.Mode == game.ModePractice {
			continue
		}
		if !r.CompletedAt.Before(start) && r.CompletedAt.Before(end) {
			return false
		}
	}
	return true
}

// Gate is the store-backed daily lock for one player.
type Gate struct {
	Store    history.Store
	Owner    string
	Location *time.Location
	Clock    game.Clock
}

// MayStart counts the owner's daily records for today. A storage failure is
// logged and allows play.
func (g Gate) MayStart(ctx context.Context) bool {
	clk := g.Clock
	if clk == nil {
		clk = game.SystemClock{}
	}
	start, end := DayBounds(clk.Now(), g.Location)
	n, err := g.Store.CountBetween(ctx, g.Owner, game.ModeDaily, start, end)
	if err != nil {
		log.Warn().Err(err).Str("owner", g.Owner).Msg("daily lock check failed; allowing play")
		return true
	}
	return n == 0
}

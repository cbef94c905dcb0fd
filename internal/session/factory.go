// internal/session/factory.go
//
// Builds puzzle sessions in daily or practice mode.
// Responsibilities:
//   - Fetch the subject from the upstream client (no retry; failures are
//     returned typed so the caller can offer a retry).
//   - Build the reveal sequence and load its frames in the background.
//   - Wire the daily lock (daily only) and the history sink.
//   - Track which player owns each live session so that only one daily
//     session per player and day can start, and so that a login can move
//     guest sessions to the account.
//
// History append failures are logged and swallowed: a lost record never
// blocks play.

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/birdle/internal/birdnet"
	"github.com/robalobadob/birdle/internal/daily"
	"github.com/robalobadob/birdle/internal/game"
	"github.com/robalobadob/birdle/internal/history"
	"github.com/robalobadob/birdle/internal/metrics"
	"github.com/robalobadob/birdle/internal/reveal"
	"github.com/robalobadob/birdle/internal/subject"
)

// PracticePoolSize is the number of fixed practice puzzles (ids 1..5).
const PracticePoolSize = 5

const (
	defaultLoadTimeout  = 2 * time.Minute
	historyWriteTimeout = 5 * time.Second
)

// ErrUnknownPuzzle is returned for practice ids outside the pool.
var ErrUnknownPuzzle = errors.New("unknown practice puzzle")

// Upstream is the network collaborator the factory needs.
type Upstream interface {
	FetchDaily(ctx context.Context) (subject.Subject, error)
	FetchPuzzle(ctx context.Context, id int) (subject.Subject, error)
	FetchImage(ctx context.Context, url string) (birdnet.Image, error)
}

// Factory creates controllers. The zero value is not usable; set Upstream
// and History.
type Factory struct {
	Upstream     Upstream
	History      history.Store
	Location     *time.Location // calendar for the daily lock; time.Local if nil
	Clock        game.Clock
	TickInterval time.Duration
	LoadTimeout  time.Duration

	loads sync.WaitGroup

	mu     sync.Mutex
	owners map[string]string   // live session id -> owner
	claims map[dailyKey]string // started daily session id per owner and day
}

type dailyKey struct {
	owner string
	date  string
}

// DailyGate returns the daily lock for owner.
func (f *Factory) DailyGate(owner string) daily.Gate {
	return daily.Gate{Store: f.History, Owner: owner, Location: f.Location, Clock: f.clock()}
}

// DailyKey is today's daily puzzle id.
func (f *Factory) DailyKey() string {
	return daily.DateKey(f.clock().Now(), f.Location)
}

// NewDaily fetches today's puzzle and returns an unstarted daily session.
func (f *Factory) NewDaily(ctx context.Context, owner string) (*game.Controller, error) {
	s, err := f.Upstream.FetchDaily(ctx)
	if err != nil {
		return nil, fmt.Errorf("daily puzzle: %w", err)
	}
	return f.build(game.ModeDaily, f.DailyKey(), s, owner)
}

// NewPractice fetches practice puzzle id (1..PracticePoolSize) and returns
// an unstarted practice session. Practice has no play limit.
func (f *Factory) NewPractice(ctx context.Context, owner string, id int) (*game.Controller, error) {
	if id < 1 || id > PracticePoolSize {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPuzzle, id)
	}
	s, err := f.Upstream.FetchPuzzle(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("practice puzzle %d: %w", id, err)
	}
	return f.build(game.ModePractice, "practice-"+strconv.Itoa(id), s, owner)
}

// Wait blocks until every background frame load has finished.
func (f *Factory) Wait() { f.loads.Wait() }

// Reassign moves every live session of from, and its claim on today's
// daily puzzle, to to. Results completed afterwards are recorded for to.
func (f *Factory) Reassign(from, to string) {
	if from == "" || from == to {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, owner := range f.owners {
		if owner == from {
			f.owners[id] = to
		}
	}
	for k, id := range f.claims {
		if k.owner != from {
			continue
		}
		delete(f.claims, k)
		moved := dailyKey{owner: to, date: k.date}
		if _, taken := f.claims[moved]; !taken {
			f.claims[moved] = id
		}
	}
}

func (f *Factory) build(mode game.Mode, puzzleID string, s subject.Subject, owner string) (*game.Controller, error) {
	frames, err := reveal.New(s.ImageURLs())
	if err != nil {
		return nil, err
	}
	var (
		c    *game.Controller
		gate game.Gate
	)
	if mode == game.ModeDaily {
		gate = game.GateFunc(func(ctx context.Context) bool { return f.mayStartDaily(ctx, c) })
	}
	c, err = game.New(game.Config{
		Mode:         mode,
		PuzzleID:     puzzleID,
		Subject:      s,
		Frames:       frames,
		Gate:         gate,
		Sink:         game.SinkFunc(func(r game.PuzzleResult) { f.record(f.ownerOf(c.ID(), owner), r) }),
		Clock:        f.Clock,
		TickInterval: f.TickInterval,
	})
	if err != nil {
		return nil, err
	}
	f.track(c, owner)
	f.startLoading(c)
	return c, nil
}

// mayStartDaily allows c to start when the owner has no daily result for
// today and no other started daily session for today. On success c holds
// the day's claim until it is abandoned.
func (f *Factory) mayStartDaily(ctx context.Context, c *game.Controller) bool {
	owner := f.ownerOf(c.ID(), "")
	if !f.DailyGate(owner).MayStart(ctx) {
		return false
	}
	today := f.DailyKey()

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, live := f.owners[c.ID()]; !live {
		return false
	}
	owner = f.owners[c.ID()]
	k := dailyKey{owner: owner, date: today}
	if id, ok := f.claims[k]; ok && id != c.ID() {
		log.Info().Str("session", c.ID()).Str("other", id).Str("owner", owner).Msg("daily puzzle already in play")
		return false
	}
	for old := range f.claims {
		if old.date != today {
			delete(f.claims, old)
		}
	}
	f.claims[k] = c.ID()
	return true
}

// track records c's owner until the session ends. Abandoning releases the
// daily claim; completing keeps it, so the day stays locked even when the
// history write fails.
func (f *Factory) track(c *game.Controller, owner string) {
	id := c.ID()
	f.mu.Lock()
	if f.owners == nil {
		f.owners = make(map[string]string)
		f.claims = make(map[dailyKey]string)
	}
	f.owners[id] = owner
	f.mu.Unlock()

	c.Subscribe(func(ev game.Event) {
		if ev.Type != game.EventAbandoned && ev.Type != game.EventCompleted {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.owners, id)
		if ev.Type == game.EventAbandoned {
			for k, claimed := range f.claims {
				if claimed == id {
					delete(f.claims, k)
				}
			}
		}
	})
}

// ownerOf returns the current owner of live session id, or def.
func (f *Factory) ownerOf(id, def string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner, ok := f.owners[id]; ok {
		return owner
	}
	return def
}

// startLoading fetches every frame in the background. Abandoning the
// session cancels outstanding loads.
func (f *Factory) startLoading(c *game.Controller) {
	timeout := f.LoadTimeout
	if timeout <= 0 {
		timeout = defaultLoadTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	unsubscribe := c.Subscribe(func(ev game.Event) {
		if ev.Type == game.EventAbandoned {
			cancel()
		}
	})

	fetch := reveal.FetcherFunc(func(ctx context.Context, url string) (reveal.Payload, error) {
		img, err := f.Upstream.FetchImage(ctx, url)
		if err != nil {
			return reveal.Payload{}, err
		}
		return reveal.Payload{Data: img.Data, ContentType: img.ContentType}, nil
	})

	f.loads.Add(1)
	go func() {
		defer f.loads.Done()
		defer cancel()
		defer unsubscribe()
		n := c.Frames().Load(ctx, fetch)
		log.Debug().Str("session", c.ID()).Int("loaded", n).Msg("frames loaded")
	}()
}

func (f *Factory) record(owner string, r game.PuzzleResult) {
	if f.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	rec := history.FromResult(owner, r)
	if err := f.History.Append(ctx, rec); err != nil {
		metrics.HistoryWriteErrors.Inc()
		log.Error().Err(err).Str("owner", owner).Str("puzzle", r.PuzzleID).Msg("save puzzle result")
		return
	}
	log.Debug().Str("owner", owner).Str("record", rec.ID).Msg("puzzle result saved")
}

func (f *Factory) clock() game.Clock {
	if f.Clock == nil {
		return game.SystemClock{}
	}
	return f.Clock
}

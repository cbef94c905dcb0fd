// internal/game/engine.go
//
// Session controller for a single Birdle puzzle.
// Responsibilities:
//   - Drive the lifecycle: not_started → in_progress → completed | abandoned.
//   - Count attempts, keep the guess log, and advance the displayed frame.
//   - Run the elapsed-time ticker while in progress and stop it on every exit.
//   - Emit exactly one PuzzleResult on natural completion.
//   - Notify subscribers of every change.
//
// Notes:
//   - All mutation happens under c.mu. Ticker shutdown, the result sink and
//     subscriber callbacks run after the lock is released, so callbacks may
//     read the controller freely. A tick subscriber may also submit a guess
//     or abandon; stopping the ticker from its own callback does not wait.
//   - Guesses are evaluated regardless of whether the current frame loaded.

package game

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/birdle/internal/guess"
	"github.com/robalobadob/birdle/internal/metrics"
	"github.com/robalobadob/birdle/internal/reveal"
	"github.com/robalobadob/birdle/internal/subject"
)

// Config wires a controller to its puzzle and collaborators.
type Config struct {
	Mode     Mode
	PuzzleID string
	Subject  subject.Subject

	Frames       *reveal.Sequence // defaults to reveal.ForSubject(Subject)
	Gate         Gate             // consulted in daily mode only; nil allows
	Sink         ResultSink       // receives the completed result; may be nil
	Clock        Clock            // defaults to SystemClock
	TickInterval time.Duration    // defaults to DefaultTickInterval
}

// Controller is the puzzle session state machine.
type Controller struct {
	id     string
	mode   Mode
	puzzle string
	subj   subject.Subject
	frames *reveal.Sequence
	gate   Gate
	sink   ResultSink
	clock  Clock
	every  time.Duration

	mu            sync.Mutex
	phase         Phase
	outcome       Outcome
	attempt       int
	guesses       []string
	guessText     string
	alreadySolved bool
	startedAt     time.Time
	completedAt   time.Time
	elapsed       time.Duration
	frame         int
	result        *PuzzleResult
	tick          *ticker

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New constructs a controller in PhaseNotStarted.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Subject.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeDaily, ModePractice:
	default:
		return nil, fmt.Errorf("game: unknown mode %q", cfg.Mode)
	}
	c := &Controller{
		id:     randomID(),
		mode:   cfg.Mode,
		puzzle: cfg.PuzzleID,
		subj:   cfg.Subject,
		frames: cfg.Frames,
		gate:   cfg.Gate,
		sink:   cfg.Sink,
		clock:  cfg.Clock,
		every:  cfg.TickInterval,
		phase:  PhaseNotStarted,
		frame:  NoFrame,
		subs:   make(map[int]func(Event)),
	}
	if c.frames == nil {
		c.frames = reveal.ForSubject(cfg.Subject)
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.every <= 0 {
		c.every = DefaultTickInterval
	}
	c.frames.OnChange(func(f reveal.Frame) {
		c.notify(Event{Type: EventFrame, Snapshot: c.Snapshot(), Frame: f.Index})
	})
	return c, nil
}

// ID is the session identifier.
func (c *Controller) ID() string { return c.id }

// Mode reports daily or practice.
func (c *Controller) Mode() Mode { return c.mode }

// Subject returns the puzzle subject.
func (c *Controller) Subject() subject.Subject { return c.subj }

// Frames exposes the reveal sequence (for loading and serving images).
func (c *Controller) Frames() *reveal.Sequence { return c.frames }

// Subscribe registers fn for change events and returns an unsubscribe func.
func (c *Controller) Subscribe(fn func(Event)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Start moves the session into play. In daily mode the gate is consulted
// first; a refusal leaves the session not started, sets AlreadySolved and
// returns ErrAlreadySolved. Any phase other than not_started is rejected
// with ErrInvalidOperation.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseNotStarted {
		c.mu.Unlock()
		return fmt.Errorf("start in phase %s: %w", c.phase, ErrInvalidOperation)
	}
	c.mu.Unlock()

	if c.mode == ModeDaily && c.gate != nil && !c.gate.MayStart(ctx) {
		c.mu.Lock()
		c.alreadySolved = true
		snap := c.snapshotLocked()
		c.mu.Unlock()
		metrics.SessionsLocked.Inc()
		log.Info().Str("session", c.id).Str("puzzle", c.puzzle).Msg("daily puzzle already played")
		c.notify(Event{Type: EventAlreadySolved, Snapshot: snap})
		return ErrAlreadySolved
	}

	c.mu.Lock()
	// Re-check: another caller may have started or abandoned meanwhile.
	if c.phase != PhaseNotStarted {
		c.mu.Unlock()
		return fmt.Errorf("start in phase %s: %w", c.phase, ErrInvalidOperation)
	}
	c.phase = PhaseInProgress
	c.attempt = 1
	c.startedAt = c.clock.Now()
	c.elapsed = 0
	c.frame = reveal.FrameForAttempt(c.attempt)
	c.tick = startTicker(c.every, c.onTick)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	metrics.SessionsStarted.WithLabelValues(string(c.mode)).Inc()
	log.Debug().Str("session", c.id).Str("mode", string(c.mode)).Str("puzzle", c.puzzle).Msg("session started")
	c.notify(Event{Type: EventStarted, Snapshot: snap})
	return nil
}

// SetGuessText records the in-progress input. Ignored once terminal.
func (c *Controller) SetGuessText(text string) {
	c.mu.Lock()
	if c.phase == PhaseCompleted || c.phase == PhaseAbandoned {
		c.mu.Unlock()
		return
	}
	c.guessText = text
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(Event{Type: EventGuessText, Snapshot: snap})
}

// SubmitGuess evaluates text against the subject.
//
// Rejected with ErrInvalidOperation, and nothing changes, when the session
// is not in progress or text is blank. A correct guess completes the session
// with success. A wrong guess is logged; on the fifth it completes with
// failure, otherwise the attempt and displayed frame advance by one.
func (c *Controller) SubmitGuess(text string) (correct bool, err error) {
	if guess.IsBlank(text) {
		return false, fmt.Errorf("blank guess: %w", ErrInvalidOperation)
	}

	c.mu.Lock()
	if c.phase != PhaseInProgress {
		phase := c.phase
		c.mu.Unlock()
		return false, fmt.Errorf("guess in phase %s: %w", phase, ErrInvalidOperation)
	}

	correct = guess.Evaluate(text, c.subj.Name)
	var (
		ev   = EventIncorrect
		done bool
	)
	switch {
	case correct:
		c.completeLocked(OutcomeSuccess)
		ev, done = EventCompleted, true
	default:
		c.guesses = append(c.guesses, text)
		c.guessText = ""
		if c.attempt >= MaxAttempts {
			c.completeLocked(OutcomeFailure)
			ev, done = EventCompleted, true
		} else {
			c.attempt++
			c.frame = reveal.FrameForAttempt(c.attempt)
		}
	}
	snap := c.snapshotLocked()
	var (
		tk  *ticker
		res PuzzleResult
	)
	if done {
		tk, c.tick = c.tick, nil
		res = *c.result
	}
	c.mu.Unlock()

	if correct {
		metrics.Guesses.WithLabelValues("correct").Inc()
	} else {
		metrics.Guesses.WithLabelValues("incorrect").Inc()
	}
	if done {
		tk.stop()
		metrics.SessionsFinished.WithLabelValues(string(c.mode), string(res.Outcome)).Inc()
		log.Info().
			Str("session", c.id).
			Str("mode", string(c.mode)).
			Str("outcome", string(res.Outcome)).
			Int("attempts", res.Attempts).
			Float64("seconds", res.TimeSpentSeconds).
			Msg("session completed")
		if c.sink != nil {
			c.sink.Record(res)
		}
	}
	c.notify(Event{Type: ev, Snapshot: snap})
	return correct, nil
}

// completeLocked performs the terminal transition. Caller holds c.mu and
// stops the detached ticker after unlocking.
func (c *Controller) completeLocked(o Outcome) {
	c.phase = PhaseCompleted
	c.outcome = o
	c.completedAt = c.clock.Now()
	c.elapsed = c.completedAt.Sub(c.startedAt)
	if c.elapsed < 0 {
		c.elapsed = 0
	}
	c.frame = reveal.FinalFrame()
	c.guessText = ""
	c.result = &PuzzleResult{
		Mode:             c.mode,
		PuzzleID:         c.puzzle,
		SubjectName:      c.subj.Name,
		Outcome:          o,
		Attempts:         c.attempt,
		TimeSpentSeconds: c.elapsed.Seconds(),
		CompletedAt:      c.completedAt,
		FinalImageURL:    c.subj.FinalImageURL(),
		Photographer:     c.subj.Photographer,
		License:          c.subj.License,
		SubjectURL:       c.subj.SubjectURL,
	}
}

// Abandon ends an unfinished session without a result and stops the
// ticker. It reports whether the session changed; completed sessions are
// left alone.
func (c *Controller) Abandon() bool {
	c.mu.Lock()
	if c.phase == PhaseCompleted || c.phase == PhaseAbandoned {
		c.mu.Unlock()
		return false
	}
	wasPlaying := c.phase == PhaseInProgress
	c.phase = PhaseAbandoned
	if wasPlaying {
		c.elapsed = c.clock.Now().Sub(c.startedAt)
	}
	tk := c.tick
	c.tick = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()

	tk.stop()
	if wasPlaying {
		metrics.SessionsFinished.WithLabelValues(string(c.mode), "abandoned").Inc()
	}
	log.Debug().Str("session", c.id).Bool("wasPlaying", wasPlaying).Msg("session abandoned")
	c.notify(Event{Type: EventAbandoned, Snapshot: snap})
	return true
}

// Result returns the emitted result once the session has completed.
func (c *Controller) Result() (PuzzleResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return PuzzleResult{}, false
	}
	return *c.result, true
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:            c.id,
		Mode:          c.mode,
		PuzzleID:      c.puzzle,
		Phase:         c.phase,
		Outcome:       c.outcome,
		Attempt:       c.attempt,
		MaxAttempts:   MaxAttempts,
		Guesses:       append([]string{}, c.guesses...),
		GuessText:     c.guessText,
		AlreadySolved: c.alreadySolved,
		Elapsed:       c.elapsed.Seconds(),
		Frame:         c.frame,
		Frames:        c.frames.States(),
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		s.StartedAt = &t
	}
	if !c.completedAt.IsZero() {
		t := c.completedAt
		s.CompletedAt = &t
	}
	if c.frame != NoFrame {
		s.FrameState = s.Frames[c.frame]
	}
	return s
}

// onTick refreshes elapsed time. It never touches attempt or phase.
func (c *Controller) onTick() {
	c.mu.Lock()
	if c.phase != PhaseInProgress {
		c.mu.Unlock()
		return
	}
	c.elapsed = c.clock.Now().Sub(c.startedAt)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(Event{Type: EventTick, Snapshot: snap})
}

// ticking reports whether the elapsed-time ticker is running.
func (c *Controller) ticking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick != nil
}

func (c *Controller) notify(ev Event) {
	c.subMu.Lock()
	fns := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// randomID returns a compact 16-hex-char identifier.
func randomID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

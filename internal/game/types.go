// internal/game/types.go
//
// Type definitions for the puzzle session state machine.
// Defines:
//   - Mode, Phase, Outcome: session enums.
//   - PuzzleResult: the value emitted once per naturally completed session.
//   - Snapshot: an immutable view of controller state for renderers.
//   - Event: change notifications delivered to subscribers.

package game

import (
	"context"
	"errors"
	"time"

	"github.com/robalobadob/birdle/internal/reveal"
)

// Mode selects daily (one play per day) or practice (unlimited) rules.
type Mode string

const (
	ModeDaily    Mode = "daily"
	ModePractice Mode = "practice"
)

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseNotStarted Phase = "not_started"
	PhaseInProgress Phase = "in_progress"
	PhaseCompleted  Phase = "completed" // terminal; outcome is set
	PhaseAbandoned  Phase = "abandoned" // terminal; no outcome, no result
)

// Outcome is set exactly when Phase is PhaseCompleted.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// MaxAttempts is the number of guesses per session.
const MaxAttempts = reveal.MaxAttempts

// NoFrame is the displayed frame before a session starts.
const NoFrame = -1

var (
	// ErrInvalidOperation rejects a call that the current phase does not
	// allow (guess before start or after the end, blank guess, restart).
	// No state is changed.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrAlreadySolved is returned by Start when the daily lock refuses play.
	ErrAlreadySolved = errors.New("daily puzzle already played")
)

// PuzzleResult describes one completed session. It is built once, on the
// transition into PhaseCompleted, and handed to the ResultSink.
type PuzzleResult struct {
	Mode             Mode      `json:"mode"`
	PuzzleID         string    `json:"puzzleId"`
	SubjectName      string    `json:"subjectName"`
	Outcome          Outcome   `json:"outcome"`
	Attempts         int       `json:"attempts"` // 1..5; 5 on failure
	TimeSpentSeconds float64   `json:"timeSpentSeconds"`
	CompletedAt      time.Time `json:"completedAt"`
	FinalImageURL    string    `json:"finalImageUrl"`
	Photographer     string    `json:"photographer"`
	License          string    `json:"license"`
	SubjectURL       string    `json:"subjectUrl"`
}

// Success reports whether the subject was guessed.
func (r PuzzleResult) Success() bool { return r.Outcome == OutcomeSuccess }

// Gate decides whether a daily session may start.
type Gate interface {
	MayStart(ctx context.Context) bool
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context) bool

// MayStart calls f.
func (f GateFunc) MayStart(ctx context.Context) bool { return f(ctx) }

// ResultSink receives the single result of a completed session.
type ResultSink interface {
	Record(r PuzzleResult)
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc func(r PuzzleResult)

// Record calls f.
func (f SinkFunc) Record(r PuzzleResult) { f(r) }

// Snapshot is a copy of controller state at one instant.
type Snapshot struct {
	ID            string         `json:"id"`
	Mode          Mode           `json:"mode"`
	PuzzleID      string         `json:"puzzleId"`
	Phase         Phase          `json:"phase"`
	Outcome       Outcome        `json:"outcome,omitempty"`
	Attempt       int            `json:"attempt"`
	MaxAttempts   int            `json:"maxAttempts"`
	Guesses       []string       `json:"guesses"`
	GuessText     string         `json:"guessText"`
	AlreadySolved bool           `json:"alreadySolved"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	Elapsed       float64        `json:"elapsedSeconds"`
	Frame         int            `json:"frame"` // NoFrame before start
	FrameState    reveal.State   `json:"frameState,omitempty"`
	Frames        []reveal.State `json:"frames"`
}

// Terminal reports whether the session accepts no further input.
func (s Snapshot) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseAbandoned
}

// EventType names a state change.
type EventType string

const (
	EventStarted       EventType = "started"
	EventAlreadySolved EventType = "already_solved"
	EventGuessText     EventType = "guess_text"
	EventIncorrect     EventType = "incorrect"
	EventCompleted     EventType = "completed"
	EventAbandoned     EventType = "abandoned"
	EventTick          EventType = "tick"
	EventFrame         EventType = "frame" // a frame finished loading or failed
)

// Event is delivered to subscribers after the change has been applied.
type Event struct {
	Type     EventType
	Snapshot Snapshot
	Frame    int // set for EventFrame
}

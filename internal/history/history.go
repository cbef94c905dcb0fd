// internal/history/history.go
//
// Completed-puzzle history.
//
// History is append-only from the game's point of view: one Record per
// naturally completed session, never updated or deleted. The only other
// write is Claim, which moves a guest's records onto an account at login.

package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robalobadob/birdle/internal/game"
)

// Record is one completed session.
type Record struct {
	ID               string    `json:"id"`
	Owner            string    `json:"-"`
	Mode             game.Mode `json:"mode"`
	PuzzleID         string    `json:"puzzleId"`
	SubjectName      string    `json:"subjectName"`
	Success          bool      `json:"success"`
	Attempts         int       `json:"attempts"`
	TimeSpentSeconds float64   `json:"timeSpentSeconds"`
	CompletedAt      time.Time `json:"completedAt"`
	ImageURL         string    `json:"imageUrl"`
	Photographer     string    `json:"photographer"`
	License          string    `json:"license"`
	SubjectURL       string    `json:"subjectUrl"`
}

// FromResult builds a new record with a generated id.
func FromResult(owner string, r game.PuzzleResult) Record {
	return Record{
		ID:               uuid.NewString(),
		Owner:            owner,
		Mode:             r.Mode,
		PuzzleID:         r.PuzzleID,
		SubjectName:      r.SubjectName,
		Success:          r.Success(),
		Attempts:         r.Attempts,
		TimeSpentSeconds: r.TimeSpentSeconds,
		CompletedAt:      r.CompletedAt,
		ImageURL:         r.FinalImageURL,
		Photographer:     r.Photographer,
		License:          r.License,
		SubjectURL:       r.SubjectURL,
	}
}

// Store persists history records.
type Store interface {
	// Append adds one record.
	Append(ctx context.Context, r Record) error

	// CountBetween counts owner's records of mode completed in [start, end).
	CountBetween(ctx context.Context, owner string, mode game.Mode, start, end time.Time) (int, error)

	// All returns owner's records, most recently completed first.
	All(ctx context.Context, owner string) ([]Record, error)

	// Claim reassigns every record of from to to.
	Claim(ctx context.Context, from, to string) error
}

package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/robalobadob/birdle/internal/game"
)

// SQLStore keeps history in the puzzle_history table.
type SQLStore struct{ db *sql.DB }

// NewSQLStore wraps a migrated database handle.
func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO puzzle_history
            (id, owner, mode, puzzle_id, subject_name, success, attempts,
             time_spent_seconds, completed_at, image_url, photographer, license, subject_url)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Owner, string(r.Mode), r.PuzzleID, r.SubjectName, r.Success, r.Attempts,
		r.TimeSpentSeconds, r.CompletedAt.UTC().UnixNano(), r.ImageURL, r.Photographer, r.License, r.SubjectURL,
	)
	return err
}

func (s *SQLStore) CountBetween(ctx context.Context, owner string, mode game.Mode, start, end time.Time) (int, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(1) FROM puzzle_history
        WHERE owner=? AND mode=? AND completed_at >= ? AND completed_at < ?`,
		owner, string(mode), start.UTC().UnixNano(), end.UTC().UnixNano(),
	).Scan(&cnt)
	return cnt, err
}

func (s *SQLStore) All(ctx context.Context, owner string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, owner, mode, puzzle_id, subject_name, success, attempts,
               time_spent_seconds, completed_at, image_url, photographer, license, subject_url
        FROM puzzle_history
        WHERE owner=?
        ORDER BY completed_at DESC, id ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			r    Record
			mode string
			ns   int64
		)
		if err := rows.Scan(&r.ID, &r.Owner, &mode, &r.PuzzleID, &r.SubjectName, &r.Success, &r.Attempts,
			&r.TimeSpentSeconds, &ns, &r.ImageURL, &r.Photographer, &r.License, &r.SubjectURL); err != nil {
			return nil, err
		}
		r.Mode = game.Mode(mode)
		r.CompletedAt = time.Unix(0, ns).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Claim(ctx context.Context, from, to string) error {
	if from == "" || to == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE puzzle_history SET owner=? WHERE owner=?`, to, from)
	return err
}

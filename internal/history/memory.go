// internal/history/memory.go
//
// In-memory implementation of Store, for tests and ephemeral runs.
// Concurrency-safe via RWMutex; state is lost when the process restarts.

package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robalobadob/birdle/internal/game"
)

type memory struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() Store {
	return &memory{}
}

func (m *memory) Append(ctx context.Context, r Record) error {
	if r.ID == "" {
		return errors.New("history: record without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memory) CountBetween(ctx context.Context, owner string, mode game.Mode, start, end time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if r.Owner == owner && r.Mode == mode && !r.CompletedAt.Before(start) && r.CompletedAt.Before(end) {
			n++
		}
	}
	return n, nil
}

func (m *memory) All(ctx context.Context, owner string) ([]Record, error) {
	m.mu.RLock()
	out := []Record{}
	for _, r := range m.records {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

func (m *memory) Claim(ctx context.Context, from, to string) error {
	if from == "" || to == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].Owner == from {
			m.records[i].Owner = to
		}
	}
	return nil
}

// internal/store/memory.go
//
// In-memory registry of live puzzle sessions.
//
// Characteristics:
//   - Stores *game.Controller values keyed by session id, each bound to the
//     player that created it.
//   - Concurrency-safe via RWMutex.
//   - Sessions idle for longer than the timeout are abandoned and dropped by
//     Sweep; Run calls Sweep periodically.
//   - State is lost when the process restarts. Completed results are already
//     in history by then.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/birdle/internal/game"
	"github.com/robalobadob/birdle/internal/metrics"
)

// ErrNotFound is returned for unknown ids and for sessions owned by
// another player.
var ErrNotFound = errors.New("session not found")

// Store defines the registry interface for live sessions.
type Store interface {
	// Save registers c for owner.
	Save(ctx context.Context, owner string, c *game.Controller) error

	// Get returns owner's session id and marks it as used.
	Get(ctx context.Context, owner, id string) (*game.Controller, error)

	// Delete abandons and removes owner's session id.
	Delete(ctx context.Context, owner, id string) error

	// Claim hands every session of from to to.
	Claim(ctx context.Context, from, to string) error
}

type entry struct {
	owner   string
	ctrl    *game.Controller
	touched time.Time
}

// Memory is the map-based Store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	idle     time.Duration
	clock    game.Clock
}

// NewMemoryStore constructs an empty registry. idle <= 0 disables sweeping;
// clock may be nil.
func NewMemoryStore(idle time.Duration, clock game.Clock) *Memory {
	if clock == nil {
		clock = game.SystemClock{}
	}
	return &Memory{sessions: make(map[string]*entry), idle: idle, clock: clock}
}

// Save adds or replaces the session.
func (m *Memory) Save(ctx context.Context, owner string, c *game.Controller) error {
	m.mu.Lock()
	m.sessions[c.ID()] = &entry{owner: owner, ctrl: c, touched: m.clock.Now()}
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.LiveSessions.Set(float64(n))
	return nil
}

// Get looks up a session by id for owner.
func (m *Memory) Get(ctx context.Context, owner, id string) (*game.Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || e.owner != owner {
		return nil, ErrNotFound
	}
	e.touched = m.clock.Now()
	return e.ctrl, nil
}

// Delete abandons an unfinished session and forgets it.
func (m *Memory) Delete(ctx context.Context, owner, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if !ok || e.owner != owner {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.LiveSessions.Set(float64(n))
	e.ctrl.Abandon()
	return nil
}

// Claim moves from's sessions to to and returns nil even when from has none.
func (m *Memory) Claim(ctx context.Context, from, to string) error {
	if from == "" || from == to {
		return nil
	}
	m.mu.Lock()
	moved := 0
	for _, e := range m.sessions {
		if e.owner == from {
			e.owner = to
			moved++
		}
	}
	m.mu.Unlock()
	if moved > 0 {
		log.Debug().Int("sessions", moved).Msg("guest sessions claimed")
	}
	return nil
}

// Len reports the number of registered sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep abandons and removes sessions idle for longer than the timeout and
// returns how many were removed.
func (m *Memory) Sweep() int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := m.clock.Now().Add(-m.idle)

	m.mu.Lock()
	var stale []*game.Controller
	for id, e := range m.sessions {
		if e.touched.Before(cutoff) {
			stale = append(stale, e.ctrl)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	metrics.LiveSessions.Set(float64(n))
	for _, c := range stale {
		c.Abandon()
	}
	if len(stale) > 0 {
		log.Debug().Int("removed", len(stale)).Int("live", n).Msg("idle sessions swept")
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

// Close abandons every session.
func (m *Memory) Close() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()

	metrics.LiveSessions.Set(0)
	for _, e := range all {
		e.ctrl.Abandon()
	}
}

package game

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies wall time to a controller.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// DefaultTickInterval is how often the elapsed-time display refreshes.
const DefaultTickInterval = time.Second

// ticker runs fn every interval until stopped. stop blocks until the
// goroutine has exited and is safe to call more than once. A stop issued
// while fn is running (for example from a subscriber reacting to a tick)
// returns without waiting; the goroutine exits as soon as fn returns.
type ticker struct {
	once sync.Once
	busy atomic.Bool
	done chan struct{}
	exit chan struct{}
}

func startTicker(interval time.Duration, fn func()) *ticker {
	t := &ticker{done: make(chan struct{}), exit: make(chan struct{})}
	tk := time.NewTicker(interval)
	go func() {
		defer close(t.exit)
		defer tk.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-tk.C:
				t.busy.Store(true)
				fn()
				t.busy.Store(false)
			}
		}
	}()
	return t
}

func (t *ticker) stop() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.done) })
	if t.busy.Load() {
		return
	}
	<-t.exit
}

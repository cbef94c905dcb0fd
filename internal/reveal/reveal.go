// internal/reveal/reveal.go
//
// Reveal sequence for one puzzle: the six ordered frames of a subject and
// their best-effort, independently loaded image payloads.
//
// Frame mapping:
//   - attempt a (1..5) shows frame a-1.
//   - the final reveal is always frame 5, however many attempts were used.
//
// Each frame moves Unloaded → Loaded | LoadFailed exactly once. Loads
// complete in any order; a failed frame never blocks the others and never
// blocks the session, which shows a placeholder instead. There is no retry
// here; retries belong to the network client.

package reveal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/robalobadob/birdle/internal/metrics"
	"github.com/robalobadob/birdle/internal/subject"
)

const (
	// MaxAttempts is the number of guesses a player gets.
	MaxAttempts = subject.FrameCount - 1
	// Final is the index of the full-reveal frame.
	Final = subject.FrameCount - 1

	defaultLoadConcurrency = 3
)

// FrameForAttempt maps a 1-based attempt to its frame index (attempt-1).
// Out-of-range attempts are clamped to [1, MaxAttempts].
func FrameForAttempt(attempt int) int {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > MaxAttempts {
		attempt = MaxAttempts
	}
	return attempt - 1
}

// FinalFrame is the full-reveal frame index.
func FinalFrame() int { return Final }

// State is the load state of one frame.
type State string

const (
	Unloaded   State = "unloaded"
	Loaded     State = "loaded"
	LoadFailed State = "load_failed"
)

// Payload is a fetched image.
type Payload struct {
	Data        []byte
	ContentType string
}

// Frame is a point-in-time view of one frame.
type Frame struct {
	Index   int
	URL     string
	State   State
	Payload Payload
	Err     error
}

// Fetcher loads one frame image.
type Fetcher interface {
	FetchFrame(ctx context.Context, url string) (Payload, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (Payload, error)

// FetchFrame calls f.
func (f FetcherFunc) FetchFrame(ctx context.Context, url string) (Payload, error) { return f(ctx, url) }

// ErrBadIndex is returned for frame indices outside 0..Final.
var ErrBadIndex = errors.New("frame index out of range")

// Sequence owns a subject's frames. Safe for concurrent use.
type Sequence struct {
	mu       sync.RWMutex
	frames   [subject.FrameCount]Frame
	onChange func(Frame)
}

// New builds a sequence from exactly subject.FrameCount URLs.
func New(urls []string) (*Sequence, error) {
	if len(urls) != subject.FrameCount {
		return nil, fmt.Errorf("reveal: want %d frame urls, got %d", subject.FrameCount, len(urls))
	}
	s := &Sequence{}
	for i, u := range urls {
		s.frames[i] = Frame{Index: i, URL: u, State: Unloaded}
	}
	return s, nil
}

// ForSubject builds the sequence for s's frame URLs.
func ForSubject(s subject.Subject) *Sequence {
	seq, _ := New(s.ImageURLs())
	return seq
}

// OnChange registers fn to be called after every frame state change.
// fn runs on the loading goroutine without the sequence lock held.
func (s *Sequence) OnChange(fn func(Frame)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Frame returns a copy of frame i.
func (s *Sequence) Frame(i int) (Frame, error) {
	if i < 0 || i >= subject.FrameCount {
		return Frame{}, ErrBadIndex
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames[i], nil
}

// URLs returns the frame URLs in order.
func (s *Sequence) URLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.URL
	}
	return out
}

// States returns the load state of every frame.
func (s *Sequence) States() []State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]State, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.State
	}
	return out
}

// Resolve records a loaded payload for frame i. Frames that already left
// Unloaded are not changed; the return value reports whether i changed.
func (s *Sequence) Resolve(i int, p Payload) bool {
	return s.settle(i, func(f *Frame) {
		f.State = Loaded
		f.Payload = p
	})
}

// Fail records a load failure for frame i.
func (s *Sequence) Fail(i int, err error) bool {
	return s.settle(i, func(f *Frame) {
		f.State = LoadFailed
		f.Err = err
	})
}

func (s *Sequence) settle(i int, apply func(*Frame)) bool {
	if i < 0 || i >= subject.FrameCount {
		return false
	}
	s.mu.Lock()
	f := &s.frames[i]
	if f.State != Unloaded {
		s.mu.Unlock()
		return false
	}
	apply(f)
	snapshot, fn := *f, s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return true
}

// Load fetches every unloaded frame concurrently and waits for all of them.
// It never fails as a whole: each frame settles as Loaded or LoadFailed,
// and a cancelled ctx leaves the remaining frames failed. Returns the number
// of frames loaded by this call.
func (s *Sequence) Load(ctx context.Context, f Fetcher) int {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		loaded int
	)
	g.SetLimit(defaultLoadConcurrency)

	for i, url := range s.URLs() {
		if fr, _ := s.Frame(i); fr.State != Unloaded {
			continue
		}
		i, url := i, url
		g.Go(func() error {
			p, err := f.FetchFrame(ctx, url)
			if err != nil {
				log.Warn().Err(err).Int("frame", i).Str("url", url).Msg("frame load failed")
				metrics.FrameLoads.WithLabelValues("failed").Inc()
				s.Fail(i, err)
				return nil
			}
			metrics.FrameLoads.WithLabelValues("loaded").Inc()
			if s.Resolve(i, p) {
				mu.Lock()
				loaded++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return loaded
}

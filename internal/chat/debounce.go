package chat

import (
	"sync"
	"time"
)

// scheduler coalesces bursts of triggers into a single delayed run with
// cancel-and-reschedule semantics: each Schedule replaces whatever was
// pending, so only the last scheduled function runs once the delay elapses
// without further triggers. A generation counter covers the window where a
// timer has already fired but not yet claimed its function, so a stale timer
// can never run a function that was replaced, canceled, or flushed.
type scheduler struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fn    func()
	gen   uint64
}

func newScheduler(delay time.Duration) *scheduler {
	return &scheduler{delay: delay}
}

// Schedule arms the timer with fn, replacing any pending run.
func (s *scheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.fn = fn
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

// fire claims and runs the pending function if generation gen is still
// current. Exactly one claimant wins per generation: claiming bumps the
// counter, so a concurrent Flush or a second timer finds a newer generation
// and gives up.
func (s *scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.fn == nil {
		s.mu.Unlock()
		return
	}
	fn := s.fn
	s.fn = nil
	s.gen++
	s.mu.Unlock()

	fn()
}

// Cancel drops any pending run.
func (s *scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.fn = nil
	s.gen++
}

// Flush runs any pending function immediately instead of waiting out the
// delay. Used at shutdown so the last session state is not lost.
func (s *scheduler) Flush() {
	s.mu.Lock()
	fn := s.fn
	s.fn = nil
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

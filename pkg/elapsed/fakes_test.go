package elapsed_test

import (
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type subscription struct {
	interval time.Duration
	fn       func()
	stopped  bool
}

// fakeScheduler only ticks when told to.
type fakeScheduler struct {
	mu   sync.Mutex
	subs []*subscription
}

func (s *fakeScheduler) Every(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{interval: d, fn: fn}
	s.subs = append(s.subs, sub)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		sub.stopped = true
	}
}

// Tick fires every live subscription once.
func (s *fakeScheduler) Tick() {
	for _, sub := range s.snapshot(false) {
		sub.fn()
	}
}

// TickStale fires subscriptions that were already stopped, as a late ticker would.
func (s *fakeScheduler) TickStale() {
	for _, sub := range s.snapshot(true) {
		sub.fn()
	}
}

func (s *fakeScheduler) Active() int {
	return len(s.snapshot(false))
}

func (s *fakeScheduler) Acquired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *fakeScheduler) Intervals() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub.interval)
	}
	return out
}

func (s *fakeScheduler) snapshot(stopped bool) []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*subscription
	for _, sub := range s.subs {
		if sub.stopped == stopped {
			out = append(out, sub)
		}
	}
	return out
}

type recorder struct {
	mu       sync.Mutex
	displays []string
}

func (r *recorder) record(_ string, display string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.displays = append(r.displays, display)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.displays...)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.displays) == 0 {
		return ""
	}
	return r.displays[len(r.displays)-1]
}

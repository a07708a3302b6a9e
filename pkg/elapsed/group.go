package elapsed

import (
	"context"
	"maps"
	"sync"
)

// Reading is a point-in-time view of one timer.
type Reading struct {
	Seconds int64  `json:"seconds"`
	Display string `json:"display"`
	Running bool   `json:"running"`
}

// Group keeps many independent timers keyed by ID, for example one row per
// active user on a leaderboard. Each member owns its own tick subscription.
type Group struct {
	ctx  context.Context
	opts []Option

	mu     sync.Mutex
	timers map[string]*Timer
	closed bool
}

// NewGroup returns an empty group. opts apply to every member timer;
// WithID is set per member. Cancelling ctx closes every member.
func NewGroup(ctx context.Context, opts ...Option) *Group {
	g := &Group{
		ctx:    ctx,
		opts:   opts,
		timers: make(map[string]*Timer),
	}
	context.AfterFunc(ctx, g.Close)
	return g
}

// Set creates or updates the timer for id.
func (g *Group) Set(ctx context.Context, id string, s State) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrTimerClosed
	}
	t, ok := g.timers[id]
	if !ok {
		opts := append(append(make([]Option, 0, len(g.opts)+1), g.opts...), WithID(id))
		t = NewTimer(g.ctx, opts...)
		g.timers[id] = t
	}
	g.mu.Unlock()

	return t.Update(ctx, s)
}

// Remove closes and forgets the timer for id.
func (g *Group) Remove(id string) {
	g.mu.Lock()
	t, ok := g.timers[id]
	delete(g.timers, id)
	g.mu.Unlock()

	if ok {
		t.Close()
	}
}

// Snapshot reads every member at the current instant.
func (g *Group) Snapshot() map[string]Reading {
	g.mu.Lock()
	timers := maps.Clone(g.timers)
	g.mu.Unlock()

	out := make(map[string]Reading, len(timers))
	for id, t := range timers {
		secs := t.Seconds()
		out[id] = Reading{Seconds: secs, Display: Format(secs), Running: t.Running()}
	}
	return out
}

// Running counts members that are currently ticking.
func (g *Group) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, t := range g.timers {
		if t.Running() {
			n++
		}
	}
	return n
}

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// Close releases every member's tick subscription. Safe to call more than once.
func (g *Group) Close() {
	g.mu.Lock()
	timers := g.timers
	g.timers = make(map[string]*Timer)
	g.closed = true
	g.mu.Unlock()

	for _, t := range timers {
		t.Close()
	}
}

package elapsed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/statemachine"
)

// TickInterval is how often a running timer refreshes its display.
const TickInterval = time.Second

// ErrTimerClosed is returned by Update after Close.
var ErrTimerClosed = errors.New("elapsed: timer closed")

// Timer states and events.
const (
	Idle    = statemachine.StringState("idle")
	Running = statemachine.StringState("running")

	EventStart = statemachine.StringEvent("start")
	EventStop  = statemachine.StringEvent("stop")
)

// lifecycle is shared by every Timer. Ticking is acquired only by the start
// action and released only by the stop action.
var lifecycle = statemachine.MustDefine(
	statemachine.WithTransition(Idle, Running, EventStart,
		statemachine.WithGuard(hasStartTime),
		statemachine.WithAction(acquireTick),
	),
	statemachine.WithTransition(Running, Idle, EventStop,
		statemachine.WithAction(releaseTick),
	),
)

type change struct {
	timer *Timer
	next  State
}

func hasStartTime(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
	c, ok := data.(*change)
	return ok && c.next.Live()
}

func acquireTick(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	data.(*change).timer.startTicking()
	return nil
}

func releaseTick(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	data.(*change).timer.stopTicking()
	return nil
}

// TickFunc receives a timer's formatted value on every state entry and tick.
type TickFunc func(id, display string)

// CloseFunc is called once when a timer is closed, for example when a Group
// member is removed.
type CloseFunc func(id string)

// Option configures a Timer.
type Option func(*Timer)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(t *Timer) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithScheduler overrides the tick source.
func WithScheduler(s Scheduler) Option {
	return func(t *Timer) {
		if s != nil {
			t.sched = s
		}
	}
}

// WithLogger sets the logger used for malformed state warnings.
func WithLogger(l *slog.Logger) Option {
	return func(t *Timer) {
		if l != nil {
			t.log = l
		}
	}
}

// WithOnTick registers the display callback.
func WithOnTick(fn TickFunc) Option {
	return func(t *Timer) { t.onTick = fn }
}

// WithOnClose registers the close callback.
func WithOnClose(fn CloseFunc) Option {
	return func(t *Timer) { t.onClose = fn }
}

// WithID labels the timer in callbacks and logs.
func WithID(id string) Option {
	return func(t *Timer) { t.id = id }
}

// Timer keeps a live display of a State. It ticks once per TickInterval while
// running and not at all while idle. The display is recomputed from the wall
// clock on every tick, never accumulated.
type Timer struct {
	id      string
	clock   Clock
	sched   Scheduler
	log     *slog.Logger
	onTick  TickFunc
	onClose CloseFunc

	mu       sync.Mutex
	sm       statemachine.StateMachine
	state    State
	stopTick func()
	gen      uint64
	closed   bool
	unwatch  func() bool
}

// NewTimer returns an idle timer. Cancelling ctx closes it.
func NewTimer(ctx context.Context, opts ...Option) *Timer {
	t := &Timer{
		clock: SystemClock,
		sched: TickerScheduler{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.sm, _ = lifecycle.Start(Idle)
	t.unwatch = context.AfterFunc(ctx, t.Close)
	return t
}

// Update applies a new state: entering running when it is active with a start
// time, leaving running otherwise. An active state without a start time is
// shown as its base seconds and logged, never treated as fatal.
func (t *Timer) Update(ctx context.Context, next State) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTimerClosed
	}

	if next.Active && next.LastStartedAt.IsZero() {
		t.log.WarnContext(ctx, "elapsed: active timer has no start time, showing base seconds",
			logger.TimerID(t.id),
		)
	}

	c := &change{timer: t, next: next}
	running := t.sm.Current() == Running
	switch {
	case next.Live() && !running:
		_ = t.sm.Fire(ctx, EventStart, c)
	case !next.Live() && running:
		_ = t.sm.Fire(ctx, EventStop, c)
	}
	t.state = next
	display := Display(next, t.clock.Now())
	t.mu.Unlock()

	t.emit(display)
	return nil
}

// Running reports whether the timer is ticking.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sm.Current() == Running
}

// State returns the last applied state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Seconds returns the elapsed seconds at this instant.
func (t *Timer) Seconds() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Seconds(t.state, t.clock.Now())
}

// Display returns the formatted elapsed time at this instant.
func (t *Timer) Display() string {
	return Format(t.Seconds())
}

// Close releases the tick subscription. Safe to call more than once.
func (t *Timer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.sm.Current() == Running {
		_ = t.sm.Fire(context.Background(), EventStop, &change{timer: t, next: t.state})
	}
	if t.unwatch != nil {
		t.unwatch()
	}
	t.mu.Unlock()

	if t.onClose != nil {
		t.onClose(t.id)
	}
}

// startTicking and stopTicking run inside state machine actions with t.mu held.
func (t *Timer) startTicking() {
	t.gen++
	gen := t.gen
	t.stopTick = t.sched.Every(TickInterval, func() { t.tick(gen) })
}

func (t *Timer) stopTicking() {
	if t.stopTick != nil {
		t.stopTick()
		t.stopTick = nil
	}
	t.gen++
}

func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.closed {
		// Late tick from a released subscription
		t.mu.Unlock()
		return
	}
	display := Display(t.state, t.clock.Now())
	t.mu.Unlock()

	t.emit(display)
}

func (t *Timer) emit(display string) {
	if t.onTick != nil {
		t.onTick(t.id, display)
	}
}

package statemachine

import (
	"context"
	"fmt"
)

// Definition is an immutable transition table. Build it once at startup and
// start any number of machines from it, each at its own state.
type Definition struct {
	// [fromState][event] -> candidate transitions in priority order
	transitions map[string]map[string][]Transition
}

// Option configures a Definition during construction.
type Option func(*Definition) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*Transition)

// Define builds a transition table from the given options.
func Define(opts ...Option) (*Definition, error) {
	d := &Definition{transitions: make(map[string]map[string][]Transition)}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MustDefine is Define that panics on error. Intended for package-level tables.
func MustDefine(opts ...Option) *Definition {
	d, err := Define(opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return d
}

// New defines a table and starts a machine at initialState in one call.
func New(initialState State, opts ...Option) (StateMachine, error) {
	d, err := Define(opts...)
	if err != nil {
		return nil, err
	}
	return d.Start(initialState)
}

// MustNew is New that panics on error.
func MustNew(initialState State, opts ...Option) StateMachine {
	sm, err := New(initialState, opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return sm
}

// Start returns a machine positioned at state. Reset returns it there.
func (d *Definition) Start(state State) (StateMachine, error) {
	if state == nil {
		return nil, ErrInvalidState
	}
	return &machine{def: d, initial: state, current: state}, nil
}

// Allows reports whether any transition leaves from on event, ignoring guards.
func (d *Definition) Allows(from State, event Event) bool {
	if from == nil || event == nil {
		return false
	}
	return len(d.transitions[from.Name()][event.Name()]) > 0
}

// Resolve picks the first transition from state on event whose guards pass.
func (d *Definition) Resolve(ctx context.Context, from State, event Event, data any) (Transition, error) {
	if event == nil {
		return Transition{}, ErrInvalidEvent
	}
	if from == nil {
		return Transition{}, ErrInvalidState
	}

	candidates := d.transitions[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return Transition{}, NewErrNoTransitionAvailable(from.Name(), event.Name())
	}
	for _, t := range candidates {
		if t.allowed(ctx, from, event, data) {
			return t, nil
		}
	}
	return Transition{}, NewErrTransitionRejected(from.Name(), event.Name())
}

func (d *Definition) add(t Transition) error {
	if t.From == nil || t.To == nil || t.Event == nil {
		return ErrInvalidTransition
	}
	byEvent, ok := d.transitions[t.From.Name()]
	if !ok {
		byEvent = make(map[string][]Transition)
		d.transitions[t.From.Name()] = byEvent
	}
	// Several transitions per from/event allow guard-based branching
	byEvent[t.Event.Name()] = append(byEvent[t.Event.Name()], t)
	return nil
}

// WithTransition adds a single transition.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		t := Transition{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		return d.add(t)
	}
}

// WithTransitionsFrom adds the same event-driven transition out of every listed state.
func WithTransitionsFrom(from []State, to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		for _, f := range from {
			if err := WithTransition(f, to, event, opts...)(d); err != nil {
				return fmt.Errorf("transition %s->%s on %s: %w", name(f), name(to), name(event), err)
			}
		}
		return nil
	}
}

// WithGuard adds guards to a transition. Nil guards are ignored.
func WithGuard(guards ...Guard) TransitionOption {
	return func(t *Transition) {
		for _, g := range guards {
			if g != nil {
				t.Guards = append(t.Guards, g)
			}
		}
	}
}

// WithAction adds actions to a transition. Nil actions are ignored.
func WithAction(actions ...Action) TransitionOption {
	return func(t *Transition) {
		for _, a := range actions {
			if a != nil {
				t.Actions = append(t.Actions, a)
			}
		}
	}
}

func name(v interface{ Name() string }) string {
	if v == nil {
		return "<nil>"
	}
	return v.Name()
}

package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// machine is the thread-safe StateMachine returned by Definition.Start.
type machine struct {
	def     *Definition
	initial State

	mu      sync.RWMutex
	current State
}

func (m *machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire moves to the target of the first transition whose guards pass.
// Actions run before the state changes; any failure aborts the transition.
func (m *machine) Fire(ctx context.Context, event Event, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.def.Resolve(ctx, m.current, event, data)
	if err != nil {
		return err
	}

	for _, action := range t.Actions {
		if err := action(ctx, m.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.current = t.To
	return nil
}

func (m *machine) CanFire(ctx context.Context, event Event, data any) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := m.def.Resolve(ctx, m.current, event, data)
	return err == nil
}

func (m *machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}

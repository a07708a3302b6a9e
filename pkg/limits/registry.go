package limits

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CounterFunc reports how much of a resource a team currently uses.
// Counters for monthly resources only count the running month.
type CounterFunc func(ctx context.Context, teamID uuid.UUID) (int64, error)

// CounterRegistry holds one counter per resource. Build it before handing it
// to NewLimitsService; it is read without locking afterwards.
type CounterRegistry map[Resource]CounterFunc

// NewRegistry returns an empty registry.
func NewRegistry() CounterRegistry {
	return CounterRegistry{}
}

// Register installs fn for res, replacing any previous counter.
// A nil fn or an unknown resource panics.
func (r CounterRegistry) Register(res Resource, fn CounterFunc) {
	switch {
	case !res.Valid():
		panic(fmt.Sprintf("limits: cannot register a counter for unknown resource %q", res))
	case fn == nil:
		panic(fmt.Sprintf("limits: nil counter for resource %q", res))
	}
	r[res] = fn
}

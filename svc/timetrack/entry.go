package timetrack

import (
	"time"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/elapsed"
)

// Entry is the time a user has spent on a demand.
type Entry struct {
	ID       uuid.UUID `json:"id"`
	TeamID   uuid.UUID `json:"team_id"`
	DemandID uuid.UUID `json:"demand_id"`
	UserID   uuid.UUID `json:"user_id"`

	// BaseSeconds accumulated by finished intervals.
	BaseSeconds int64 `json:"base_seconds"`
	Active      bool  `json:"is_active"`
	// LastStartedAt is the start of the running interval; zero when unknown.
	LastStartedAt time.Time `json:"last_started_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State converts the entry into the shape live timers consume.
func (e Entry) State() elapsed.State {
	return elapsed.State{
		BaseSeconds:   e.BaseSeconds,
		Active:        e.Active,
		LastStartedAt: e.LastStartedAt,
	}
}

// TimerKey identifies the entry inside an elapsed.Group.
func (e Entry) TimerKey() string {
	return e.ID.String()
}

// ActiveTimer is a running entry read at one instant.
type ActiveTimer struct {
	Entry
	Seconds int64  `json:"seconds"`
	Display string `json:"display"`
}

// Change announces that an entry was written. Receivers refetch the entry
// instead of trusting a payload.
type Change struct {
	EntryID uuid.UUID
	TeamID  uuid.UUID
}

// Topic is the broadcast topic carrying a team's changes.
func Topic(teamID uuid.UUID) string {
	return "timetrack:" + teamID.String()
}

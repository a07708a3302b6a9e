package usage

import (
	"time"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/limits"
)

// Record holds a team's counters for one calendar month. An absent record
// reads as all zero.
//
// DemandsCreated counts creations within the month. The other counters are
// running totals: when a month's record is first written they start from the
// team's most recent earlier record.
type Record struct {
	TeamID         uuid.UUID `json:"team_id"`
	PeriodStart    time.Time `json:"period_start"`
	DemandsCreated int64     `json:"demands_created"`
	MembersCount   int64     `json:"members_count"`
	BoardsCount    int64     `json:"boards_count"`
	NotesCount     int64     `json:"notes_count"`
	ServicesCount  int64     `json:"services_count"`
	StorageBytes   int64     `json:"storage_bytes"`
}

// Get returns the counter tracking res, or 0 for resources without one.
func (r Record) Get(res limits.Resource) int64 {
	if p := r.field(res); p != nil {
		return *p
	}
	return 0
}

func (r *Record) field(res limits.Resource) *int64 {
	switch res {
	case limits.ResourceDemands:
		return &r.DemandsCreated
	case limits.ResourceMembers:
		return &r.MembersCount
	case limits.ResourceBoards:
		return &r.BoardsCount
	case limits.ResourceNotes:
		return &r.NotesCount
	case limits.ResourceServices:
		return &r.ServicesCount
	}
	return nil
}

// carryOver returns a fresh record for period seeded with prev's running totals.
func (r Record) carryOver(period time.Time) Record {
	return Record{
		TeamID:        r.TeamID,
		PeriodStart:   period,
		MembersCount:  r.MembersCount,
		BoardsCount:   r.BoardsCount,
		NotesCount:    r.NotesCount,
		ServicesCount: r.ServicesCount,
		StorageBytes:  r.StorageBytes,
	}
}

// column maps a resource to its usage_records column.
func column(res limits.Resource) (string, bool) {
	switch res {
	case limits.ResourceDemands:
		return "demands_created", true
	case limits.ResourceMembers:
		return "members_count", true
	case limits.ResourceBoards:
		return "boards_count", true
	case limits.ResourceNotes:
		return "notes_count", true
	case limits.ResourceServices:
		return "services_count", true
	}
	return "", false
}

// PeriodStart normalises t to the first instant of its calendar month in UTC.
func PeriodStart(t time.Time) time.Time {
	return limits.PeriodAt(t.UTC()).Start
}

package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/limits"
)

// Store persists usage records. Every method normalises its period argument
// with PeriodStart.
type Store interface {
	// Get returns the record for the month, or a zero record when absent.
	Get(ctx context.Context, teamID uuid.UUID, period time.Time) (Record, error)

	// Latest returns the most recent record at or before the month of at,
	// or a zero record for that month when the team has none.
	Latest(ctx context.Context, teamID uuid.UUID, at time.Time) (Record, error)

	// Increment adds delta to the resource's counter, never going below zero.
	Increment(ctx context.Context, teamID uuid.UUID, period time.Time, res limits.Resource, delta int64) (Record, error)

	// Reserve increments the counter by one only if the result stays within
	// limit, as a single serialized step. It returns ErrQuotaExhausted
	// otherwise. limits.Unlimited never fails.
	Reserve(ctx context.Context, teamID uuid.UUID, period time.Time, res limits.Resource, limit int64) (Record, error)
}

// MemoryStore keeps records in process. A single mutex serializes writes,
// which makes Reserve authoritative within one process only.
type MemoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]map[int64]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]map[int64]Record)}
}

func (s *MemoryStore) Get(_ context.Context, teamID uuid.UUID, period time.Time) (Record, error) {
	period = PeriodStart(period)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[teamID][period.Unix()]; ok {
		return rec, nil
	}
	return Record{TeamID: teamID, PeriodStart: period}, nil
}

func (s *MemoryStore) Latest(_ context.Context, teamID uuid.UUID, at time.Time) (Record, error) {
	period := PeriodStart(at)

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.latest(teamID, period, true); ok {
		return rec, nil
	}
	return Record{TeamID: teamID, PeriodStart: period}, nil
}

func (s *MemoryStore) Increment(_ context.Context, teamID uuid.UUID, period time.Time, res limits.Resource, delta int64) (Record, error) {
	if _, ok := column(res); !ok {
		return Record{}, ErrUnknownResource
	}
	if teamID == uuid.Nil {
		return Record{}, ErrMissingTeamID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensure(teamID, PeriodStart(period))
	p := rec.field(res)
	*p = max(0, *p+delta)
	s.records[teamID][rec.PeriodStart.Unix()] = rec
	return rec, nil
}

func (s *MemoryStore) Reserve(_ context.Context, teamID uuid.UUID, period time.Time, res limits.Resource, limit int64) (Record, error) {
	if _, ok := column(res); !ok {
		return Record{}, ErrUnknownResource
	}
	if teamID == uuid.Nil {
		return Record{}, ErrMissingTeamID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.ensure(teamID, PeriodStart(period))
	p := rec.field(res)
	if limit != limits.Unlimited && *p+1 > limit {
		return rec, ErrQuotaExhausted
	}
	*p++
	s.records[teamID][rec.PeriodStart.Unix()] = rec
	return rec, nil
}

// ensure returns the stored record for period, seeding a new one from the
// latest earlier record. Callers hold mu.
func (s *MemoryStore) ensure(teamID uuid.UUID, period time.Time) Record {
	byPeriod, ok := s.records[teamID]
	if !ok {
		byPeriod = make(map[int64]Record)
		s.records[teamID] = byPeriod
	}
	if rec, ok := byPeriod[period.Unix()]; ok {
		return rec
	}
	prev, _ := s.latest(teamID, period, false)
	prev.TeamID = teamID
	return prev.carryOver(period)
}

func (s *MemoryStore) latest(teamID uuid.UUID, period time.Time, inclusive bool) (Record, bool) {
	var (
		best  Record
		found bool
	)
	for key, rec := range s.records[teamID] {
		if key > period.Unix() || (!inclusive && key == period.Unix()) {
			continue
		}
		if !found || rec.PeriodStart.After(best.PeriodStart) {
			best, found = rec, true
		}
	}
	return best, found
}

package timetrack

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Store persists time entries. At most one entry per user and demand may be
// active; Save returns ErrAlreadyRunning otherwise.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	// FindRunning returns the active entry for the user and demand, or ErrEntryNotFound.
	FindRunning(ctx context.Context, userID, demandID uuid.UUID) (*Entry, error)
	// ListActive returns the team's active entries, oldest start first.
	ListActive(ctx context.Context, teamID uuid.UUID) ([]Entry, error)
	Save(ctx context.Context, e *Entry) error
}

// MemoryStore keeps entries in process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uuid.UUID]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (s *MemoryStore) FindRunning(_ context.Context, userID, demandID uuid.UUID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.running(userID, demandID); ok {
		return &e, nil
	}
	return nil, ErrEntryNotFound
}

func (s *MemoryStore) ListActive(_ context.Context, teamID uuid.UUID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if e.TeamID == teamID && e.Active {
			out = append(out, e)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, e *Entry) error {
	if e.TeamID == uuid.Nil {
		return ErrMissingTeamID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Active {
		if other, ok := s.running(e.UserID, e.DemandID); ok && other.ID != e.ID {
			return ErrAlreadyRunning
		}
	}
	s.entries[e.ID] = *e
	return nil
}

func (s *MemoryStore) running(userID, demandID uuid.UUID) (Entry, bool) {
	for _, e := range s.entries {
		if e.Active && e.UserID == userID && e.DemandID == demandID {
			return e, true
		}
	}
	return Entry{}, false
}

func sortByStart(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := a.LastStartedAt.Compare(b.LastStartedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

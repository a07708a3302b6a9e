package usage

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/limits"
)

// QuotaSource supplies board service quotas and the demand counts they are
// evaluated against.
type QuotaSource interface {
	// ListQuotas returns the board's quotas ordered by service ID.
	ListQuotas(ctx context.Context, boardID uuid.UUID) ([]limits.ServiceQuota, error)

	// CountDemands counts non-archived demands created on the board for the
	// service within period.
	CountDemands(ctx context.Context, boardID, serviceID uuid.UUID, period limits.Period) (int64, error)
}

// Quotas evaluates board service quotas for the current month.
type Quotas struct {
	src QuotaSource
	now func() time.Time
}

// NewQuotas returns a Quotas over src. A nil now uses time.Now. Panics on nil src.
func NewQuotas(src QuotaSource, now func() time.Time) *Quotas {
	if src == nil {
		panic("usage: quota source is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Quotas{src: src, now: now}
}

// BoardQuotas evaluates every quota of the board against this month's demands.
func (q *Quotas) BoardQuotas(ctx context.Context, boardID uuid.UUID) ([]limits.QuotaStatus, error) {
	quotas, err := q.src.ListQuotas(ctx, boardID)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadQuotas, err)
	}

	period := limits.PeriodAt(q.now().UTC())
	out := make([]limits.QuotaStatus, 0, len(quotas))
	for _, quota := range quotas {
		count, err := q.src.CountDemands(ctx, boardID, quota.ServiceID, period)
		if err != nil {
			return nil, errors.Join(ErrFailedToCount, err)
		}
		out = append(out, quota.Evaluate(count))
	}
	return out, nil
}

// ServiceQuota evaluates one service's quota on the board. Services without
// a configured quota are unbounded.
func (q *Quotas) ServiceQuota(ctx context.Context, boardID, serviceID uuid.UUID) (limits.QuotaStatus, error) {
	quotas, err := q.src.ListQuotas(ctx, boardID)
	if err != nil {
		return limits.QuotaStatus{}, errors.Join(ErrFailedToLoadQuotas, err)
	}

	quota := limits.ServiceQuota{BoardID: boardID, ServiceID: serviceID}
	if i := slices.IndexFunc(quotas, func(sq limits.ServiceQuota) bool { return sq.ServiceID == serviceID }); i >= 0 {
		quota = quotas[i]
	}

	count, err := q.src.CountDemands(ctx, boardID, serviceID, limits.PeriodAt(q.now().UTC()))
	if err != nil {
		return limits.QuotaStatus{}, errors.Join(ErrFailedToCount, err)
	}
	return quota.Evaluate(count), nil
}

// Demand is the subset of a demand that quota counting needs.
type Demand struct {
	ID         uuid.UUID
	TeamID     uuid.UUID
	BoardID    uuid.UUID
	ServiceID  uuid.UUID
	CreatedAt  time.Time
	ArchivedAt *time.Time
}

// MemoryQuotaSource keeps quotas and demands in process.
type MemoryQuotaSource struct {
	mu      sync.RWMutex
	quotas  map[uuid.UUID]map[uuid.UUID]limits.ServiceQuota
	demands map[uuid.UUID]Demand
}

// NewMemoryQuotaSource returns an empty source.
func NewMemoryQuotaSource() *MemoryQuotaSource {
	return &MemoryQuotaSource{
		quotas:  make(map[uuid.UUID]map[uuid.UUID]limits.ServiceQuota),
		demands: make(map[uuid.UUID]Demand),
	}
}

// SetQuota creates or replaces a quota.
func (s *MemoryQuotaSource) SetQuota(_ context.Context, q limits.ServiceQuota) error {
	if q.MonthlyLimit < 0 {
		return limits.ErrInvalidQuotaConfiguration
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byService, ok := s.quotas[q.BoardID]
	if !ok {
		byService = make(map[uuid.UUID]limits.ServiceQuota)
		s.quotas[q.BoardID] = byService
	}
	byService[q.ServiceID] = q
	return nil
}

// AddDemand records a demand. Re-adding an ID replaces it.
func (s *MemoryQuotaSource) AddDemand(_ context.Context, d Demand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.demands[d.ID] = d
	return nil
}

// ArchiveDemand marks a demand archived so it stops counting.
func (s *MemoryQuotaSource) ArchiveDemand(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.demands[id]
	if !ok {
		return nil
	}
	d.ArchivedAt = &at
	s.demands[id] = d
	return nil
}

func (s *MemoryQuotaSource) ListQuotas(_ context.Context, boardID uuid.UUID) ([]limits.ServiceQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]limits.ServiceQuota, 0, len(s.quotas[boardID]))
	for _, q := range s.quotas[boardID] {
		out = append(out, q)
	}
	slices.SortFunc(out, func(a, b limits.ServiceQuota) int {
		return cmp.Compare(a.ServiceID.String(), b.ServiceID.String())
	})
	return out, nil
}

func (s *MemoryQuotaSource) CountDemands(_ context.Context, boardID, serviceID uuid.UUID, period limits.Period) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, d := range s.demands {
		if d.BoardID == boardID && d.ServiceID == serviceID && d.ArchivedAt == nil && period.Contains(d.CreatedAt) {
			n++
		}
	}
	return n, nil
}

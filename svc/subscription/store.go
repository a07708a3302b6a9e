package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store persists subscriptions. TeamID is the primary key.
type Store interface {
	// Get returns ErrSubscriptionNotFound when the team has no subscription.
	Get(ctx context.Context, teamID uuid.UUID) (*Subscription, error)

	// GetByProviderSubID looks a subscription up by the provider's identifier.
	GetByProviderSubID(ctx context.Context, providerSubID string) (*Subscription, error)

	// Save creates or replaces the team's subscription.
	Save(ctx context.Context, sub *Subscription) error
}

// MemoryStore keeps subscriptions in a map. Suitable for tests and
// single-process deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]Subscription)}
}

func (s *MemoryStore) Get(_ context.Context, teamID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[teamID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

func (s *MemoryStore) GetByProviderSubID(_ context.Context, providerSubID string) (*Subscription, error) {
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.ProviderSubID == providerSubID {
			return cloneSubscription(sub), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) Save(_ context.Context, sub *Subscription) error {
	if sub == nil || sub.TeamID == uuid.Nil {
		return ErrMissingTeamID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[sub.TeamID] = *cloneSubscription(*sub)
	return nil
}

func cloneSubscription(sub Subscription) *Subscription {
	if sub.CanceledAt != nil {
		at := *sub.CanceledAt
		sub.CanceledAt = &at
	}
	return &sub
}

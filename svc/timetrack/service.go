package timetrack

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/broadcast"
	"github.com/kanbanhq/demandkit/pkg/elapsed"
	"github.com/kanbanhq/demandkit/pkg/logger"
)

// DefaultBufferSize is the per-subscriber buffer of the default broadcaster.
const DefaultBufferSize = 64

// Service starts and stops time entries and announces every change.
type Service struct {
	store  Store
	hub    broadcast.Broadcaster[Change]
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBroadcaster replaces the in-process broadcaster, for example with one
// shared by several services.
func WithBroadcaster(b broadcast.Broadcaster[Change]) Option {
	return func(s *Service) {
		if b != nil {
			s.hub = b
		}
	}
}

// NewService returns a Service over store. Panics on nil store.
func NewService(store Store, opts ...Option) *Service {
	if store == nil {
		panic("timetrack: store is required")
	}
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = broadcast.NewMemoryBroadcaster[Change](DefaultBufferSize)
	}
	s.logger = s.logger.With(logger.Component("timetrack"))
	return s
}

// Start opens a new running entry for the user on the demand. Starting a
// demand the user is already timing returns the running entry unchanged.
func (s *Service) Start(ctx context.Context, teamID, demandID, userID uuid.UUID) (*Entry, error) {
	switch {
	case teamID == uuid.Nil:
		return nil, ErrMissingTeamID
	case demandID == uuid.Nil:
		return nil, ErrMissingDemandID
	case userID == uuid.Nil:
		return nil, ErrMissingUserID
	}

	running, err := s.store.FindRunning(ctx, userID, demandID)
	if err == nil {
		return running, nil
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	e := &Entry{
		ID:            uuid.New(),
		TeamID:        teamID,
		DemandID:      demandID,
		UserID:        userID,
		Active:        true,
		LastStartedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Save(ctx, e); err != nil {
		return nil, err
	}
	s.publish(ctx, e)
	return e, nil
}

// Resume restarts a stopped entry, keeping its accumulated seconds.
// Resuming a running entry is a no-op.
func (s *Service) Resume(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	e, err := s.store.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.Active {
		return e, nil
	}

	now := s.now().UTC()
	e.Active = true
	e.LastStartedAt = now
	e.UpdatedAt = now
	if err := s.store.Save(ctx, e); err != nil {
		return nil, err
	}
	s.publish(ctx, e)
	return e, nil
}

// Stop ends the running interval and folds it into BaseSeconds. Stopping a
// stopped entry is a no-op.
func (s *Service) Stop(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	e, err := s.store.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !e.Active {
		return e, nil
	}

	now := s.now().UTC()
	if e.LastStartedAt.IsZero() {
		s.logger.WarnContext(ctx, "running entry has no start time, nothing to fold",
			logger.TimerID(e.TimerKey()),
			logger.TeamID(e.TeamID),
		)
	}
	e.BaseSeconds = elapsed.Seconds(e.State(), now)
	e.Active = false
	e.LastStartedAt = time.Time{}
	e.UpdatedAt = now
	if err := s.store.Save(ctx, e); err != nil {
		return nil, err
	}
	s.publish(ctx, e)
	return e, nil
}

// Get returns an entry by ID.
func (s *Service) Get(ctx context.Context, entryID uuid.UUID) (*Entry, error) {
	return s.store.Get(ctx, entryID)
}

// ListActive returns the team's running entries.
func (s *Service) ListActive(ctx context.Context, teamID uuid.UUID) ([]Entry, error) {
	return s.store.ListActive(ctx, teamID)
}

// ActiveTimers reads every running entry of the team at the current instant.
func (s *Service) ActiveTimers(ctx context.Context, teamID uuid.UUID) ([]ActiveTimer, error) {
	entries, err := s.store.ListActive(ctx, teamID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]ActiveTimer, 0, len(entries))
	for _, e := range entries {
		secs := elapsed.Seconds(e.State(), now)
		out = append(out, ActiveTimer{Entry: e, Seconds: secs, Display: elapsed.Format(secs)})
	}
	return out, nil
}

// Subscribe returns a subscription to the team's changes. It ends when ctx
// is cancelled.
func (s *Service) Subscribe(ctx context.Context, teamID uuid.UUID) broadcast.Subscriber[Change] {
	return s.hub.Subscribe(ctx, Topic(teamID))
}

// Close ends every subscription.
func (s *Service) Close() error {
	return s.hub.Close()
}

// publish is best effort: the entry is already stored, and followers
// resynchronise on their next change.
func (s *Service) publish(ctx context.Context, e *Entry) {
	msg := broadcast.Message[Change]{
		Topic: Topic(e.TeamID),
		Data:  Change{EntryID: e.ID, TeamID: e.TeamID},
	}
	if err := s.hub.Broadcast(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "failed to publish time entry change",
			logger.TimerID(e.TimerKey()),
			logger.Error(err),
		)
	}
}

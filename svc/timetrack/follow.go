package timetrack

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/elapsed"
	"github.com/kanbanhq/demandkit/pkg/logger"
	"github.com/kanbanhq/demandkit/pkg/metrics"
)

// Follow mirrors the team's running entries into group until ctx is
// cancelled, the group is closed or the broadcaster shuts down. Each change
// triggers a refetch, so duplicate or reordered hints converge on the stored
// state. Stopped entries leave the group.
func (s *Service) Follow(ctx context.Context, teamID uuid.UUID, group *elapsed.Group) error {
	// Subscribe before seeding so no change falls between the two.
	sub := s.Subscribe(ctx, teamID)
	defer sub.Close()

	f := &follower{svc: s, group: group, running: make(map[uuid.UUID]bool)}
	defer f.release()

	entries, err := s.store.ListActive(ctx, teamID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := f.apply(ctx, &e); err != nil {
			return ignoreClosed(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Receive():
			if !ok {
				return nil
			}
			if err := f.refresh(ctx, msg.Data.EntryID); err != nil {
				return ignoreClosed(err)
			}
		}
	}
}

type follower struct {
	svc     *Service
	group   *elapsed.Group
	running map[uuid.UUID]bool
}

func (f *follower) refresh(ctx context.Context, id uuid.UUID) error {
	e, err := f.svc.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		f.forget(id)
		return nil
	case err != nil:
		// Transient; the next change for this entry resynchronises it.
		f.svc.logger.WarnContext(ctx, "failed to refetch time entry",
			logger.TimerID(id.String()),
			logger.Error(err),
		)
		return nil
	}
	return f.apply(ctx, e)
}

func (f *follower) apply(ctx context.Context, e *Entry) error {
	if !e.Active {
		f.forget(e.ID)
		return nil
	}
	if err := f.group.Set(ctx, e.TimerKey(), e.State()); err != nil {
		return err
	}
	f.track(e.ID, e.State().Live())
	return nil
}

func (f *follower) forget(id uuid.UUID) {
	f.group.Remove(id.String())
	f.track(id, false)
}

func (f *follower) track(id uuid.UUID, live bool) {
	switch was := f.running[id]; {
	case live && !was:
		f.running[id] = true
		metrics.RunningTimers.Inc()
	case !live && was:
		delete(f.running, id)
		metrics.RunningTimers.Dec()
	}
}

func (f *follower) release() {
	metrics.RunningTimers.Sub(float64(len(f.running)))
	clear(f.running)
}

func ignoreClosed(err error) error {
	if errors.Is(err, elapsed.ErrTimerClosed) {
		return nil
	}
	return err
}

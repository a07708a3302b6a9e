package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/kanbanhq/demandkit/pkg/elapsed"
	"github.com/kanbanhq/demandkit/pkg/logger"
)

// timerEvent is one update for a stream. A nil display means the timer left
// the team's active set.
type timerEvent struct {
	id      string
	display *string
}

// streamTimers pushes the team's live timers as Datastar signal patches:
// {"timers": {"<entry id>": "HH:MM:SS"}} on every state change and tick,
// and a null value when an entry stops.
func (a *api) streamTimers(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "teamID")
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	events := make(chan timerEvent, 16)
	push := func(ev timerEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	group := elapsed.NewGroup(ctx,
		elapsed.WithClock(elapsed.ClockFunc(a.Now)),
		elapsed.WithLogger(a.log),
		elapsed.WithOnTick(func(id, display string) { push(timerEvent{id: id, display: &display}) }),
		elapsed.WithOnClose(func(id string) { push(timerEvent{id: id}) }),
	)
	// Cancel first so close callbacks never wait on the loop below.
	defer func() {
		cancel()
		group.Close()
	}()

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	sse := datastar.NewSSE(w, r)

	followed := make(chan error, 1)
	go func() { followed <- a.Timers.Follow(ctx, teamID, group) }()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-followed:
			if err != nil {
				a.log.ErrorContext(ctx, "timer stream stopped", logger.TeamID(teamID), logger.Error(err))
			}
			return
		case ev := <-events:
			data, err := json.Marshal(map[string]any{"timers": map[string]*string{ev.id: ev.display}})
			if err != nil {
				return
			}
			if err := sse.PatchSignals(data); err != nil {
				return
			}
		}
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/svc/timetrack"
)

type startTimerRequest struct {
	DemandID uuid.UUID `json:"demand_id"`
	UserID   uuid.UUID `json:"user_id"`
}

func (a *api) activeTimers(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "teamID")
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}

	timers, err := a.Timers.ActiveTimers(r.Context(), teamID)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	respond(w, timers)
}

func (a *api) startTimer(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "teamID")
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	var req startTimerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		respondError(w, r, a.log, ErrBadRequest)
		return
	}

	e, err := a.Timers.Start(r.Context(), teamID, req.DemandID, req.UserID)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	respond(w, e)
}

func (a *api) stopTimer(w http.ResponseWriter, r *http.Request) {
	a.changeTimer(w, r, a.Timers.Stop)
}

func (a *api) resumeTimer(w http.ResponseWriter, r *http.Request) {
	a.changeTimer(w, r, a.Timers.Resume)
}

func (a *api) changeTimer(w http.ResponseWriter, r *http.Request, change func(context.Context, uuid.UUID) (*timetrack.Entry, error)) {
	entryID, err := uuidParam(r, "entryID")
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}

	e, err := change(r.Context(), entryID)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	respond(w, e)
}

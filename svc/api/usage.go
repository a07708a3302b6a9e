package api

import (
	"net/http"
	"time"

	"github.com/kanbanhq/demandkit/pkg/limits"
	"github.com/kanbanhq/demandkit/svc/usage"
)

// ResourceUsage is one row of a team's usage overview. Limit and Remaining
// are null for unlimited resources.
type ResourceUsage struct {
	Resource  limits.Resource    `json:"resource"`
	Used      int64              `json:"used"`
	Limit     *int64             `json:"limit"`
	Remaining *int64             `json:"remaining"`
	Unlimited bool               `json:"is_unlimited"`
	Banner    limits.BannerLevel `json:"banner"`
}

// TeamUsage is the usage overview for the team's current plan and month.
type TeamUsage struct {
	PlanID      string          `json:"plan_id"`
	PeriodStart time.Time       `json:"period_start"`
	Resources   []ResourceUsage `json:"resources"`
}

func (a *api) teamUsage(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "teamID")
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}

	ctx := r.Context()
	plan, err := a.Limits.PlanFor(ctx, teamID)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	all, err := a.Limits.GetAllUsage(ctx, teamID)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}

	out := TeamUsage{PlanID: plan.ID, PeriodStart: usage.PeriodStart(a.Now())}
	for _, res := range limits.Resources {
		info, ok := all[res]
		if !ok {
			continue
		}
		d := limits.CanCreate(info.Limit, info.Current)
		row := ResourceUsage{
			Resource:  res,
			Used:      info.Current,
			Unlimited: d.IsUnlimited,
			Banner:    info.Banner,
		}
		if !d.IsUnlimited {
			row.Limit = &info.Limit
			row.Remaining = &d.Remaining
		}
		out.Resources = append(out.Resources, row)
	}
	respond(w, out)
}

func (a *api) checkResource(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "teamID")
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	res, err := resourceParam(r)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}

	d, err := a.Limits.Check(r.Context(), teamID, res)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	respond(w, d)
}

func (a *api) reserveResource(w http.ResponseWriter, r *http.Request) {
	teamID, err := uuidParam(r, "teamID")
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	res, err := resourceParam(r)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}

	rec, err := a.Counter.ReserveForPlan(r.Context(), a.Limits, teamID, res)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	respond(w, rec)
}

func (a *api) boardQuotas(w http.ResponseWriter, r *http.Request) {
	boardID, err := uuidParam(r, "boardID")
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}

	statuses, err := a.Quotas.BoardQuotas(r.Context(), boardID)
	if err != nil {
		respondError(w, r, a.log, err)
		return
	}
	if statuses == nil {
		statuses = []limits.QuotaStatus{}
	}
	respond(w, statuses)
}

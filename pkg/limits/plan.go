package limits

import (
	"fmt"
	"maps"
)

// StarterPlanID identifies the default limit set applied to teams without a subscription.
const StarterPlanID = "starter"

// Plan describes a subscription tier and its resource limits.
type Plan struct {
	ID          string
	Name        string
	Description string
	Limits      map[Resource]int64 // -1 means unlimited
	Public      bool               // If true, plan is offered on the pricing page
}

// StarterPlan returns the hardcoded fallback plan.
func StarterPlan() Plan {
	return Plan{
		ID:          StarterPlanID,
		Name:        "Starter",
		Description: "Default limits for teams without a subscription",
		Limits: map[Resource]int64{
			ResourceBoards:   3,
			ResourceMembers:  5,
			ResourceDemands:  30,
			ResourceServices: 5,
			ResourceNotes:    50,
		},
		Public: true,
	}
}

// Limit returns the plan's limit for res and whether the plan defines one.
func (p Plan) Limit(res Resource) (int64, bool) {
	l, ok := p.Limits[res]
	return l, ok
}

func (p Plan) clone() Plan {
	p.Limits = maps.Clone(p.Limits)
	return p
}

func (p Plan) validate() error {
	for res, limit := range p.Limits {
		if limit < Unlimited {
			return fmt.Errorf("plan %s has invalid %s limit: %d", p.ID, res, limit)
		}
	}
	return nil
}

// PlanComparison contains the differences between two plans.
type PlanComparison struct {
	// Resources with increased limits (old limit -> new limit)
	IncreasedLimits map[Resource]ResourceChange
	// Resources with decreased limits (old limit -> new limit)
	DecreasedLimits map[Resource]ResourceChange
	// Resources that exist only in the target plan
	NewResources map[Resource]int64
	// Resources that exist only in the current plan
	RemovedResources map[Resource]int64
}

// ResourceChange represents a change in resource limit.
type ResourceChange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// HasResourceDecreases returns true if any resources have decreased limits.
func (c *PlanComparison) HasResourceDecreases() bool {
	return len(c.DecreasedLimits) > 0 || len(c.RemovedResources) > 0
}

// ComparePlans returns the limit differences between current and target plans.
func ComparePlans(current, target *Plan) *PlanComparison {
	if current == nil || target == nil {
		return nil
	}

	comparison := &PlanComparison{
		IncreasedLimits:  make(map[Resource]ResourceChange),
		DecreasedLimits:  make(map[Resource]ResourceChange),
		NewResources:     make(map[Resource]int64),
		RemovedResources: make(map[Resource]int64),
	}

	for resource, targetLimit := range target.Limits {
		currentLimit, exists := current.Limits[resource]
		if !exists {
			comparison.NewResources[resource] = targetLimit
			continue
		}
		if targetLimit == currentLimit {
			continue
		}

		change := ResourceChange{From: currentLimit, To: targetLimit}
		switch {
		case currentLimit == Unlimited:
			// Losing unlimited access is always a decrease
			comparison.DecreasedLimits[resource] = change
		case targetLimit == Unlimited, targetLimit > currentLimit:
			comparison.IncreasedLimits[resource] = change
		default:
			comparison.DecreasedLimits[resource] = change
		}
	}

	for resource, currentLimit := range current.Limits {
		if _, exists := target.Limits[resource]; !exists {
			comparison.RemovedResources[resource] = currentLimit
		}
	}

	return comparison
}

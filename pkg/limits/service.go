package limits

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kanbanhq/demandkit/pkg/logger"
)

// LimitsService defines the public interface for interacting with team resource limits.
//
// Every answer is advisory: two requests racing against the same quota may
// both be told they can create. Callers that need a hard guarantee must
// reserve through an authoritative store (see svc/usage Store.Reserve).
type LimitsService interface {
	// PlanFor returns the plan in effect for the team, falling back to the Starter plan.
	PlanFor(ctx context.Context, teamID uuid.UUID) (Plan, error)

	// Check evaluates whether the team can create one more resource instance.
	Check(ctx context.Context, teamID uuid.UUID, res Resource) (Decision, error)

	// CanCreate is Check reduced to an error: ErrLimitExceeded when no capacity is left.
	CanCreate(ctx context.Context, teamID uuid.UUID, res Resource) error

	// GetUsage returns the current usage and limit for a resource in a team.
	GetUsage(ctx context.Context, teamID uuid.UUID, res Resource) (used, limit int64, err error)

	// GetUsageSafe is a convenience wrapper for UI dashboards. It returns zero values if usage cannot be obtained.
	GetUsageSafe(ctx context.Context, teamID uuid.UUID, res Resource) (used, limit int64)

	// GetUsagePercentage returns usage as percentage (0-100, or -1 for unlimited).
	GetUsagePercentage(ctx context.Context, teamID uuid.UUID, res Resource) int

	// Banner returns the usage warning level for a resource. Errors degrade to BannerNone.
	Banner(ctx context.Context, teamID uuid.UUID, res Resource) BannerLevel

	// GetAllUsage returns usage for every resource the team's plan limits.
	GetAllUsage(ctx context.Context, teamID uuid.UUID) (map[Resource]UsageInfo, error)

	// VerifyPlan checks if a plan ID is valid.
	VerifyPlan(ctx context.Context, planID string) error

	// CanDowngrade checks if downgrade is possible given current usage.
	CanDowngrade(ctx context.Context, teamID uuid.UUID, targetPlanID string) error
}

// Source defines how plans are loaded into the limits service.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// PlanIDResolver resolves the plan ID for a team.
// Returning ErrPlanIDNotFound means the team has no subscription and the
// Starter plan applies.
type PlanIDResolver func(ctx context.Context, teamID uuid.UUID) (string, error)

// DecisionObserver is notified about every Check outcome.
type DecisionObserver func(ctx context.Context, teamID uuid.UUID, res Resource, d Decision)

// Option configures the limits service.
type Option func(*service)

// WithPlanIDResolver sets how a team's plan is found. Without it every team gets the Starter plan.
func WithPlanIDResolver(r PlanIDResolver) Option {
	return func(s *service) {
		if r != nil {
			s.planIDResolver = r
		}
	}
}

// WithLogger sets the logger used for counter failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDecisionObserver registers a callback for Check outcomes, typically metrics.
func WithDecisionObserver(fn DecisionObserver) Option {
	return func(s *service) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// service implements the LimitsService interface.
type service struct {
	// Immutable after construction; concurrent readers need no locking.
	plans          map[string]Plan
	counters       CounterRegistry
	planIDResolver PlanIDResolver
	observers      []DecisionObserver
	log            *slog.Logger
}

// NewLimitsService creates a new LimitsService with the given Source and CounterRegistry.
// The Starter plan is added when the source does not define one.
func NewLimitsService(ctx context.Context, src Source, counters CounterRegistry, opts ...Option) (LimitsService, error) {
	if src == nil {
		panic("limits: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if plans == nil {
		plans = make(map[string]Plan)
	}
	if _, ok := plans[StarterPlanID]; !ok {
		plans[StarterPlanID] = StarterPlan()
	}

	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	if counters == nil {
		counters = NewRegistry()
	}

	s := &service{
		plans:          plans,
		counters:       counters,
		planIDResolver: noSubscriptionResolver,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func noSubscriptionResolver(context.Context, uuid.UUID) (string, error) {
	return "", ErrPlanIDNotFound
}

// PlanFor returns the plan in effect for the team. Teams without an
// entitled subscription, or whose plan is not in the catalogue, get Starter.
func (s *service) PlanFor(ctx context.Context, teamID uuid.UUID) (Plan, error) {
	planID, err := s.planIDResolver(ctx, teamID)
	if errors.Is(err, ErrPlanIDNotFound) {
		planID = StarterPlanID
	} else if err != nil {
		return Plan{}, err
	}

	plan, exists := s.plans[planID]
	if !exists {
		// A subscription can point at a price that never made it into the
		// catalogue; the team keeps working on Starter limits.
		s.log.WarnContext(ctx, "team plan missing from catalogue, using starter",
			logger.TeamID(teamID),
			logger.PlanID(planID),
		)
		return s.plans[StarterPlanID], nil
	}
	return plan, nil
}

// Check evaluates whether the team can create one more resource instance.
func (s *service) Check(ctx context.Context, teamID uuid.UUID, res Resource) (Decision, error) {
	plan, err := s.PlanFor(ctx, teamID)
	if err != nil {
		return Decision{}, err
	}

	limit, exists := plan.Limit(res)
	if !exists {
		return Decision{}, ErrInvalidResource
	}

	// Unlimited resources are never counted
	var used int64
	if limit != Unlimited {
		used, err = s.count(ctx, teamID, res)
		if err != nil {
			return Decision{}, err
		}
	}

	d := CanCreate(limit, used)
	for _, obs := range s.observers {
		obs(ctx, teamID, res, d)
	}
	return d, nil
}

// CanCreate checks if a team can create a new resource instance.
func (s *service) CanCreate(ctx context.Context, teamID uuid.UUID, res Resource) error {
	d, err := s.Check(ctx, teamID, res)
	if err != nil {
		return err
	}
	if !d.CanCreate {
		return ErrLimitExceeded
	}
	return nil
}

// GetUsage returns the current usage and limit for a resource in a team.
func (s *service) GetUsage(ctx context.Context, teamID uuid.UUID, res Resource) (used, limit int64, err error) {
	plan, err := s.PlanFor(ctx, teamID)
	if err != nil {
		return 0, 0, err
	}

	resourceLimit, exists := plan.Limit(res)
	if !exists {
		return 0, 0, ErrInvalidResource
	}

	current, err := s.count(ctx, teamID, res)
	if err != nil {
		return 0, 0, err
	}
	return current, resourceLimit, nil
}

// GetUsageSafe is a convenience wrapper for UI dashboards. It returns zero values if usage cannot be obtained.
func (s *service) GetUsageSafe(ctx context.Context, teamID uuid.UUID, res Resource) (used, limit int64) {
	used, limit, _ = s.GetUsage(ctx, teamID, res)
	return used, limit
}

// GetUsagePercentage returns usage as percentage (0-100, or -1 for unlimited).
func (s *service) GetUsagePercentage(ctx context.Context, teamID uuid.UUID, res Resource) int {
	used, limit, err := s.GetUsage(ctx, teamID, res)
	if err != nil {
		return 0
	}
	if limit == Unlimited {
		return -1
	}
	if limit == 0 {
		return 100
	}
	return min(int((max(0, used)*100)/limit), 100)
}

// Banner returns the usage warning level for a resource.
func (s *service) Banner(ctx context.Context, teamID uuid.UUID, res Resource) BannerLevel {
	used, limit, err := s.GetUsage(ctx, teamID, res)
	if err != nil {
		return BannerNone
	}
	return UsageBannerLevel(used, limit)
}

// GetAllUsage returns all resource usage for a team.
func (s *service) GetAllUsage(ctx context.Context, teamID uuid.UUID) (map[Resource]UsageInfo, error) {
	plan, err := s.PlanFor(ctx, teamID)
	if err != nil {
		return nil, err
	}

	result := make(map[Resource]UsageInfo, len(plan.Limits))
	for resource, limit := range plan.Limits {
		// Counter failures leave usage at 0 so one broken counter does not blank the dashboard
		current, err := s.count(ctx, teamID, resource)
		if err != nil && !errors.Is(err, ErrNoCounterRegistered) {
			s.log.WarnContext(ctx, "limits: usage counter failed",
				logger.TeamID(teamID),
				logger.Resource(string(resource)),
				logger.Error(err),
			)
		}
		result[resource] = UsageInfo{
			Current: current,
			Limit:   limit,
			Banner:  UsageBannerLevel(current, limit),
		}
	}
	return result, nil
}

// VerifyPlan checks if a plan ID is valid.
func (s *service) VerifyPlan(_ context.Context, planID string) error {
	if _, exists := s.plans[planID]; !exists {
		return ErrPlanNotFound
	}
	return nil
}

// CanDowngrade checks if downgrade is possible given current usage.
func (s *service) CanDowngrade(ctx context.Context, teamID uuid.UUID, targetPlanID string) error {
	targetPlan, exists := s.plans[targetPlanID]
	if !exists {
		return ErrPlanNotFound
	}

	currentPlan, err := s.PlanFor(ctx, teamID)
	if err != nil {
		return err
	}

	for resource, targetLimit := range targetPlan.Limits {
		if targetLimit == Unlimited {
			continue
		}

		currentLimit, hasResource := currentPlan.Limits[resource]
		if !hasResource {
			continue
		}

		if currentLimit != Unlimited && currentLimit <= targetLimit {
			continue
		}

		currentUsage, err := s.count(ctx, teamID, resource)
		if errors.Is(err, ErrNoCounterRegistered) {
			// Nothing to verify against
			continue
		}
		if err != nil {
			return err
		}

		if currentUsage > targetLimit {
			return ErrDowngradeNotPossible
		}
	}

	return nil
}

func (s *service) count(ctx context.Context, teamID uuid.UUID, res Resource) (int64, error) {
	counter, exists := s.counters[res]
	if !exists {
		return 0, ErrNoCounterRegistered
	}
	current, err := counter(ctx, teamID)
	if err != nil {
		return 0, errors.Join(ErrFailedToCountResourceUsage, err)
	}
	return max(0, current), nil
}

// validatePlans checks plan configurations for validity.
func validatePlans(plans map[string]Plan) error {
	for _, plan := range plans {
		if err := plan.validate(); err != nil {
			return errors.Join(ErrInvalidPlanConfiguration, err)
		}
	}
	return nil
}

package limits

import (
	"encoding/json"
	"math/bits"

	"github.com/google/uuid"
)

// Usage banner thresholds, in percent of the limit.
const (
	NearLimitPercent int64 = 80
	AtLimitPercent   int64 = 100
)

// BannerLevel tells the UI which usage warning to show.
type BannerLevel string

const (
	BannerNone BannerLevel = "none"
	BannerNear BannerLevel = "near"
	BannerAt   BannerLevel = "at"
)

// Decision is the advisory answer to "may one more resource be created?".
// Remaining equals Unlimited when IsUnlimited is set.
type Decision struct {
	CanCreate   bool
	Remaining   int64
	IsUnlimited bool
}

// MarshalJSON renders Remaining as null for unlimited resources so clients
// never display a finite count for them.
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CanCreate   bool   `json:"can_create"`
		Remaining   *int64 `json:"remaining"`
		IsUnlimited bool   `json:"is_unlimited"`
	}{
		CanCreate:   d.CanCreate,
		Remaining:   finite(d.Remaining, d.IsUnlimited),
		IsUnlimited: d.IsUnlimited,
	})
}

// CanCreate decides whether a new resource fits into limit given the amount
// already used. Negative usage is treated as zero. It never fails: limits
// below Unlimited are a configuration bug caught by plan validation, and
// evaluate as exhausted here.
func CanCreate(limit, used int64) Decision {
	if limit == Unlimited {
		return Decision{CanCreate: true, Remaining: Unlimited, IsUnlimited: true}
	}
	remaining := max(0, limit-max(0, used))
	return Decision{CanCreate: remaining > 0, Remaining: remaining}
}

// UsageBannerLevel maps usage against a limit onto a warning level:
// at 100% or more "at", from 80% "near", otherwise "none".
// Unlimited resources never warn; a zero limit is always "at".
func UsageBannerLevel(used, limit int64) BannerLevel {
	if limit < 0 {
		return BannerNone
	}
	if limit == 0 {
		return BannerAt
	}
	used = max(0, used)
	switch {
	case reachesPercent(used, limit, AtLimitPercent):
		return BannerAt
	case reachesPercent(used, limit, NearLimitPercent):
		return BannerNear
	default:
		return BannerNone
	}
}

// reachesPercent reports used*100 >= pct*limit for non-negative inputs,
// compared in 128 bits so large counts cannot overflow.
func reachesPercent(used, limit, pct int64) bool {
	uHi, uLo := bits.Mul64(uint64(used), 100)
	lHi, lLo := bits.Mul64(uint64(pct), uint64(limit))
	return uHi > lHi || (uHi == lHi && uLo >= lLo)
}

// ServiceQuota caps how many demands a board may create for one service per
// calendar month. A MonthlyLimit of 0 means unlimited.
type ServiceQuota struct {
	BoardID      uuid.UUID `json:"board_id"`
	ServiceID    uuid.UUID `json:"service_id"`
	MonthlyLimit int64     `json:"monthly_limit"`
}

// NewServiceQuota validates the limit up front so evaluation never has to.
func NewServiceQuota(boardID, serviceID uuid.UUID, monthlyLimit int64) (ServiceQuota, error) {
	if monthlyLimit < 0 {
		return ServiceQuota{}, ErrInvalidQuotaConfiguration
	}
	return ServiceQuota{BoardID: boardID, ServiceID: serviceID, MonthlyLimit: monthlyLimit}, nil
}

// Evaluate derives the quota status for the current month's count.
func (q ServiceQuota) Evaluate(currentCount int64) QuotaStatus {
	status := BoardServiceQuota(q.MonthlyLimit, currentCount)
	status.BoardID = q.BoardID
	status.ServiceID = q.ServiceID
	return status
}

// QuotaStatus is a ServiceQuota evaluated against a month's usage.
// Remaining equals Unlimited when Unbounded is set and is never negative otherwise.
type QuotaStatus struct {
	BoardID        uuid.UUID
	ServiceID      uuid.UUID
	MonthlyLimit   int64
	CurrentCount   int64
	Remaining      int64
	Unbounded      bool
	IsLimitReached bool
}

// MarshalJSON renders Remaining as null for unbounded quotas.
func (s QuotaStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		BoardID        uuid.UUID `json:"board_id"`
		ServiceID      uuid.UUID `json:"service_id"`
		MonthlyLimit   int64     `json:"monthly_limit"`
		CurrentCount   int64     `json:"current_count"`
		Remaining      *int64    `json:"remaining"`
		IsLimitReached bool      `json:"is_limit_reached"`
	}{
		BoardID:        s.BoardID,
		ServiceID:      s.ServiceID,
		MonthlyLimit:   s.MonthlyLimit,
		CurrentCount:   s.CurrentCount,
		Remaining:      finite(s.Remaining, s.Unbounded),
		IsLimitReached: s.IsLimitReached,
	})
}

// BoardServiceQuota evaluates a monthly limit against the current count.
// A zero limit is unbounded and never reached. Negative limits must be
// rejected by NewServiceQuota; if one slips through it evaluates as reached.
func BoardServiceQuota(monthlyLimit, currentCount int64) QuotaStatus {
	currentCount = max(0, currentCount)
	status := QuotaStatus{MonthlyLimit: monthlyLimit, CurrentCount: currentCount}

	if monthlyLimit == 0 {
		status.Remaining = Unlimited
		status.Unbounded = true
		return status
	}

	status.Remaining = max(0, monthlyLimit-currentCount)
	status.IsLimitReached = currentCount >= monthlyLimit
	return status
}

func finite(v int64, unbounded bool) *int64 {
	if unbounded {
		return nil
	}
	return &v
}

package limits

// Resource represents a countable team resource type.
type Resource string

// Predefined resource types.
const (
	ResourceDemands  Resource = "demands" // counted per calendar month
	ResourceBoards   Resource = "boards"
	ResourceMembers  Resource = "members"
	ResourceNotes    Resource = "notes"
	ResourceServices Resource = "services"
)

// Resources lists every resource a plan may limit, in display order.
var Resources = []Resource{
	ResourceDemands,
	ResourceBoards,
	ResourceMembers,
	ResourceNotes,
	ResourceServices,
}

// Limit constants
const (
	// Unlimited represents a resource with no limit (-1).
	// It is also the Remaining value reported for unlimited resources.
	Unlimited int64 = -1
)

// Monthly reports whether usage of the resource resets every calendar month.
func (r Resource) Monthly() bool {
	return r == ResourceDemands
}

// Valid reports whether r is one of the predefined resources.
func (r Resource) Valid() bool {
	switch r {
	case ResourceDemands, ResourceBoards, ResourceMembers, ResourceNotes, ResourceServices:
		return true
	}
	return false
}

// UsageInfo contains the current usage and limit for a resource.
type UsageInfo struct {
	Current int64       `json:"current"`
	Limit   int64       `json:"limit"`
	Banner  BannerLevel `json:"banner"`
}

package elapsed

import (
	"fmt"
	"time"
)

// State is the persisted shape of a tracked duration.
type State struct {
	// BaseSeconds accumulated before the current active interval.
	BaseSeconds int64 `json:"base_seconds"`
	// Active reports whether an interval is in progress.
	Active bool `json:"is_active"`
	// LastStartedAt marks the start of the active interval. Zero means missing.
	LastStartedAt time.Time `json:"last_started_at"`
}

// Live reports whether the state describes a running interval with a usable start.
func (s State) Live() bool {
	return s.Active && !s.LastStartedAt.IsZero()
}

// Seconds returns the total elapsed seconds at now. It is derived from the
// wall clock on every call, so delayed or skipped ticks never accumulate error.
// An active state without a start time contributes zero extra seconds.
func Seconds(s State, now time.Time) int64 {
	if !s.Live() {
		return s.BaseSeconds
	}
	since := max(0, now.Sub(s.LastStartedAt))
	return s.BaseSeconds + int64(since/time.Second)
}

// Format renders seconds as HH:MM:SS, switching to DD:HH:MM:SS from one day up.
// Zero and negative values render as 00:00:00, never as an empty string.
func Format(seconds int64) string {
	if seconds <= 0 {
		return "00:00:00"
	}
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60
	secs := seconds % 60
	if days > 0 {
		return fmt.Sprintf("%02d:%02d:%02d:%02d", days, hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// Display is Format(Seconds(s, now)).
func Display(s State, now time.Time) string {
	return Format(Seconds(s, now))
}

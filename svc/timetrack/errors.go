package timetrack

import "errors"

var (
	ErrEntryNotFound     = errors.New("timetrack: entry not found")
	ErrAlreadyRunning    = errors.New("timetrack: a timer is already running for this demand")
	ErrMissingTeamID     = errors.New("timetrack: team ID is required")
	ErrMissingDemandID   = errors.New("timetrack: demand ID is required")
	ErrMissingUserID     = errors.New("timetrack: user ID is required")
	ErrFailedToLoadEntry = errors.New("timetrack: failed to load time entry")
	ErrFailedToSaveEntry = errors.New("timetrack: failed to save time entry")
)

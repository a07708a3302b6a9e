package usage

import "errors"

var (
	ErrQuotaExhausted      = errors.New("usage: quota exhausted")
	ErrUnknownResource     = errors.New("usage: resource has no usage counter")
	ErrMissingTeamID       = errors.New("usage: team ID is required")
	ErrFailedToLoadUsage   = errors.New("usage: failed to load usage record")
	ErrFailedToUpdateUsage = errors.New("usage: failed to update usage record")
	ErrFailedToLoadQuotas  = errors.New("usage: failed to load board service quotas")
	ErrFailedToCount       = errors.New("usage: failed to count demands")
)

package health

import "errors"

// Sentinel errors for health checks.
var (
	ErrCheckerNotFound = errors.New("health: checker not found")
	ErrCheckTimeout    = errors.New("health: check timed out")
	ErrCheckFailed     = errors.New("health: check failed")
)

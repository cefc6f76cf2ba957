package probe

import "errors"

// Sentinel errors for probe operations.
var (
	ErrUnknownKind     = errors.New("probe: unknown kind")
	ErrInvalidKind     = errors.New("probe: kind is invalid")
	ErrDuplicateKind   = errors.New("probe: kind already registered")
	ErrNotTransmitable = errors.New("probe: probe cannot be sent to a remote node")
)

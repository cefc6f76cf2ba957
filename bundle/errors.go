package bundle

import "errors"

// Sentinel errors for bundle assembly.
var (
	ErrInvalidPath   = errors.New("bundle: content path is invalid")
	ErrDuplicatePath = errors.New("bundle: content path already added")
	ErrNoSubject     = errors.New("bundle: no identity to authorize")
)

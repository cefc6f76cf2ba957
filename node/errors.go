package node

import "errors"

// Sentinel errors for node operations.
var (
	ErrInvalidName   = errors.New("node: name is invalid")
	ErrDuplicateName = errors.New("node: name already registered")
	ErrNotFound      = errors.New("node: not found")
	ErrNilNode       = errors.New("node: node is nil")
)

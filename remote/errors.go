package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for remote execution.
var (
	ErrUnreachable = errors.New("remote: node unreachable")
	ErrNoAddress   = errors.New("remote: node has no agent address")
	ErrBadRequest  = errors.New("remote: invalid probe request")
)

// AgentError is a non-2xx answer from a worker agent.
type AgentError struct {
	StatusCode int
	Message    string
}

// Error returns the error message.
func (e *AgentError) Error() string {
	return fmt.Sprintf("remote: agent returned %d: %s", e.StatusCode, e.Message)
}

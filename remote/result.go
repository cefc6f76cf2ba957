package remote

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/nodediag/resilience"
)

// Status classifies the outcome of one dispatch.
type Status int

const (
	StatusSuccess Status = iota
	StatusTimeout
	StatusUnreachable
	StatusFailure
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	case StatusUnreachable:
		return "unreachable"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of running a probe on a node.
type Result struct {
	Status   Status
	Report   string // set only on StatusSuccess
	Err      error  // set on every other status
	Duration time.Duration
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Classify maps a dispatch error to a Status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, ErrUnreachable), errors.Is(err, ErrNoAddress), errors.Is(err, resilience.ErrCircuitOpen):
		return StatusUnreachable
	default:
		return StatusFailure
	}
}

package probe

import (
	"context"
	"maps"
)

// Probe is a read-only diagnostic routine executed against a node.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Call should honor cancellation/deadlines where it blocks.
// - Side effects: none beyond producing the report.
type Probe interface {
	// Kind returns the registry kind for this probe.
	Kind() string

	// Spec returns the serializable description used to rebuild the probe remotely.
	Spec() Spec

	// Call runs the probe on the current host and returns its report.
	Call(ctx context.Context) (string, error)
}

// Spec is the wire form of a probe.
type Spec struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// Clone returns a deep copy of s.
func (s Spec) Clone() Spec {
	return Spec{Kind: s.Kind, Params: maps.Clone(s.Params)}
}

// Func adapts an ordinary function into a Probe.
// A Func runs in-process; an agent can rebuild it only if its kind is registered there.
type Func struct {
	kind string
	fn   func(ctx context.Context) (string, error)
}

// NewFunc creates a function-backed probe.
func NewFunc(kind string, fn func(ctx context.Context) (string, error)) *Func {
	return &Func{kind: kind, fn: fn}
}

// Kind returns the probe kind.
func (f *Func) Kind() string { return f.kind }

// Spec returns a spec carrying only the kind.
func (f *Func) Spec() Spec { return Spec{Kind: f.kind} }

// Call invokes the function.
func (f *Func) Call(ctx context.Context) (string, error) { return f.fn(ctx) }

// Ensure Func implements Probe
var _ Probe = (*Func)(nil)

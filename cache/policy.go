package cache

import "time"

// Policy configures which cached reports may still be served.
type Policy struct {
	// MaxStale is the oldest report that may be served in place of a fresh
	// one. Zero means unlimited.
	MaxStale time.Duration
}

// DefaultPolicy returns the default policy: stale reports never expire.
func DefaultPolicy() Policy {
	return Policy{}
}

// Servable reports whether a report of the given age may be served.
func (p Policy) Servable(age time.Duration) bool {
	return p.MaxStale <= 0 || age <= p.MaxStale
}

package resilience

import (
	"context"
	"sync/atomic"
	"time"
)

// Bulkhead caps the number of concurrent executions.
type Bulkhead struct {
	slots    chan struct{}
	maxWait  time.Duration
	rejected atomic.Int64
}

// NewBulkhead creates a bulkhead with max slots. Callers wait up to maxWait
// for a slot; zero means reject immediately. Non-positive max defaults to 4.
func NewBulkhead(max int, maxWait time.Duration) *Bulkhead {
	if max <= 0 {
		max = 4
	}
	return &Bulkhead{slots: make(chan struct{}, max), maxWait: maxWait}
}

// Execute runs op in a slot or returns ErrBulkheadFull.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-b.slots }()
	return op(ctx)
}

// InFlight returns the number of occupied slots.
func (b *Bulkhead) InFlight() int {
	return len(b.slots)
}

// Rejected returns how many executions were turned away.
func (b *Bulkhead) Rejected() int64 {
	return b.rejected.Load()
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}

	if b.maxWait <= 0 {
		b.rejected.Add(1)
		return ErrBulkheadFull
	}

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return nil
	case <-timer.C:
		b.rejected.Add(1)
		return ErrBulkheadFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

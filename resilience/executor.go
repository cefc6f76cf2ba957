package resilience

import (
	"context"
	"time"
)

// Executor composes the guards around one operation.
type Executor struct {
	breaker  *CircuitBreaker
	retry    *Retry
	bulkhead *Bulkhead
	timeout  *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. With no options it runs op directly.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker guards every attempt with cb.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

// WithRetry retries failed attempts.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithBulkhead limits concurrency of whole executions.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(d) }
}

// Execute runs op through the configured guards.
//
// Order, outermost first: bulkhead, retry, circuit breaker, timeout. Each
// attempt passes through the breaker so a node that opens mid-retry stops
// being dialed.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	attempt := op

	if e.timeout != nil {
		inner := attempt
		attempt = func(ctx context.Context) error { return e.timeout.Execute(ctx, inner) }
	}
	if e.breaker != nil {
		inner := attempt
		attempt = func(ctx context.Context) error { return e.breaker.Execute(ctx, inner) }
	}

	run := attempt
	if e.retry != nil {
		run = func(ctx context.Context) error { return e.retry.Execute(ctx, attempt) }
	}
	if e.bulkhead != nil {
		inner := run
		run = func(ctx context.Context) error { return e.bulkhead.Execute(ctx, inner) }
	}

	return run(ctx)
}

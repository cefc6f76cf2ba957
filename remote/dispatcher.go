package remote

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/nodediag/node"
	"github.com/jonwraymond/nodediag/observe"
	"github.com/jonwraymond/nodediag/probe"
	"github.com/jonwraymond/nodediag/resilience"
)

// DefaultTimeout bounds one probe attempt against one node.
const DefaultTimeout = 10 * time.Second

// Dispatcher runs probes against nodes and classifies the outcome.
//
// Contract:
//   - Concurrency: safe for concurrent use; runs for different nodes do not
//     share breaker state.
//   - Run never panics and never returns a Result with both Report and Err.
//   - A probe abandoned on timeout keeps running; its late result is dropped.
type Dispatcher struct {
	dialer   Dialer
	timeout  time.Duration
	retry    *resilience.Retry
	breakers *resilience.BreakerSet
	mw       *observe.Middleware
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each attempt. Default: DefaultTimeout.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithRetry retries failed attempts per cfg. Default: a single attempt.
func WithRetry(cfg resilience.RetryConfig) DispatcherOption {
	return func(disp *Dispatcher) { disp.retry = resilience.NewRetry(cfg) }
}

// WithBreakers sets the per-node circuit breaker configuration.
func WithBreakers(cfg resilience.CircuitBreakerConfig) DispatcherOption {
	return func(disp *Dispatcher) { disp.breakers = resilience.NewBreakerSet(cfg) }
}

// WithMiddleware instruments every dispatch.
func WithMiddleware(mw *observe.Middleware) DispatcherOption {
	return func(disp *Dispatcher) {
		if mw != nil {
			disp.mw = mw
		}
	}
}

// NewDispatcher creates a dispatcher that reaches nodes through dialer.
func NewDispatcher(dialer Dialer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		dialer:   dialer,
		timeout:  DefaultTimeout,
		retry:    resilience.NewRetry(resilience.RetryConfig{}),
		breakers: resilience.NewBreakerSet(resilience.CircuitBreakerConfig{}),
		mw:       observe.NewMiddleware(nil, nil, nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout returns the per-attempt deadline.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

// Breakers exposes the per-node circuit breakers.
func (d *Dispatcher) Breakers() *resilience.BreakerSet { return d.breakers }

// Run executes p on n. label names the probe in logs and spans.
func (d *Dispatcher) Run(ctx context.Context, n *node.Node, p probe.Probe, label string) Result {
	start := time.Now()
	if n == nil {
		return Result{Status: StatusFailure, Err: node.ErrNilNode}
	}

	meta := observe.ProbeMeta{
		Node:     n.Name(),
		NodeKind: n.Kind().String(),
		Probe:    p.Kind(),
		Label:    label,
	}

	run := d.mw.Wrap(func(ctx context.Context, _ observe.ProbeMeta) (string, error) {
		ch, err := d.dialer.Dial(n)
		if err != nil {
			return "", err
		}

		exec := resilience.NewExecutor(
			resilience.WithRetry(d.retry),
			resilience.WithCircuitBreaker(d.breakers.For(n.Name())),
			resilience.WithTimeout(d.timeout),
		)

		// Only the latest attempt may publish; an attempt abandoned by the
		// timeout can still finish after a retry has started.
		var (
			mu       sync.Mutex
			attempts int
			report   string
		)
		err = exec.Execute(ctx, func(ctx context.Context) error {
			mu.Lock()
			attempts++
			id := attempts
			mu.Unlock()

			out, err := ch.Call(ctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if id != attempts || ctx.Err() != nil {
				return ctx.Err()
			}
			report = out
			return nil
		})
		if err != nil {
			return "", err
		}
		mu.Lock()
		defer mu.Unlock()
		return report, nil
	})

	report, err := run(ctx, meta)
	res := Result{Status: Classify(err), Err: err, Duration: time.Since(start)}
	if err == nil {
		res.Report = report
	}
	return res
}

// Forget drops per-node state for a removed node.
func (d *Dispatcher) Forget(name string) {
	d.breakers.Forget(name)
	if f, ok := d.dialer.(interface{ Forget(string) }); ok {
		f.Forget(name)
	}
}

// Package resilience bounds and guards probe dispatch to remote nodes.
//
// A single unreachable node must not stall a collection pass, and a node
// that keeps failing should stop being dialed for a while. The package
// provides the pieces the dispatcher composes for that:
//
//   - Timeout: runs an operation under a deadline and abandons it on expiry.
//     The abandoned operation's late result is discarded.
//   - CircuitBreaker: stops calling a failing node after a threshold and
//     probes it again after a reset timeout. BreakerSet keeps one per node.
//   - Retry: retries transient failures with backoff.
//   - Bulkhead: caps concurrent executions (used by the worker agent).
//
// # Usage
//
//	breakers := resilience.NewBreakerSet(resilience.CircuitBreakerConfig{
//	    MaxFailures:  3,
//	    ResetTimeout: time.Minute,
//	})
//
//	exec := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(breakers.For(n.Name())),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 2})),
//	    resilience.WithTimeout(30*time.Second),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    report, err = channel.Call(ctx, spec)
//	    return err
//	})
package resilience

package cache

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
	"weak"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/nodediag/node"
	"github.com/jonwraymond/nodediag/observe"
	"github.com/jonwraymond/nodediag/probe"
	"github.com/jonwraymond/nodediag/remote"
)

// NoConnection is the conventional fallback text for an unavailable report.
const NoConnection = "N/A: No connection to node, or no cache."

// Runner executes a probe against a node. *remote.Dispatcher satisfies it.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Run must bound its own execution time and must not panic.
type Runner interface {
	Run(ctx context.Context, n *node.Node, p probe.Probe, label string) remote.Result
}

// RunnerFunc adapts a function into a Runner.
type RunnerFunc func(ctx context.Context, n *node.Node, p probe.Probe, label string) remote.Result

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, n *node.Node, p probe.Probe, label string) remote.Result {
	return f(ctx, n, p, label)
}

// slot is the per-node state. It lives until the node is collected so that
// a forgotten node stays forgotten.
type slot struct {
	report   string
	storedAt time.Time
	has      bool
	removed  bool
}

// Cache maps nodes to their last successful report.
//
// Contract:
//   - Concurrency: safe for concurrent use. The lock guards the map only; it
//     is never held while a probe runs. Concurrent refreshes of one node are
//     last-writer-wins.
//   - Get never panics and never returns an error.
type Cache struct {
	runner  Runner
	policy  Policy
	logger  observe.Logger
	metrics observe.Metrics
	now     func() time.Time

	coalesce bool
	flights  singleflight.Group

	mu    sync.Mutex
	slots map[weak.Pointer[node.Node]]*slot
}

// Option configures a Cache.
type Option func(*Cache)

// WithPolicy sets the staleness policy.
func WithPolicy(p Policy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithLogger sets the logger for refresh failures.
func WithLogger(l observe.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records lookup outcomes.
func WithMetrics(m observe.Metrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCoalescing makes concurrent refreshes of the same node and probe kind
// share one probe run instead of each dispatching their own. A caller whose
// context ends stops waiting; the shared run continues for the others.
func WithCoalescing() Option {
	return func(c *Cache) { c.coalesce = true }
}

// New creates a cache that refreshes through runner.
func New(runner Runner, opts ...Option) *Cache {
	c := &Cache{
		runner:  runner,
		policy:  DefaultPolicy(),
		logger:  observe.NopLogger(),
		metrics: observe.NopMetrics(),
		now:     time.Now,
		slots:   make(map[weak.Pointer[node.Node]]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach evicts nodes from the cache as they are removed from r.
func (c *Cache) Attach(r *node.Registry) {
	r.OnRemove(c.Forget)
}

// Get returns the report of p for n.
//
// A connected node is probed; on success the report is stored and returned.
// If the node is disconnected or the probe fails, the cached report is
// returned when one exists and the policy allows it, otherwise unavailable.
// Failures are logged with label and the node name.
func (c *Cache) Get(ctx context.Context, n *node.Node, p probe.Probe, label, unavailable string) string {
	if n == nil || p == nil {
		return unavailable
	}
	meta := observe.ProbeMeta{
		Node:     n.Name(),
		NodeKind: n.Kind().String(),
		Probe:    p.Kind(),
		Label:    label,
	}

	if !n.Connected() {
		return c.fallback(ctx, n, meta, unavailable)
	}

	res := c.refresh(ctx, n, p, label)
	if res.OK() {
		c.store(n, res.Report)
		c.metrics.RecordLookup(ctx, meta, observe.LookupFresh)
		return res.Report
	}

	c.logger.WithProbe(meta).Warn(ctx, "could not refresh "+label+" of "+n.Name(),
		observe.F("status", res.Status.String()),
		observe.F("error", res.Err),
		observe.F("duration_ms", float64(res.Duration.Milliseconds())),
	)
	return c.fallback(ctx, n, meta, unavailable)
}

func (c *Cache) refresh(ctx context.Context, n *node.Node, p probe.Probe, label string) remote.Result {
	if !c.coalesce {
		return c.runner.Run(ctx, n, p, label)
	}
	// The shared run outlives any single caller; the runner's own timeout bounds it.
	shared := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%p/%s", n, p.Kind())
	ch := c.flights.DoChan(key, func() (any, error) {
		return c.runner.Run(shared, n, p, label), nil
	})
	select {
	case r := <-ch:
		return r.Val.(remote.Result)
	case <-ctx.Done():
		err := ctx.Err()
		return remote.Result{Status: remote.Classify(err), Err: err}
	}
}

func (c *Cache) fallback(ctx context.Context, n *node.Node, meta observe.ProbeMeta, unavailable string) string {
	if report, ok := c.servable(n); ok {
		c.metrics.RecordLookup(ctx, meta, observe.LookupStale)
		return report
	}
	c.metrics.RecordLookup(ctx, meta, observe.LookupFallback)
	return unavailable
}

func (c *Cache) servable(n *node.Node) (string, bool) {
	report, storedAt, ok := c.Peek(n)
	if !ok || !c.policy.Servable(c.now().Sub(storedAt)) {
		return "", false
	}
	return report, true
}

// Peek returns the cached report for n without probing.
func (c *Cache) Peek(n *node.Node) (report string, storedAt time.Time, ok bool) {
	if n == nil {
		return "", time.Time{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, found := c.slots[weak.Make(n)]
	if !found || !s.has {
		return "", time.Time{}, false
	}
	return s.report, s.storedAt, true
}

// store overwrites n's report unless n has been forgotten.
func (c *Cache) store(n *node.Node, report string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slotLocked(n)
	if s.removed {
		return
	}
	s.report = report
	s.storedAt = c.now()
	s.has = true
}

// Forget drops n's entry. A forgotten node is never cached again, so a
// probe still in flight when its node is removed cannot resurrect it.
func (c *Cache) Forget(n *node.Node) {
	if n == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slotLocked(n)
	s.removed = true
	s.has = false
	s.report = ""
}

// Len returns the number of nodes with a cached report.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, s := range c.slots {
		if s.has {
			count++
		}
	}
	return count
}

// slotLocked returns n's slot, creating it and arranging for its removal
// once n is collected. Callers hold c.mu.
func (c *Cache) slotLocked(n *node.Node) *slot {
	key := weak.Make(n)
	if s, ok := c.slots[key]; ok {
		return s
	}
	s := &slot{}
	runtime.AddCleanup(n, c.evict, key)
	c.slots[key] = s
	return s
}

func (c *Cache) evict(key weak.Pointer[node.Node]) {
	c.mu.Lock()
	delete(c.slots, key)
	c.mu.Unlock()
}

// Get looks up p for n in c. A nil cache yields unavailable.
func Get(ctx context.Context, n *node.Node, c *Cache, p probe.Probe, label, unavailable string) string {
	if c == nil {
		return unavailable
	}
	return c.Get(ctx, n, p, label, unavailable)
}

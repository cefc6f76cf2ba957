package remote

import (
	"context"
	"time"

	"github.com/jonwraymond/nodediag/health"
	"github.com/jonwraymond/nodediag/node"
	"github.com/jonwraymond/nodediag/observe"
)

// Monitor keeps worker connected flags in step with agent liveness.
type Monitor struct {
	registry *node.Registry
	dialer   Dialer
	agg      *health.Aggregator
	interval time.Duration
	logger   observe.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the ping period. Default: 15s.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMonitorLogger sets the logger for connectivity changes.
func WithMonitorLogger(l observe.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a monitor over the workers of registry.
// pingTimeout bounds one round of pings.
func NewMonitor(registry *node.Registry, dialer Dialer, pingTimeout time.Duration, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		registry: registry,
		dialer:   dialer,
		agg:      health.NewAggregator(pingTimeout),
		interval: 15 * time.Second,
		logger:   observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckOnce pings every worker once and updates its connected flag.
func (m *Monitor) CheckOnce(ctx context.Context) map[string]health.Result {
	workers := m.registry.Workers()
	m.sync(workers)

	results := m.agg.CheckAll(ctx)
	for _, w := range workers {
		r, ok := results[w.Name()]
		if !ok {
			continue
		}
		up := r.Status != health.StatusUnhealthy
		if was := w.SetConnected(up); was != up {
			fields := []observe.Field{
				observe.F("node.name", w.Name()),
				observe.F("connected", up),
			}
			if r.Error != nil {
				fields = append(fields, observe.F("error", r.Error))
			}
			m.logger.Info(ctx, "node connectivity changed", fields...)
		}
	}
	return results
}

// Run checks on every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// sync registers a checker per current worker and drops the rest.
func (m *Monitor) sync(workers []*node.Node) {
	current := make(map[string]bool, len(workers))
	for _, w := range workers {
		current[w.Name()] = true
		m.agg.Register(w.Name(), m.checker(w))
	}
	for _, name := range m.agg.Names() {
		if !current[name] {
			m.agg.Unregister(name)
		}
	}
}

func (m *Monitor) checker(n *node.Node) health.Checker {
	return health.NewCheckerFunc(n.Name(), func(ctx context.Context) health.Result {
		ch, err := m.dialer.Dial(n)
		if err != nil {
			return health.Unhealthy("cannot dial agent", err)
		}
		p, ok := ch.(Pinger)
		if !ok {
			return health.Healthy("channel has no liveness check")
		}
		if err := p.Ping(ctx); err != nil {
			return health.Unhealthy("agent ping failed", err)
		}
		return health.Healthy("agent reachable")
	})
}

package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Lookup outcomes recorded by RecordLookup.
const (
	LookupFresh    = "fresh"
	LookupStale    = "stale"
	LookupFallback = "fallback"
)

// Metrics records probe and cache metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordProbe records one probe dispatch with duration and error status.
	RecordProbe(ctx context.Context, meta ProbeMeta, duration time.Duration, err error)

	// RecordLookup records how a cache lookup was answered.
	RecordLookup(ctx context.Context, meta ProbeMeta, outcome string)
}

type otelMetrics struct {
	total    metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
	lookups  metric.Int64Counter
}

// NewMetrics creates Metrics backed by meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	total, err := meter.Int64Counter("probe.exec.total",
		metric.WithDescription("Total number of probe dispatches"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errCount, err := meter.Int64Counter("probe.exec.errors",
		metric.WithDescription("Probe dispatches that did not return a report"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("probe.exec.duration_ms",
		metric.WithDescription("Probe dispatch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	lookups, err := meter.Int64Counter("cache.lookup.total",
		metric.WithDescription("Node cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{total: total, errors: errCount, duration: duration, lookups: lookups}, nil
}

func attrs(meta ProbeMeta) []attribute.KeyValue {
	kv := []attribute.KeyValue{
		attribute.String("node.name", meta.Node),
		attribute.String("probe.kind", meta.Probe),
	}
	if meta.NodeKind != "" {
		kv = append(kv, attribute.String("node.kind", meta.NodeKind))
	}
	return kv
}

func (m *otelMetrics) RecordProbe(ctx context.Context, meta ProbeMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(attrs(meta)...)
	m.total.Add(ctx, 1, opt)
	if err != nil {
		m.errors.Add(ctx, 1, opt)
	}
	m.duration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *otelMetrics) RecordLookup(ctx context.Context, meta ProbeMeta, outcome string) {
	kv := append(attrs(meta), attribute.String("outcome", outcome))
	m.lookups.Add(ctx, 1, metric.WithAttributes(kv...))
}

type nopMetrics struct{}

// NopMetrics returns Metrics that record nothing.
func NopMetrics() Metrics { return nopMetrics{} }

func (nopMetrics) RecordProbe(context.Context, ProbeMeta, time.Duration, error) {}
func (nopMetrics) RecordLookup(context.Context, ProbeMeta, string)              {}

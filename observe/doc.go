// Package observe provides logging, metrics and tracing for probe dispatch.
//
// It is a pure instrumentation library: it never runs probes itself.
// Dispatchers and caches take a Logger, Metrics and Tracer (or a Middleware
// built from an Observer) and report through them.
package observe

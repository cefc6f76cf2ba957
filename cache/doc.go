// Package cache keeps the last successful probe report for each node and
// serves it when the node cannot be probed.
//
// The cache is keyed by node identity, not by name, and holds its keys
// weakly: an entry disappears once its *node.Node is unreachable from the
// rest of the program. Removal through node.Registry evicts deterministically
// when the cache is attached to the registry.
//
// Lookup outcomes:
//
//   - connected node, probe succeeds: the fresh report is stored and returned
//   - probe fails or node disconnected: the cached report is returned
//   - nothing cached: the caller's fallback text is returned
//
// Usage:
//
//	c := cache.New(dispatcher, cache.WithLogger(logger))
//	c.Attach(registry)
//	report := c.Get(ctx, n, probe.NewNetworkInterfaces(), "network interfaces", cache.NoConnection)
package cache

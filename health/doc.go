// Package health reports whether nodes and agents are fit to run probes.
//
// On the controller, an Aggregator holds one Checker per worker (an agent
// ping) and its results drive node reachability. On a worker, the agent
// exposes its own Aggregator through the HTTP handlers:
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//	// GET /healthz -> liveness, GET /readyz -> readiness, GET /health -> JSON detail
package health

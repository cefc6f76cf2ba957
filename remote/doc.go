// Package remote executes probes on nodes.
//
// The controller runs probes in-process through Local. Workers run an Agent,
// an HTTP server that accepts a probe.Spec on POST /v1/probe, rebuilds the
// probe from its registry and returns the report. The controller reaches
// agents through HTTPChannel, authenticating with a short-lived bearer token.
//
// Dispatcher ties this together: it picks a Channel for the node, bounds
// each attempt with a timeout, guards each node with its own circuit
// breaker, and classifies the outcome into a typed Result:
//
//	d := remote.NewDispatcher(remote.NewHTTPDialer(remote.WithTokenSource(signer)))
//	res := d.Run(ctx, n, probe.NewNetworkInterfaces(), "network interfaces")
//	switch res.Status {
//	case remote.StatusSuccess:
//	    use(res.Report)
//	case remote.StatusUnreachable, remote.StatusTimeout, remote.StatusFailure:
//	    fallback(res.Err)
//	}
//
// Monitor pings agents periodically and flips each worker's connected flag.
package remote

// Package probe defines read-only diagnostic routines executed against a node.
//
// A Probe is a value, not a connection: it carries no live resources and can
// be described by a Spec, shipped to a worker agent, and rebuilt there from a
// Registry. Executing a probe yields a line-oriented text report.
//
// # Built-in probes
//
//   - network-interfaces: enumerates host interfaces (see NetworkInterfaces).
//
// # Usage
//
//	p, err := probe.DefaultRegistry.Build(probe.Spec{Kind: probe.KindNetworkInterfaces})
//	if err != nil {
//	    return err
//	}
//	report, err := p.Call(ctx)
package probe

package collector

import (
	"context"

	"github.com/jonwraymond/nodediag/auth"
	"github.com/jonwraymond/nodediag/bundle"
	"github.com/jonwraymond/nodediag/cache"
	"github.com/jonwraymond/nodediag/node"
	"github.com/jonwraymond/nodediag/probe"
)

// Label names the network interface report in logs.
const Label = "network interfaces"

// NetworkInterfaces contributes one interface report per node: the
// controller's at nodes/master/networkInterface.md and each worker's at
// nodes/slave/<name>/networkInterface.md.
type NetworkInterfaces struct {
	registry *node.Registry
	cache    *cache.Cache
	probe    probe.Probe
}

// Option configures NetworkInterfaces.
type Option func(*NetworkInterfaces)

// WithProbe replaces the interface probe, e.g. one with a custom lister.
func WithProbe(p probe.Probe) Option {
	return func(ni *NetworkInterfaces) {
		if p != nil {
			ni.probe = p
		}
	}
}

// NewNetworkInterfaces creates the component. Reports are looked up through c
// at materialization time.
func NewNetworkInterfaces(registry *node.Registry, c *cache.Cache, opts ...Option) *NetworkInterfaces {
	ni := &NetworkInterfaces{
		registry: registry,
		cache:    c,
		probe:    probe.NewNetworkInterfaces(),
	}
	for _, opt := range opts {
		opt(ni)
	}
	return ni
}

// ID returns the probe kind.
func (ni *NetworkInterfaces) ID() string { return probe.KindNetworkInterfaces }

// DisplayName returns "Networking Interface".
func (ni *NetworkInterfaces) DisplayName() string { return "Networking Interface" }

// Permission returns auth.PermAdminister.
func (ni *NetworkInterfaces) Permission() string { return auth.PermAdminister }

// AddContents adds the controller's report and one per current worker.
func (ni *NetworkInterfaces) AddContents(_ context.Context, c *bundle.Container) error {
	if err := c.Add(ni.content(MasterPath(), ni.registry.Controller())); err != nil {
		return err
	}
	for _, w := range ni.registry.Workers() {
		if err := c.Add(ni.content(WorkerPath(w.Name()), w)); err != nil {
			return err
		}
	}
	return nil
}

// Report returns n's interface report, or cache.NoConnection.
func (ni *NetworkInterfaces) Report(ctx context.Context, n *node.Node) string {
	return cache.Get(ctx, n, ni.cache, ni.probe, Label, cache.NoConnection)
}

func (ni *NetworkInterfaces) content(path string, n *node.Node) bundle.Content {
	return bundle.Text(path, func(ctx context.Context) string {
		return ni.Report(ctx, n)
	})
}

// MasterPath is the bundle path of the controller's report.
func MasterPath() string { return "nodes/master/networkInterface.md" }

// WorkerPath is the bundle path of a worker's report.
func WorkerPath(name string) string { return "nodes/slave/" + name + "/networkInterface.md" }

var _ bundle.Component = (*NetworkInterfaces)(nil)

package remote

import (
	"context"
	"sync"

	"github.com/jonwraymond/nodediag/node"
	"github.com/jonwraymond/nodediag/probe"
)

// Channel runs probes on one node.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Call must honor cancellation/deadlines.
type Channel interface {
	Call(ctx context.Context, p probe.Probe) (string, error)
}

// Pinger is implemented by channels that can check their peer's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Local runs probes in the current process.
type Local struct{}

// Call runs p directly.
func (Local) Call(ctx context.Context, p probe.Probe) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Call(ctx)
}

// Dialer returns the Channel for a node.
type Dialer interface {
	Dial(n *node.Node) (Channel, error)
}

// DialerFunc adapts a function into a Dialer.
type DialerFunc func(n *node.Node) (Channel, error)

// Dial calls f.
func (f DialerFunc) Dial(n *node.Node) (Channel, error) { return f(n) }

// HTTPDialer dials the controller locally and workers over HTTP.
// Channels are reused per node name until the address changes or the
// node is forgotten.
type HTTPDialer struct {
	opts []HTTPOption

	mu       sync.Mutex
	channels map[string]*HTTPChannel
}

// NewHTTPDialer creates a dialer whose channels share opts.
func NewHTTPDialer(opts ...HTTPOption) *HTTPDialer {
	return &HTTPDialer{opts: opts, channels: make(map[string]*HTTPChannel)}
}

// Dial returns Local for the controller and an HTTPChannel for workers.
func (d *HTTPDialer) Dial(n *node.Node) (Channel, error) {
	if n == nil {
		return nil, node.ErrNilNode
	}
	if n.IsController() {
		return Local{}, nil
	}
	if n.Address() == "" {
		return nil, ErrNoAddress
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if ch, ok := d.channels[n.Name()]; ok && ch.Address() == n.Address() {
		return ch, nil
	}
	ch := NewHTTPChannel(n.Address(), d.opts...)
	d.channels[n.Name()] = ch
	return ch, nil
}

// Forget drops the cached channel for a node.
func (d *HTTPDialer) Forget(name string) {
	d.mu.Lock()
	delete(d.channels, name)
	d.mu.Unlock()
}

var (
	_ Channel = Local{}
	_ Dialer  = (*HTTPDialer)(nil)
	_ Dialer  = DialerFunc(nil)
)

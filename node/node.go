package node

import (
	"sync/atomic"
)

// Kind distinguishes the controller from workers.
type Kind int

const (
	// KindController is the node the collection runs on.
	KindController Kind = iota
	// KindWorker is a remote node reached through an agent.
	KindWorker
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindController:
		return "controller"
	case KindWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// Node is a machine capable of executing a probe.
//
// Contract:
// - Concurrency: Connected/SetConnected are safe for concurrent use.
// - Ownership: callers hold *Node; caches must hold it weakly.
type Node struct {
	name    string
	kind    Kind
	address string

	connected atomic.Bool
}

// NewController creates the controller node. It is always connected.
func NewController(name string) *Node {
	n := &Node{name: name, kind: KindController}
	n.connected.Store(true)
	return n
}

// NewWorker creates a worker node reachable at the given agent address.
// Workers start disconnected until a monitor or caller marks them connected.
func NewWorker(name, address string) *Node {
	return &Node{name: name, kind: KindWorker, address: address}
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.kind }

// Address returns the agent address. Empty for the controller.
func (n *Node) Address() string { return n.address }

// IsController reports whether n is the controller.
func (n *Node) IsController() bool { return n.kind == KindController }

// Connected reports whether the node is currently reachable.
func (n *Node) Connected() bool { return n.connected.Load() }

// SetConnected updates reachability and returns the previous value.
func (n *Node) SetConnected(v bool) bool { return n.connected.Swap(v) }

// String returns "<kind>/<name>".
func (n *Node) String() string {
	return n.kind.String() + "/" + n.name
}

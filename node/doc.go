// Package node models the machines a diagnostic collection runs against.
//
// A Node is either the controller or a worker. Its identity is the *Node
// pointer: other packages key state by it and must not assume ownership.
// The Registry tracks the current set of workers and fires removal hooks so
// dependent caches can drop their entries.
package node

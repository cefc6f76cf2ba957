package node

import (
	"strings"
	"sync"
)

// RemoveHook is called after a worker is removed from the registry.
type RemoveHook func(n *Node)

// Registry tracks the controller and the current set of workers.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Hooks: removal hooks run synchronously, outside the registry lock.
type Registry struct {
	controller *Node

	mu      sync.RWMutex
	workers map[string]*Node
	order   []string // Maintains registration order
	hooks   []RemoveHook
}

// NewRegistry creates a registry rooted at the given controller.
func NewRegistry(controller *Node) *Registry {
	return &Registry{
		controller: controller,
		workers:    make(map[string]*Node),
	}
}

// ValidateName checks that a node name is usable as a bundle path segment.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\\n\r") {
		return ErrInvalidName
	}
	return nil
}

// Controller returns the controller node.
func (r *Registry) Controller() *Node {
	return r.controller
}

// Add registers a worker.
func (r *Registry) Add(n *Node) error {
	if n == nil {
		return ErrNilNode
	}
	if err := ValidateName(n.Name()); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[n.Name()]; exists {
		return ErrDuplicateName
	}
	r.workers[n.Name()] = n
	r.order = append(r.order, n.Name())
	return nil
}

// Remove unregisters a worker and fires removal hooks.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	n, ok := r.workers[name]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.workers, name)
	for i, existing := range r.order {
		if existing == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	hooks := make([]RemoveHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	n.SetConnected(false)
	for _, hook := range hooks {
		hook(n)
	}
	return nil
}

// Lookup returns the worker with the given name.
func (r *Registry) Lookup(name string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.workers[name]
	return n, ok
}

// Workers returns the registered workers in registration order.
func (r *Registry) Workers() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.workers[name])
	}
	return out
}

// All returns the controller followed by the workers.
func (r *Registry) All() []*Node {
	workers := r.Workers()
	out := make([]*Node, 0, len(workers)+1)
	if r.controller != nil {
		out = append(out, r.controller)
	}
	return append(out, workers...)
}

// OnRemove registers a hook fired when a worker is removed.
func (r *Registry) OnRemove(hook RemoveHook) {
	if hook == nil {
		return
	}
	r.mu.Lock()
	r.hooks = append(r.hooks, hook)
	r.mu.Unlock()
}

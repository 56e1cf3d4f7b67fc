// Package registry provides a static, name-keyed registry used for format
// normalizers and analysis providers.
package registry

import (
	"fmt"
	"sync"
)

// Registry holds named implementations in registration order.
// It is safe for concurrent use.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[string]T),
	}
}

// Register adds an implementation under name. Registering a name twice is an error.
func (r *Registry[T]) Register(name string, item T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[name]; ok {
		return fmt.Errorf("%q is already registered", name)
	}
	r.items[name] = item
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register that panics on duplicates. Used for built-ins.
func (r *Registry[T]) MustRegister(name string, item T) {
	if err := r.Register(name, item); err != nil {
		panic(err)
	}
}

// Replace registers item under name, overwriting any existing entry but
// keeping its original position.
func (r *Registry[T]) Replace(name string, item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[name]; !ok {
		r.order = append(r.order, name)
	}
	r.items[name] = item
}

// Get returns the implementation registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[name]
	return item, ok
}

// Names returns registered names in registration order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// All returns registered implementations in registration order.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.items[name])
	}
	return out
}

// Len returns the number of registered implementations.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

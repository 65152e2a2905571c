package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry maps names used in configuration to Go values of type T.
// All methods are safe for concurrent use.
type Registry[T any] struct {
	// what describes the registered values in messages, e.g. "transform".
	what  string
	mu    sync.RWMutex
	items map[string]T
}

// New creates an empty registry. what names the kind of value it holds and
// is used in log lines and panics.
func New[T any](what string) *Registry[T] {
	return &Registry[T]{what: what, items: make(map[string]T)}
}

// Register adds a named value. Registering the same name twice is a
// programmer error and panics.
func (r *Registry[T]) Register(name string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		panic(fmt.Sprintf("%s with name '%s' already registered", r.what, name))
	}
	slog.Debug("Registering "+r.what+".", "name", name)
	r.items[name] = v
}

// Replace registers v under name, overwriting any previous entry. It is
// meant for tests that swap in fakes.
func (r *Registry[T]) Replace(name string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = v
}

// Lookup returns the value registered under name.
func (r *Registry[T]) Lookup(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[name]
	return v, ok
}

// Names returns every registered name in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy, so callers can extend a shared
// registry without affecting other users.
func (r *Registry[T]) Clone() *Registry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := New[T](r.what)
	for k, v := range r.items {
		c.items[k] = v
	}
	return c
}

// What returns the description given to New.
func (r *Registry[T]) What() string {
	return r.what
}

package provider

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry maps provider names to factories.
type Registry[T Provider] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry creates an empty Registry.
func NewRegistry[T Provider]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]Factory[T])}
}

// RegisterFactory binds name to factory, replacing any earlier binding.
func (r *Registry[T]) RegisterFactory(name string, factory Factory[T]) {
	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()
}

// Create runs the factory registered under name.
func (r *Registry[T]) Create(name string) (T, error) {
	r.mu.RLock()
	factory := r.factories[name]
	r.mu.RUnlock()
	if factory == nil {
		var zero T
		return zero, fmt.Errorf("no provider named %q (registered: %v)", name, r.Names())
	}
	return factory()
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

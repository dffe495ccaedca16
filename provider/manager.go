package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/scribe/logger"
)

// Manager owns initialized providers and picks one per call: the preferred
// provider when it is available, otherwise the first available fallback in
// order.
type Manager[T Provider] struct {
	mu        sync.RWMutex
	registry  *Registry[T]
	providers map[string]T
	order     []string
	log       *logger.Logger
}

// NewManager creates a Manager backed by registry.
func NewManager[T Provider](registry *Registry[T]) *Manager[T] {
	return &Manager[T]{
		registry:  registry,
		providers: make(map[string]T),
		log:       logger.Get("provider"),
	}
}

// Initialize creates the named provider and appends it to the selection
// order. The first initialized provider is preferred.
func (m *Manager[T]) Initialize(name string) error {
	instance, err := m.registry.Create(name)
	if err != nil {
		return fmt.Errorf("initialize provider %q: %w", name, err)
	}
	m.mu.Lock()
	if _, exists := m.providers[name]; !exists {
		m.order = append(m.order, name)
	}
	m.providers[name] = instance
	m.mu.Unlock()
	m.log.Info("provider initialized", map[string]interface{}{logger.FieldProvider: name})
	return nil
}

// Get returns the first available provider in selection order.
func (m *Manager[T]) Get(ctx context.Context) (T, error) {
	m.mu.RLock()
	order := append([]string(nil), m.order...)
	providers := make(map[string]T, len(m.providers))
	for k, v := range m.providers {
		providers[k] = v
	}
	m.mu.RUnlock()

	for i, name := range order {
		p := providers[name]
		if p.IsAvailable(ctx) {
			if i > 0 {
				m.log.Warn("preferred provider unavailable, using fallback", map[string]interface{}{
					"preferred": order[0], logger.FieldProvider: name,
				})
			}
			return p, nil
		}
	}
	var zero T
	if len(order) == 0 {
		return zero, fmt.Errorf("no providers initialized")
	}
	return zero, fmt.Errorf("no available provider among %v", order)
}

// GetByName returns a specific initialized provider.
func (m *Manager[T]) GetByName(name string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.providers[name]; ok {
		return p, nil
	}
	var zero T
	return zero, fmt.Errorf("provider %q not found", name)
}

// Available returns the sorted names of all initialized providers.
func (m *Manager[T]) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

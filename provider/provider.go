// Package provider holds the small generic building blocks shared by the
// gateway packages: named providers, a factory registry, a manager that picks
// a live provider, and the ContextStore persistence port.
package provider

import "context"

// Provider is implemented by every pluggable backend.
type Provider interface {
	// Name returns the provider's unique name.
	Name() string
	// IsAvailable reports whether the provider can take requests.
	IsAvailable(ctx context.Context) bool
}

// Factory creates a provider instance. Factories close over their own typed config.
type Factory[T Provider] func() (T, error)

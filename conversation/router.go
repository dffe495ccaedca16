package conversation

import (
	"context"

	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/provider"
)

// Router is a Gateway that opens each session on the first available
// provider of a provider.Manager.
type Router struct {
	manager *provider.Manager[Provider]
}

// NewRouter creates a Router.
func NewRouter(manager *provider.Manager[Provider]) *Router {
	return &Router{manager: manager}
}

// NewRegistry creates a registry for conversation providers.
func NewRegistry() *provider.Registry[Provider] {
	return provider.NewRegistry[Provider]()
}

var _ Gateway = (*Router)(nil)

// CreateSession implements Gateway.
func (r *Router) CreateSession(ctx context.Context, seed Seed) (Session, error) {
	p, err := r.manager.Get(ctx)
	if err != nil {
		return nil, errors.ProviderError(Service, err)
	}
	return p.CreateSession(ctx, seed)
}

package registry

import (
	"fmt"
	"sync"

	"github.com/nimbusedge/edgehost/pkg/types"
)

// Registry maps a tenant host slug to its module locator. It is populated
// at startup via Register and treated as read-only thereafter; the mutex
// makes Register and Lookup safe to call from any goroutine, and while
// serving only Lookup's read lock is taken.
type Registry struct {
	mu    sync.RWMutex
	slugs map[types.Slug]types.Locator
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{slugs: make(map[types.Slug]types.Locator)}
}

// Register records the module locator for a slug. Idempotent: a later
// call for the same slug overwrites the earlier one. Intended for
// startup-time population only.
func (r *Registry) Register(slug types.Slug, locator types.Locator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slugs[slug] = locator
}

// Lookup resolves a slug to its module locator, or types.ErrNoSuchTenant
// if the slug was never registered.
func (r *Registry) Lookup(slug types.Slug) (types.Locator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	locator, ok := r.slugs[slug]
	if !ok {
		return "", fmt.Errorf("%w: %q", types.ErrNoSuchTenant, slug)
	}
	return locator, nil
}

// Len reports the number of registered tenants, mostly useful for startup
// logging ("loaded N tenants").
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slugs)
}

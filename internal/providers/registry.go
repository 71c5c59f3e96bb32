// -----------------------------------------------------------------------
// Provider Adapter Registry - routes job kinds to generation back ends
// -----------------------------------------------------------------------

package providers

import (
	"fmt"
	"sync"

	"github.com/ternarybob/backlot/internal/interfaces"
	"github.com/ternarybob/backlot/internal/models"
)

// Registry maps provider ids to clients and job kinds to the provider
// responsible for them. Registering one client is all that is needed to
// add a back end; orchestration code consults the registry only.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]interfaces.ProviderClient
	routes  map[models.JobKind]string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]interfaces.ProviderClient),
		routes:  make(map[models.JobKind]string),
	}
}

// Register adds a provider client and routes the given kinds to it.
func (r *Registry) Register(client interfaces.ProviderClient, kinds ...models.JobKind) {
	if client == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[client.ID()] = client
	for _, kind := range kinds {
		r.routes[kind] = client.ID()
	}
}

// Get returns the client with the given id.
func (r *Registry) Get(id string) (interfaces.ProviderClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", models.ErrConfiguration, id)
	}
	return client, nil
}

// ForKind returns the client routed for a job kind.
func (r *Registry) ForKind(kind models.JobKind) (interfaces.ProviderClient, error) {
	r.mu.RLock()
	id, ok := r.routes[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: no provider registered for kind %q", models.ErrConfiguration, kind)
	}
	return r.Get(id)
}

// Providers returns the registered provider ids.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrProviderNotDispatchable is returned when registering a catalog-only identifier
	ErrProviderNotDispatchable = errors.New("provider is not dispatchable")
)

// Registry manages provider instances keyed by identifier
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderID]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[ProviderID]Provider),
	}
}

// Register registers a provider instance
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	id := provider.ID()
	if !id.IsDispatchable() {
		return fmt.Errorf("%w: %s", ErrProviderNotDispatchable, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[id]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.providers[id] = provider
	return nil
}

// Unregister removes a provider from the registry
func (r *Registry) Unregister(id ProviderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[id]; !exists {
		return ErrProviderNotFound
	}
	delete(r.providers, id)
	return nil
}

// Get retrieves a provider by identifier
func (r *Registry) Get(id ProviderID) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[id]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// IDs returns the registered identifiers in sorted order
func (r *Registry) IDs() []ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := lo.Keys(r.providers)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns a copy of the registered providers
func (r *Registry) Snapshot() map[ProviderID]Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[ProviderID]Provider, len(r.providers))
	for id, p := range r.providers {
		out[id] = p
	}
	return out
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ProviderRegistry holds the issue providers a host has enabled. Providers
// are keyed by lowercase id; a task's issue type is the uppercase id, so
// "feishu" serves tasks of type FEISHU.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]IssueProvider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]IssueProvider)}
}

func (r *ProviderRegistry) Register(provider IssueProvider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	id := registryKey(provider.ID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.providers[id] = provider
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (IssueProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[registryKey(providerID)]
	return provider, ok
}

// ForTask resolves the provider owning task. An untyped task resolves only
// when exactly one provider is registered.
func (r *ProviderRegistry) ForTask(task LocalTask) (IssueProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key := registryKey(task.IssueType); key != "" {
		provider, ok := r.providers[key]
		return provider, ok
	}
	if len(r.providers) != 1 {
		return nil, false
	}
	for _, provider := range r.providers {
		return provider, true
	}
	return nil, false
}

// List returns providers ordered by id.
func (r *ProviderRegistry) List() []IssueProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]IssueProvider, 0, len(r.providers))
	for _, id := range slices.Sorted(maps.Keys(r.providers)) {
		providers = append(providers, r.providers[id])
	}
	return providers
}

func registryKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

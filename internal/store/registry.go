package store

import (
	"fmt"
	"sync"
)

// BackendConfig is implemented by each durable backend's config struct
type BackendConfig interface {
	Validate() error
}

// Factory creates a durable store from its backend config
type Factory func(config BackendConfig) (DurableStore, error)

// Registry maps backend type names to factories
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for the given backend type
func (r *Registry) Register(backendType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[backendType] = factory
}

// Create builds a durable store of the given backend type
func (r *Registry) Create(backendType string, config BackendConfig) (DurableStore, error) {
	r.mu.RLock()
	factory, exists := r.factories[backendType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("durable backend %q not registered", backendType)
	}

	if config == nil {
		return nil, fmt.Errorf("nil config for durable backend %q", backendType)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", backendType, err)
	}

	return factory(config)
}

// IsRegistered reports whether a backend type has a factory
func (r *Registry) IsRegistered(backendType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[backendType]
	return exists
}

// AvailableTypes lists the registered backend type names
func (r *Registry) AvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for backendType := range r.factories {
		types = append(types, backendType)
	}
	return types
}

// DefaultRegistry is the registry the durable backends register into
var DefaultRegistry = NewRegistry()

// Register adds a factory to the default registry
func Register(backendType string, factory Factory) {
	DefaultRegistry.Register(backendType, factory)
}

// Create builds a durable store from the default registry
func Create(backendType string, config BackendConfig) (DurableStore, error) {
	return DefaultRegistry.Create(backendType, config)
}

package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/pranimitra/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by [Registry.CreateLive] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LiveFactory builds a live provider from its configuration entry.
type LiveFactory func(ProviderEntry) (live.Provider, error)

// Registry maps live provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	live map[string]LiveFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]LiveFactory)}
}

// RegisterLive registers a live provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory LiveFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// CreateLive instantiates a live provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.live))
	for n := range r.live {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// OptString extracts a string value from a provider Options map.
// Returns "" when the key is absent or not a string.
func OptString(opts map[string]any, key string) string {
	if v, ok := opts[key].(string); ok {
		return v
	}
	return ""
}

// OptInt extracts an integer value from a provider Options map.
// Returns 0 when the key is absent or not a number.
func OptInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

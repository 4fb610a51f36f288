package provider

import (
	"context"
	"fmt"
	"sort"
)

// Identity is the normalized result of an external provider login.
type Identity struct {
	Provider string
	Subject  string
	Email    string
}

// Provider is an external OAuth identity provider.
type Provider interface {
	// Name returns the provider's registry key, e.g. "google".
	Name() string

	// AuthCodeURL builds the provider's consent page URL for the given
	// anti-CSRF state value.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for the user's identity.
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// Registry holds the configured providers keyed by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under its name. Registering the same name twice
// replaces the earlier provider.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown identity provider %q", name)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

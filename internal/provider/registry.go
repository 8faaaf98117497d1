package provider

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownProvider indicates no adapter is registered for the requested role.
var ErrUnknownProvider = errors.New("unknown provider")

// Role is the routing position an adapter occupies.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Registry maps routing roles to adapters. It is populated once at start-up.
type Registry struct {
	mu     sync.RWMutex
	byRole map[Role]Adapter
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		byRole: make(map[Role]Adapter),
	}
}

// Register binds an adapter to a role.
func (r *Registry) Register(role Role, a Adapter) error {
	if a == nil {
		return errors.New("adapter must not be nil")
	}
	switch role {
	case RolePrimary, RoleSecondary:
	default:
		return fmt.Errorf("role %q is not routable", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.byRole[role]; exists {
		return fmt.Errorf("role %s already bound to provider %q", role, existing.Name())
	}
	for other, existing := range r.byRole {
		if existing.Name() == a.Name() {
			return fmt.Errorf("provider %q already registered as %s", a.Name(), other)
		}
	}
	r.byRole[role] = a
	return nil
}

// Lookup returns the adapter bound to role.
func (r *Registry) Lookup(role Role) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byRole[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, role)
	}
	return a, nil
}

// Available reports whether role is bound to an adapter holding a credential.
func (r *Registry) Available(role Role) bool {
	a, err := r.Lookup(role)
	return err == nil && a.CheckCredential() == nil
}

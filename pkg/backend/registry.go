// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-cryptoki.
//
// go-cryptoki is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package backend

import (
	"sync"

	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// Registry routes mechanisms to backends. Registration order is lookup
// order, so an earlier backend shadows a later one for mechanisms both
// serve.
//
// Thread-safe.
type Registry struct {
	mu       sync.RWMutex
	backends []Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a backend to the lookup order.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
}

// ForMechanism returns the first backend serving the mechanism type.
func (r *Registry) ForMechanism(m types.MechanismType) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.backends {
		if b.Supports(m) {
			return b, nil
		}
	}
	return nil, ErrMechanismNotSupported
}

// Primary returns the first registered backend, used for keyless
// operations like random generation.
func (r *Registry) Primary() (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.backends) == 0 {
		return nil, ErrNotSupported
	}
	return r.backends[0], nil
}

// Mechanisms returns the union of all registered backends' mechanisms.
func (r *Registry) Mechanisms() []types.MechanismType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[types.MechanismType]bool)
	var out []types.MechanismType
	for _, b := range r.backends {
		for _, m := range b.Mechanisms() {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// Close closes every registered backend, returning the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, b := range r.backends {
		if err := b.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.backends = nil
	return first
}

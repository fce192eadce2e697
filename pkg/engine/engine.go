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

// Package engine implements the crypto operation dispatcher: it resolves
// mechanism and key to a backend operation, owns the init/update/final
// streaming state machine per session and category, and performs the key
// management operations (generate, wrap, unwrap, derive).
//
// The engine validates state and key compatibility; mechanism-specific data
// shape (nonce lengths, key sizes) is validated by the backend.
package engine

import (
	"errors"

	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/objects"
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// usage names the capability flag a key must carry for an operation.
type usage int

const (
	usageSign usage = iota
	usageVerify
	usageEncrypt
	usageDecrypt
	usageWrap
	usageUnwrap
	usageDerive
)

// Engine dispatches crypto operations for one token.
type Engine struct {
	store    *objects.Store
	registry *backend.Registry
}

// New creates an engine over the token's object store and the backend
// registry.
func New(store *objects.Store, registry *backend.Registry) *Engine {
	return &Engine{store: store, registry: registry}
}

// Mechanisms returns every mechanism type served by the registered
// backends.
func (e *Engine) Mechanisms() []types.MechanismType {
	return e.registry.Mechanisms()
}

// backendFor resolves the backend serving a mechanism.
func (e *Engine) backendFor(op string, s *session.Session, m types.MechanismType) (backend.Backend, error) {
	b, err := e.registry.ForMechanism(m)
	if err != nil {
		return nil, types.NewError(op, types.ErrMechanismInvalid).
			WithSession(s.Handle()).WithDetail(string(m))
	}
	return b, nil
}

// resolveKey gates, fetches and checks a key object against the requested
// mechanism and usage.
func (e *Engine) resolveKey(op string, s *session.Session, m types.Mechanism, h types.ObjectHandle, u usage) (*objects.KeyInfo, error) {
	key, err := e.store.Key(h, s.View())
	if err != nil {
		return nil, err
	}

	// Using a private object requires an authenticated session; public
	// objects follow the ordinary read permission.
	perm := session.PermReadPublicObject
	if key.Private {
		perm = session.PermUsePrivateKey
	}
	if err := s.Ensure(op, perm); err != nil {
		return nil, err
	}

	wantType, keyed := m.Type.KeyType()
	if !keyed {
		return nil, types.NewError(op, types.ErrMechanismInvalid).
			WithSession(s.Handle()).WithObject(h).
			WithDetail("mechanism takes no key")
	}
	if wantType != key.KeyType {
		return nil, types.NewError(op, types.ErrKeyTypeInconsistent).
			WithSession(s.Handle()).WithObject(h).
			WithDetail(string(key.KeyType) + " key, " + string(m.Type) + " mechanism")
	}
	if !key.AllowsMechanism(m.Type) {
		return nil, types.NewError(op, types.ErrMechanismInvalid).
			WithSession(s.Handle()).WithObject(h).
			WithDetail("mechanism outside key's allowed set")
	}
	if err := checkUsage(op, key, u); err != nil {
		return nil, err
	}
	return key, nil
}

// checkUsage verifies the key's class and capability flag for the
// operation.
func checkUsage(op string, key *objects.KeyInfo, u usage) error {
	classOK := false
	flagOK := false
	switch u {
	case usageSign:
		classOK = key.Class == types.ClassPrivateKey || key.Class == types.ClassSecretKey
		flagOK = key.Sign
	case usageVerify:
		classOK = key.Class == types.ClassPublicKey || key.Class == types.ClassSecretKey
		flagOK = key.Verify
	case usageEncrypt:
		classOK = key.Class == types.ClassSecretKey || key.Class == types.ClassPublicKey
		flagOK = key.Encrypt
	case usageDecrypt:
		classOK = key.Class == types.ClassSecretKey || key.Class == types.ClassPrivateKey
		flagOK = key.Decrypt
	case usageWrap:
		classOK = key.Class == types.ClassSecretKey || key.Class == types.ClassPublicKey
		flagOK = key.Wrap
	case usageUnwrap:
		classOK = key.Class == types.ClassSecretKey || key.Class == types.ClassPrivateKey
		flagOK = key.Unwrap
	case usageDerive:
		classOK = key.Class == types.ClassSecretKey || key.Class == types.ClassPrivateKey
		flagOK = key.Derive
	}
	if !classOK {
		return types.NewError(op, types.ErrKeyTypeInconsistent).
			WithObject(key.Handle).
			WithDetail(key.Class.String() + " object cannot serve this operation")
	}
	if !flagOK {
		return types.NewError(op, types.ErrKeyTypeInconsistent).
			WithObject(key.Handle).
			WithDetail("key lacks the capability flag for this operation")
	}
	return nil
}

// mapBackendErr lifts a backend error into the provider taxonomy.
func mapBackendErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.ErrMechanismNotSupported),
		errors.Is(err, backend.ErrInvalidParameter):
		return types.NewError(op, types.ErrMechanismInvalid).WithCause(err)
	case errors.Is(err, backend.ErrInvalidKeyMaterial):
		return types.NewError(op, types.ErrKeyTypeInconsistent).WithCause(err)
	case errors.Is(err, backend.ErrInvalidKeySize):
		return types.NewError(op, types.ErrKeySizeInvalid).WithCause(err)
	case errors.Is(err, backend.ErrVerificationFailed),
		errors.Is(err, backend.ErrAuthenticationFailed):
		return types.NewError(op, types.ErrSignatureInvalid).WithCause(err)
	default:
		return types.NewError(op, types.ErrDeviceError).WithCause(err)
	}
}

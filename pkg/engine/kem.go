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

package engine

import (
	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// kemFor resolves the backend for a KEM mechanism and asserts the
// encapsulation capability.
func (e *Engine) kemFor(op string, s *session.Session, m types.MechanismType) (backend.KEM, error) {
	b, err := e.backendFor(op, s, m)
	if err != nil {
		return nil, err
	}
	kem, ok := b.(backend.KEM)
	if !ok {
		return nil, types.NewError(op, types.ErrMechanismInvalid).
			WithSession(s.Handle()).
			WithDetail("backend does not encapsulate")
	}
	return kem, nil
}

// Encapsulate produces a KEM ciphertext and shared secret against a
// recipient public key.
func (e *Engine) Encapsulate(s *session.Session, m types.Mechanism, publicKey types.ObjectHandle) (ciphertext, sharedSecret []byte, err error) {
	const op = "engine: encapsulate"
	kem, err := e.kemFor(op, s, m.Type)
	if err != nil {
		return nil, nil, err
	}
	key, err := e.resolveKey(op, s, m, publicKey, usageEncrypt)
	if err != nil {
		return nil, nil, err
	}
	ct, ss, err := kem.Encapsulate(m, key.Material)
	if err != nil {
		return nil, nil, mapBackendErr(op, err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from a KEM ciphertext using the
// recipient private key.
func (e *Engine) Decapsulate(s *session.Session, m types.Mechanism, privateKey types.ObjectHandle, ciphertext []byte) ([]byte, error) {
	const op = "engine: decapsulate"
	kem, err := e.kemFor(op, s, m.Type)
	if err != nil {
		return nil, err
	}
	key, err := e.resolveKey(op, s, m, privateKey, usageDecrypt)
	if err != nil {
		return nil, err
	}
	ss, err := kem.Decapsulate(m, key.Material, ciphertext)
	if err != nil {
		return nil, mapBackendErr(op, err)
	}
	return ss, nil
}

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

package software

import (
	"bytes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// NewEncryptOperation implements backend.Backend. The mechanism parameter
// is the AEAD nonce and must match the mechanism's nonce size exactly.
func (b *SoftwareBackend) NewEncryptOperation(m types.Mechanism, key []byte) (backend.CipherOperation, error) {
	return newAEADOp(m, key, true)
}

// NewDecryptOperation implements backend.Backend.
func (b *SoftwareBackend) NewDecryptOperation(m types.Mechanism, key []byte) (backend.CipherOperation, error) {
	return newAEADOp(m, key, false)
}

// NewDigestOperation implements backend.Backend.
func (b *SoftwareBackend) NewDigestOperation(m types.Mechanism) (backend.DigestOperation, error) {
	var h hash.Hash
	switch m.Type {
	case types.MechSHA256:
		h = sha256.New()
	case types.MechSHA384:
		h = sha512.New384()
	case types.MechSHA512:
		h = sha512.New()
	default:
		return nil, backend.ErrMechanismNotSupported
	}
	return &digestOp{hash: h}, nil
}

type digestOp struct {
	hash hash.Hash
}

func (o *digestOp) Update(data []byte) error {
	_, err := o.hash.Write(data)
	return err
}

func (o *digestOp) Finalize() ([]byte, error) {
	return o.hash.Sum(nil), nil
}

// aeadOp is a buffering AEAD operation. AEAD modes authenticate the whole
// message, so Update accumulates and Finalize emits the entire output.
type aeadOp struct {
	aead    cipher.AEAD
	nonce   []byte
	aad     []byte
	buf     bytes.Buffer
	encrypt bool
}

func newAEADOp(m types.Mechanism, key []byte, encrypt bool) (*aeadOp, error) {
	aead, err := newAEAD(m.Type, key)
	if err != nil {
		return nil, err
	}
	if len(m.Parameter) != aead.NonceSize() {
		return nil, backend.ErrInvalidParameter
	}
	nonce := make([]byte, len(m.Parameter))
	copy(nonce, m.Parameter)
	aad := make([]byte, len(m.AAD))
	copy(aad, m.AAD)
	return &aeadOp{aead: aead, nonce: nonce, aad: aad, encrypt: encrypt}, nil
}

func (o *aeadOp) Update(data []byte) ([]byte, error) {
	_, err := o.buf.Write(data)
	return nil, err
}

func (o *aeadOp) Finalize() ([]byte, error) {
	if o.encrypt {
		return o.aead.Seal(nil, o.nonce, o.buf.Bytes(), o.aad), nil
	}
	plaintext, err := o.aead.Open(nil, o.nonce, o.buf.Bytes(), o.aad)
	if err != nil {
		return nil, backend.ErrAuthenticationFailed
	}
	return plaintext, nil
}

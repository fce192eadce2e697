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

// Package backend defines the CryptoBackend capability: the pluggable
// interface through which the crypto engine reaches primitive
// implementations. The engine validates operation state; backends validate
// mechanism-specific data shape (IV and nonce lengths, key sizes). Key
// material crosses this boundary as opaque bytes; only the backend
// interprets them.
package backend

import (
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// SignOperation is one streaming signature computation.
type SignOperation interface {
	// Update feeds message data into the operation.
	Update(data []byte) error

	// Finalize computes the signature as a raw byte sequence.
	Finalize() ([]byte, error)
}

// VerifyOperation is one streaming signature verification.
type VerifyOperation interface {
	// Update feeds message data into the operation.
	Update(data []byte) error

	// Finalize checks the signature, returning ErrVerificationFailed on
	// mismatch.
	Finalize(signature []byte) error
}

// CipherOperation is one streaming encryption or decryption. Update may
// return partial output; AEAD implementations typically buffer and emit
// everything at Finalize.
type CipherOperation interface {
	Update(data []byte) ([]byte, error)
	Finalize() ([]byte, error)
}

// DigestOperation is one streaming hash computation.
type DigestOperation interface {
	Update(data []byte) error
	Finalize() ([]byte, error)
}

// Backend is a cryptographic primitive provider for a set of mechanisms.
// All implementations must be thread-safe; a constructed operation belongs
// to a single session and is serialized by the session's operation slot.
type Backend interface {
	// Name identifies the backend in logs and token info.
	Name() string

	// Mechanisms lists every mechanism type the backend serves.
	Mechanisms() []types.MechanismType

	// Supports reports whether the backend serves the mechanism type.
	Supports(m types.MechanismType) bool

	NewSignOperation(m types.Mechanism, key []byte) (SignOperation, error)
	NewVerifyOperation(m types.Mechanism, key []byte) (VerifyOperation, error)
	NewEncryptOperation(m types.Mechanism, key []byte) (CipherOperation, error)
	NewDecryptOperation(m types.Mechanism, key []byte) (CipherOperation, error)
	NewDigestOperation(m types.Mechanism) (DigestOperation, error)

	// GenerateKey creates symmetric key material for the mechanism, sized
	// per the template's AttrValueLen.
	GenerateKey(m types.Mechanism, tmpl types.Template) ([]byte, error)

	// GenerateKeyPair creates an asymmetric key pair, returning the public
	// and private material as opaque encodings.
	GenerateKeyPair(m types.Mechanism, tmpl types.Template) (public, private []byte, err error)

	// WrapKey encrypts key material under a wrapping key.
	WrapKey(m types.Mechanism, wrappingKey, key []byte) ([]byte, error)

	// UnwrapKey recovers key material wrapped by WrapKey.
	UnwrapKey(m types.Mechanism, wrappingKey, wrapped []byte) ([]byte, error)

	// DeriveKey derives new key material of the given length from base
	// material. The mechanism parameter carries the salt or context info.
	DeriveKey(m types.Mechanism, base []byte, length int) ([]byte, error)

	// GenerateRandom returns n cryptographically random bytes.
	GenerateRandom(n int) ([]byte, error)

	// Close releases backend resources.
	Close() error
}

// KEM is the optional key-encapsulation capability. Backends serving KEM
// mechanisms additionally implement it; the engine discovers it with a
// type assertion.
type KEM interface {
	// Encapsulate produces a ciphertext and the encapsulated shared secret
	// against a recipient public key.
	Encapsulate(m types.Mechanism, publicKey []byte) (ciphertext, sharedSecret []byte, err error)

	// Decapsulate recovers the shared secret from a ciphertext using the
	// recipient private key.
	Decapsulate(m types.Mechanism, privateKey, ciphertext []byte) ([]byte, error)
}

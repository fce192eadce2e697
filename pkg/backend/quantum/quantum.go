//go:build quantum

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

// Package quantum implements the CryptoBackend capability for post-quantum
// mechanisms using the liboqs library: ML-DSA-44 signatures (FIPS 204) and
// ML-KEM-768 key encapsulation (FIPS 203). Built only with the quantum tag
// since it requires liboqs at link time.
package quantum

import (
	"bytes"
	"crypto/rand"

	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
	"github.com/open-quantum-safe/liboqs-go/oqs"
)

// OQS algorithm identifiers.
const (
	sigAlgorithm = "ML-DSA-44"
	kemAlgorithm = "ML-KEM-768"
)

var supported = []types.MechanismType{
	types.MechMLDSA44, types.MechMLDSAKeyPair,
	types.MechMLKEM768, types.MechMLKEMKeyPair,
}

// QuantumBackend implements backend.Backend and backend.KEM over liboqs.
type QuantumBackend struct{}

// New creates a quantum backend.
func New() *QuantumBackend {
	return &QuantumBackend{}
}

// Name implements backend.Backend.
func (b *QuantumBackend) Name() string { return "quantum" }

// Mechanisms implements backend.Backend.
func (b *QuantumBackend) Mechanisms() []types.MechanismType {
	out := make([]types.MechanismType, len(supported))
	copy(out, supported)
	return out
}

// Supports implements backend.Backend.
func (b *QuantumBackend) Supports(m types.MechanismType) bool {
	for _, s := range supported {
		if s == m {
			return true
		}
	}
	return false
}

// Close implements backend.Backend.
func (b *QuantumBackend) Close() error { return nil }

// GenerateKeyPair implements backend.Backend. Material is the raw OQS
// encoding: liboqs secret keys embed the public key where the scheme
// requires it.
func (b *QuantumBackend) GenerateKeyPair(m types.Mechanism, tmpl types.Template) ([]byte, []byte, error) {
	switch m.Type {
	case types.MechMLDSAKeyPair:
		signer := oqs.Signature{}
		if err := signer.Init(sigAlgorithm, nil); err != nil {
			return nil, nil, err
		}
		defer signer.Clean()
		pub, err := signer.GenerateKeyPair()
		if err != nil {
			return nil, nil, err
		}
		return pub, signer.ExportSecretKey(), nil

	case types.MechMLKEMKeyPair:
		kem := oqs.KeyEncapsulation{}
		if err := kem.Init(kemAlgorithm, nil); err != nil {
			return nil, nil, err
		}
		defer kem.Clean()
		pub, err := kem.GenerateKeyPair()
		if err != nil {
			return nil, nil, err
		}
		return pub, kem.ExportSecretKey(), nil

	default:
		return nil, nil, backend.ErrMechanismNotSupported
	}
}

// NewSignOperation implements backend.Backend. ML-DSA signs the whole
// message, so the operation buffers until finalization.
func (b *QuantumBackend) NewSignOperation(m types.Mechanism, key []byte) (backend.SignOperation, error) {
	if m.Type != types.MechMLDSA44 {
		return nil, backend.ErrMechanismNotSupported
	}
	if len(key) == 0 {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return &mldsaSignOp{key: key}, nil
}

// NewVerifyOperation implements backend.Backend.
func (b *QuantumBackend) NewVerifyOperation(m types.Mechanism, key []byte) (backend.VerifyOperation, error) {
	if m.Type != types.MechMLDSA44 {
		return nil, backend.ErrMechanismNotSupported
	}
	if len(key) == 0 {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return &mldsaVerifyOp{public: key}, nil
}

type mldsaSignOp struct {
	buf bytes.Buffer
	key []byte
}

func (o *mldsaSignOp) Update(data []byte) error {
	_, err := o.buf.Write(data)
	return err
}

func (o *mldsaSignOp) Finalize() ([]byte, error) {
	signer := oqs.Signature{}
	if err := signer.Init(sigAlgorithm, o.key); err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	defer signer.Clean()
	return signer.Sign(o.buf.Bytes())
}

type mldsaVerifyOp struct {
	buf    bytes.Buffer
	public []byte
}

func (o *mldsaVerifyOp) Update(data []byte) error {
	_, err := o.buf.Write(data)
	return err
}

func (o *mldsaVerifyOp) Finalize(signature []byte) error {
	verifier := oqs.Signature{}
	if err := verifier.Init(sigAlgorithm, nil); err != nil {
		return err
	}
	defer verifier.Clean()
	valid, err := verifier.Verify(o.buf.Bytes(), signature, o.public)
	if err != nil || !valid {
		return backend.ErrVerificationFailed
	}
	return nil
}

// Encapsulate implements backend.KEM.
func (b *QuantumBackend) Encapsulate(m types.Mechanism, publicKey []byte) ([]byte, []byte, error) {
	if m.Type != types.MechMLKEM768 {
		return nil, nil, backend.ErrMechanismNotSupported
	}
	kem := oqs.KeyEncapsulation{}
	if err := kem.Init(kemAlgorithm, nil); err != nil {
		return nil, nil, err
	}
	defer kem.Clean()
	return kem.EncapSecret(publicKey)
}

// Decapsulate implements backend.KEM.
func (b *QuantumBackend) Decapsulate(m types.Mechanism, privateKey, ciphertext []byte) ([]byte, error) {
	if m.Type != types.MechMLKEM768 {
		return nil, backend.ErrMechanismNotSupported
	}
	kem := oqs.KeyEncapsulation{}
	if err := kem.Init(kemAlgorithm, privateKey); err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	defer kem.Clean()
	return kem.DecapSecret(ciphertext)
}

// GenerateRandom implements backend.Backend.
func (b *QuantumBackend) GenerateRandom(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// The remaining operations are classical concerns served by the software
// backend.

func (b *QuantumBackend) NewEncryptOperation(m types.Mechanism, key []byte) (backend.CipherOperation, error) {
	return nil, backend.ErrNotSupported
}

func (b *QuantumBackend) NewDecryptOperation(m types.Mechanism, key []byte) (backend.CipherOperation, error) {
	return nil, backend.ErrNotSupported
}

func (b *QuantumBackend) NewDigestOperation(m types.Mechanism) (backend.DigestOperation, error) {
	return nil, backend.ErrNotSupported
}

func (b *QuantumBackend) GenerateKey(m types.Mechanism, tmpl types.Template) ([]byte, error) {
	return nil, backend.ErrNotSupported
}

func (b *QuantumBackend) WrapKey(m types.Mechanism, wrappingKey, key []byte) ([]byte, error) {
	return nil, backend.ErrNotSupported
}

func (b *QuantumBackend) UnwrapKey(m types.Mechanism, wrappingKey, wrapped []byte) ([]byte, error) {
	return nil, backend.ErrNotSupported
}

func (b *QuantumBackend) DeriveKey(m types.Mechanism, base []byte, length int) ([]byte, error) {
	return nil, backend.ErrNotSupported
}

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

// Package software implements the CryptoBackend capability in pure software:
// SHA-2 digests, HMAC, ECDSA, Ed25519 and RSA signatures, AES-GCM and
// ChaCha20-Poly1305 AEAD, AEAD key wrapping and HKDF derivation.
//
// Asymmetric key material crosses the backend boundary as PKCS#8 (private)
// and PKIX (public) DER; symmetric material as raw bytes.
package software

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"io"

	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// BackendName identifies this backend in logs and token info.
const BackendName = "software"

// supported is the mechanism set served by this backend.
var supported = []types.MechanismType{
	types.MechSHA256, types.MechSHA384, types.MechSHA512,
	types.MechECDSASHA256, types.MechECDSASHA384, types.MechECDSASHA512,
	types.MechEd25519,
	types.MechRSAPKCSSHA256, types.MechRSAPSSSHA256,
	types.MechHMACSHA256, types.MechHMACSHA512,
	types.MechAESGCM, types.MechChaCha20Poly1305, types.MechXChaCha20Poly1305,
	types.MechAESKeyGen, types.MechHMACKeyGen,
	types.MechECDSAKeyPair, types.MechEd25519KeyPair, types.MechRSAKeyPair,
	types.MechAESGCMWrap, types.MechHKDFSHA256,
}

// SoftwareBackend implements backend.Backend with Go's crypto packages.
// Stateless apart from the mechanism table; safe for concurrent use.
type SoftwareBackend struct {
	mechs map[types.MechanismType]bool
	rand  io.Reader
}

// New creates a software backend.
func New() *SoftwareBackend {
	mechs := make(map[types.MechanismType]bool, len(supported))
	for _, m := range supported {
		mechs[m] = true
	}
	return &SoftwareBackend{mechs: mechs, rand: rand.Reader}
}

// Name implements backend.Backend.
func (b *SoftwareBackend) Name() string { return BackendName }

// Mechanisms implements backend.Backend.
func (b *SoftwareBackend) Mechanisms() []types.MechanismType {
	out := make([]types.MechanismType, len(supported))
	copy(out, supported)
	return out
}

// Supports implements backend.Backend.
func (b *SoftwareBackend) Supports(m types.MechanismType) bool {
	return b.mechs[m]
}

// Close implements backend.Backend. The software backend holds no
// resources.
func (b *SoftwareBackend) Close() error { return nil }

// GenerateRandom implements backend.Backend.
func (b *SoftwareBackend) GenerateRandom(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(b.rand, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateKey creates symmetric key material. AES keys must be 16, 24 or
// 32 bytes; HMAC keys default to 32 bytes and may be 16 through 128.
func (b *SoftwareBackend) GenerateKey(m types.Mechanism, tmpl types.Template) ([]byte, error) {
	length := 32
	if a, ok := tmpl.Get(types.AttrValueLen); ok {
		length = int(a.Uint())
	}

	switch m.Type {
	case types.MechAESKeyGen:
		if length != 16 && length != 24 && length != 32 {
			return nil, backend.ErrInvalidKeySize
		}
	case types.MechHMACKeyGen:
		if length < 16 || length > 128 {
			return nil, backend.ErrInvalidKeySize
		}
	default:
		return nil, backend.ErrMechanismNotSupported
	}
	return b.GenerateRandom(length)
}

// GenerateKeyPair creates an asymmetric key pair. The mechanism parameter
// selects the ECDSA curve by name; RSA modulus size comes from the
// template's AttrModulusBits.
func (b *SoftwareBackend) GenerateKeyPair(m types.Mechanism, tmpl types.Template) ([]byte, []byte, error) {
	switch m.Type {
	case types.MechECDSAKeyPair:
		curve, err := curveByName(string(m.Parameter))
		if err != nil {
			return nil, nil, err
		}
		key, err := ecdsa.GenerateKey(curve, b.rand)
		if err != nil {
			return nil, nil, err
		}
		return marshalKeyPair(&key.PublicKey, key)

	case types.MechEd25519KeyPair:
		pub, priv, err := ed25519.GenerateKey(b.rand)
		if err != nil {
			return nil, nil, err
		}
		return marshalKeyPair(pub, priv)

	case types.MechRSAKeyPair:
		bits := 3072
		if a, ok := tmpl.Get(types.AttrModulusBits); ok {
			bits = int(a.Uint())
		}
		if bits != 2048 && bits != 3072 && bits != 4096 {
			return nil, nil, backend.ErrInvalidKeySize
		}
		key, err := rsa.GenerateKey(b.rand, bits)
		if err != nil {
			return nil, nil, err
		}
		return marshalKeyPair(&key.PublicKey, key)

	default:
		return nil, nil, backend.ErrMechanismNotSupported
	}
}

// WrapKey encrypts key material under an AES wrapping key with a random
// nonce prepended to the ciphertext.
func (b *SoftwareBackend) WrapKey(m types.Mechanism, wrappingKey, key []byte) ([]byte, error) {
	if m.Type != types.MechAESGCMWrap {
		return nil, backend.ErrMechanismNotSupported
	}
	aead, err := newGCM(wrappingKey)
	if err != nil {
		return nil, err
	}
	nonce, err := b.GenerateRandom(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	return append(nonce, aead.Seal(nil, nonce, key, m.AAD)...), nil
}

// UnwrapKey recovers key material wrapped by WrapKey.
func (b *SoftwareBackend) UnwrapKey(m types.Mechanism, wrappingKey, wrapped []byte) ([]byte, error) {
	if m.Type != types.MechAESGCMWrap {
		return nil, backend.ErrMechanismNotSupported
	}
	aead, err := newGCM(wrappingKey)
	if err != nil {
		return nil, err
	}
	if len(wrapped) < aead.NonceSize() {
		return nil, backend.ErrInvalidParameter
	}
	nonce, ct := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]
	key, err := aead.Open(nil, nonce, ct, m.AAD)
	if err != nil {
		return nil, backend.ErrAuthenticationFailed
	}
	return key, nil
}

// DeriveKey derives length bytes with HKDF-SHA256. The mechanism parameter
// is the salt; AAD carries the context info string.
func (b *SoftwareBackend) DeriveKey(m types.Mechanism, base []byte, length int) ([]byte, error) {
	if m.Type != types.MechHKDFSHA256 {
		return nil, backend.ErrMechanismNotSupported
	}
	if length <= 0 || length > 255*sha256.Size {
		return nil, backend.ErrInvalidKeySize
	}
	out := make([]byte, length)
	r := hkdf.New(sha256.New, base, m.Parameter, m.AAD)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// curveByName resolves an ECDSA curve selector. Empty selects P-256.
func curveByName(name string) (elliptic.Curve, error) {
	switch name {
	case "", "P-256":
		return elliptic.P256(), nil
	case "P-384":
		return elliptic.P384(), nil
	case "P-521":
		return elliptic.P521(), nil
	default:
		return nil, backend.ErrInvalidParameter
	}
}

// marshalKeyPair encodes public material as PKIX DER and private material
// as PKCS#8 DER.
func marshalKeyPair(pub any, priv any) ([]byte, []byte, error) {
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	return pubDER, privDER, nil
}

// newGCM builds an AES-GCM AEAD from raw key bytes.
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return cipher.NewGCM(block)
}

// newAEAD builds the AEAD selected by the mechanism type.
func newAEAD(m types.MechanismType, key []byte) (cipher.AEAD, error) {
	switch m {
	case types.MechAESGCM:
		return newGCM(key)
	case types.MechChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, backend.ErrInvalidKeyMaterial
		}
		return aead, nil
	case types.MechXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, backend.ErrInvalidKeyMaterial
		}
		return aead, nil
	default:
		return nil, backend.ErrMechanismNotSupported
	}
}

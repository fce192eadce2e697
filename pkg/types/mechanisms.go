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

package types

// MechanismType names an algorithm. The set is open: backends declare which
// mechanism types they support and the engine dispatches on the name alone.
type MechanismType string

// Digest mechanisms.
const (
	MechSHA256 MechanismType = "SHA-256"
	MechSHA384 MechanismType = "SHA-384"
	MechSHA512 MechanismType = "SHA-512"
)

// Signature mechanisms.
const (
	MechECDSASHA256   MechanismType = "ECDSA-SHA256"
	MechECDSASHA384   MechanismType = "ECDSA-SHA384"
	MechECDSASHA512   MechanismType = "ECDSA-SHA512"
	MechEd25519       MechanismType = "Ed25519"
	MechRSAPKCSSHA256 MechanismType = "RSA-PKCS1v15-SHA256"
	MechRSAPSSSHA256  MechanismType = "RSA-PSS-SHA256"
	MechHMACSHA256    MechanismType = "HMAC-SHA256"
	MechHMACSHA512    MechanismType = "HMAC-SHA512"
)

// Encryption mechanisms.
const (
	MechAESGCM            MechanismType = "AES-GCM"
	MechChaCha20Poly1305  MechanismType = "ChaCha20-Poly1305"
	MechXChaCha20Poly1305 MechanismType = "XChaCha20-Poly1305"
)

// Key generation, wrap and derive mechanisms.
const (
	MechAESKeyGen      MechanismType = "AES-KEY-GEN"
	MechHMACKeyGen     MechanismType = "HMAC-KEY-GEN"
	MechECDSAKeyPair   MechanismType = "ECDSA-KEY-PAIR-GEN"
	MechEd25519KeyPair MechanismType = "ED25519-KEY-PAIR-GEN"
	MechRSAKeyPair     MechanismType = "RSA-KEY-PAIR-GEN"
	MechAESGCMWrap     MechanismType = "AES-GCM-WRAP"
	MechHKDFSHA256     MechanismType = "HKDF-SHA256"
)

// Post-quantum mechanisms, served by the quantum backend when built with
// the quantum tag.
const (
	MechMLDSA44        MechanismType = "ML-DSA-44"
	MechMLKEM768       MechanismType = "ML-KEM-768"
	MechMLDSAKeyPair   MechanismType = "ML-DSA-44-KEY-PAIR-GEN"
	MechMLKEMKeyPair   MechanismType = "ML-KEM-768-KEY-PAIR-GEN"
)

// KeyTypeName is the value carried by AttrKeyType, naming the key family an
// object belongs to.
type KeyTypeName string

const (
	KeyTypeRSA     KeyTypeName = "RSA"
	KeyTypeECDSA   KeyTypeName = "ECDSA"
	KeyTypeEd25519 KeyTypeName = "Ed25519"
	KeyTypeAES     KeyTypeName = "AES"
	KeyTypeHMAC    KeyTypeName = "HMAC"
	KeyTypeMLDSA   KeyTypeName = "ML-DSA"
	KeyTypeMLKEM   KeyTypeName = "ML-KEM"
)

// keyTypeFor maps each keyed mechanism to the key family it requires. The
// engine rejects a mechanism whose key family does not match the key
// object's AttrKeyType with ErrKeyTypeInconsistent. Digest mechanisms are
// absent: they take no key.
var keyTypeFor = map[MechanismType]KeyTypeName{
	MechECDSASHA256:   KeyTypeECDSA,
	MechECDSASHA384:   KeyTypeECDSA,
	MechECDSASHA512:   KeyTypeECDSA,
	MechEd25519:       KeyTypeEd25519,
	MechRSAPKCSSHA256: KeyTypeRSA,
	MechRSAPSSSHA256:  KeyTypeRSA,
	MechHMACSHA256:    KeyTypeHMAC,
	MechHMACSHA512:    KeyTypeHMAC,

	MechAESGCM:            KeyTypeAES,
	MechChaCha20Poly1305:  KeyTypeAES,
	MechXChaCha20Poly1305: KeyTypeAES,
	MechAESGCMWrap:        KeyTypeAES,
	MechHKDFSHA256:        KeyTypeAES,

	MechMLDSA44:  KeyTypeMLDSA,
	MechMLKEM768: KeyTypeMLKEM,
}

// KeyType returns the key family the mechanism operates on, and whether the
// mechanism takes a key at all.
func (m MechanismType) KeyType() (KeyTypeName, bool) {
	kt, ok := keyTypeFor[m]
	return kt, ok
}

// Mechanism selects an algorithm plus its invocation parameters. Parameter
// and AAD are opaque byte buffers; their required shape is validated by the
// CryptoBackend, not by the engine.
type Mechanism struct {
	Type MechanismType

	// Parameter carries the mechanism-specific parameter: IV or nonce for
	// AEAD mechanisms, salt for HKDF, curve or key-size selector for key
	// generation mechanisms.
	Parameter []byte

	// AAD carries associated data for AEAD mechanisms.
	AAD []byte
}

// NewMechanism constructs a parameterless mechanism.
func NewMechanism(t MechanismType) Mechanism {
	return Mechanism{Type: t}
}

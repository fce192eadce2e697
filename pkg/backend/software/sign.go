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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/x509"
	"hash"
	"io"

	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// hashFor maps a keyed signature mechanism to its digest.
func hashFor(m types.MechanismType) (crypto.Hash, error) {
	switch m {
	case types.MechECDSASHA256, types.MechRSAPKCSSHA256, types.MechRSAPSSSHA256, types.MechHMACSHA256:
		return crypto.SHA256, nil
	case types.MechECDSASHA384:
		return crypto.SHA384, nil
	case types.MechECDSASHA512, types.MechHMACSHA512:
		return crypto.SHA512, nil
	default:
		return 0, backend.ErrMechanismNotSupported
	}
}

// NewSignOperation implements backend.Backend.
func (b *SoftwareBackend) NewSignOperation(m types.Mechanism, key []byte) (backend.SignOperation, error) {
	switch m.Type {
	case types.MechECDSASHA256, types.MechECDSASHA384, types.MechECDSASHA512:
		h, err := hashFor(m.Type)
		if err != nil {
			return nil, err
		}
		priv, err := parseECDSAPrivate(key)
		if err != nil {
			return nil, err
		}
		return &ecdsaSignOp{hash: h.New(), key: priv, rand: b.rand}, nil

	case types.MechEd25519:
		priv, err := parseEd25519Private(key)
		if err != nil {
			return nil, err
		}
		return &ed25519SignOp{key: priv}, nil

	case types.MechRSAPKCSSHA256, types.MechRSAPSSSHA256:
		priv, err := parseRSAPrivate(key)
		if err != nil {
			return nil, err
		}
		return &rsaSignOp{
			hash: crypto.SHA256,
			h:    crypto.SHA256.New(),
			key:  priv,
			pss:  m.Type == types.MechRSAPSSSHA256,
			rand: b.rand,
		}, nil

	case types.MechHMACSHA256, types.MechHMACSHA512:
		h, err := hashFor(m.Type)
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return nil, backend.ErrInvalidKeyMaterial
		}
		return &hmacSignOp{mac: hmac.New(h.New, key)}, nil

	default:
		return nil, backend.ErrMechanismNotSupported
	}
}

// NewVerifyOperation implements backend.Backend.
func (b *SoftwareBackend) NewVerifyOperation(m types.Mechanism, key []byte) (backend.VerifyOperation, error) {
	switch m.Type {
	case types.MechECDSASHA256, types.MechECDSASHA384, types.MechECDSASHA512:
		h, err := hashFor(m.Type)
		if err != nil {
			return nil, err
		}
		pub, err := parseECDSAPublic(key)
		if err != nil {
			return nil, err
		}
		return &ecdsaVerifyOp{hash: h.New(), key: pub}, nil

	case types.MechEd25519:
		pub, err := parseEd25519Public(key)
		if err != nil {
			return nil, err
		}
		return &ed25519VerifyOp{key: pub}, nil

	case types.MechRSAPKCSSHA256, types.MechRSAPSSSHA256:
		pub, err := parseRSAPublic(key)
		if err != nil {
			return nil, err
		}
		return &rsaVerifyOp{
			hash: crypto.SHA256,
			h:    crypto.SHA256.New(),
			key:  pub,
			pss:  m.Type == types.MechRSAPSSSHA256,
		}, nil

	case types.MechHMACSHA256, types.MechHMACSHA512:
		h, err := hashFor(m.Type)
		if err != nil {
			return nil, err
		}
		if len(key) == 0 {
			return nil, backend.ErrInvalidKeyMaterial
		}
		return &hmacVerifyOp{mac: hmac.New(h.New, key)}, nil

	default:
		return nil, backend.ErrMechanismNotSupported
	}
}

type ecdsaSignOp struct {
	hash hash.Hash
	key  *ecdsa.PrivateKey
	rand io.Reader
}

func (o *ecdsaSignOp) Update(data []byte) error {
	_, err := o.hash.Write(data)
	return err
}

func (o *ecdsaSignOp) Finalize() ([]byte, error) {
	return ecdsa.SignASN1(o.rand, o.key, o.hash.Sum(nil))
}

type ecdsaVerifyOp struct {
	hash hash.Hash
	key  *ecdsa.PublicKey
}

func (o *ecdsaVerifyOp) Update(data []byte) error {
	_, err := o.hash.Write(data)
	return err
}

func (o *ecdsaVerifyOp) Finalize(signature []byte) error {
	if !ecdsa.VerifyASN1(o.key, o.hash.Sum(nil), signature) {
		return backend.ErrVerificationFailed
	}
	return nil
}

// ed25519 is a pure scheme: the whole message is buffered and signed at
// finalization.
type ed25519SignOp struct {
	buf bytes.Buffer
	key ed25519.PrivateKey
}

func (o *ed25519SignOp) Update(data []byte) error {
	_, err := o.buf.Write(data)
	return err
}

func (o *ed25519SignOp) Finalize() ([]byte, error) {
	return ed25519.Sign(o.key, o.buf.Bytes()), nil
}

type ed25519VerifyOp struct {
	buf bytes.Buffer
	key ed25519.PublicKey
}

func (o *ed25519VerifyOp) Update(data []byte) error {
	_, err := o.buf.Write(data)
	return err
}

func (o *ed25519VerifyOp) Finalize(signature []byte) error {
	if !ed25519.Verify(o.key, o.buf.Bytes(), signature) {
		return backend.ErrVerificationFailed
	}
	return nil
}

type rsaSignOp struct {
	hash crypto.Hash
	h    hash.Hash
	key  *rsa.PrivateKey
	pss  bool
	rand io.Reader
}

func (o *rsaSignOp) Update(data []byte) error {
	_, err := o.h.Write(data)
	return err
}

func (o *rsaSignOp) Finalize() ([]byte, error) {
	digest := o.h.Sum(nil)
	if o.pss {
		return rsa.SignPSS(o.rand, o.key, o.hash, digest, nil)
	}
	return rsa.SignPKCS1v15(nil, o.key, o.hash, digest)
}

type rsaVerifyOp struct {
	hash crypto.Hash
	h    hash.Hash
	key  *rsa.PublicKey
	pss  bool
}

func (o *rsaVerifyOp) Update(data []byte) error {
	_, err := o.h.Write(data)
	return err
}

func (o *rsaVerifyOp) Finalize(signature []byte) error {
	digest := o.h.Sum(nil)
	var err error
	if o.pss {
		err = rsa.VerifyPSS(o.key, o.hash, digest, signature, nil)
	} else {
		err = rsa.VerifyPKCS1v15(o.key, o.hash, digest, signature)
	}
	if err != nil {
		return backend.ErrVerificationFailed
	}
	return nil
}

type hmacSignOp struct {
	mac hash.Hash
}

func (o *hmacSignOp) Update(data []byte) error {
	_, err := o.mac.Write(data)
	return err
}

func (o *hmacSignOp) Finalize() ([]byte, error) {
	return o.mac.Sum(nil), nil
}

// hmacVerifyOp recomputes the MAC and compares in constant time.
type hmacVerifyOp struct {
	mac hash.Hash
}

func (o *hmacVerifyOp) Update(data []byte) error {
	_, err := o.mac.Write(data)
	return err
}

func (o *hmacVerifyOp) Finalize(signature []byte) error {
	if !hmac.Equal(o.mac.Sum(nil), signature) {
		return backend.ErrVerificationFailed
	}
	return nil
}

// Key material parsers. All asymmetric material is PKCS#8 (private) or
// PKIX (public) DER.

func parseECDSAPrivate(der []byte) (*ecdsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return priv, nil
}

func parseECDSAPublic(der []byte) (*ecdsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return pub, nil
}

func parseEd25519Private(der []byte) (ed25519.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return priv, nil
}

func parseEd25519Public(der []byte) (ed25519.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return pub, nil
}

func parseRSAPrivate(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return priv, nil
}

func parseRSAPublic(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, backend.ErrInvalidKeyMaterial
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, backend.ErrInvalidKeyMaterial
	}
	return pub, nil
}

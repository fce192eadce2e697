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

package cryptoki

import (
	"time"

	"github.com/jeremyhahn/go-cryptoki/pkg/engine"
	"github.com/jeremyhahn/go-cryptoki/pkg/metrics"
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// engineFor resolves a session handle to its session and crypto engine.
func (c *Context) engineFor(op string, h types.SessionHandle) (*engine.Engine, *session.Session, error) {
	tok, s, err := c.resolve(op, h)
	if err != nil {
		return nil, nil, err
	}
	_, eng := tok.components()
	return eng, s, nil
}

// SignInit begins a streaming signature operation.
func (c *Context) SignInit(h types.SessionHandle, m types.Mechanism, key types.ObjectHandle) error {
	eng, s, err := c.engineFor("Context.SignInit", h)
	if err != nil {
		return err
	}
	return eng.SignInit(s, m, key)
}

// SignUpdate feeds data into the streaming signature.
func (c *Context) SignUpdate(h types.SessionHandle, data []byte) error {
	eng, s, err := c.engineFor("Context.SignUpdate", h)
	if err != nil {
		return err
	}
	return eng.SignUpdate(s, data)
}

// SignFinal completes the signature and returns it.
func (c *Context) SignFinal(h types.SessionHandle) ([]byte, error) {
	eng, s, err := c.engineFor("Context.SignFinal", h)
	if err != nil {
		return nil, err
	}
	return eng.SignFinal(s)
}

// Sign is the one-shot signature form.
func (c *Context) Sign(h types.SessionHandle, m types.Mechanism, key types.ObjectHandle, data []byte) ([]byte, error) {
	eng, s, err := c.engineFor("Context.Sign", h)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	sig, err := eng.Sign(s, m, key, data)
	observe(metrics.OpSign, s.SlotID(), start, err)
	return sig, err
}

// VerifyInit begins a streaming verification operation.
func (c *Context) VerifyInit(h types.SessionHandle, m types.Mechanism, key types.ObjectHandle) error {
	eng, s, err := c.engineFor("Context.VerifyInit", h)
	if err != nil {
		return err
	}
	return eng.VerifyInit(s, m, key)
}

// VerifyUpdate feeds data into the streaming verification.
func (c *Context) VerifyUpdate(h types.SessionHandle, data []byte) error {
	eng, s, err := c.engineFor("Context.VerifyUpdate", h)
	if err != nil {
		return err
	}
	return eng.VerifyUpdate(s, data)
}

// VerifyFinal checks the signature against the streamed data.
func (c *Context) VerifyFinal(h types.SessionHandle, signature []byte) error {
	eng, s, err := c.engineFor("Context.VerifyFinal", h)
	if err != nil {
		return err
	}
	return eng.VerifyFinal(s, signature)
}

// Verify is the one-shot verification form.
func (c *Context) Verify(h types.SessionHandle, m types.Mechanism, key types.ObjectHandle, data, signature []byte) error {
	eng, s, err := c.engineFor("Context.Verify", h)
	if err != nil {
		return err
	}
	start := time.Now()
	err = eng.Verify(s, m, key, data, signature)
	observe(metrics.OpVerify, s.SlotID(), start, err)
	return err
}

// EncryptInit begins a streaming encryption operation.
func (c *Context) EncryptInit(h types.SessionHandle, m types.Mechanism, key types.ObjectHandle) error {
	eng, s, err := c.engineFor("Context.EncryptInit", h)
	if err != nil {
		return err
	}
	return eng.EncryptInit(s, m, key)
}

// EncryptUpdate feeds plaintext in and returns any ciphertext produced.
func (c *Context) EncryptUpdate(h types.SessionHandle, plaintext []byte) ([]byte, error) {
	eng, s, err := c.engineFor("Context.EncryptUpdate", h)
	if err != nil {
		return nil, err
	}
	return eng.EncryptUpdate(s, plaintext)
}

// EncryptFinal completes the encryption and returns the remaining
// ciphertext.
func (c *Context) EncryptFinal(h types.SessionHandle) ([]byte, error) {
	eng, s, err := c.engineFor("Context.EncryptFinal", h)
	if err != nil {
		return nil, err
	}
	return eng.EncryptFinal(s)
}

// Encrypt is the one-shot encryption form.
func (c *Context) Encrypt(h types.SessionHandle, m types.Mechanism, key types.ObjectHandle, plaintext []byte) ([]byte, error) {
	eng, s, err := c.engineFor("Context.Encrypt", h)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ciphertext, err := eng.Encrypt(s, m, key, plaintext)
	observe(metrics.OpEncrypt, s.SlotID(), start, err)
	return ciphertext, err
}

// DecryptInit begins a streaming decryption operation.
func (c *Context) DecryptInit(h types.SessionHandle, m types.Mechanism, key types.ObjectHandle) error {
	eng, s, err := c.engineFor("Context.DecryptInit", h)
	if err != nil {
		return err
	}
	return eng.DecryptInit(s, m, key)
}

// DecryptUpdate feeds ciphertext in and returns any plaintext produced.
func (c *Context) DecryptUpdate(h types.SessionHandle, ciphertext []byte) ([]byte, error) {
	eng, s, err := c.engineFor("Context.DecryptUpdate", h)
	if err != nil {
		return nil, err
	}
	return eng.DecryptUpdate(s, ciphertext)
}

// DecryptFinal completes the decryption and returns the remaining
// plaintext.
func (c *Context) DecryptFinal(h types.SessionHandle) ([]byte, error) {
	eng, s, err := c.engineFor("Context.DecryptFinal", h)
	if err != nil {
		return nil, err
	}
	return eng.DecryptFinal(s)
}

// Decrypt is the one-shot decryption form.
func (c *Context) Decrypt(h types.SessionHandle, m types.Mechanism, key types.ObjectHandle, ciphertext []byte) ([]byte, error) {
	eng, s, err := c.engineFor("Context.Decrypt", h)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	plaintext, err := eng.Decrypt(s, m, key, ciphertext)
	observe(metrics.OpDecrypt, s.SlotID(), start, err)
	return plaintext, err
}

// DigestInit begins a streaming digest operation.
func (c *Context) DigestInit(h types.SessionHandle, m types.Mechanism) error {
	eng, s, err := c.engineFor("Context.DigestInit", h)
	if err != nil {
		return err
	}
	return eng.DigestInit(s, m)
}

// DigestUpdate feeds data into the streaming digest.
func (c *Context) DigestUpdate(h types.SessionHandle, data []byte) error {
	eng, s, err := c.engineFor("Context.DigestUpdate", h)
	if err != nil {
		return err
	}
	return eng.DigestUpdate(s, data)
}

// DigestFinal completes the digest and returns the hash.
func (c *Context) DigestFinal(h types.SessionHandle) ([]byte, error) {
	eng, s, err := c.engineFor("Context.DigestFinal", h)
	if err != nil {
		return nil, err
	}
	return eng.DigestFinal(s)
}

// Digest is the one-shot digest form.
func (c *Context) Digest(h types.SessionHandle, m types.Mechanism, data []byte) ([]byte, error) {
	eng, s, err := c.engineFor("Context.Digest", h)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	sum, err := eng.Digest(s, m, data)
	observe(metrics.OpDigest, s.SlotID(), start, err)
	return sum, err
}

// GenerateKey generates a symmetric key object.
func (c *Context) GenerateKey(h types.SessionHandle, m types.Mechanism, tmpl types.Template) (types.ObjectHandle, error) {
	eng, s, err := c.engineFor("Context.GenerateKey", h)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	key, err := eng.GenerateKey(s, m, tmpl)
	observe(metrics.OpGenerate, s.SlotID(), start, err)
	return key, err
}

// GenerateKeyPair generates an asymmetric key pair atomically.
func (c *Context) GenerateKeyPair(h types.SessionHandle, m types.Mechanism, pubTmpl, privTmpl types.Template) (pub, priv types.ObjectHandle, err error) {
	eng, s, err := c.engineFor("Context.GenerateKeyPair", h)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	pub, priv, err = eng.GenerateKeyPair(s, m, pubTmpl, privTmpl)
	observe(metrics.OpGenerate, s.SlotID(), start, err)
	return pub, priv, err
}

// WrapKey wraps a key's material under a wrapping key.
func (c *Context) WrapKey(h types.SessionHandle, m types.Mechanism, wrappingKey, key types.ObjectHandle) ([]byte, error) {
	eng, s, err := c.engineFor("Context.WrapKey", h)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	wrapped, err := eng.WrapKey(s, m, wrappingKey, key)
	observe(metrics.OpWrap, s.SlotID(), start, err)
	return wrapped, err
}

// UnwrapKey imports wrapped key material as a new key object.
func (c *Context) UnwrapKey(h types.SessionHandle, m types.Mechanism, unwrappingKey types.ObjectHandle, wrapped []byte, tmpl types.Template) (types.ObjectHandle, error) {
	eng, s, err := c.engineFor("Context.UnwrapKey", h)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	key, err := eng.UnwrapKey(s, m, unwrappingKey, wrapped, tmpl)
	observe(metrics.OpUnwrap, s.SlotID(), start, err)
	return key, err
}

// DeriveKey derives a new key object from a base key.
func (c *Context) DeriveKey(h types.SessionHandle, m types.Mechanism, baseKey types.ObjectHandle, tmpl types.Template) (types.ObjectHandle, error) {
	eng, s, err := c.engineFor("Context.DeriveKey", h)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	key, err := eng.DeriveKey(s, m, baseKey, tmpl)
	observe(metrics.OpDerive, s.SlotID(), start, err)
	return key, err
}

// Encapsulate runs KEM encapsulation against a recipient public key.
func (c *Context) Encapsulate(h types.SessionHandle, m types.Mechanism, publicKey types.ObjectHandle) (ciphertext, sharedSecret []byte, err error) {
	eng, s, err := c.engineFor("Context.Encapsulate", h)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	ciphertext, sharedSecret, err = eng.Encapsulate(s, m, publicKey)
	observe(metrics.OpEncapsulate, s.SlotID(), start, err)
	return ciphertext, sharedSecret, err
}

// Decapsulate recovers a KEM shared secret with the recipient private key.
func (c *Context) Decapsulate(h types.SessionHandle, m types.Mechanism, privateKey types.ObjectHandle, ciphertext []byte) ([]byte, error) {
	eng, s, err := c.engineFor("Context.Decapsulate", h)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	secret, err := eng.Decapsulate(s, m, privateKey, ciphertext)
	observe(metrics.OpDecapsulate, s.SlotID(), start, err)
	return secret, err
}

// GenerateRandom returns n cryptographically random bytes.
func (c *Context) GenerateRandom(h types.SessionHandle, n int) ([]byte, error) {
	eng, s, err := c.engineFor("Context.GenerateRandom", h)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := eng.GenerateRandom(s, n)
	observe(metrics.OpRandom, s.SlotID(), start, err)
	return out, err
}

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

// SignInit begins a streaming signature over the given key. The session's
// sign slot must be idle.
func (e *Engine) SignInit(s *session.Session, m types.Mechanism, key types.ObjectHandle) error {
	const op = "engine: sign init"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return err
	}
	info, err := e.resolveKey(op, s, m, key, usageSign)
	if err != nil {
		return err
	}
	so, err := b.NewSignOperation(m, info.Material)
	if err != nil {
		return mapBackendErr(op, err)
	}
	return s.BeginOp(types.OpSign, so)
}

// SignUpdate feeds data into the active signature operation.
func (e *Engine) SignUpdate(s *session.Session, data []byte) error {
	const op = "engine: sign update"
	v, release, err := s.UseOp(types.OpSign)
	if err != nil {
		return err
	}
	defer release()
	if err := v.(backend.SignOperation).Update(data); err != nil {
		return mapBackendErr(op, err)
	}
	return nil
}

// SignFinal completes the active signature operation and returns the
// signature. The sign slot returns to idle whether or not the backend
// succeeds.
func (e *Engine) SignFinal(s *session.Session) ([]byte, error) {
	const op = "engine: sign final"
	v, err := s.TakeOp(types.OpSign)
	if err != nil {
		return nil, err
	}
	sig, err := v.(backend.SignOperation).Finalize()
	if err != nil {
		return nil, mapBackendErr(op, err)
	}
	return sig, nil
}

// Sign performs a one-shot signature. On failure the sign slot is left
// idle.
func (e *Engine) Sign(s *session.Session, m types.Mechanism, key types.ObjectHandle, data []byte) ([]byte, error) {
	if err := e.SignInit(s, m, key); err != nil {
		return nil, err
	}
	if err := e.SignUpdate(s, data); err != nil {
		s.TakeOp(types.OpSign)
		return nil, err
	}
	return e.SignFinal(s)
}

// VerifyInit begins a streaming verification over the given key.
func (e *Engine) VerifyInit(s *session.Session, m types.Mechanism, key types.ObjectHandle) error {
	const op = "engine: verify init"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return err
	}
	info, err := e.resolveKey(op, s, m, key, usageVerify)
	if err != nil {
		return err
	}
	vo, err := b.NewVerifyOperation(m, info.Material)
	if err != nil {
		return mapBackendErr(op, err)
	}
	return s.BeginOp(types.OpVerify, vo)
}

// VerifyUpdate feeds data into the active verification operation.
func (e *Engine) VerifyUpdate(s *session.Session, data []byte) error {
	const op = "engine: verify update"
	v, release, err := s.UseOp(types.OpVerify)
	if err != nil {
		return err
	}
	defer release()
	if err := v.(backend.VerifyOperation).Update(data); err != nil {
		return mapBackendErr(op, err)
	}
	return nil
}

// VerifyFinal completes the active verification against the supplied
// signature. A mismatch reports ErrSignatureInvalid; either way the verify
// slot returns to idle.
func (e *Engine) VerifyFinal(s *session.Session, signature []byte) error {
	const op = "engine: verify final"
	v, err := s.TakeOp(types.OpVerify)
	if err != nil {
		return err
	}
	if err := v.(backend.VerifyOperation).Finalize(signature); err != nil {
		return mapBackendErr(op, err)
	}
	return nil
}

// Verify performs a one-shot verification.
func (e *Engine) Verify(s *session.Session, m types.Mechanism, key types.ObjectHandle, data, signature []byte) error {
	if err := e.VerifyInit(s, m, key); err != nil {
		return err
	}
	if err := e.VerifyUpdate(s, data); err != nil {
		s.TakeOp(types.OpVerify)
		return err
	}
	return e.VerifyFinal(s, signature)
}

// EncryptInit begins a streaming encryption over the given key.
func (e *Engine) EncryptInit(s *session.Session, m types.Mechanism, key types.ObjectHandle) error {
	const op = "engine: encrypt init"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return err
	}
	info, err := e.resolveKey(op, s, m, key, usageEncrypt)
	if err != nil {
		return err
	}
	co, err := b.NewEncryptOperation(m, info.Material)
	if err != nil {
		return mapBackendErr(op, err)
	}
	return s.BeginOp(types.OpEncrypt, co)
}

// EncryptUpdate feeds plaintext into the active encryption operation and
// returns any ciphertext the backend produced so far. AEAD modes buffer and
// return nil until EncryptFinal.
func (e *Engine) EncryptUpdate(s *session.Session, plaintext []byte) ([]byte, error) {
	return e.cipherUpdate(s, types.OpEncrypt, "engine: encrypt update", plaintext)
}

// EncryptFinal completes the active encryption and returns the remaining
// ciphertext.
func (e *Engine) EncryptFinal(s *session.Session) ([]byte, error) {
	return e.cipherFinal(s, types.OpEncrypt, "engine: encrypt final")
}

// Encrypt performs a one-shot encryption.
func (e *Engine) Encrypt(s *session.Session, m types.Mechanism, key types.ObjectHandle, plaintext []byte) ([]byte, error) {
	if err := e.EncryptInit(s, m, key); err != nil {
		return nil, err
	}
	return e.cipherOneShot(s, types.OpEncrypt, "engine: encrypt update", "engine: encrypt final", plaintext)
}

// DecryptInit begins a streaming decryption over the given key.
func (e *Engine) DecryptInit(s *session.Session, m types.Mechanism, key types.ObjectHandle) error {
	const op = "engine: decrypt init"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return err
	}
	info, err := e.resolveKey(op, s, m, key, usageDecrypt)
	if err != nil {
		return err
	}
	co, err := b.NewDecryptOperation(m, info.Material)
	if err != nil {
		return mapBackendErr(op, err)
	}
	return s.BeginOp(types.OpDecrypt, co)
}

// DecryptUpdate feeds ciphertext into the active decryption operation.
func (e *Engine) DecryptUpdate(s *session.Session, ciphertext []byte) ([]byte, error) {
	return e.cipherUpdate(s, types.OpDecrypt, "engine: decrypt update", ciphertext)
}

// DecryptFinal completes the active decryption and returns the remaining
// plaintext. An authentication failure reports ErrSignatureInvalid.
func (e *Engine) DecryptFinal(s *session.Session) ([]byte, error) {
	return e.cipherFinal(s, types.OpDecrypt, "engine: decrypt final")
}

// Decrypt performs a one-shot decryption.
func (e *Engine) Decrypt(s *session.Session, m types.Mechanism, key types.ObjectHandle, ciphertext []byte) ([]byte, error) {
	if err := e.DecryptInit(s, m, key); err != nil {
		return nil, err
	}
	return e.cipherOneShot(s, types.OpDecrypt, "engine: decrypt update", "engine: decrypt final", ciphertext)
}

func (e *Engine) cipherUpdate(s *session.Session, cat types.OperationCategory, op string, data []byte) ([]byte, error) {
	v, release, err := s.UseOp(cat)
	if err != nil {
		return nil, err
	}
	defer release()
	out, err := v.(backend.CipherOperation).Update(data)
	if err != nil {
		return nil, mapBackendErr(op, err)
	}
	return out, nil
}

func (e *Engine) cipherFinal(s *session.Session, cat types.OperationCategory, op string) ([]byte, error) {
	v, err := s.TakeOp(cat)
	if err != nil {
		return nil, err
	}
	out, err := v.(backend.CipherOperation).Finalize()
	if err != nil {
		return nil, mapBackendErr(op, err)
	}
	return out, nil
}

// cipherOneShot drives update and final after a successful init, clearing
// the slot on a mid-stream failure.
func (e *Engine) cipherOneShot(s *session.Session, cat types.OperationCategory, updateOp, finalOp string, data []byte) ([]byte, error) {
	partial, err := e.cipherUpdate(s, cat, updateOp, data)
	if err != nil {
		s.TakeOp(cat)
		return nil, err
	}
	rest, err := e.cipherFinal(s, cat, finalOp)
	if err != nil {
		return nil, err
	}
	return append(partial, rest...), nil
}

// DigestInit begins a streaming digest. Digests take no key, so any open
// session may start one.
func (e *Engine) DigestInit(s *session.Session, m types.Mechanism) error {
	const op = "engine: digest init"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return err
	}
	do, err := b.NewDigestOperation(m)
	if err != nil {
		return mapBackendErr(op, err)
	}
	return s.BeginOp(types.OpDigest, do)
}

// DigestUpdate feeds data into the active digest operation.
func (e *Engine) DigestUpdate(s *session.Session, data []byte) error {
	const op = "engine: digest update"
	v, release, err := s.UseOp(types.OpDigest)
	if err != nil {
		return err
	}
	defer release()
	if err := v.(backend.DigestOperation).Update(data); err != nil {
		return mapBackendErr(op, err)
	}
	return nil
}

// DigestFinal completes the active digest and returns the hash.
func (e *Engine) DigestFinal(s *session.Session) ([]byte, error) {
	const op = "engine: digest final"
	v, err := s.TakeOp(types.OpDigest)
	if err != nil {
		return nil, err
	}
	sum, err := v.(backend.DigestOperation).Finalize()
	if err != nil {
		return nil, mapBackendErr(op, err)
	}
	return sum, nil
}

// Digest performs a one-shot digest.
func (e *Engine) Digest(s *session.Session, m types.Mechanism, data []byte) ([]byte, error) {
	if err := e.DigestInit(s, m); err != nil {
		return nil, err
	}
	if err := e.DigestUpdate(s, data); err != nil {
		s.TakeOp(types.OpDigest)
		return nil, err
	}
	return e.DigestFinal(s)
}

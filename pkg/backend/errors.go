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

package backend

import "errors"

var (
	// ErrMechanismNotSupported is returned when a backend is asked for a
	// mechanism outside its supported set.
	ErrMechanismNotSupported = errors.New("backend: mechanism not supported")

	// ErrInvalidKeyMaterial is returned when key material cannot be parsed
	// for the requested mechanism.
	ErrInvalidKeyMaterial = errors.New("backend: invalid key material")

	// ErrInvalidKeySize is returned when a key generation template requests
	// an unsupported key size.
	ErrInvalidKeySize = errors.New("backend: invalid key size")

	// ErrInvalidParameter is returned when a mechanism parameter (IV,
	// nonce, salt) has the wrong shape for the mechanism.
	ErrInvalidParameter = errors.New("backend: invalid mechanism parameter")

	// ErrVerificationFailed is returned by verify finalization when the
	// signature does not match.
	ErrVerificationFailed = errors.New("backend: signature verification failed")

	// ErrAuthenticationFailed is returned by AEAD decryption when the
	// ciphertext or associated data fails authentication.
	ErrAuthenticationFailed = errors.New("backend: message authentication failed")

	// ErrNotSupported is returned for operations the backend does not
	// implement (a KEM call on a classical backend, for example).
	ErrNotSupported = errors.New("backend: operation not supported")
)

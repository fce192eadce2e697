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

package session

import (
	"crypto/rand"
	"crypto/subtle"
	"sync"

	"github.com/jeremyhahn/go-cryptoki/pkg/types"
	"golang.org/x/crypto/argon2"
)

// argon2id parameters for PIN hashing.
const (
	pinHashTime    = 1
	pinHashMemory  = 64 * 1024
	pinHashThreads = 4
	pinHashLen     = 32
	pinSaltLen     = 16
)

// DefaultMaxPINAttempts is the lockout threshold used when the
// configuration does not override it.
const DefaultMaxPINAttempts = 3

// credential holds one role's salted PIN hash and its consecutive-failure
// counter. Lockout counters are scoped per role per token.
type credential struct {
	salt     []byte
	hash     []byte
	failures int
	locked   bool
}

func (c *credential) set(pin []byte) error {
	salt := make([]byte, pinSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	c.salt = salt
	c.hash = argon2.IDKey(pin, salt, pinHashTime, pinHashMemory, pinHashThreads, pinHashLen)
	c.failures = 0
	c.locked = false
	return nil
}

func (c *credential) matches(pin []byte) bool {
	if c.hash == nil {
		return false
	}
	probe := argon2.IDKey(pin, c.salt, pinHashTime, pinHashMemory, pinHashThreads, pinHashLen)
	return subtle.ConstantTimeCompare(probe, c.hash) == 1
}

// Credentials manages the user and Security Officer PINs of one token.
// Thread-safe.
type Credentials struct {
	mu          sync.Mutex
	maxAttempts int
	user        credential
	so          credential
}

// NewCredentials creates an empty credential set with the given lockout
// threshold. A threshold of zero falls back to DefaultMaxPINAttempts.
func NewCredentials(maxAttempts int) *Credentials {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPINAttempts
	}
	return &Credentials{maxAttempts: maxAttempts}
}

func (c *Credentials) forRole(role types.Role) *credential {
	if role == types.RoleSecurityOfficer {
		return &c.so
	}
	return &c.user
}

// SetPIN stores a new PIN for the role, clearing any lockout.
func (c *Credentials) SetPIN(role types.Role, pin []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.forRole(role).set(pin); err != nil {
		return types.NewError("Credentials.SetPIN", types.ErrDeviceError).WithCause(err)
	}
	return nil
}

// Verify checks a PIN against the stored credential. A wrong PIN increments
// the role's consecutive-failure counter; reaching the threshold locks the
// role, after which even the correct PIN fails until administrative reset.
// A successful verification resets the counter.
func (c *Credentials) Verify(role types.Role, pin []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred := c.forRole(role)
	if cred.hash == nil {
		return types.NewError("Credentials.Verify", types.ErrPinNotInitialized).
			WithDetail(role.String())
	}
	if cred.locked {
		return types.NewError("Credentials.Verify", types.ErrPinLocked).
			WithDetail(role.String())
	}
	if !cred.matches(pin) {
		cred.failures++
		if cred.failures >= c.maxAttempts {
			cred.locked = true
			return types.NewError("Credentials.Verify", types.ErrPinLocked).
				WithDetail(role.String())
		}
		return types.NewError("Credentials.Verify", types.ErrPinIncorrect).
			WithDetail(role.String())
	}
	cred.failures = 0
	return nil
}

// Initialized reports whether a PIN has been set for the role.
func (c *Credentials) Initialized(role types.Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forRole(role).hash != nil
}

// Locked reports whether the role is locked out.
func (c *Credentials) Locked(role types.Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forRole(role).locked
}

// ResetLockout clears the role's failure counter and lock. Administrative
// operation; gated by the Security Officer permission at the facade.
func (c *Credentials) ResetLockout(role types.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred := c.forRole(role)
	cred.failures = 0
	cred.locked = false
}

// MaxAttempts returns the lockout threshold.
func (c *Credentials) MaxAttempts() int {
	return c.maxAttempts
}

// CredentialRecord is the persisted form of one role's credential. Only the
// salt and hash survive a restart; failure counters and locks do not.
type CredentialRecord struct {
	Salt []byte `json:"salt,omitempty"`
	Hash []byte `json:"hash,omitempty"`
}

// Snapshot exports both roles' credentials for persistence.
func (c *Credentials) Snapshot() (user, so CredentialRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CredentialRecord{Salt: c.user.salt, Hash: c.user.hash},
		CredentialRecord{Salt: c.so.salt, Hash: c.so.hash}
}

// Restore loads persisted credentials, replacing any in-memory state. An
// empty record leaves the role uninitialized.
func (c *Credentials) Restore(user, so CredentialRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = credential{salt: user.Salt, hash: user.Hash}
	c.so = credential{salt: so.Salt, hash: so.Hash}
}

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
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// InitToken initializes (or re-initializes) the token in a slot: every
// object is destroyed, the user PIN is cleared, and the Security Officer
// PIN and label are set. The token must have no open sessions.
func (c *Context) InitToken(slot types.SlotID, soPIN []byte, label string) error {
	const op = "Context.InitToken"

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return types.NewError(op, types.ErrNotInitialized)
	}
	tok, err := c.tokenFor(op, slot)
	if err != nil {
		return err
	}
	manager, _ := tok.components()
	if manager.OpenCount() > 0 {
		return types.NewError(op, types.ErrSessionExists).
			WithDetail("token has open sessions")
	}
	if label == "" {
		label = c.label
	}

	tok.reset(label, c.maxAttempts, c.registry, c.handles, c.logger)
	manager, _ = tok.components()
	if err := manager.Credentials().SetPIN(types.RoleSecurityOfficer, soPIN); err != nil {
		return err
	}
	c.logger.Info("token initialized", "slot", uint(slot), "label", label)
	return tok.save()
}

// InitPIN sets the user PIN. Only a Security Officer session may call it.
func (c *Context) InitPIN(h types.SessionHandle, userPIN []byte) error {
	const op = "Context.InitPIN"

	tok, s, err := c.resolve(op, h)
	if err != nil {
		return err
	}
	if err := s.Ensure(op, session.PermInitUserCredential); err != nil {
		return err
	}
	manager, _ := tok.components()
	if err := manager.Credentials().SetPIN(types.RoleUser, userPIN); err != nil {
		return err
	}
	c.logger.Info("user PIN initialized", "slot", uint(s.SlotID()))
	return tok.save()
}

// SetPIN changes the PIN of the role the session is logged in as, or the
// user PIN for a public session. The old PIN must verify; a wrong old PIN
// counts toward the role's lockout threshold. Requires a read-write
// session.
func (c *Context) SetPIN(h types.SessionHandle, oldPIN, newPIN []byte) error {
	const op = "Context.SetPIN"

	tok, s, err := c.resolve(op, h)
	if err != nil {
		return err
	}
	if !s.ReadWrite() {
		return types.NewError(op, types.ErrSessionReadOnly).WithSession(h)
	}

	role := types.RoleUser
	if s.State() == types.StateRWSecurityOfficer {
		role = types.RoleSecurityOfficer
	}
	manager, _ := tok.components()
	if err := manager.Credentials().Verify(role, oldPIN); err != nil {
		return err
	}
	if err := manager.Credentials().SetPIN(role, newPIN); err != nil {
		return err
	}
	c.logger.Info("PIN changed", "slot", uint(s.SlotID()), "role", role.String())
	return tok.save()
}

// ResetLockout clears a role's failure counter and lock. Only a Security
// Officer session may reset the user; resetting the Security Officer
// itself requires no session and is deliberately not offered here.
func (c *Context) ResetLockout(h types.SessionHandle, role types.Role) error {
	const op = "Context.ResetLockout"

	tok, s, err := c.resolve(op, h)
	if err != nil {
		return err
	}
	if err := s.Ensure(op, session.PermInitUserCredential); err != nil {
		return err
	}
	manager, _ := tok.components()
	manager.Credentials().ResetLockout(role)
	c.logger.Info("lockout reset", "slot", uint(s.SlotID()), "role", role.String())
	return nil
}

// SaveToken persists a slot's token state through the configured storage
// backend. Ephemeral tokens return nil.
func (c *Context) SaveToken(slot types.SlotID) error {
	const op = "Context.SaveToken"

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return types.NewError(op, types.ErrNotInitialized)
	}
	tok, err := c.tokenFor(op, slot)
	if err != nil {
		return err
	}
	return tok.save()
}

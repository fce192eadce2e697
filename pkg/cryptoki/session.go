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
	"errors"

	"github.com/jeremyhahn/go-cryptoki/pkg/metrics"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// OpenSession opens a session against the token in a slot. A read-write
// session starts in RW_Public, a read-only session in RO_Public.
func (c *Context) OpenSession(slot types.SlotID, readWrite bool) (types.SessionHandle, error) {
	const op = "Context.OpenSession"

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.initialized {
		return 0, types.NewError(op, types.ErrNotInitialized)
	}
	tok, err := c.tokenFor(op, slot)
	if err != nil {
		return 0, err
	}
	manager, _ := tok.components()
	h := manager.OpenSession(readWrite)
	metrics.SetSessionsActive(slotLabel(slot), float64(manager.OpenCount()))
	return h, nil
}

// CloseSession destroys a session, discarding any in-flight operations and
// destroying its session-scoped objects.
func (c *Context) CloseSession(h types.SessionHandle) error {
	tok, _, err := c.resolve("Context.CloseSession", h)
	if err != nil {
		return err
	}
	manager, _ := tok.components()
	if err := manager.CloseSession(h); err != nil {
		return err
	}
	metrics.SetSessionsActive(slotLabel(tok.slot), float64(manager.OpenCount()))
	return nil
}

// Login authenticates a session as the user or Security Officer.
func (c *Context) Login(h types.SessionHandle, role types.Role, pin []byte) error {
	tok, _, err := c.resolve("Context.Login", h)
	if err != nil {
		return err
	}
	manager, _ := tok.components()
	if err := manager.Login(h, role, pin); err != nil {
		if errors.Is(err, types.ErrPinIncorrect) {
			metrics.RecordLoginFailure(slotLabel(tok.slot))
		}
		return err
	}
	return nil
}

// Logout returns an authenticated session to its public state.
func (c *Context) Logout(h types.SessionHandle) error {
	tok, _, err := c.resolve("Context.Logout", h)
	if err != nil {
		return err
	}
	manager, _ := tok.components()
	return manager.Logout(h)
}

// GetSessionInfo returns the session's slot, state and read-write flag.
func (c *Context) GetSessionInfo(h types.SessionHandle) (types.SessionInfo, error) {
	_, s, err := c.resolve("Context.GetSessionInfo", h)
	if err != nil {
		return types.SessionInfo{}, err
	}
	return types.SessionInfo{
		Slot:      s.SlotID(),
		State:     s.State(),
		ReadWrite: s.ReadWrite(),
	}, nil
}

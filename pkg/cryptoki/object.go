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
	"github.com/jeremyhahn/go-cryptoki/pkg/metrics"
	"github.com/jeremyhahn/go-cryptoki/pkg/objects"
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// CreateObject stores a new object built from the template. AttrToken and
// AttrPrivate in the template select the object's scope; the session state
// must grant the matching create permission.
func (c *Context) CreateObject(h types.SessionHandle, tmpl types.Template) (types.ObjectHandle, error) {
	const op = "Context.CreateObject"

	tok, s, err := c.resolve(op, h)
	if err != nil {
		return 0, err
	}

	tokenObject := tmpl.Bool(types.AttrToken, false)
	private := tmpl.Bool(types.AttrPrivate, false)
	if err := s.Ensure(op, session.CreatePermission(tokenObject, private)); err != nil {
		return 0, err
	}

	manager, _ := tok.components()
	obj, err := manager.Store().Create(tmpl, tokenObject, private, h)
	if err != nil {
		return 0, err
	}
	metrics.SetObjectsTotal(slotLabel(tok.slot), float64(manager.Store().Count()))
	return obj, nil
}

// CopyObject duplicates an object with a template overlay. Scope flags may
// change on copy, so the permission check runs against the copy's scope.
func (c *Context) CopyObject(h types.SessionHandle, obj types.ObjectHandle, overlay types.Template) (types.ObjectHandle, error) {
	const op = "Context.CopyObject"

	tok, s, err := c.resolve(op, h)
	if err != nil {
		return 0, err
	}
	manager, _ := tok.components()

	// Scope of the copy defaults to the source's scope.
	tokenObject := overlay.Bool(types.AttrToken, false)
	private := overlay.Bool(types.AttrPrivate, false)
	if src, err := manager.Store().GetAttribute(obj, types.AttrToken, s.View()); err == nil {
		if _, set := overlay.Get(types.AttrToken); !set {
			tokenObject = src.Bool()
		}
	}
	if src, err := manager.Store().GetAttribute(obj, types.AttrPrivate, s.View()); err == nil {
		if _, set := overlay.Get(types.AttrPrivate); !set {
			private = src.Bool()
		}
	}
	if err := s.Ensure(op, session.CreatePermission(tokenObject, private)); err != nil {
		return 0, err
	}

	copied, err := manager.Store().Copy(obj, overlay, s.View(), h)
	if err != nil {
		return 0, err
	}
	metrics.SetObjectsTotal(slotLabel(tok.slot), float64(manager.Store().Count()))
	return copied, nil
}

// DestroyObject removes an object. A stale or invisible handle fails with
// ErrObjectHandleInvalid.
func (c *Context) DestroyObject(h types.SessionHandle, obj types.ObjectHandle) error {
	tok, s, err := c.resolve("Context.DestroyObject", h)
	if err != nil {
		return err
	}
	manager, _ := tok.components()
	if err := manager.Store().Destroy(obj, s.View()); err != nil {
		return err
	}
	metrics.SetObjectsTotal(slotLabel(tok.slot), float64(manager.Store().Count()))
	return nil
}

// GetAttribute reads one attribute from an object. The session state must
// grant object reads; private-object visibility follows the session view.
func (c *Context) GetAttribute(h types.SessionHandle, obj types.ObjectHandle, attr types.AttributeType) (types.AttributeValue, error) {
	const op = "Context.GetAttribute"

	tok, s, err := c.resolve(op, h)
	if err != nil {
		return types.AttributeValue{}, err
	}
	if err := s.Ensure(op, session.PermReadPublicObject); err != nil {
		return types.AttributeValue{}, err
	}
	manager, _ := tok.components()
	return manager.Store().GetAttribute(obj, attr, s.View())
}

// SetAttribute modifies one attribute, subject to the read-only and
// one-way latch rules.
func (c *Context) SetAttribute(h types.SessionHandle, obj types.ObjectHandle, attr types.AttributeValue) error {
	const op = "Context.SetAttribute"

	tok, s, err := c.resolve(op, h)
	if err != nil {
		return err
	}
	if !s.ReadWrite() {
		return types.NewError(op, types.ErrSessionReadOnly).WithSession(h)
	}
	manager, _ := tok.components()
	return manager.Store().SetAttribute(obj, attr, s.View())
}

// FindObjectsInit snapshots the visible objects matching the template into
// the session's find cursor. A second init before final fails with
// ErrOperationActive.
func (c *Context) FindObjectsInit(h types.SessionHandle, tmpl types.Template) error {
	const op = "Context.FindObjectsInit"

	tok, s, err := c.resolve(op, h)
	if err != nil {
		return err
	}
	if err := s.Ensure(op, session.PermReadPublicObject); err != nil {
		return err
	}
	manager, _ := tok.components()
	cursor, err := manager.Store().FindInit(tmpl, s.View())
	if err != nil {
		return err
	}
	return s.BeginOp(types.OpFind, cursor)
}

// FindObjects returns up to max handles from the active find cursor. An
// exhausted cursor returns an empty slice, never an error.
func (c *Context) FindObjects(h types.SessionHandle, max int) ([]types.ObjectHandle, error) {
	_, s, err := c.resolve("Context.FindObjects", h)
	if err != nil {
		return nil, err
	}
	v, release, err := s.UseOp(types.OpFind)
	if err != nil {
		return nil, err
	}
	defer release()
	return v.(*objects.Cursor).Next(max), nil
}

// FindObjectsFinal closes the active find cursor.
func (c *Context) FindObjectsFinal(h types.SessionHandle) error {
	_, s, err := c.resolve("Context.FindObjectsFinal", h)
	if err != nil {
		return err
	}
	_, err = s.TakeOp(types.OpFind)
	return err
}

// FindAll is the one-shot composition of init, drain and final.
func (c *Context) FindAll(h types.SessionHandle, tmpl types.Template) ([]types.ObjectHandle, error) {
	if err := c.FindObjectsInit(h, tmpl); err != nil {
		return nil, err
	}
	_, s, err := c.resolve("Context.FindAll", h)
	if err != nil {
		return nil, err
	}
	v, err := s.TakeOp(types.OpFind)
	if err != nil {
		return nil, err
	}
	return v.(*objects.Cursor).Drain(), nil
}

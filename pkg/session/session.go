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

// Package session implements sessions and the session manager: the login
// state machine, PIN credentials with per-role lockout, the permission
// gate consulted before every delegated call, and the per-category
// streaming-operation slots.
package session

import (
	"sync"

	"github.com/jeremyhahn/go-cryptoki/pkg/objects"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// Session is one connection to a token. Different sessions may be used from
// different goroutines without external locking; calls into the same
// session's same operation category are serialized by detection: a
// concurrent second call fails with ErrOperationActive instead of
// interleaving.
type Session struct {
	handle types.SessionHandle
	slot   types.SlotID
	rw     bool

	mu    sync.Mutex
	state types.SessionState
	ops   [types.NumOperationCategories]opSlot
}

// opSlot holds at most one streaming operation of one category. busy marks
// an in-flight call so concurrent misuse is detected rather than silently
// interleaved.
type opSlot struct {
	value any
	busy  bool
}

// Handle returns the session's opaque handle.
func (s *Session) Handle() types.SessionHandle { return s.handle }

// SlotID returns the slot the session is bound to.
func (s *Session) SlotID() types.SlotID { return s.slot }

// ReadWrite reports whether the session was opened read-write.
func (s *Session) ReadWrite() bool { return s.rw }

// State returns the current login state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View derives the object-store visibility context for this session.
// Private objects are visible only to states granted the read-private
// permission, so a Security Officer session sees what a public session
// sees.
func (s *Session) View() objects.View {
	return objects.View{
		Session:       s.handle,
		Authenticated: Permits(s.State(), PermReadPrivateObject),
	}
}

// Ensure gates an operation on the permission table, returning a structured
// ErrOperationNotPermitted naming the current and required states when the
// table denies it.
func (s *Session) Ensure(op string, p Permission) error {
	state := s.State()
	if Permits(state, p) {
		return nil
	}
	return types.NewError(op, types.ErrOperationNotPermitted).
		WithSession(s.handle).
		WithState(state, allowedStates(p)).
		WithDetail(p.String())
}

// BeginOp installs a new streaming operation in the category slot. Fails
// with ErrOperationActive if one is already active.
func (s *Session) BeginOp(cat types.OperationCategory, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ops[cat].value != nil {
		return types.NewError("Session.BeginOp", types.ErrOperationActive).
			WithSession(s.handle).WithDetail(cat.String())
	}
	s.ops[cat] = opSlot{value: value}
	return nil
}

// UseOp borrows the active operation of the category for one update call.
// The returned release func must be called when the update completes. Fails
// with ErrOperationNotInitialized when the slot is empty and with
// ErrOperationActive when another call is mid-flight on the same category.
func (s *Session) UseOp(cat types.OperationCategory) (any, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := &s.ops[cat]
	if slot.value == nil {
		return nil, nil, types.NewError("Session.UseOp", types.ErrOperationNotInitialized).
			WithSession(s.handle).WithDetail(cat.String())
	}
	if slot.busy {
		return nil, nil, types.NewError("Session.UseOp", types.ErrOperationActive).
			WithSession(s.handle).WithDetail(cat.String() + " call in flight")
	}
	slot.busy = true
	release := func() {
		s.mu.Lock()
		s.ops[cat].busy = false
		s.mu.Unlock()
	}
	return slot.value, release, nil
}

// TakeOp removes and returns the active operation of the category. The slot
// is cleared unconditionally, so a failing finalization can never leave the
// category stuck.
func (s *Session) TakeOp(cat types.OperationCategory) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := &s.ops[cat]
	if slot.value == nil {
		return nil, types.NewError("Session.TakeOp", types.ErrOperationNotInitialized).
			WithSession(s.handle).WithDetail(cat.String())
	}
	if slot.busy {
		return nil, types.NewError("Session.TakeOp", types.ErrOperationActive).
			WithSession(s.handle).WithDetail(cat.String() + " call in flight")
	}
	value := slot.value
	s.ops[cat] = opSlot{}
	return value, nil
}

// AbortOps unconditionally discards all active operations. Used by
// close_session for crash and error recovery.
func (s *Session) AbortOps() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.ops {
		s.ops[i] = opSlot{}
	}
}

// setState transitions the login state. Callers validate the transition.
func (s *Session) setState(state types.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

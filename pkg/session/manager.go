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
	"sync"

	"github.com/jeremyhahn/go-cryptoki/pkg/logging"
	"github.com/jeremyhahn/go-cryptoki/pkg/objects"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// HandleSource allocates monotonically increasing session handles. A
// provider serving multiple slots shares one source across its managers so
// a handle identifies its session process-wide. Handles are never reused.
type HandleSource struct {
	mu   sync.Mutex
	next types.SessionHandle
}

// Next returns a fresh handle.
func (hs *HandleSource) Next() types.SessionHandle {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.next++
	return hs.next
}

// Manager owns every session of one token, the token's credentials, and the
// login state machine.
//
// Thread-safe: the session table uses a coarse read-write discipline;
// per-session operation state is guarded by the session itself.
type Manager struct {
	mu       sync.RWMutex
	slot     types.SlotID
	store    *objects.Store
	creds    *Credentials
	sessions map[types.SessionHandle]*Session
	handles  *HandleSource
	logger   *logging.Logger
}

// NewManager creates a session manager for one token with its own handle
// source.
func NewManager(slot types.SlotID, store *objects.Store, creds *Credentials, logger *logging.Logger) *Manager {
	return NewManagerWithHandles(slot, store, creds, &HandleSource{}, logger)
}

// NewManagerWithHandles creates a session manager drawing handles from a
// shared source.
func NewManagerWithHandles(slot types.SlotID, store *objects.Store, creds *Credentials, handles *HandleSource, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Manager{
		slot:     slot,
		store:    store,
		creds:    creds,
		sessions: make(map[types.SessionHandle]*Session),
		handles:  handles,
		logger:   logger,
	}
}

// Store returns the token's object store.
func (m *Manager) Store() *objects.Store { return m.store }

// Credentials returns the token's credential set.
func (m *Manager) Credentials() *Credentials { return m.creds }

// OpenSession opens a new session in RW_Public or RO_Public state.
func (m *Manager) OpenSession(readWrite bool) types.SessionHandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := types.StateROPublic
	if readWrite {
		state = types.StateRWPublic
	}
	s := &Session{
		handle: m.handles.Next(),
		slot:   m.slot,
		rw:     readWrite,
		state:  state,
	}
	m.sessions[s.handle] = s
	m.logger.Debug("session opened",
		"slot", uint(m.slot), "session", uint64(s.handle), "state", state.String())
	return s.handle
}

// Get resolves a session handle.
func (m *Manager) Get(h types.SessionHandle) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[h]
	if !ok {
		return nil, types.NewError("Manager.Get", types.ErrSessionHandleInvalid).WithSession(h)
	}
	return s, nil
}

// Login authenticates a session. State transitions follow the session
// state machine: only public states accept a login event, Security Officer
// login requires a read-write session and is exclusive with read-only and
// user-authenticated sessions on the same token. A failed login leaves the
// session state unchanged.
func (m *Manager) Login(h types.SessionHandle, role types.Role, pin []byte) error {
	s, err := m.Get(h)
	if err != nil {
		return err
	}

	state := s.State()
	if state.Authenticated() {
		return types.NewError("Manager.Login", types.ErrOperationNotPermitted).
			WithSession(h).
			WithState(state, "RO_Public|RW_Public").
			WithDetail("already logged in")
	}

	var target types.SessionState
	switch role {
	case types.RoleUser:
		if state == types.StateRWPublic {
			target = types.StateRWUser
		} else {
			target = types.StateROUser
		}
	case types.RoleSecurityOfficer:
		if state != types.StateRWPublic {
			return types.NewError("Manager.Login", types.ErrOperationNotPermitted).
				WithSession(h).
				WithState(state, "RW_Public").
				WithDetail("security officer requires a read-write session")
		}
		if err := m.checkSOExclusive(h); err != nil {
			return err
		}
		target = types.StateRWSecurityOfficer
	default:
		return types.NewError("Manager.Login", types.ErrOperationNotPermitted).
			WithSession(h).WithDetail("unknown role")
	}

	if err := m.creds.Verify(role, pin); err != nil {
		return err
	}

	s.setState(target)
	m.logger.Debug("login",
		"slot", uint(m.slot), "session", uint64(h), "role", role.String(), "state", target.String())
	return nil
}

// checkSOExclusive enforces the Security Officer concurrency policy: no
// read-only session and no user-authenticated session may be open on the
// token.
func (m *Manager) checkSOExclusive(h types.SessionHandle) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, other := range m.sessions {
		if other.handle == h {
			continue
		}
		st := other.State()
		if !other.rw {
			return types.NewError("Manager.Login", types.ErrSessionExists).
				WithSession(h).
				WithDetail("read-only session open on token")
		}
		if st == types.StateRWUser || st == types.StateROUser {
			return types.NewError("Manager.Login", types.ErrSessionExists).
				WithSession(h).
				WithDetail("user session logged in on token")
		}
	}
	return nil
}

// Logout returns an authenticated session to its public state, preserving
// read-write-ness. Logout of an unauthenticated session is an invalid
// transition and leaves the state unchanged.
func (m *Manager) Logout(h types.SessionHandle) error {
	s, err := m.Get(h)
	if err != nil {
		return err
	}

	state := s.State()
	if !state.Authenticated() {
		return types.NewError("Manager.Logout", types.ErrUserNotLoggedIn).
			WithSession(h).
			WithState(state, "RO_User|RW_User|RW_SecurityOfficer")
	}

	target := types.StateROPublic
	if s.rw {
		target = types.StateRWPublic
	}
	s.setState(target)
	m.logger.Debug("logout", "slot", uint(m.slot), "session", uint64(h), "state", target.String())
	return nil
}

// CloseSession destroys a session: all active operations are discarded and
// all session-scoped objects it created are destroyed. Cleanup is
// best-effort; once the handle resolves, close always succeeds.
func (m *Manager) CloseSession(h types.SessionHandle) error {
	m.mu.Lock()
	s, ok := m.sessions[h]
	if !ok {
		m.mu.Unlock()
		return types.NewError("Manager.CloseSession", types.ErrSessionHandleInvalid).WithSession(h)
	}
	delete(m.sessions, h)
	m.mu.Unlock()

	s.AbortOps()
	destroyed := m.store.DestroySessionObjects(h)
	m.logger.Debug("session closed",
		"slot", uint(m.slot), "session", uint64(h), "objects_destroyed", destroyed)
	return nil
}

// CloseAll closes every open session. Used by Finalize and token removal.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[types.SessionHandle]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.AbortOps()
		m.store.DestroySessionObjects(s.handle)
	}
}

// OpenCount returns the number of open sessions.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

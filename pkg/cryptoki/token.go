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
	"sync"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/engine"
	"github.com/jeremyhahn/go-cryptoki/pkg/logging"
	"github.com/jeremyhahn/go-cryptoki/pkg/objects"
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/storage"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// token bundles the per-slot components: object store, credentials,
// session manager, crypto engine and the optional persistence adapter.
type token struct {
	mu      sync.RWMutex
	slot    types.SlotID
	label   string
	serial  string
	store   *objects.Store
	creds   *session.Credentials
	manager *session.Manager
	engine  *engine.Engine
	persist *storage.TokenStore
}

// newToken builds a token for one slot, restoring persisted state when a
// record exists.
func newToken(slot types.SlotID, label string, maxAttempts int, registry *backend.Registry,
	handles *session.HandleSource, persistBackend storage.Backend, logger *logging.Logger) (*token, error) {

	t := &token{
		slot:   slot,
		label:  label,
		serial: uuid.NewString(),
		store:  objects.NewStore(),
		creds:  session.NewCredentials(maxAttempts),
	}
	if persistBackend != nil {
		t.persist = storage.NewTokenStore(persistBackend, slot)
		rec, ok, err := t.persist.Load()
		if err != nil {
			return nil, types.NewError("Context.Initialize", types.ErrDeviceError).WithCause(err)
		}
		if ok {
			t.label = rec.Label
			t.serial = rec.SerialNumber
			t.creds.Restore(rec.User, rec.SO)
			for _, obj := range rec.Objects {
				if _, err := t.store.Restore(obj); err != nil {
					return nil, err
				}
			}
			logger.Debug("token restored",
				"slot", uint(slot), "label", t.label, "objects", len(rec.Objects))
		}
	}
	t.manager = session.NewManagerWithHandles(slot, t.store, t.creds, handles, logger)
	t.engine = engine.New(t.store, registry)
	return t, nil
}

// save persists the token record. A token without a persistence adapter is
// ephemeral and save is a no-op.
func (t *token) save() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.persist == nil {
		return nil
	}
	user, so := t.creds.Snapshot()
	rec := storage.TokenRecord{
		Label:        t.label,
		SerialNumber: t.serial,
		User:         user,
		SO:           so,
		Objects:      t.store.TokenRecords(),
	}
	if err := t.persist.Save(rec); err != nil {
		return types.NewError("token.save", types.ErrDeviceError).WithCause(err)
	}
	return nil
}

// reset wipes the token for InitToken: every object is destroyed, both
// credentials are cleared, and a fresh serial is assigned. The session
// manager and engine are rebuilt around the new store so stale handles
// cannot reach old state.
func (t *token) reset(label string, maxAttempts int, registry *backend.Registry,
	handles *session.HandleSource, logger *logging.Logger) {

	t.mu.Lock()
	defer t.mu.Unlock()

	t.label = label
	t.serial = uuid.NewString()
	t.store = objects.NewStore()
	t.creds = session.NewCredentials(maxAttempts)
	t.manager = session.NewManagerWithHandles(t.slot, t.store, t.creds, handles, logger)
	t.engine = engine.New(t.store, registry)
}

// info composes the token's descriptor.
func (t *token) info(mechanisms int) types.TokenInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return types.TokenInfo{
		Label:           t.label,
		SerialNumber:    t.serial,
		Model:           "software",
		UserPINSet:      t.creds.Initialized(types.RoleUser),
		SOPINSet:        t.creds.Initialized(types.RoleSecurityOfficer),
		OpenSessions:    t.manager.OpenCount(),
		MaxPINAttempts:  t.creds.MaxAttempts(),
		UserPINLocked:   t.creds.Locked(types.RoleUser),
		SOPINLocked:     t.creds.Locked(types.RoleSecurityOfficer),
		ObjectCount:     t.store.Count(),
		MechanismsCount: mechanisms,
	}
}

// components returns the live manager and engine under the token's read
// lock, so callers do not race InitToken's rebuild.
func (t *token) components() (*session.Manager, *engine.Engine) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.manager, t.engine
}

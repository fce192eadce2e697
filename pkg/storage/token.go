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

package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-cryptoki/pkg/objects"
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// TokenRecord is the persisted state of one token: identity, credentials
// and every token object. Session objects and lockout counters are never
// persisted.
type TokenRecord struct {
	Label        string                   `json:"label"`
	SerialNumber string                   `json:"serial_number"`
	User         session.CredentialRecord `json:"user"`
	SO           session.CredentialRecord `json:"so"`
	Objects      []objects.Record         `json:"objects,omitempty"`
}

// TokenStore persists one slot's token record through a storage backend.
type TokenStore struct {
	backend Backend
	key     string
}

// NewTokenStore creates a persistence adapter for the given slot.
func NewTokenStore(backend Backend, slot types.SlotID) *TokenStore {
	return &TokenStore{
		backend: backend,
		key:     fmt.Sprintf("tokens/%d.json", slot),
	}
}

// Save writes the token record.
func (t *TokenStore) Save(rec TokenRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return t.backend.Put(t.key, data)
}

// Load reads the token record. The second return reports whether a record
// existed.
func (t *TokenStore) Load() (TokenRecord, bool, error) {
	data, err := t.backend.Get(t.key)
	if errors.Is(err, ErrNotFound) {
		return TokenRecord{}, false, nil
	}
	if err != nil {
		return TokenRecord{}, false, err
	}
	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return TokenRecord{}, false, err
	}
	return rec, true, nil
}

// Erase removes the token record, if any.
func (t *TokenStore) Erase() error {
	err := t.backend.Delete(t.key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

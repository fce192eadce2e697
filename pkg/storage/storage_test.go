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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-cryptoki/pkg/objects"
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

func TestMemoryBackendCRUD(t *testing.T) {
	m := NewMemory()

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Put("a", []byte("1")))
	require.NoError(t, m.Put("a/b", []byte("2")))
	require.NoError(t, m.Put("c", []byte("3")))

	v, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	// Stored values are isolated from caller buffers.
	buf := []byte("mut")
	require.NoError(t, m.Put("iso", buf))
	buf[0] = 'X'
	v, err = m.Get("iso")
	require.NoError(t, err)
	assert.Equal(t, []byte("mut"), v)

	keys, err := m.List("a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "a/b"}, keys)

	require.NoError(t, m.Delete("c"))
	assert.ErrorIs(t, m.Delete("c"), ErrNotFound)

	assert.ErrorIs(t, m.Put("", []byte("x")), ErrInvalidKey)

	require.NoError(t, m.Close())
	_, err = m.Get("a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Put("a", nil), ErrClosed)
}

func TestTokenStoreRoundTrip(t *testing.T) {
	backend := NewMemory()
	ts := NewTokenStore(backend, 1)

	_, ok, err := ts.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	creds := session.NewCredentials(0)
	require.NoError(t, creds.SetPIN(types.RoleUser, []byte("1234")))
	require.NoError(t, creds.SetPIN(types.RoleSecurityOfficer, []byte("so-pin")))
	user, so := creds.Snapshot()

	rec := TokenRecord{
		Label:        "dev token",
		SerialNumber: "abc123",
		User:         user,
		SO:           so,
		Objects: []objects.Record{{
			Class:   uint32(types.ClassData),
			Private: false,
			Attributes: map[uint32][]byte{
				uint32(types.AttrClass): {0, 0, 0, 0},
				uint32(types.AttrValue): []byte("payload"),
			},
		}},
	}
	require.NoError(t, ts.Save(rec))

	got, ok, err := ts.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Label, got.Label)
	assert.Equal(t, rec.SerialNumber, got.SerialNumber)
	require.Len(t, got.Objects, 1)
	assert.Equal(t, []byte("payload"), got.Objects[0].Attributes[uint32(types.AttrValue)])

	// Restored credentials verify the original PINs.
	restored := session.NewCredentials(0)
	restored.Restore(got.User, got.SO)
	assert.NoError(t, restored.Verify(types.RoleUser, []byte("1234")))
	assert.NoError(t, restored.Verify(types.RoleSecurityOfficer, []byte("so-pin")))
	assert.ErrorIs(t, restored.Verify(types.RoleUser, []byte("wrong")), types.ErrPinIncorrect)

	require.NoError(t, ts.Erase())
	_, ok, err = ts.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	// Erasing an absent record is not an error.
	require.NoError(t, ts.Erase())
}

// wrappingBackend decorates every error with context, as a disk or remote
// backend would.
type wrappingBackend struct {
	Backend
}

func (w wrappingBackend) Get(key string) ([]byte, error) {
	v, err := w.Backend.Get(key)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

func (w wrappingBackend) Delete(key string) error {
	if err := w.Backend.Delete(key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func TestTokenStoreWrappedNotFound(t *testing.T) {
	ts := NewTokenStore(wrappingBackend{NewMemory()}, 1)

	// A wrapped ErrNotFound still reads as an absent record, not a failure.
	_, ok, err := ts.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, ts.Erase())
}

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
	"errors"
	"testing"

	"github.com/jeremyhahn/go-cryptoki/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The full permission table, exactly as specified. Rows are permissions,
// columns follow RO_Public, RW_Public, RO_User, RW_User, RW_SO order.
func TestPermissionTable(t *testing.T) {
	states := []types.SessionState{
		types.StateROPublic, types.StateRWPublic,
		types.StateROUser, types.StateRWUser,
		types.StateRWSecurityOfficer,
	}
	table := []struct {
		perm Permission
		want [5]bool
	}{
		{PermReadPublicObject, [5]bool{true, true, true, true, false}},
		{PermReadPrivateObject, [5]bool{false, false, true, true, false}},
		{PermCreateSessionObject, [5]bool{true, true, true, true, true}},
		{PermCreatePublicTokenObject, [5]bool{false, true, false, true, false}},
		{PermCreatePrivateTokenObject, [5]bool{false, false, false, true, false}},
		{PermUsePrivateKey, [5]bool{false, false, true, true, false}},
		{PermInitUserCredential, [5]bool{false, false, false, false, true}},
	}

	for _, row := range table {
		for i, state := range states {
			assert.Equal(t, row.want[i], Permits(state, row.perm),
				"%s in %s", row.perm, state)
		}
	}
}

func TestSession_Ensure_ErrorPayload(t *testing.T) {
	m := newTestManager(t)
	h := m.OpenSession(false)
	s, err := m.Get(h)
	require.NoError(t, err)

	err = s.Ensure("Engine.SignInit", PermUsePrivateKey)
	require.ErrorIs(t, err, types.ErrOperationNotPermitted)

	var cerr *types.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, h, cerr.Session)
	assert.Equal(t, types.StateROPublic, cerr.State)
	assert.Equal(t, "RO_User|RW_User", cerr.Required)
}

func TestSession_Ensure_AllowsPermitted(t *testing.T) {
	m := newTestManager(t)
	h := m.OpenSession(true)
	require.NoError(t, m.Login(h, types.RoleUser, []byte(userPIN)))
	s, err := m.Get(h)
	require.NoError(t, err)

	assert.NoError(t, s.Ensure("Engine.SignInit", PermUsePrivateKey))
	assert.NoError(t, s.Ensure("Store.Create", PermCreatePrivateTokenObject))
}

func TestSession_OpSlots_OnePerCategory(t *testing.T) {
	s := &Session{handle: 1, state: types.StateRWPublic}

	require.NoError(t, s.BeginOp(types.OpSign, "op-1"))

	// Second init in the same category fails while the first is active.
	err := s.BeginOp(types.OpSign, "op-2")
	assert.ErrorIs(t, err, types.ErrOperationActive)

	// A different category is independent.
	require.NoError(t, s.BeginOp(types.OpDigest, "digest-op"))
}

func TestSession_OpSlots_UseAndTake(t *testing.T) {
	s := &Session{handle: 1, state: types.StateRWPublic}

	// Use/Take without init.
	_, _, err := s.UseOp(types.OpEncrypt)
	assert.ErrorIs(t, err, types.ErrOperationNotInitialized)
	_, err = s.TakeOp(types.OpEncrypt)
	assert.ErrorIs(t, err, types.ErrOperationNotInitialized)

	require.NoError(t, s.BeginOp(types.OpEncrypt, "cipher"))

	value, release, err := s.UseOp(types.OpEncrypt)
	require.NoError(t, err)
	assert.Equal(t, "cipher", value)

	// A concurrent call into the same category mid-flight is rejected, not
	// interleaved.
	_, _, err = s.UseOp(types.OpEncrypt)
	assert.ErrorIs(t, err, types.ErrOperationActive)
	_, err = s.TakeOp(types.OpEncrypt)
	assert.ErrorIs(t, err, types.ErrOperationActive)

	release()

	// Take clears the slot; the category is immediately reusable.
	value, err = s.TakeOp(types.OpEncrypt)
	require.NoError(t, err)
	assert.Equal(t, "cipher", value)

	_, err = s.TakeOp(types.OpEncrypt)
	assert.ErrorIs(t, err, types.ErrOperationNotInitialized)
	assert.NoError(t, s.BeginOp(types.OpEncrypt, "cipher-2"))
}

func TestSession_AbortOps(t *testing.T) {
	s := &Session{handle: 1, state: types.StateRWPublic}
	require.NoError(t, s.BeginOp(types.OpSign, "a"))
	require.NoError(t, s.BeginOp(types.OpFind, "b"))

	s.AbortOps()

	_, err := s.TakeOp(types.OpSign)
	assert.ErrorIs(t, err, types.ErrOperationNotInitialized)
	_, err = s.TakeOp(types.OpFind)
	assert.ErrorIs(t, err, types.ErrOperationNotInitialized)
}

func TestCredentials_Lifecycle(t *testing.T) {
	creds := NewCredentials(0)
	assert.Equal(t, DefaultMaxPINAttempts, creds.MaxAttempts())
	assert.False(t, creds.Initialized(types.RoleUser))

	err := creds.Verify(types.RoleUser, []byte("anything"))
	assert.ErrorIs(t, err, types.ErrPinNotInitialized)

	require.NoError(t, creds.SetPIN(types.RoleUser, []byte("1234")))
	assert.True(t, creds.Initialized(types.RoleUser))
	assert.False(t, creds.Initialized(types.RoleSecurityOfficer))

	assert.NoError(t, creds.Verify(types.RoleUser, []byte("1234")))
	assert.ErrorIs(t, creds.Verify(types.RoleUser, []byte("999")), types.ErrPinIncorrect)

	// A success resets the failure counter.
	assert.NoError(t, creds.Verify(types.RoleUser, []byte("1234")))
	assert.ErrorIs(t, creds.Verify(types.RoleUser, []byte("999")), types.ErrPinIncorrect)
	assert.ErrorIs(t, creds.Verify(types.RoleUser, []byte("999")), types.ErrPinIncorrect)
	assert.ErrorIs(t, creds.Verify(types.RoleUser, []byte("999")), types.ErrPinLocked)
	assert.True(t, creds.Locked(types.RoleUser))

	// Setting a fresh PIN clears the lock.
	require.NoError(t, creds.SetPIN(types.RoleUser, []byte("5678")))
	assert.False(t, creds.Locked(types.RoleUser))
	assert.NoError(t, creds.Verify(types.RoleUser, []byte("5678")))
}

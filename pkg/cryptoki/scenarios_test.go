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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// Login state transitions observed through the public surface.
func TestLoginStateTransitions(t *testing.T) {
	ctx := newTestContext(t, Config{})

	h, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	defer ctx.CloseSession(h)

	info, err := ctx.GetSessionInfo(h)
	require.NoError(t, err)
	assert.Equal(t, types.StateRWPublic, info.State)
	assert.True(t, info.ReadWrite)
	assert.Equal(t, types.SlotID(1), info.Slot)

	// Wrong PIN: error, state unchanged.
	err = ctx.Login(h, types.RoleUser, []byte("wrong"))
	assert.ErrorIs(t, err, types.ErrPinIncorrect)
	info, err = ctx.GetSessionInfo(h)
	require.NoError(t, err)
	assert.Equal(t, types.StateRWPublic, info.State)

	// Correct PIN: RW_User.
	require.NoError(t, ctx.Login(h, types.RoleUser, []byte(testUserPIN)))
	info, err = ctx.GetSessionInfo(h)
	require.NoError(t, err)
	assert.Equal(t, types.StateRWUser, info.State)

	// Logout returns to RW_Public.
	require.NoError(t, ctx.Logout(h))
	info, err = ctx.GetSessionInfo(h)
	require.NoError(t, err)
	assert.Equal(t, types.StateRWPublic, info.State)
}

// Streaming signature over a generated private key, including mechanism
// restriction and the mandatory reset after final.
func TestStreamingSignLifecycle(t *testing.T) {
	ctx := newTestContext(t, Config{})

	h, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	defer ctx.CloseSession(h)
	require.NoError(t, ctx.Login(h, types.RoleUser, []byte(testUserPIN)))

	m := types.Mechanism{Type: types.MechECDSAKeyPair, Parameter: []byte("P-256")}
	_, priv, err := ctx.GenerateKeyPair(h, m,
		types.Template{types.BoolAttribute(types.AttrVerify, true)},
		types.Template{
			types.BoolAttribute(types.AttrSign, true),
			types.MechanismListAttribute(types.MechECDSASHA256),
		})
	require.NoError(t, err)

	// A mechanism outside the key's allowed set is rejected.
	err = ctx.SignInit(h, types.NewMechanism(types.MechECDSASHA384), priv)
	assert.ErrorIs(t, err, types.ErrMechanismInvalid)

	require.NoError(t, ctx.SignInit(h, types.NewMechanism(types.MechECDSASHA256), priv))
	require.NoError(t, ctx.SignUpdate(h, []byte("hello")))
	sig, err := ctx.SignFinal(h)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	// Final returned the operation to idle; an immediate second final has
	// nothing to complete.
	_, err = ctx.SignFinal(h)
	assert.ErrorIs(t, err, types.ErrOperationNotInitialized)
}

// Lockout through the public surface with the default threshold.
func TestLockoutThreshold(t *testing.T) {
	ctx := newTestContext(t, Config{MaxPINAttempts: 3})

	h, err := ctx.OpenSession(1, false)
	require.NoError(t, err)
	defer ctx.CloseSession(h)

	assert.ErrorIs(t, ctx.Login(h, types.RoleUser, []byte("a")), types.ErrPinIncorrect)
	assert.ErrorIs(t, ctx.Login(h, types.RoleUser, []byte("b")), types.ErrPinIncorrect)
	assert.ErrorIs(t, ctx.Login(h, types.RoleUser, []byte("c")), types.ErrPinLocked)

	// Correct PIN after lockout still fails.
	assert.ErrorIs(t, ctx.Login(h, types.RoleUser, []byte(testUserPIN)), types.ErrPinLocked)

	// The Security Officer credential is unaffected.
	rw, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	defer ctx.CloseSession(rw)
	require.NoError(t, ctx.CloseSession(h))
	require.NoError(t, ctx.Login(rw, types.RoleSecurityOfficer, []byte(testSOPIN)))
}

// Session-scoped object isolation between two sessions on the same slot.
func TestSessionObjectIsolation(t *testing.T) {
	ctx := newTestContext(t, Config{})

	s1, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	s2, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	defer ctx.CloseSession(s2)

	obj, err := ctx.CreateObject(s1, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttrValue, []byte("scratch")),
	})
	require.NoError(t, err)

	// Both sessions see the public session object while session 1 lives.
	_, err = ctx.GetAttribute(s2, obj, types.AttrValue)
	require.NoError(t, err)

	// Closing session 1 destroys its session objects; the handle is dead
	// for session 2 as well.
	require.NoError(t, ctx.CloseSession(s1))
	_, err = ctx.GetAttribute(s2, obj, types.AttrValue)
	assert.ErrorIs(t, err, types.ErrObjectHandleInvalid)
	assert.ErrorIs(t, ctx.DestroyObject(s2, obj), types.ErrObjectHandleInvalid)
}

// Private object visibility around login and logout.
func TestPrivateObjectVisibility(t *testing.T) {
	ctx := newTestContext(t, Config{})

	h, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	defer ctx.CloseSession(h)
	require.NoError(t, ctx.Login(h, types.RoleUser, []byte(testUserPIN)))

	_, err = ctx.CreateObject(h, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttrValue, []byte("secret note")),
		types.BoolAttribute(types.AttrToken, true),
		types.BoolAttribute(types.AttrPrivate, true),
	})
	require.NoError(t, err)
	require.NoError(t, ctx.Logout(h))

	// Unauthenticated: the private object is absent from find results.
	found, err := ctx.FindAll(h, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
	})
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, ctx.Login(h, types.RoleUser, []byte(testUserPIN)))
	found, err = ctx.FindAll(h, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
	})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

// The Security Officer is an administrative role with no object reads:
// both public and private objects are off limits, and find is denied.
func TestSecurityOfficerCannotReadObjects(t *testing.T) {
	ctx := newTestContext(t, Config{})

	user, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	require.NoError(t, ctx.Login(user, types.RoleUser, []byte(testUserPIN)))

	public, err := ctx.CreateObject(user, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttrValue, []byte("public note")),
		types.BoolAttribute(types.AttrToken, true),
	})
	require.NoError(t, err)
	private, err := ctx.CreateObject(user, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttrValue, []byte("user secret")),
		types.BoolAttribute(types.AttrToken, true),
		types.BoolAttribute(types.AttrPrivate, true),
	})
	require.NoError(t, err)
	require.NoError(t, ctx.CloseSession(user))

	so, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	require.NoError(t, ctx.Login(so, types.RoleSecurityOfficer, []byte(testSOPIN)))

	// Attribute reads are denied outright, for both scopes.
	_, err = ctx.GetAttribute(so, public, types.AttrValue)
	assert.ErrorIs(t, err, types.ErrOperationNotPermitted)
	_, err = ctx.GetAttribute(so, private, types.AttrValue)
	assert.ErrorIs(t, err, types.ErrOperationNotPermitted)

	// So is find, in both its streaming and one-shot forms.
	err = ctx.FindObjectsInit(so, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
	})
	assert.ErrorIs(t, err, types.ErrOperationNotPermitted)
	_, err = ctx.FindAll(so, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
	})
	assert.ErrorIs(t, err, types.ErrOperationNotPermitted)

	// The private object is invisible to the SO view even on paths that
	// carry no read gate of their own.
	err = ctx.DestroyObject(so, private)
	assert.ErrorIs(t, err, types.ErrObjectHandleInvalid)
	require.NoError(t, ctx.CloseSession(so))

	// The user still reads both objects afterwards.
	user, err = ctx.OpenSession(1, false)
	require.NoError(t, err)
	defer ctx.CloseSession(user)
	require.NoError(t, ctx.Login(user, types.RoleUser, []byte(testUserPIN)))
	got, err := ctx.GetAttribute(user, private, types.AttrValue)
	require.NoError(t, err)
	assert.Equal(t, "user secret", string(got.Value))
}

// Find cursor protocol through the public surface.
func TestFindObjectsCursor(t *testing.T) {
	ctx := newTestContext(t, Config{})

	h, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	defer ctx.CloseSession(h)

	for i := 0; i < 3; i++ {
		_, err := ctx.CreateObject(h, types.Template{
			types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
			types.NewAttribute(types.AttrValue, []byte{byte(i)}),
		})
		require.NoError(t, err)
	}

	require.NoError(t, ctx.FindObjectsInit(h, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
	}))

	// A second init while the cursor is open is a caller error.
	err = ctx.FindObjectsInit(h, types.Template{})
	assert.ErrorIs(t, err, types.ErrOperationActive)

	batch, err := ctx.FindObjects(h, 2)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	batch, err = ctx.FindObjects(h, 2)
	require.NoError(t, err)
	assert.Len(t, batch, 1)

	// Exhausted cursor keeps returning empty until final.
	batch, err = ctx.FindObjects(h, 2)
	require.NoError(t, err)
	assert.Empty(t, batch)

	require.NoError(t, ctx.FindObjectsFinal(h))
	_, err = ctx.FindObjects(h, 1)
	assert.ErrorIs(t, err, types.ErrOperationNotInitialized)
}

// Copying changes scope only where the session may create that scope.
func TestCopyObject(t *testing.T) {
	ctx := newTestContext(t, Config{})

	h, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	defer ctx.CloseSession(h)

	src, err := ctx.CreateObject(h, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttrValue, []byte("v1")),
	})
	require.NoError(t, err)

	// Session object to public token object: needs RW_Public at least.
	dup, err := ctx.CopyObject(h, src, types.Template{
		types.BoolAttribute(types.AttrToken, true),
	})
	require.NoError(t, err)
	assert.NotEqual(t, src, dup)

	v, err := ctx.GetAttribute(h, dup, types.AttrValue)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v.Value)

	// Copying to a private token object is not permitted while public.
	_, err = ctx.CopyObject(h, src, types.Template{
		types.BoolAttribute(types.AttrToken, true),
		types.BoolAttribute(types.AttrPrivate, true),
	})
	assert.ErrorIs(t, err, types.ErrOperationNotPermitted)

	// The copy is independent of the source.
	require.NoError(t, ctx.DestroyObject(h, src))
	_, err = ctx.GetAttribute(h, dup, types.AttrValue)
	require.NoError(t, err)
}

// Read-only sessions cannot mutate attributes.
func TestSetAttributeRequiresWritableSession(t *testing.T) {
	ctx := newTestContext(t, Config{})

	rw, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	defer ctx.CloseSession(rw)
	obj, err := ctx.CreateObject(rw, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttrValue, []byte("doc")),
		types.BoolAttribute(types.AttrToken, true),
	})
	require.NoError(t, err)

	ro, err := ctx.OpenSession(1, false)
	require.NoError(t, err)
	defer ctx.CloseSession(ro)

	err = ctx.SetAttribute(ro, obj, types.StringAttribute(types.AttrLabel, "renamed"))
	assert.ErrorIs(t, err, types.ErrSessionReadOnly)
	require.NoError(t, ctx.SetAttribute(rw, obj, types.StringAttribute(types.AttrLabel, "renamed")))
}

// Two tokens in two slots are fully isolated and handles stay unique.
func TestMultiSlotIsolation(t *testing.T) {
	ctx := New()
	require.NoError(t, ctx.Initialize(Config{Slots: []types.SlotID{1, 2}}))
	defer ctx.Finalize()
	require.NoError(t, ctx.InitToken(1, []byte(testSOPIN), "one"))
	require.NoError(t, ctx.InitToken(2, []byte(testSOPIN), "two"))

	h1, err := ctx.OpenSession(1, true)
	require.NoError(t, err)
	h2, err := ctx.OpenSession(2, true)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	obj, err := ctx.CreateObject(h1, types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttrValue, []byte("slot one data")),
	})
	require.NoError(t, err)

	// The handle means nothing inside slot 2's token.
	_, err = ctx.GetAttribute(h2, obj, types.AttrValue)
	assert.ErrorIs(t, err, types.ErrObjectHandleInvalid)

	i1, err := ctx.GetSessionInfo(h1)
	require.NoError(t, err)
	i2, err := ctx.GetSessionInfo(h2)
	require.NoError(t, err)
	assert.Equal(t, types.SlotID(1), i1.Slot)
	assert.Equal(t, types.SlotID(2), i2.Slot)
}

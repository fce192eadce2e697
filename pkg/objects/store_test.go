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

package objects

import (
	"testing"

	"github.com/jeremyhahn/go-cryptoki/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func secretKeyTemplate(label string) types.Template {
	return types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassSecretKey)),
		types.StringAttribute(types.AttrKeyType, string(types.KeyTypeAES)),
		types.StringAttribute(types.AttrLabel, label),
		types.NewAttribute(types.AttrValue, []byte("0123456789abcdef0123456789abcdef")),
		types.BoolAttribute(types.AttrEncrypt, true),
		types.BoolAttribute(types.AttrDecrypt, true),
	}
}

func authView(session types.SessionHandle) View {
	return View{Session: session, Authenticated: true}
}

func TestStore_CreateAndRoundTrip(t *testing.T) {
	store := NewStore()
	view := authView(1)

	tmpl := secretKeyTemplate("round-trip")
	handle, err := store.Create(tmpl, false, false, 1)
	require.NoError(t, err)
	require.NotZero(t, handle)

	// Every attribute in the creation template reads back byte-exact.
	for _, want := range tmpl {
		got, err := store.GetAttribute(handle, want.Type, view)
		require.NoError(t, err)
		assert.True(t, want.Equal(got), "attribute %v should round-trip", want.Type)
	}
}

func TestStore_Create_MissingClass(t *testing.T) {
	store := NewStore()

	_, err := store.Create(types.Template{
		types.StringAttribute(types.AttrLabel, "no-class"),
	}, false, false, 1)
	assert.ErrorIs(t, err, types.ErrTemplateIncomplete)
}

func TestStore_Create_MissingKeyType(t *testing.T) {
	store := NewStore()

	_, err := store.Create(types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassPrivateKey)),
	}, false, false, 1)
	assert.ErrorIs(t, err, types.ErrTemplateIncomplete)
}

func TestStore_Create_UnknownAttributeType(t *testing.T) {
	store := NewStore()

	_, err := store.Create(types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttributeType(0x7777), []byte("bogus")),
	}, false, false, 1)
	assert.ErrorIs(t, err, types.ErrAttributeTypeInvalid)
}

func TestStore_Create_InconsistentCapabilities(t *testing.T) {
	store := NewStore()

	// An ECDSA private key cannot carry a decrypt capability.
	_, err := store.Create(types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassPrivateKey)),
		types.StringAttribute(types.AttrKeyType, string(types.KeyTypeECDSA)),
		types.BoolAttribute(types.AttrSign, true),
		types.BoolAttribute(types.AttrDecrypt, true),
	}, false, false, 1)
	assert.ErrorIs(t, err, types.ErrAttributeTypeInvalid)
}

func TestStore_SensitiveLatch(t *testing.T) {
	store := NewStore()
	view := authView(1)

	handle, err := store.Create(types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassSecretKey)),
		types.StringAttribute(types.AttrKeyType, string(types.KeyTypeAES)),
		types.NewAttribute(types.AttrValue, []byte("k")),
	}, false, false, 1)
	require.NoError(t, err)

	// Latch on.
	require.NoError(t, store.SetAttribute(handle, types.BoolAttribute(types.AttrSensitive, true), view))

	// No sequence of calls may clear it.
	err = store.SetAttribute(handle, types.BoolAttribute(types.AttrSensitive, false), view)
	assert.ErrorIs(t, err, types.ErrAttributeReadOnly)

	got, err := store.GetAttribute(handle, types.AttrSensitive, view)
	require.NoError(t, err)
	assert.True(t, got.Bool())
}

func TestStore_ReadOnlyAttributes(t *testing.T) {
	store := NewStore()
	view := authView(1)

	handle, err := store.Create(secretKeyTemplate("ro"), false, false, 1)
	require.NoError(t, err)

	for _, attr := range []types.AttributeValue{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.StringAttribute(types.AttrKeyType, string(types.KeyTypeRSA)),
		types.BoolAttribute(types.AttrToken, true),
	} {
		err := store.SetAttribute(handle, attr, view)
		assert.ErrorIs(t, err, types.ErrAttributeReadOnly, "attribute %v must be read only", attr.Type)
	}

	// Label is writable.
	require.NoError(t, store.SetAttribute(handle, types.StringAttribute(types.AttrLabel, "renamed"), view))
	got, err := store.GetAttribute(handle, types.AttrLabel, view)
	require.NoError(t, err)
	assert.Equal(t, "renamed", string(got.Value))
}

func TestStore_SensitiveValueHiddenFromOtherSessions(t *testing.T) {
	store := NewStore()

	tmpl := append(secretKeyTemplate("hidden"), types.BoolAttribute(types.AttrSensitive, true))
	handle, err := store.Create(tmpl, true, false, 1)
	require.NoError(t, err)

	// The creating session may still read the value.
	_, err = store.GetAttribute(handle, types.AttrValue, authView(1))
	require.NoError(t, err)

	// Any other session may not.
	_, err = store.GetAttribute(handle, types.AttrValue, authView(2))
	assert.ErrorIs(t, err, types.ErrAttributeSensitive)

	// Non-value attributes stay readable.
	_, err = store.GetAttribute(handle, types.AttrLabel, authView(2))
	assert.NoError(t, err)
}

func TestStore_PrivateObjectVisibility(t *testing.T) {
	store := NewStore()

	handle, err := store.Create(secretKeyTemplate("private"), true, true, 1)
	require.NoError(t, err)

	// Unauthenticated view: invisible, indistinguishable from nonexistent.
	_, err = store.GetAttribute(handle, types.AttrLabel, View{Session: 1})
	assert.ErrorIs(t, err, types.ErrObjectHandleInvalid)

	cursor, err := store.FindInit(nil, View{Session: 1})
	require.NoError(t, err)
	assert.Empty(t, cursor.Drain())

	// Authenticated view sees it.
	cursor, err = store.FindInit(nil, authView(1))
	require.NoError(t, err)
	assert.Equal(t, []types.ObjectHandle{handle}, cursor.Drain())
}

func TestStore_SessionScopeVisibility(t *testing.T) {
	store := NewStore()

	// Session 1 creates a session-scoped object.
	handle, err := store.Create(secretKeyTemplate("scoped"), false, false, 1)
	require.NoError(t, err)

	// Session 2 cannot see or destroy it.
	_, err = store.GetAttribute(handle, types.AttrLabel, authView(2))
	assert.ErrorIs(t, err, types.ErrObjectHandleInvalid)
	assert.ErrorIs(t, store.Destroy(handle, authView(2)), types.ErrObjectHandleInvalid)

	// Closing session 1 destroys it for everyone.
	assert.Equal(t, 1, store.DestroySessionObjects(1))
	_, err = store.GetAttribute(handle, types.AttrLabel, authView(1))
	assert.ErrorIs(t, err, types.ErrObjectHandleInvalid)
}

func TestStore_FindCursor_NonRestartable(t *testing.T) {
	store := NewStore()
	view := authView(1)

	var want []types.ObjectHandle
	for i := 0; i < 3; i++ {
		h, err := store.Create(secretKeyTemplate("cursor"), false, false, 1)
		require.NoError(t, err)
		want = append(want, h)
	}

	cursor, err := store.FindInit(types.Template{
		types.StringAttribute(types.AttrLabel, "cursor"),
	}, view)
	require.NoError(t, err)

	assert.Len(t, cursor.Next(2), 2)
	assert.Len(t, cursor.Next(2), 1)

	// Exhausted: empty, not an error.
	assert.Empty(t, cursor.Next(2))
	assert.Empty(t, cursor.Drain())

	// A fresh search context sees everything again.
	cursor, err = store.FindInit(nil, view)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, cursor.Drain())
}

func TestStore_FindMatchesByteExact(t *testing.T) {
	store := NewStore()
	view := authView(1)

	h1, err := store.Create(secretKeyTemplate("alpha"), false, false, 1)
	require.NoError(t, err)
	_, err = store.Create(secretKeyTemplate("beta"), false, false, 1)
	require.NoError(t, err)

	cursor, err := store.FindInit(types.Template{
		types.StringAttribute(types.AttrLabel, "alpha"),
		types.StringAttribute(types.AttrKeyType, string(types.KeyTypeAES)),
	}, view)
	require.NoError(t, err)
	assert.Equal(t, []types.ObjectHandle{h1}, cursor.Drain())

	// Prefix is not a match.
	cursor, err = store.FindInit(types.Template{
		types.StringAttribute(types.AttrLabel, "alph"),
	}, view)
	require.NoError(t, err)
	assert.Empty(t, cursor.Drain())
}

func TestStore_DestroyTombstones(t *testing.T) {
	store := NewStore()
	view := authView(1)

	h1, err := store.Create(secretKeyTemplate("doomed"), false, false, 1)
	require.NoError(t, err)

	require.NoError(t, store.Destroy(h1, view))

	// Second destroy on the same handle is an error, not idempotent.
	assert.ErrorIs(t, store.Destroy(h1, view), types.ErrObjectHandleInvalid)

	// A new object never reuses the destroyed handle.
	h2, err := store.Create(secretKeyTemplate("fresh"), false, false, 1)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.Greater(t, uint64(h2), uint64(h1))

	// The stale handle stays invalid.
	_, err = store.GetAttribute(h1, types.AttrLabel, view)
	assert.ErrorIs(t, err, types.ErrObjectHandleInvalid)
}

func TestStore_KeyInfo(t *testing.T) {
	store := NewStore()

	tmpl := types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassPrivateKey)),
		types.StringAttribute(types.AttrKeyType, string(types.KeyTypeECDSA)),
		types.NewAttribute(types.AttrValue, []byte("der-bytes")),
		types.BoolAttribute(types.AttrSign, true),
		types.MechanismListAttribute(types.MechECDSASHA256),
	}
	handle, err := store.Create(tmpl, false, true, 1)
	require.NoError(t, err)

	key, err := store.Key(handle, authView(1))
	require.NoError(t, err)
	assert.Equal(t, types.ClassPrivateKey, key.Class)
	assert.Equal(t, types.KeyTypeECDSA, key.KeyType)
	assert.Equal(t, []byte("der-bytes"), key.Material)
	assert.True(t, key.Sign)
	assert.False(t, key.Decrypt)
	assert.True(t, key.AllowsMechanism(types.MechECDSASHA256))
	assert.False(t, key.AllowsMechanism(types.MechECDSASHA384))
}

func TestStore_Key_NotAKey(t *testing.T) {
	store := NewStore()

	handle, err := store.Create(types.Template{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.NewAttribute(types.AttrValue, []byte("blob")),
	}, false, false, 1)
	require.NoError(t, err)

	_, err = store.Key(handle, authView(1))
	assert.ErrorIs(t, err, types.ErrKeyHandleInvalid)
}

func TestStore_PersistenceRecords(t *testing.T) {
	store := NewStore()

	_, err := store.Create(secretKeyTemplate("session-only"), false, false, 1)
	require.NoError(t, err)
	tokenHandle, err := store.Create(secretKeyTemplate("persisted"), true, false, 1)
	require.NoError(t, err)

	records := store.TokenRecords()
	require.Len(t, records, 1, "only token objects persist")

	restored := NewStore()
	newHandle, err := restored.Restore(records[0])
	require.NoError(t, err)
	_ = tokenHandle

	got, err := restored.GetAttribute(newHandle, types.AttrLabel, View{Session: 5})
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got.Value))
}

func TestStore_Copy(t *testing.T) {
	store := NewStore()
	view := authView(1)

	src, err := store.Create(secretKeyTemplate("original"), false, false, 1)
	require.NoError(t, err)

	dst, err := store.Copy(src, types.Template{
		types.StringAttribute(types.AttrLabel, "duplicate"),
	}, view, 2)
	require.NoError(t, err)
	require.NotEqual(t, src, dst)

	// The copy carries the overlay label; the source keeps its own.
	got, err := store.GetAttribute(dst, types.AttrLabel, view)
	require.NoError(t, err)
	assert.Equal(t, "duplicate", string(got.Value))
	got, err = store.GetAttribute(src, types.AttrLabel, view)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got.Value))

	// The copies are independent afterwards.
	require.NoError(t, store.SetAttribute(dst, types.StringAttribute(types.AttrLabel, "renamed"), view))
	got, err = store.GetAttribute(src, types.AttrLabel, view)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got.Value))
}

func TestStore_Copy_ReadOnlyOverlay(t *testing.T) {
	store := NewStore()
	view := authView(1)

	src, err := store.Create(secretKeyTemplate("locked"), false, false, 1)
	require.NoError(t, err)

	for _, attr := range []types.AttributeValue{
		types.UintAttribute(types.AttrClass, uint32(types.ClassData)),
		types.StringAttribute(types.AttrKeyType, string(types.KeyTypeRSA)),
	} {
		_, err := store.Copy(src, types.Template{attr}, view, 1)
		assert.ErrorIs(t, err, types.ErrAttributeReadOnly, "attribute %v must be rejected", attr.Type)
	}
}

func TestStore_Copy_LatchesSurvive(t *testing.T) {
	store := NewStore()
	view := authView(1)

	tmpl := append(secretKeyTemplate("latched"),
		types.BoolAttribute(types.AttrSensitive, true),
		types.BoolAttribute(types.AttrExtractable, false))
	src, err := store.Create(tmpl, false, false, 1)
	require.NoError(t, err)

	// A copy may not clear the sensitive latch.
	_, err = store.Copy(src, types.Template{
		types.BoolAttribute(types.AttrSensitive, false),
	}, view, 1)
	assert.ErrorIs(t, err, types.ErrAttributeReadOnly)

	// Nor re-set extractable once cleared.
	_, err = store.Copy(src, types.Template{
		types.BoolAttribute(types.AttrExtractable, true),
	}, view, 1)
	assert.ErrorIs(t, err, types.ErrAttributeReadOnly)
}

func TestStore_Copy_SessionScope(t *testing.T) {
	store := NewStore()

	// A token object copied with AttrToken=false becomes session scoped
	// and dies with its owning session.
	src, err := store.Create(secretKeyTemplate("token-scoped"), true, false, 1)
	require.NoError(t, err)

	dst, err := store.Copy(src, types.Template{
		types.BoolAttribute(types.AttrToken, false),
	}, authView(1), 2)
	require.NoError(t, err)

	store.DestroySessionObjects(2)
	_, err = store.GetAttribute(dst, types.AttrLabel, authView(1))
	assert.ErrorIs(t, err, types.ErrObjectHandleInvalid)

	_, err = store.GetAttribute(src, types.AttrLabel, authView(1))
	assert.NoError(t, err)
}

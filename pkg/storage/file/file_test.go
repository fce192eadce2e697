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

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-cryptoki/pkg/storage"
)

func newTestBackend(t *testing.T) *FileBackend {
	t.Helper()
	f, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFileBackendCRUD(t *testing.T) {
	f := newTestBackend(t)

	_, err := f.Get("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.Put("tokens/1.json", []byte(`{"label":"a"}`)))
	v, err := f.Get("tokens/1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"label":"a"}`), v)

	// Overwrite replaces the previous value.
	require.NoError(t, f.Put("tokens/1.json", []byte(`{"label":"b"}`)))
	v, err = f.Get("tokens/1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"label":"b"}`), v)

	require.NoError(t, f.Put("tokens/2.json", []byte("x")))
	require.NoError(t, f.Put("other", []byte("y")))

	keys, err := f.List("tokens/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tokens/1.json", "tokens/2.json"}, keys)

	require.NoError(t, f.Delete("other"))
	assert.ErrorIs(t, f.Delete("other"), storage.ErrNotFound)
}

func TestFileBackendRejectsTraversal(t *testing.T) {
	f := newTestBackend(t)

	for _, key := range []string{"", "/abs", "..", "../escape", "a/../../escape"} {
		assert.ErrorIs(t, f.Put(key, []byte("x")), storage.ErrInvalidKey, "key %q", key)
	}
}

func TestFileBackendPermissions(t *testing.T) {
	dir := t.TempDir()
	f, err := New(dir)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Put("secret", []byte("pin material")))
	info, err := os.Stat(filepath.Join(dir, "secret"))
	require.NoError(t, err)
	assert.Equal(t, filePerm, info.Mode().Perm())
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	f, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, f.Put("tokens/1.json", []byte("state")))
	require.NoError(t, f.Close())

	assert.ErrorIs(t, f.Put("tokens/1.json", nil), storage.ErrClosed)

	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get("tokens/1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), v)
}

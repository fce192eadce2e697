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

// Package storage provides the key-value persistence layer backing token
// state. Tokens serialize their objects and credentials as small JSON
// documents; the backend stores them under string keys.
package storage

import "errors"

var (
	// ErrClosed is returned when attempting to use a closed backend.
	ErrClosed = errors.New("storage: closed")

	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidKey is returned when a key is empty or escapes the
	// backend's namespace.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Backend is the interface for storage backends. All implementations must
// be thread-safe.
type Backend interface {
	// Get retrieves the value for the given key. Returns ErrNotFound if
	// the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores the value for the given key, overwriting any existing
	// value.
	Put(key string, value []byte) error

	// Delete removes the key. Returns ErrNotFound if the key does not
	// exist.
	Delete(key string) error

	// List returns all keys with the given prefix. An empty prefix
	// returns every key.
	List(prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}

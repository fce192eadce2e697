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
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
	"sync"
)

// Cursor is one search context: a finite, non-restartable handle sequence.
// Draining past exhaustion returns empty results, never an error.
type Cursor struct {
	mu      sync.Mutex
	pending []types.ObjectHandle
}

// Next returns up to max handles, advancing the cursor.
func (c *Cursor) Next(max int) []types.ObjectHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if max <= 0 || len(c.pending) == 0 {
		return nil
	}
	if max > len(c.pending) {
		max = len(c.pending)
	}
	out := c.pending[:max]
	c.pending = c.pending[max:]
	return out
}

// Drain returns all remaining handles and exhausts the cursor.
func (c *Cursor) Drain() []types.ObjectHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.pending
	c.pending = nil
	return out
}

// FindInit snapshots the handles of every live object that matches the
// template byte-exactly and is visible to the view. An empty template
// matches everything visible. The snapshot is taken under the read lock;
// later store mutations do not perturb an open cursor.
func (s *Store) FindInit(tmpl types.Template, v View) (*Cursor, error) {
	for _, a := range tmpl {
		if !a.Type.Known() {
			return nil, types.NewError("Store.FindInit", types.ErrAttributeTypeInvalid).
				WithDetail("unknown attribute type in search template")
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor := &Cursor{}
	for _, obj := range s.arena {
		if obj == nil || !obj.visibleTo(v) {
			continue
		}
		if obj.match(tmpl) {
			cursor.pending = append(cursor.pending, obj.handle)
		}
	}
	return cursor, nil
}

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

// Package transport abstracts how slots and token presence are discovered.
// The provider core never assumes a fixed slot list; it asks the transport
// on every enumeration so removable tokens are reported correctly.
package transport

import (
	"sync"

	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// TokenTransport reports the slots a provider serves and whether each one
// currently holds a token. Implementations must be thread-safe.
type TokenTransport interface {
	// EnumerateSlots returns a descriptor for every slot, present or not.
	EnumerateSlots() []types.SlotDescriptor

	// IsTokenPresent reports whether the slot exists and holds a token.
	IsTokenPresent(id types.SlotID) bool
}

// SoftSlots is a TokenTransport over a fixed set of software slots whose
// token presence can be toggled, which stands in for removable hardware.
type SoftSlots struct {
	mu    sync.RWMutex
	slots []types.SlotDescriptor
}

// NewSoftSlots creates a transport with one present software token per
// given slot ID.
func NewSoftSlots(ids ...types.SlotID) *SoftSlots {
	s := &SoftSlots{}
	for _, id := range ids {
		s.slots = append(s.slots, types.SlotDescriptor{
			ID:           id,
			Description:  "software slot",
			TokenPresent: true,
		})
	}
	return s
}

// EnumerateSlots returns a snapshot of the slot list.
func (s *SoftSlots) EnumerateSlots() []types.SlotDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.SlotDescriptor, len(s.slots))
	copy(out, s.slots)
	return out
}

// IsTokenPresent reports whether the slot exists and its token is present.
func (s *SoftSlots) IsTokenPresent(id types.SlotID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.slots {
		if d.ID == id {
			return d.TokenPresent
		}
	}
	return false
}

// SetTokenPresent toggles a slot's token presence, simulating removal and
// insertion.
func (s *SoftSlots) SetTokenPresent(id types.SlotID, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.slots {
		if s.slots[i].ID == id {
			s.slots[i].TokenPresent = present
			return
		}
	}
}

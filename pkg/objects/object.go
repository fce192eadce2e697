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

// Package objects implements the object store: attribute-addressed storage
// for keys, certificates and data blobs, keyed by opaque non-reused handles,
// with conjunctive template search and session-scope visibility filtering.
package objects

import (
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// Object is one stored entity. The store exclusively owns all objects;
// sessions hold only handles. Objects are mutated solely through the store,
// under its lock.
type Object struct {
	handle  types.ObjectHandle
	class   types.ObjectClass
	token   bool
	private bool

	// owner is the session that created the object. For session-scoped
	// objects it also determines visibility and destruction on close. For
	// token objects restored from persistence it is zero.
	owner types.SessionHandle

	attrs map[types.AttributeType]types.AttributeValue
}

// Handle returns the object's opaque handle.
func (o *Object) Handle() types.ObjectHandle { return o.handle }

// Class returns the object class, immutable after creation.
func (o *Object) Class() types.ObjectClass { return o.class }

// TokenObject reports whether the object persists beyond its creating
// session.
func (o *Object) TokenObject() bool { return o.token }

// Private reports whether an authenticated session is required to see the
// object.
func (o *Object) Private() bool { return o.private }

// sensitive reports whether the one-way sensitive latch is set.
func (o *Object) sensitive() bool {
	a, ok := o.attrs[types.AttrSensitive]
	return ok && a.Bool()
}

// extractable reports whether the object's value may leave the store. An
// absent AttrExtractable defaults to extractable for non-key classes and
// keeps key classes readable by their creator only when sensitive is unset.
func (o *Object) extractable() bool {
	a, ok := o.attrs[types.AttrExtractable]
	if !ok {
		return true
	}
	return a.Bool()
}

// match reports whether every attribute in the template is present on the
// object with a byte-exact value.
func (o *Object) match(tmpl types.Template) bool {
	for _, want := range tmpl {
		got, ok := o.attrs[want.Type]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// visibleTo reports whether the object may be seen by the given view:
// private objects require authentication, and a session-scoped object is
// visible only to the session that created it.
func (o *Object) visibleTo(v View) bool {
	if o.private && !v.Authenticated {
		return false
	}
	if !o.token && o.owner != v.Session {
		return false
	}
	return true
}

// View is the visibility context of a store call: which session is asking
// and whether that session is authenticated. The session manager derives a
// View from the session's login state; the store itself knows nothing about
// login.
type View struct {
	Session       types.SessionHandle
	Authenticated bool
}

// KeyInfo is a copied-out summary of a key object, handed to the crypto
// engine. Material is the opaque key bytes; only the CryptoBackend
// interprets them.
type KeyInfo struct {
	Handle   types.ObjectHandle
	Class    types.ObjectClass
	KeyType  types.KeyTypeName
	Material []byte
	Private  bool

	// Sensitive and Extractable mirror the object's latch attributes; the
	// engine consults them before releasing material through wrap.
	Sensitive   bool
	Extractable bool

	// Allowed is the key's allowed-mechanism set; nil means unrestricted.
	Allowed []types.MechanismType

	Sign    bool
	Verify  bool
	Encrypt bool
	Decrypt bool
	Wrap    bool
	Unwrap  bool
	Derive  bool
}

// AllowsMechanism reports whether the mechanism is inside the key's
// allowed set (or the set is unrestricted).
func (k *KeyInfo) AllowsMechanism(m types.MechanismType) bool {
	if k.Allowed == nil {
		return true
	}
	for _, a := range k.Allowed {
		if a == m {
			return true
		}
	}
	return false
}

// Record is the persistence form of a token object, serialized by the
// storage adapter. Handles are not persisted: a restored object receives a
// fresh handle, preserving the no-reuse guarantee across lifecycles.
type Record struct {
	Class      uint32            `json:"class"`
	Private    bool              `json:"private"`
	Attributes map[uint32][]byte `json:"attributes"`
}

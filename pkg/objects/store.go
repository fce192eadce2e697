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

// attributes that may never be modified after creation.
var readOnlyAttrs = map[types.AttributeType]bool{
	types.AttrClass:            true,
	types.AttrKeyType:          true,
	types.AttrToken:            true,
	types.AttrPrivate:          true,
	types.AttrNeverExtractable: true,
}

// Store holds all objects of one token. Handles index an arena that only
// grows; destroying an object tombstones its slot rather than freeing it,
// so a stale handle resolves to ErrObjectHandleInvalid instead of aliasing
// a newer object.
//
// Thread-safe: reads proceed concurrently, writes are exclusive.
type Store struct {
	mu sync.RWMutex

	// arena[h-1] is the object with handle h, or nil once destroyed.
	arena []*Object
}

// NewStore creates an empty object store.
func NewStore() *Store {
	return &Store{}
}

// Create validates the template against the declared class and stores a new
// object. The token and private flags are authoritative; matching AttrToken
// and AttrPrivate attributes are recorded so templates can filter on them.
func (s *Store) Create(tmpl types.Template, tokenObject, private bool, owner types.SessionHandle) (types.ObjectHandle, error) {
	attrs, class, err := validateTemplate(tmpl)
	if err != nil {
		return 0, err
	}

	attrs[types.AttrToken] = types.BoolAttribute(types.AttrToken, tokenObject)
	attrs[types.AttrPrivate] = types.BoolAttribute(types.AttrPrivate, private)
	if sens, ok := attrs[types.AttrSensitive]; ok && sens.Bool() {
		// A key created sensitive has never been extractable.
		if _, set := attrs[types.AttrNeverExtractable]; !set {
			attrs[types.AttrNeverExtractable] = types.BoolAttribute(types.AttrNeverExtractable, true)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj := &Object{
		class:   class,
		token:   tokenObject,
		private: private,
		owner:   owner,
		attrs:   attrs,
	}
	s.arena = append(s.arena, obj)
	obj.handle = types.ObjectHandle(len(s.arena))
	return obj.handle, nil
}

// validateTemplate checks attribute well-formedness and class requirements,
// returning the attribute map and the declared class.
func validateTemplate(tmpl types.Template) (map[types.AttributeType]types.AttributeValue, types.ObjectClass, error) {
	attrs := make(map[types.AttributeType]types.AttributeValue, len(tmpl))
	for _, a := range tmpl {
		if !a.Type.Known() {
			return nil, 0, types.NewError("Store.Create", types.ErrAttributeTypeInvalid).
				WithDetail("unknown attribute type")
		}
		if a.Type.Boolean() && len(a.Value) != 1 {
			return nil, 0, types.NewError("Store.Create", types.ErrAttributeTypeInvalid).
				WithDetail("boolean attribute must be a single byte")
		}
		if _, dup := attrs[a.Type]; dup {
			return nil, 0, types.NewError("Store.Create", types.ErrAttributeTypeInvalid).
				WithDetail("duplicate attribute type in template")
		}
		attrs[a.Type] = a
	}

	classAttr, ok := attrs[types.AttrClass]
	if !ok {
		return nil, 0, types.NewError("Store.Create", types.ErrTemplateIncomplete).
			WithDetail("missing object class")
	}
	class := types.ObjectClass(classAttr.Uint())
	if !class.Valid() {
		return nil, 0, types.NewError("Store.Create", types.ErrAttributeTypeInvalid).
			WithDetail("unknown object class")
	}

	switch class {
	case types.ClassData, types.ClassCertificate:
		if _, ok := attrs[types.AttrValue]; !ok {
			return nil, 0, types.NewError("Store.Create", types.ErrTemplateIncomplete).
				WithDetail("missing value")
		}
	case types.ClassPublicKey, types.ClassPrivateKey, types.ClassSecretKey:
		if _, ok := attrs[types.AttrKeyType]; !ok {
			return nil, 0, types.NewError("Store.Create", types.ErrTemplateIncomplete).
				WithDetail("missing key type")
		}
		if err := validateKeyCapabilities(class, attrs); err != nil {
			return nil, 0, err
		}
	}
	return attrs, class, nil
}

// validateKeyCapabilities rejects capability flags inconsistent with the
// key family: signature-only families cannot encrypt or decrypt, and
// KEM/cipher families cannot sign.
func validateKeyCapabilities(class types.ObjectClass, attrs map[types.AttributeType]types.AttributeValue) error {
	keyType := types.KeyTypeName(attrs[types.AttrKeyType].Value)
	flag := func(t types.AttributeType) bool {
		a, ok := attrs[t]
		return ok && a.Bool()
	}

	switch keyType {
	case types.KeyTypeECDSA, types.KeyTypeEd25519, types.KeyTypeMLDSA, types.KeyTypeHMAC:
		if flag(types.AttrEncrypt) || flag(types.AttrDecrypt) {
			return types.NewError("Store.Create", types.ErrAttributeTypeInvalid).
				WithDetail("signature key type cannot encrypt or decrypt")
		}
	case types.KeyTypeAES, types.KeyTypeMLKEM:
		if flag(types.AttrSign) || flag(types.AttrVerify) {
			return types.NewError("Store.Create", types.ErrAttributeTypeInvalid).
				WithDetail("cipher key type cannot sign or verify")
		}
	}

	if class == types.ClassPublicKey && (flag(types.AttrSign) || flag(types.AttrDecrypt)) {
		return types.NewError("Store.Create", types.ErrAttributeTypeInvalid).
			WithDetail("public key cannot sign or decrypt")
	}
	return nil
}

// get resolves a handle to a live object visible to the view. Caller holds
// at least a read lock.
func (s *Store) get(h types.ObjectHandle, v View) (*Object, error) {
	idx := int(h) - 1
	if idx < 0 || idx >= len(s.arena) || s.arena[idx] == nil {
		return nil, types.NewError("Store", types.ErrObjectHandleInvalid).WithObject(h)
	}
	obj := s.arena[idx]
	if !obj.visibleTo(v) {
		// Invisible is indistinguishable from nonexistent.
		return nil, types.NewError("Store", types.ErrObjectHandleInvalid).WithObject(h)
	}
	return obj, nil
}

// GetAttribute returns a copy of one attribute value. Sensitive or
// non-extractable key material may only be read by the session that created
// the object.
func (s *Store) GetAttribute(h types.ObjectHandle, t types.AttributeType, v View) (types.AttributeValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.get(h, v)
	if err != nil {
		return types.AttributeValue{}, err
	}
	attr, ok := obj.attrs[t]
	if !ok {
		return types.AttributeValue{}, types.NewError("Store.GetAttribute", types.ErrAttributeTypeInvalid).
			WithObject(h).WithDetail("attribute not present")
	}
	if t == types.AttrValue && obj.class.IsKey() {
		if (obj.sensitive() || !obj.extractable()) && v.Session != obj.owner {
			return types.AttributeValue{}, types.NewError("Store.GetAttribute", types.ErrAttributeSensitive).
				WithObject(h)
		}
	}
	return types.NewAttribute(attr.Type, attr.Value), nil
}

// SetAttribute modifies one attribute. Class, key type, token/private scope
// and the sensitive latch are read-only: sensitive can be set true but
// never cleared, and extractable can be cleared but never re-set.
func (s *Store) SetAttribute(h types.ObjectHandle, attr types.AttributeValue, v View) error {
	if !attr.Type.Known() {
		return types.NewError("Store.SetAttribute", types.ErrAttributeTypeInvalid).WithObject(h)
	}
	if attr.Type.Boolean() && len(attr.Value) != 1 {
		return types.NewError("Store.SetAttribute", types.ErrAttributeTypeInvalid).
			WithObject(h).WithDetail("boolean attribute must be a single byte")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.get(h, v)
	if err != nil {
		return err
	}
	if readOnlyAttrs[attr.Type] {
		return types.NewError("Store.SetAttribute", types.ErrAttributeReadOnly).
			WithObject(h).WithDetail(attr.Type.String())
	}
	switch attr.Type {
	case types.AttrSensitive:
		if obj.sensitive() && !attr.Bool() {
			return types.NewError("Store.SetAttribute", types.ErrAttributeReadOnly).
				WithObject(h).WithDetail("sensitive latch cannot be cleared")
		}
	case types.AttrExtractable:
		if !obj.extractable() && attr.Bool() {
			return types.NewError("Store.SetAttribute", types.ErrAttributeReadOnly).
				WithObject(h).WithDetail("extractable latch cannot be re-set")
		}
	}
	obj.attrs[attr.Type] = types.NewAttribute(attr.Type, attr.Value)
	return nil
}

// Destroy tombstones the object. A second call on the same handle fails
// with ErrObjectHandleInvalid: handles are never reused or resurrected.
func (s *Store) Destroy(h types.ObjectHandle, v View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(h, v); err != nil {
		return err
	}
	s.arena[int(h)-1] = nil
	return nil
}

// Copy duplicates an object, applying the overlay template on top of the
// source's attributes. Token and private scope may change on copy; class,
// key type and the one-way latches may not. The copying session becomes
// the owner of the new object.
func (s *Store) Copy(h types.ObjectHandle, overlay types.Template, v View, owner types.SessionHandle) (types.ObjectHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.get(h, v)
	if err != nil {
		return 0, err
	}

	attrs := make(map[types.AttributeType]types.AttributeValue, len(src.attrs))
	for t, a := range src.attrs {
		attrs[t] = types.NewAttribute(a.Type, a.Value)
	}
	for _, a := range overlay {
		if !a.Type.Known() {
			return 0, types.NewError("Store.Copy", types.ErrAttributeTypeInvalid).
				WithObject(h).WithDetail("unknown attribute type")
		}
		switch a.Type {
		case types.AttrClass, types.AttrKeyType, types.AttrNeverExtractable:
			return 0, types.NewError("Store.Copy", types.ErrAttributeReadOnly).
				WithObject(h).WithDetail(a.Type.String())
		case types.AttrSensitive:
			if src.sensitive() && !a.Bool() {
				return 0, types.NewError("Store.Copy", types.ErrAttributeReadOnly).
					WithObject(h).WithDetail("sensitive latch cannot be cleared")
			}
		case types.AttrExtractable:
			if !src.extractable() && a.Bool() {
				return 0, types.NewError("Store.Copy", types.ErrAttributeReadOnly).
					WithObject(h).WithDetail("extractable latch cannot be re-set")
			}
		}
		attrs[a.Type] = types.NewAttribute(a.Type, a.Value)
	}

	tokenObject := attrs[types.AttrToken].Bool()
	private := attrs[types.AttrPrivate].Bool()
	obj := &Object{
		class:   src.class,
		token:   tokenObject,
		private: private,
		owner:   owner,
		attrs:   attrs,
	}
	s.arena = append(s.arena, obj)
	obj.handle = types.ObjectHandle(len(s.arena))
	return obj.handle, nil
}

// DestroySessionObjects removes every session-scoped object created by the
// given session. Used on session close; never fails.
func (s *Store) DestroySessionObjects(owner types.SessionHandle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i, obj := range s.arena {
		if obj != nil && !obj.token && obj.owner == owner {
			s.arena[i] = nil
			n++
		}
	}
	return n
}

// Key copies out the information the crypto engine needs to use a key
// object. Visibility follows the view; sensitivity does not apply here
// because the material goes to the backend, never to the caller.
func (s *Store) Key(h types.ObjectHandle, v View) (*KeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.get(h, v)
	if err != nil {
		return nil, types.NewError("Store.Key", types.ErrKeyHandleInvalid).WithObject(h)
	}
	if !obj.class.IsKey() {
		return nil, types.NewError("Store.Key", types.ErrKeyHandleInvalid).
			WithObject(h).WithDetail("object is not a key")
	}

	info := &KeyInfo{
		Handle:      h,
		Class:       obj.class,
		KeyType:     types.KeyTypeName(obj.attrs[types.AttrKeyType].Value),
		Private:     obj.private,
		Sensitive:   obj.sensitive(),
		Extractable: obj.extractable(),
	}
	if val, ok := obj.attrs[types.AttrValue]; ok {
		info.Material = make([]byte, len(val.Value))
		copy(info.Material, val.Value)
	}
	if allowed, ok := obj.attrs[types.AttrAllowedMechanisms]; ok {
		info.Allowed = allowed.MechanismList()
	}
	flag := func(t types.AttributeType) bool {
		a, ok := obj.attrs[t]
		return ok && a.Bool()
	}
	info.Sign = flag(types.AttrSign)
	info.Verify = flag(types.AttrVerify)
	info.Encrypt = flag(types.AttrEncrypt)
	info.Decrypt = flag(types.AttrDecrypt)
	info.Wrap = flag(types.AttrWrap)
	info.Unwrap = flag(types.AttrUnwrap)
	info.Derive = flag(types.AttrDerive)
	return info, nil
}

// Count returns the number of live objects.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, obj := range s.arena {
		if obj != nil {
			n++
		}
	}
	return n
}

// TokenRecords snapshots all token objects for persistence.
func (s *Store) TokenRecords() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for _, obj := range s.arena {
		if obj == nil || !obj.token {
			continue
		}
		rec := Record{
			Class:      uint32(obj.class),
			Private:    obj.private,
			Attributes: make(map[uint32][]byte, len(obj.attrs)),
		}
		for t, a := range obj.attrs {
			val := make([]byte, len(a.Value))
			copy(val, a.Value)
			rec.Attributes[uint32(t)] = val
		}
		records = append(records, rec)
	}
	return records
}

// Restore recreates a persisted token object under a fresh handle.
func (s *Store) Restore(rec Record) (types.ObjectHandle, error) {
	tmpl := make(types.Template, 0, len(rec.Attributes))
	for t, val := range rec.Attributes {
		tmpl = append(tmpl, types.NewAttribute(types.AttributeType(t), val))
	}
	return s.Create(tmpl, true, rec.Private, 0)
}

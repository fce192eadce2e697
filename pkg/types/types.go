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

// Package types defines the core data model shared by every go-cryptoki
// package: handles, object classes, attributes, templates, session states,
// roles, mechanisms and the structured error taxonomy. Keeping these in a
// single leaf package avoids import cycles between the object store, the
// session manager and the crypto engine.
package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// ObjectHandle is an opaque reference to an object held by the object store.
// Handles are allocated from a monotonically increasing counter and are never
// reused within a Context lifetime; a destroyed object's handle reliably
// resolves to ErrObjectHandleInvalid.
type ObjectHandle uint64

// SessionHandle is an opaque reference to an open session. Like object
// handles, session handles are never reused within a Context lifetime.
type SessionHandle uint64

// SlotID identifies a slot (a socket that may hold a token).
type SlotID uint

// ObjectClass is the closed set of object classes. The class determines
// which attribute subset is semantically valid and is immutable after
// creation.
type ObjectClass uint32

const (
	ClassData ObjectClass = iota
	ClassCertificate
	ClassPublicKey
	ClassPrivateKey
	ClassSecretKey
)

// String returns the class name used in logs and error payloads.
func (c ObjectClass) String() string {
	switch c {
	case ClassData:
		return "Data"
	case ClassCertificate:
		return "Certificate"
	case ClassPublicKey:
		return "PublicKey"
	case ClassPrivateKey:
		return "PrivateKey"
	case ClassSecretKey:
		return "SecretKey"
	default:
		return "Unknown"
	}
}

// Valid reports whether c is a member of the closed class set.
func (c ObjectClass) Valid() bool {
	return c <= ClassSecretKey
}

// IsKey reports whether objects of this class carry key material.
func (c ObjectClass) IsKey() bool {
	return c == ClassPublicKey || c == ClassPrivateKey || c == ClassSecretKey
}

// AttributeType identifies one attribute of an object. The enumeration is
// open: vendors may define additional types above AttrVendorDefined. The
// numeric values follow the Cryptoki CKA_* assignments so that templates
// translate directly to and from PKCS#11 tooling.
type AttributeType uint32

const (
	AttrClass             AttributeType = 0x0000
	AttrToken             AttributeType = 0x0001
	AttrPrivate           AttributeType = 0x0002
	AttrLabel             AttributeType = 0x0003
	AttrValue             AttributeType = 0x0011
	AttrCertificateType   AttributeType = 0x0080
	AttrKeyType           AttributeType = 0x0100
	AttrSubject           AttributeType = 0x0101
	AttrID                AttributeType = 0x0102
	AttrSensitive         AttributeType = 0x0103
	AttrEncrypt           AttributeType = 0x0104
	AttrDecrypt           AttributeType = 0x0105
	AttrWrap              AttributeType = 0x0106
	AttrUnwrap            AttributeType = 0x0107
	AttrSign              AttributeType = 0x0108
	AttrVerify            AttributeType = 0x010A
	AttrDerive            AttributeType = 0x010C
	AttrModulusBits       AttributeType = 0x0121
	AttrValueLen          AttributeType = 0x0161
	AttrExtractable       AttributeType = 0x0162
	AttrNeverExtractable  AttributeType = 0x0164
	AttrAllowedMechanisms AttributeType = 0x0600
	AttrVendorDefined     AttributeType = 0x80000000
)

// wellKnown is the set of attribute types the object store accepts in
// templates. Anything outside this set and below AttrVendorDefined is an
// AttributeTypeInvalid error.
var wellKnown = map[AttributeType]bool{
	AttrClass: true, AttrToken: true, AttrPrivate: true, AttrLabel: true,
	AttrValue: true, AttrCertificateType: true, AttrKeyType: true,
	AttrSubject: true, AttrID: true, AttrSensitive: true,
	AttrEncrypt: true, AttrDecrypt: true, AttrWrap: true, AttrUnwrap: true,
	AttrSign: true, AttrVerify: true, AttrDerive: true,
	AttrModulusBits: true, AttrValueLen: true, AttrExtractable: true,
	AttrNeverExtractable: true, AttrAllowedMechanisms: true,
}

// Known reports whether t is a well-known or vendor-defined attribute type.
func (t AttributeType) Known() bool {
	return wellKnown[t] || t >= AttrVendorDefined
}

var attrNames = map[AttributeType]string{
	AttrClass: "CLASS", AttrToken: "TOKEN", AttrPrivate: "PRIVATE",
	AttrLabel: "LABEL", AttrValue: "VALUE",
	AttrCertificateType: "CERTIFICATE_TYPE", AttrKeyType: "KEY_TYPE",
	AttrSubject: "SUBJECT", AttrID: "ID", AttrSensitive: "SENSITIVE",
	AttrEncrypt: "ENCRYPT", AttrDecrypt: "DECRYPT", AttrWrap: "WRAP",
	AttrUnwrap: "UNWRAP", AttrSign: "SIGN", AttrVerify: "VERIFY",
	AttrDerive: "DERIVE", AttrModulusBits: "MODULUS_BITS",
	AttrValueLen: "VALUE_LEN", AttrExtractable: "EXTRACTABLE",
	AttrNeverExtractable: "NEVER_EXTRACTABLE",
	AttrAllowedMechanisms: "ALLOWED_MECHANISMS",
}

func (t AttributeType) String() string {
	if name, ok := attrNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%08X", uint32(t))
}

// boolAttrs is the set of attribute types whose value must be a single
// 0x00/0x01 byte.
var boolAttrs = map[AttributeType]bool{
	AttrToken: true, AttrPrivate: true, AttrSensitive: true,
	AttrEncrypt: true, AttrDecrypt: true, AttrWrap: true, AttrUnwrap: true,
	AttrSign: true, AttrVerify: true, AttrDerive: true,
	AttrExtractable: true, AttrNeverExtractable: true,
}

// Boolean reports whether t carries a single-byte boolean value.
func (t AttributeType) Boolean() bool {
	return boolAttrs[t]
}

// AttributeValue is an immutable typed byte value. Equality is byte-exact.
type AttributeValue struct {
	Type  AttributeType
	Value []byte
}

// NewAttribute constructs an attribute from raw bytes. The value is copied
// so the attribute cannot be mutated through the caller's slice.
func NewAttribute(t AttributeType, value []byte) AttributeValue {
	v := make([]byte, len(value))
	copy(v, value)
	return AttributeValue{Type: t, Value: v}
}

// BoolAttribute constructs a single-byte boolean attribute.
func BoolAttribute(t AttributeType, b bool) AttributeValue {
	if b {
		return AttributeValue{Type: t, Value: []byte{1}}
	}
	return AttributeValue{Type: t, Value: []byte{0}}
}

// UintAttribute constructs a little-endian 32-bit unsigned attribute, the
// encoding used for AttrClass, AttrKeyType, AttrModulusBits and AttrValueLen.
func UintAttribute(t AttributeType, v uint32) AttributeValue {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return AttributeValue{Type: t, Value: b}
}

// StringAttribute constructs a UTF-8 string attribute (labels, IDs).
func StringAttribute(t AttributeType, s string) AttributeValue {
	return AttributeValue{Type: t, Value: []byte(s)}
}

// MechanismListAttribute encodes an AttrAllowedMechanisms value as a
// comma-joined mechanism name list.
func MechanismListAttribute(mechs ...MechanismType) AttributeValue {
	names := make([]string, len(mechs))
	for i, m := range mechs {
		names[i] = string(m)
	}
	return AttributeValue{Type: AttrAllowedMechanisms, Value: []byte(strings.Join(names, ","))}
}

// Bool decodes a boolean attribute value. Empty or malformed values decode
// as false.
func (a AttributeValue) Bool() bool {
	return len(a.Value) == 1 && a.Value[0] != 0
}

// Uint decodes a little-endian 32-bit unsigned attribute value.
func (a AttributeValue) Uint() uint32 {
	if len(a.Value) != 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(a.Value)
}

// Equal reports byte-exact equality of type and value.
func (a AttributeValue) Equal(other AttributeValue) bool {
	return a.Type == other.Type && bytes.Equal(a.Value, other.Value)
}

// MechanismList decodes an AttrAllowedMechanisms value.
func (a AttributeValue) MechanismList() []MechanismType {
	if len(a.Value) == 0 {
		return nil
	}
	parts := strings.Split(string(a.Value), ",")
	mechs := make([]MechanismType, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			mechs = append(mechs, MechanismType(p))
		}
	}
	return mechs
}

// Template is an ordered attribute sequence used either to construct a new
// object or as a conjunctive exact-match filter for search.
type Template []AttributeValue

// Get returns the first attribute of the given type.
func (t Template) Get(at AttributeType) (AttributeValue, bool) {
	for _, a := range t {
		if a.Type == at {
			return a, true
		}
	}
	return AttributeValue{}, false
}

// Bool returns the decoded boolean attribute of the given type, or def when
// the template does not carry it.
func (t Template) Bool(at AttributeType, def bool) bool {
	if a, ok := t.Get(at); ok {
		return a.Bool()
	}
	return def
}

// SessionState is the login state of one session, per the Cryptoki session
// state model.
type SessionState int

const (
	StateROPublic SessionState = iota
	StateRWPublic
	StateROUser
	StateRWUser
	StateRWSecurityOfficer
)

func (s SessionState) String() string {
	switch s {
	case StateROPublic:
		return "RO_Public"
	case StateRWPublic:
		return "RW_Public"
	case StateROUser:
		return "RO_User"
	case StateRWUser:
		return "RW_User"
	case StateRWSecurityOfficer:
		return "RW_SecurityOfficer"
	default:
		return "Unknown"
	}
}

// ReadWrite reports whether the state belongs to a read-write session.
func (s SessionState) ReadWrite() bool {
	return s == StateRWPublic || s == StateRWUser || s == StateRWSecurityOfficer
}

// Authenticated reports whether the state carries a successful login.
func (s SessionState) Authenticated() bool {
	return s == StateROUser || s == StateRWUser || s == StateRWSecurityOfficer
}

// Role identifies the credential used to authenticate a session.
type Role int

const (
	// RoleUser is the ordinary user role, permitted to use private keys.
	RoleUser Role = iota
	// RoleSecurityOfficer is the administrative role, permitted to
	// initialize the user credential but not to use private keys.
	RoleSecurityOfficer
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleSecurityOfficer:
		return "SecurityOfficer"
	default:
		return "Unknown"
	}
}

// OperationCategory is one streaming operation slot of a session. At most
// one operation per category may be active on a session at any time.
type OperationCategory int

const (
	OpSign OperationCategory = iota
	OpVerify
	OpEncrypt
	OpDecrypt
	OpDigest
	OpFind

	// NumOperationCategories sizes per-session operation tables.
	NumOperationCategories
)

func (c OperationCategory) String() string {
	switch c {
	case OpSign:
		return "sign"
	case OpVerify:
		return "verify"
	case OpEncrypt:
		return "encrypt"
	case OpDecrypt:
		return "decrypt"
	case OpDigest:
		return "digest"
	case OpFind:
		return "find"
	default:
		return "unknown"
	}
}

// SlotDescriptor describes one slot as reported by a TokenTransport.
type SlotDescriptor struct {
	ID           SlotID
	Description  string
	TokenPresent bool
}

// TokenInfo describes the token in a slot.
type TokenInfo struct {
	Label           string
	SerialNumber    string
	Model           string
	UserPINSet      bool
	SOPINSet        bool
	OpenSessions    int
	MaxPINAttempts  int
	UserPINLocked   bool
	SOPINLocked     bool
	ObjectCount     int
	MechanismsCount int
}

// SessionInfo describes one open session for introspection.
type SessionInfo struct {
	Slot      SlotID
	State     SessionState
	ReadWrite bool
}

// Info describes the provider library itself.
type Info struct {
	Manufacturer string
	Description  string
	Version      string
}

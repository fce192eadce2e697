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

package types

import (
	"errors"
	"fmt"
)

// Error kind sentinels. Every error returned by the provider core wraps
// exactly one of these, so callers and tests dispatch with errors.Is
// instead of string parsing.

// State errors.
var (
	// ErrOperationNotPermitted indicates the session's login state does not
	// permit the requested operation.
	ErrOperationNotPermitted = errors.New("cryptoki: operation not permitted in current session state")

	// ErrOperationActive indicates a streaming operation of the same
	// category is already active on the session.
	ErrOperationActive = errors.New("cryptoki: operation already active")

	// ErrOperationNotInitialized indicates update/final was called with no
	// active operation of that category.
	ErrOperationNotInitialized = errors.New("cryptoki: operation not initialized")

	// ErrSessionHandleInvalid indicates the session handle does not refer
	// to an open session.
	ErrSessionHandleInvalid = errors.New("cryptoki: session handle invalid")

	// ErrSessionReadOnly indicates a write operation was attempted on a
	// read-only session.
	ErrSessionReadOnly = errors.New("cryptoki: session is read only")

	// ErrSessionExists indicates a conflicting session prevents the
	// requested login (a Security Officer login while other sessions are
	// open in a conflicting state).
	ErrSessionExists = errors.New("cryptoki: conflicting session exists")
)

// Credential errors.
var (
	// ErrPinIncorrect indicates the supplied PIN did not match the stored
	// credential. The session state is unchanged.
	ErrPinIncorrect = errors.New("cryptoki: PIN incorrect")

	// ErrPinLocked indicates the consecutive-failure threshold was reached;
	// further login attempts fail until administrative reset.
	ErrPinLocked = errors.New("cryptoki: PIN locked")

	// ErrPinNotInitialized indicates no credential has been set for the
	// requested role.
	ErrPinNotInitialized = errors.New("cryptoki: PIN not initialized")

	// ErrUserNotLoggedIn indicates an operation requiring authentication
	// was attempted on an unauthenticated session.
	ErrUserNotLoggedIn = errors.New("cryptoki: user not logged in")
)

// Object errors.
var (
	// ErrObjectHandleInvalid indicates the object handle is unknown,
	// destroyed, or not visible to the requesting session.
	ErrObjectHandleInvalid = errors.New("cryptoki: object handle invalid")

	// ErrTemplateIncomplete indicates the creation template is missing
	// attributes required by the declared object class.
	ErrTemplateIncomplete = errors.New("cryptoki: template incomplete")

	// ErrAttributeTypeInvalid indicates an unknown attribute type or a
	// value whose shape does not match the attribute type.
	ErrAttributeTypeInvalid = errors.New("cryptoki: attribute type invalid")

	// ErrAttributeReadOnly indicates an attempt to modify an attribute that
	// is read-only after creation, or to clear a one-way latch.
	ErrAttributeReadOnly = errors.New("cryptoki: attribute is read only")

	// ErrAttributeSensitive indicates the attribute is sensitive or
	// non-extractable and may not be read by the caller.
	ErrAttributeSensitive = errors.New("cryptoki: attribute is sensitive")
)

// Mechanism errors.
var (
	// ErrMechanismInvalid indicates the mechanism is unsupported by every
	// registered backend, or is outside the key's allowed-mechanism set.
	ErrMechanismInvalid = errors.New("cryptoki: mechanism invalid")

	// ErrKeyHandleInvalid indicates the key handle does not refer to a key
	// object usable by the requesting session.
	ErrKeyHandleInvalid = errors.New("cryptoki: key handle invalid")

	// ErrKeyTypeInconsistent indicates the key object's class or key type
	// is incompatible with the requested mechanism.
	ErrKeyTypeInconsistent = errors.New("cryptoki: key type inconsistent with mechanism")

	// ErrKeySizeInvalid indicates a key generation template requested an
	// unsupported key size.
	ErrKeySizeInvalid = errors.New("cryptoki: key size invalid")

	// ErrSignatureInvalid indicates signature verification failed.
	ErrSignatureInvalid = errors.New("cryptoki: signature invalid")
)

// Backend and transport errors.
var (
	// ErrDeviceError wraps an opaque backend failure. Safe to retry at the
	// caller's discretion; the core never retries.
	ErrDeviceError = errors.New("cryptoki: device error")

	// ErrTokenNotPresent indicates the slot exists but holds no token.
	ErrTokenNotPresent = errors.New("cryptoki: token not present")

	// ErrSlotIDInvalid indicates the slot ID is unknown.
	ErrSlotIDInvalid = errors.New("cryptoki: slot ID invalid")

	// ErrAlreadyInitialized indicates Initialize was called twice without
	// an intervening Finalize.
	ErrAlreadyInitialized = errors.New("cryptoki: already initialized")

	// ErrNotInitialized indicates the Context has not been initialized.
	ErrNotInitialized = errors.New("cryptoki: not initialized")
)

// Error is the structured error returned across the public API. It wraps a
// sentinel kind and carries enough context (offending handle, current and
// required session state) for callers and tests to act on without parsing
// the message.
type Error struct {
	// Kind is one of the sentinel errors above.
	Kind error

	// Op names the failing operation, e.g. "Session.Login".
	Op string

	// Session is the session handle involved, if any.
	Session SessionHandle

	// Object is the object handle involved, if any.
	Object ObjectHandle

	// State is the session state at the time of the failure, when the
	// failure is state-related.
	State SessionState

	// Required describes the state or permission that would have allowed
	// the operation, when the failure is state-related.
	Required string

	// Detail is optional free-form context.
	Detail string

	// Err is an underlying cause (a backend error wrapped by
	// ErrDeviceError, for example).
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Required != "" {
		msg += fmt.Sprintf(" (state %s, requires %s)", e.State, e.Required)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel kind (and transitively any wrapped cause) to
// errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewError constructs a structured error of the given kind.
func NewError(op string, kind error) *Error {
	return &Error{Kind: kind, Op: op}
}

// WithSession attaches the session handle.
func (e *Error) WithSession(h SessionHandle) *Error {
	e.Session = h
	return e
}

// WithObject attaches the object handle.
func (e *Error) WithObject(h ObjectHandle) *Error {
	e.Object = h
	return e
}

// WithState attaches the current and required state context.
func (e *Error) WithState(state SessionState, required string) *Error {
	e.State = state
	e.Required = required
	return e
}

// WithDetail attaches free-form detail.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

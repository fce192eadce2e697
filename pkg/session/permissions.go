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

package session

import (
	"strings"

	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// Permission is one row of the session permission table. Every object-store
// and crypto-engine call is gated through exactly one permission before it
// is delegated.
type Permission int

const (
	// PermReadPublicObject covers reading and finding public objects.
	PermReadPublicObject Permission = iota

	// PermReadPrivateObject covers reading and finding private objects.
	PermReadPrivateObject

	// PermCreateSessionObject covers creating session-scoped objects.
	PermCreateSessionObject

	// PermCreatePublicTokenObject covers creating public token objects.
	PermCreatePublicTokenObject

	// PermCreatePrivateTokenObject covers creating private token objects.
	PermCreatePrivateTokenObject

	// PermUsePrivateKey covers sign and decrypt with private and secret
	// key objects.
	PermUsePrivateKey

	// PermInitUserCredential covers initializing or resetting the user
	// PIN, a Security Officer duty.
	PermInitUserCredential
)

func (p Permission) String() string {
	switch p {
	case PermReadPublicObject:
		return "read public object"
	case PermReadPrivateObject:
		return "read private object"
	case PermCreateSessionObject:
		return "create session object"
	case PermCreatePublicTokenObject:
		return "create public token object"
	case PermCreatePrivateTokenObject:
		return "create private token object"
	case PermUsePrivateKey:
		return "use private key"
	case PermInitUserCredential:
		return "initialize user credential"
	default:
		return "unknown"
	}
}

// grants is the authoritative permission table. The Security Officer is an
// administrative role: it initializes credentials but performs no ordinary
// object reads or private-key operations.
var grants = map[types.SessionState]map[Permission]bool{
	types.StateROPublic: {
		PermReadPublicObject:    true,
		PermCreateSessionObject: true,
	},
	types.StateRWPublic: {
		PermReadPublicObject:        true,
		PermCreateSessionObject:     true,
		PermCreatePublicTokenObject: true,
	},
	types.StateROUser: {
		PermReadPublicObject:    true,
		PermReadPrivateObject:   true,
		PermCreateSessionObject: true,
		PermUsePrivateKey:       true,
	},
	types.StateRWUser: {
		PermReadPublicObject:         true,
		PermReadPrivateObject:        true,
		PermCreateSessionObject:      true,
		PermCreatePublicTokenObject:  true,
		PermCreatePrivateTokenObject: true,
		PermUsePrivateKey:            true,
	},
	types.StateRWSecurityOfficer: {
		PermCreateSessionObject: true,
		PermInitUserCredential:  true,
	},
}

// allowedStates lists the states granting p, for error payloads.
func allowedStates(p Permission) string {
	order := []types.SessionState{
		types.StateROPublic, types.StateRWPublic,
		types.StateROUser, types.StateRWUser,
		types.StateRWSecurityOfficer,
	}
	var names []string
	for _, st := range order {
		if grants[st][p] {
			names = append(names, st.String())
		}
	}
	return strings.Join(names, "|")
}

// Permits reports whether the state grants the permission.
func Permits(state types.SessionState, p Permission) bool {
	return grants[state][p]
}

// CreatePermission selects the object-creation permission for the
// requested token and private flags.
func CreatePermission(tokenObject, private bool) Permission {
	switch {
	case !tokenObject:
		return PermCreateSessionObject
	case private:
		return PermCreatePrivateTokenObject
	default:
		return PermCreatePublicTokenObject
	}
}

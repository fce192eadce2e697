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

package engine

import (
	"github.com/jeremyhahn/go-cryptoki/pkg/session"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

// generatedKeyType maps each generation mechanism to the key family of the
// objects it produces.
var generatedKeyType = map[types.MechanismType]types.KeyTypeName{
	types.MechAESKeyGen:      types.KeyTypeAES,
	types.MechHMACKeyGen:     types.KeyTypeHMAC,
	types.MechECDSAKeyPair:   types.KeyTypeECDSA,
	types.MechEd25519KeyPair: types.KeyTypeEd25519,
	types.MechRSAKeyPair:     types.KeyTypeRSA,
	types.MechMLDSAKeyPair:   types.KeyTypeMLDSA,
	types.MechMLKEMKeyPair:   types.KeyTypeMLKEM,
}

// GenerateKey generates a symmetric key and stores it as a secret key
// object. The template supplies capability flags and sizing; class, key
// type and value are filled in by the engine.
func (e *Engine) GenerateKey(s *session.Session, m types.Mechanism, tmpl types.Template) (types.ObjectHandle, error) {
	const op = "engine: generate key"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return 0, err
	}
	kt, ok := generatedKeyType[m.Type]
	if !ok {
		return 0, types.NewError(op, types.ErrMechanismInvalid).
			WithSession(s.Handle()).WithDetail("not a key generation mechanism")
	}

	tokenObject := tmpl.Bool(types.AttrToken, false)
	private := tmpl.Bool(types.AttrPrivate, false)
	if err := s.Ensure(op, session.CreatePermission(tokenObject, private)); err != nil {
		return 0, err
	}

	material, err := b.GenerateKey(m, tmpl)
	if err != nil {
		return 0, mapBackendErr(op, err)
	}
	return e.store.Create(
		keyTemplate(tmpl, types.ClassSecretKey, kt, material),
		tokenObject, private, s.Handle())
}

// GenerateKeyPair generates an asymmetric key pair atomically: either both
// objects exist afterwards or neither does.
func (e *Engine) GenerateKeyPair(s *session.Session, m types.Mechanism, pubTmpl, privTmpl types.Template) (pub, priv types.ObjectHandle, err error) {
	const op = "engine: generate key pair"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return 0, 0, err
	}
	kt, ok := generatedKeyType[m.Type]
	if !ok {
		return 0, 0, types.NewError(op, types.ErrMechanismInvalid).
			WithSession(s.Handle()).WithDetail("not a key generation mechanism")
	}

	pubToken := pubTmpl.Bool(types.AttrToken, false)
	pubPrivate := pubTmpl.Bool(types.AttrPrivate, false)
	privToken := privTmpl.Bool(types.AttrToken, false)
	privPrivate := privTmpl.Bool(types.AttrPrivate, true)
	if err := s.Ensure(op, session.CreatePermission(pubToken, pubPrivate)); err != nil {
		return 0, 0, err
	}
	if err := s.Ensure(op, session.CreatePermission(privToken, privPrivate)); err != nil {
		return 0, 0, err
	}

	pubMaterial, privMaterial, err := b.GenerateKeyPair(m, pubTmpl)
	if err != nil {
		return 0, 0, mapBackendErr(op, err)
	}

	pub, err = e.store.Create(
		keyTemplate(pubTmpl, types.ClassPublicKey, kt, pubMaterial),
		pubToken, pubPrivate, s.Handle())
	if err != nil {
		return 0, 0, err
	}
	priv, err = e.store.Create(
		keyTemplate(privTmpl, types.ClassPrivateKey, kt, privMaterial),
		privToken, privPrivate, s.Handle())
	if err != nil {
		e.store.Destroy(pub, s.View())
		return 0, 0, err
	}
	return pub, priv, nil
}

// WrapKey encrypts the target key's material under a wrapping key. The
// target must be extractable.
func (e *Engine) WrapKey(s *session.Session, m types.Mechanism, wrappingKey, key types.ObjectHandle) ([]byte, error) {
	const op = "engine: wrap key"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return nil, err
	}
	wk, err := e.resolveKey(op, s, m, wrappingKey, usageWrap)
	if err != nil {
		return nil, err
	}

	target, err := e.store.Key(key, s.View())
	if err != nil {
		return nil, err
	}
	if target.Private {
		if err := s.Ensure(op, session.PermUsePrivateKey); err != nil {
			return nil, err
		}
	}
	if !target.Extractable {
		return nil, types.NewError(op, types.ErrOperationNotPermitted).
			WithSession(s.Handle()).WithObject(key).
			WithDetail("key is not extractable")
	}

	wrapped, err := b.WrapKey(m, wk.Material, target.Material)
	if err != nil {
		return nil, mapBackendErr(op, err)
	}
	return wrapped, nil
}

// UnwrapKey decrypts wrapped key material and stores it as a new key
// object. The template must declare the class and key type of the
// resulting object.
func (e *Engine) UnwrapKey(s *session.Session, m types.Mechanism, unwrappingKey types.ObjectHandle, wrapped []byte, tmpl types.Template) (types.ObjectHandle, error) {
	const op = "engine: unwrap key"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return 0, err
	}
	uk, err := e.resolveKey(op, s, m, unwrappingKey, usageUnwrap)
	if err != nil {
		return 0, err
	}

	tokenObject := tmpl.Bool(types.AttrToken, false)
	private := tmpl.Bool(types.AttrPrivate, false)
	if err := s.Ensure(op, session.CreatePermission(tokenObject, private)); err != nil {
		return 0, err
	}

	material, err := b.UnwrapKey(m, uk.Material, wrapped)
	if err != nil {
		return 0, mapBackendErr(op, err)
	}

	merged := withValue(tmpl, material)
	return e.store.Create(merged, tokenObject, private, s.Handle())
}

// DeriveKey derives a new secret key from a base key. The template's
// AttrValueLen sizes the derived material, defaulting to 32 bytes.
func (e *Engine) DeriveKey(s *session.Session, m types.Mechanism, baseKey types.ObjectHandle, tmpl types.Template) (types.ObjectHandle, error) {
	const op = "engine: derive key"
	b, err := e.backendFor(op, s, m.Type)
	if err != nil {
		return 0, err
	}
	base, err := e.resolveKey(op, s, m, baseKey, usageDerive)
	if err != nil {
		return 0, err
	}

	tokenObject := tmpl.Bool(types.AttrToken, false)
	private := tmpl.Bool(types.AttrPrivate, false)
	if err := s.Ensure(op, session.CreatePermission(tokenObject, private)); err != nil {
		return 0, err
	}

	length := 32
	if a, ok := tmpl.Get(types.AttrValueLen); ok {
		length = int(a.Uint())
	}
	material, err := b.DeriveKey(m, base.Material, length)
	if err != nil {
		return 0, mapBackendErr(op, err)
	}

	kt := types.KeyTypeAES
	if a, ok := tmpl.Get(types.AttrKeyType); ok {
		kt = types.KeyTypeName(a.Value)
	}
	return e.store.Create(
		keyTemplate(tmpl, types.ClassSecretKey, kt, material),
		tokenObject, private, s.Handle())
}

// GenerateRandom returns n random bytes from the primary backend.
func (e *Engine) GenerateRandom(s *session.Session, n int) ([]byte, error) {
	const op = "engine: generate random"
	b, err := e.registry.Primary()
	if err != nil {
		return nil, types.NewError(op, types.ErrDeviceError).WithCause(err)
	}
	out, err := b.GenerateRandom(n)
	if err != nil {
		return nil, mapBackendErr(op, err)
	}
	return out, nil
}

// keyTemplate merges a caller template with engine-determined class, key
// type and value, dropping any caller-supplied versions of those three.
func keyTemplate(tmpl types.Template, class types.ObjectClass, kt types.KeyTypeName, material []byte) types.Template {
	out := make(types.Template, 0, len(tmpl)+3)
	for _, a := range tmpl {
		switch a.Type {
		case types.AttrClass, types.AttrKeyType, types.AttrValue:
			continue
		}
		out = append(out, a)
	}
	out = append(out,
		types.UintAttribute(types.AttrClass, uint32(class)),
		types.StringAttribute(types.AttrKeyType, string(kt)),
		types.NewAttribute(types.AttrValue, material),
	)
	return out
}

// withValue replaces the template's AttrValue with the given material,
// leaving everything else to the caller's declaration.
func withValue(tmpl types.Template, material []byte) types.Template {
	out := make(types.Template, 0, len(tmpl)+1)
	for _, a := range tmpl {
		if a.Type == types.AttrValue {
			continue
		}
		out = append(out, a)
	}
	return append(out, types.NewAttribute(types.AttrValue, material))
}

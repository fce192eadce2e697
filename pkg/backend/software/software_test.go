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

package software

import (
	"crypto/sha256"
	"testing"

	"github.com/jeremyhahn/go-cryptoki/pkg/backend"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupports(t *testing.T) {
	b := New()
	assert.True(t, b.Supports(types.MechECDSASHA256))
	assert.True(t, b.Supports(types.MechAESGCM))
	assert.False(t, b.Supports(types.MechMLDSA44), "post-quantum belongs to the quantum backend")
	assert.NotEmpty(t, b.Mechanisms())
}

func TestDigest_SHA256(t *testing.T) {
	b := New()

	op, err := b.NewDigestOperation(types.NewMechanism(types.MechSHA256))
	require.NoError(t, err)
	require.NoError(t, op.Update([]byte("hello ")))
	require.NoError(t, op.Update([]byte("world")))

	digest, err := op.Finalize()
	require.NoError(t, err)

	want := sha256.Sum256([]byte("hello world"))
	assert.Equal(t, want[:], digest)
}

func TestDigest_UnknownMechanism(t *testing.T) {
	b := New()
	_, err := b.NewDigestOperation(types.NewMechanism(types.MechAESGCM))
	assert.ErrorIs(t, err, backend.ErrMechanismNotSupported)
}

func signVerifyRoundTrip(t *testing.T, signMech types.Mechanism, pub, priv []byte) {
	t.Helper()
	b := New()

	sign, err := b.NewSignOperation(signMech, priv)
	require.NoError(t, err)
	require.NoError(t, sign.Update([]byte("the quick brown fox")))
	sig, err := sign.Finalize()
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	verify, err := b.NewVerifyOperation(signMech, pub)
	require.NoError(t, err)
	require.NoError(t, verify.Update([]byte("the quick brown fox")))
	require.NoError(t, verify.Finalize(sig))

	// A tampered message fails verification.
	verify, err = b.NewVerifyOperation(signMech, pub)
	require.NoError(t, err)
	require.NoError(t, verify.Update([]byte("the quick brown fax")))
	assert.ErrorIs(t, verify.Finalize(sig), backend.ErrVerificationFailed)
}

func TestSign_ECDSA(t *testing.T) {
	b := New()
	pub, priv, err := b.GenerateKeyPair(types.NewMechanism(types.MechECDSAKeyPair), nil)
	require.NoError(t, err)
	signVerifyRoundTrip(t, types.NewMechanism(types.MechECDSASHA256), pub, priv)
}

func TestSign_Ed25519(t *testing.T) {
	b := New()
	pub, priv, err := b.GenerateKeyPair(types.NewMechanism(types.MechEd25519KeyPair), nil)
	require.NoError(t, err)
	signVerifyRoundTrip(t, types.NewMechanism(types.MechEd25519), pub, priv)
}

func TestSign_RSAPSS(t *testing.T) {
	b := New()
	pub, priv, err := b.GenerateKeyPair(types.NewMechanism(types.MechRSAKeyPair), types.Template{
		types.UintAttribute(types.AttrModulusBits, 2048),
	})
	require.NoError(t, err)
	signVerifyRoundTrip(t, types.NewMechanism(types.MechRSAPSSSHA256), pub, priv)
}

func TestSign_HMAC(t *testing.T) {
	b := New()
	key, err := b.GenerateKey(types.NewMechanism(types.MechHMACKeyGen), nil)
	require.NoError(t, err)
	// HMAC is symmetric: the same material signs and verifies.
	signVerifyRoundTrip(t, types.NewMechanism(types.MechHMACSHA256), key, key)
}

func TestSign_WrongKeyMaterial(t *testing.T) {
	b := New()
	_, err := b.NewSignOperation(types.NewMechanism(types.MechECDSASHA256), []byte("not-der"))
	assert.ErrorIs(t, err, backend.ErrInvalidKeyMaterial)
}

func TestAEAD_RoundTrip(t *testing.T) {
	for _, mech := range []types.MechanismType{
		types.MechAESGCM, types.MechChaCha20Poly1305,
	} {
		t.Run(string(mech), func(t *testing.T) {
			b := New()
			key, err := b.GenerateKey(types.NewMechanism(types.MechAESKeyGen), types.Template{
				types.UintAttribute(types.AttrValueLen, 32),
			})
			require.NoError(t, err)

			nonce, err := b.GenerateRandom(12)
			require.NoError(t, err)
			m := types.Mechanism{Type: mech, Parameter: nonce, AAD: []byte("header")}

			enc, err := b.NewEncryptOperation(m, key)
			require.NoError(t, err)
			partial, err := enc.Update([]byte("attack at dawn"))
			require.NoError(t, err)
			assert.Empty(t, partial, "AEAD buffers until finalize")
			ciphertext, err := enc.Finalize()
			require.NoError(t, err)
			require.NotEmpty(t, ciphertext)

			dec, err := b.NewDecryptOperation(m, key)
			require.NoError(t, err)
			_, err = dec.Update(ciphertext)
			require.NoError(t, err)
			plaintext, err := dec.Finalize()
			require.NoError(t, err)
			assert.Equal(t, []byte("attack at dawn"), plaintext)

			// Wrong AAD fails authentication.
			bad := types.Mechanism{Type: mech, Parameter: nonce, AAD: []byte("tampered")}
			dec, err = b.NewDecryptOperation(bad, key)
			require.NoError(t, err)
			_, err = dec.Update(ciphertext)
			require.NoError(t, err)
			_, err = dec.Finalize()
			assert.ErrorIs(t, err, backend.ErrAuthenticationFailed)
		})
	}
}

func TestAEAD_NonceShapeValidated(t *testing.T) {
	b := New()
	key, err := b.GenerateKey(types.NewMechanism(types.MechAESKeyGen), nil)
	require.NoError(t, err)

	_, err = b.NewEncryptOperation(types.Mechanism{
		Type:      types.MechAESGCM,
		Parameter: []byte("short"),
	}, key)
	assert.ErrorIs(t, err, backend.ErrInvalidParameter)
}

func TestGenerateKey_Sizes(t *testing.T) {
	b := New()

	for _, n := range []uint32{16, 24, 32} {
		key, err := b.GenerateKey(types.NewMechanism(types.MechAESKeyGen), types.Template{
			types.UintAttribute(types.AttrValueLen, n),
		})
		require.NoError(t, err)
		assert.Len(t, key, int(n))
	}

	_, err := b.GenerateKey(types.NewMechanism(types.MechAESKeyGen), types.Template{
		types.UintAttribute(types.AttrValueLen, 17),
	})
	assert.ErrorIs(t, err, backend.ErrInvalidKeySize)
}

func TestGenerateKeyPair_BadCurve(t *testing.T) {
	b := New()
	_, _, err := b.GenerateKeyPair(types.Mechanism{
		Type:      types.MechECDSAKeyPair,
		Parameter: []byte("P-999"),
	}, nil)
	assert.ErrorIs(t, err, backend.ErrInvalidParameter)
}

func TestWrapUnwrap(t *testing.T) {
	b := New()
	kek, err := b.GenerateKey(types.NewMechanism(types.MechAESKeyGen), nil)
	require.NoError(t, err)
	secret := []byte("wrapped key material")

	m := types.NewMechanism(types.MechAESGCMWrap)
	wrapped, err := b.WrapKey(m, kek, secret)
	require.NoError(t, err)
	assert.NotContains(t, string(wrapped), "wrapped key material")

	got, err := b.UnwrapKey(m, kek, wrapped)
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	// A different KEK cannot unwrap.
	other, err := b.GenerateKey(types.NewMechanism(types.MechAESKeyGen), nil)
	require.NoError(t, err)
	_, err = b.UnwrapKey(m, other, wrapped)
	assert.ErrorIs(t, err, backend.ErrAuthenticationFailed)
}

func TestDeriveKey(t *testing.T) {
	b := New()
	base, err := b.GenerateKey(types.NewMechanism(types.MechAESKeyGen), nil)
	require.NoError(t, err)

	m := types.Mechanism{Type: types.MechHKDFSHA256, Parameter: []byte("salt"), AAD: []byte("ctx")}
	k1, err := b.DeriveKey(m, base, 32)
	require.NoError(t, err)
	require.Len(t, k1, 32)

	// Deterministic for the same inputs, distinct for different context.
	k2, err := b.DeriveKey(m, base, 32)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	m.AAD = []byte("other")
	k3, err := b.DeriveKey(m, base, 32)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestGenerateRandom(t *testing.T) {
	b := New()
	r1, err := b.GenerateRandom(32)
	require.NoError(t, err)
	r2, err := b.GenerateRandom(32)
	require.NoError(t, err)
	assert.Len(t, r1, 32)
	assert.NotEqual(t, r1, r2)
}

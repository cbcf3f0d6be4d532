package keystore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)

	msg := []byte("transaction digest")
	sig, err := sk.Sign(msg)
	require.NoError(t, err)
	require.NoError(t, Verify(sk.Public(), msg, sig))

	// A different message must not verify under the same signature.
	require.ErrorIs(t, Verify(sk.Public(), []byte("another digest"), sig), ErrInvalidSignature)

	// Nor must a different key.
	other, err := GenerateKey()
	require.NoError(t, err)
	require.ErrorIs(t, Verify(other.Public(), msg, sig), ErrInvalidSignature)
}

func TestSignaturesAreRandomized(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)

	msg := []byte("same message")
	s1, err := sk.Sign(msg)
	require.NoError(t, err)
	s2, err := sk.Sign(msg)
	require.NoError(t, err)

	// Fresh nonce per signature; both still verify.
	require.False(t, s1.R.Equal(&s2.R))
	require.NoError(t, Verify(sk.Public(), msg, s1))
	require.NoError(t, Verify(sk.Public(), msg, s2))
}

func TestSignatureSurvivesWire(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)

	msg := []byte("handed-over transaction digest")
	sig, err := sk.Sign(msg)
	require.NoError(t, err)

	data, err := json.Marshal(sig)
	require.NoError(t, err)
	var decoded Signature
	require.NoError(t, json.Unmarshal(data, &decoded))

	// A signature relayed through another party must still authorize.
	require.True(t, sig.R.Equal(&decoded.R))
	require.NoError(t, Verify(sk.Public(), msg, decoded))

	var bad Signature
	require.Error(t, json.Unmarshal([]byte(`{"r":"zz","s":"00"}`), &bad))
}

func TestFilesystemKeyStoreRoundTrip(t *testing.T) {
	ks, err := NewFilesystemKeyStore(t.TempDir())
	require.NoError(t, err)

	sk, err := GenerateKey()
	require.NoError(t, err)
	require.False(t, ks.HasKey(sk.Public()))

	require.NoError(t, ks.AddKey(sk))
	require.True(t, ks.HasKey(sk.Public()))

	loaded, err := ks.GetKey(sk.Public())
	require.NoError(t, err)

	// The reloaded key signs for the same public key.
	msg := []byte("after reload")
	sig, err := loaded.Sign(msg)
	require.NoError(t, err)
	require.NoError(t, Verify(sk.Public(), msg, sig))
}

func TestGetKeyMissing(t *testing.T) {
	ks, err := NewFilesystemKeyStore(t.TempDir())
	require.NoError(t, err)

	sk, err := GenerateKey()
	require.NoError(t, err)

	_, err = ks.GetKey(sk.Public())
	require.ErrorIs(t, err, ErrMissingKey)
}

package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBase58_FullKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	kp, err := FromBase58(base58.Encode(priv))
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(pub), kp.Address())

	msg := []byte("transaction bytes")
	sig := kp.Sign(msg)
	assert.True(t, ed25519.Verify(pub, msg, sig))
}

func TestFromBase58_SeedOnly(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	kp, err := FromBase58(base58.Encode(seed))
	require.NoError(t, err)

	want := ed25519.NewKeyFromSeed(seed)
	assert.Equal(t, base58.Encode(want.Public().(ed25519.PublicKey)), kp.Address())
}

func TestFromBase58_BadLength(t *testing.T) {
	_, err := FromBase58(base58.Encode([]byte("short")))
	assert.Error(t, err)
}

func TestValidateAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	assert.NoError(t, ValidateAddress(base58.Encode(pub)))
	assert.Error(t, ValidateAddress("not-base58-!!"))
	assert.Error(t, ValidateAddress(base58.Encode([]byte{1, 2, 3})))
}

func TestIsOnCurve(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	on, err := IsOnCurve(base58.Encode(pub))
	require.NoError(t, err)
	assert.True(t, on)

	// All-0xff is not a valid curve point encoding.
	bad := make([]byte, ed25519.PublicKeySize)
	for i := range bad {
		bad[i] = 0xff
	}
	on, err = IsOnCurve(base58.Encode(bad))
	require.NoError(t, err)
	assert.False(t, on)
}

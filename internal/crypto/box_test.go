package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBoxRoundTrip(t *testing.T) {
	box, err := NewSecretBox("correct horse battery staple")
	require.NoError(t, err)

	sealed, err := box.Seal("binance-api-key-123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "binance")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "binance-api-key-123", opened)
}

func TestSecretBoxWrongPassword(t *testing.T) {
	box, err := NewSecretBox("password-one")
	require.NoError(t, err)

	sealed, err := box.Seal("secret")
	require.NoError(t, err)

	other, err := NewSecretBox("password-two")
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.Error(t, err)
}

func TestSecretBoxDistinctCiphertexts(t *testing.T) {
	box, err := NewSecretBox("pw")
	require.NoError(t, err)

	a, err := box.Seal("same")
	require.NoError(t, err)
	b, err := box.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewSecretBoxEmptyPassword(t *testing.T) {
	_, err := NewSecretBox("")
	assert.Error(t, err)
}

func TestKeypairRoundTrip(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	restored, err := KeypairFromBase58(kp.SecretBase58())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), restored.PublicKey())
}

func TestSignTransaction(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	// One signature slot, zeroed, followed by an arbitrary message.
	msg := []byte("serialized message bytes")
	raw := make([]byte, 1+ed25519.SignatureSize+len(msg))
	raw[0] = 1
	copy(raw[1+ed25519.SignatureSize:], msg)

	signed, err := kp.SignTransaction(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)

	out, err := base64.StdEncoding.DecodeString(signed)
	require.NoError(t, err)

	pub := kp.priv.Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, msg, out[1:1+ed25519.SignatureSize]))
}

func TestSignTransactionRejectsEmpty(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	_, err = kp.SignTransaction(base64.StdEncoding.EncodeToString([]byte{0}))
	assert.Error(t, err)
}

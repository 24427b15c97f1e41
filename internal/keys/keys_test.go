package keys

import (
	"strings"
	"testing"

	"github.com/annotify/annotify/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

func TestGenerate_ProducesUsablePair(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	require.NoError(t, kp.Validate())
	assert.True(t, strings.HasPrefix(kp.DID(), "did:key:z"))
}

func TestValidate_RejectsBadMaterial(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	tests := []struct {
		name string
		pair KeyPair
	}{
		{"empty", KeyPair{}},
		{"empty private", KeyPair{PublicKey: kp.PublicKey}},
		{"garbage public", KeyPair{PublicKey: "!!!", PrivateKey: kp.PrivateKey}},
		{"truncated private", KeyPair{PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey[:10]}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pair.Validate()
			assert.ErrorIs(t, err, common.ErrInvalidKeyPair)
		})
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	payload := testPayload{ID: "a1", Content: "hello", Timestamp: 1000, Nonce: "n-1"}
	sig, err := Sign(payload, kp)
	require.NoError(t, err)

	assert.True(t, Verify(payload, sig, kp.DID()))
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	payload := testPayload{ID: "a1", Content: "hello", Timestamp: 1000, Nonce: "n-1"}
	sig, err := Sign(payload, kp)
	require.NoError(t, err)

	payload.Content = "goodbye"
	assert.False(t, Verify(payload, sig, kp.DID()))
}

func TestVerify_RejectsWrongAuthor(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)

	payload := testPayload{ID: "a1", Content: "hello", Timestamp: 1000, Nonce: "n-1"}
	sig, err := Sign(payload, alice)
	require.NoError(t, err)

	assert.False(t, Verify(payload, sig, bob.DID()))
	assert.False(t, Verify(payload, sig, "did:web:example.com"))
	assert.False(t, Verify(payload, sig, ""))
}

func TestSign_FailsBeforeIOOnBadPair(t *testing.T) {
	_, err := Sign(testPayload{ID: "a1"}, KeyPair{})
	assert.ErrorIs(t, err, common.ErrInvalidKeyPair)
}

func TestKeyring_SealOpenRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	blob, err := SealKeyPair(kp, []byte("correct horse"))
	require.NoError(t, err)

	got, err := OpenKeyPair(blob, []byte("correct horse"))
	require.NoError(t, err)
	assert.Equal(t, kp, got)
}

func TestKeyring_WrongPassphrase(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)

	blob, err := SealKeyPair(kp, []byte("correct horse"))
	require.NoError(t, err)

	_, err = OpenKeyPair(blob, []byte("battery staple"))
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestKeyring_TruncatedBlob(t *testing.T) {
	_, err := OpenKeyPair([]byte{1, 2, 3}, []byte("x"))
	assert.Error(t, err)
}

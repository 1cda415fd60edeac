// SPDX-License-Identifier: LGPL-3.0-or-later

package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRejectsUnsupportedSize(t *testing.T) {
	_, err := Generate(1024)
	require.Error(t, err)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	kp, err := Generate(Size2048)
	require.NoError(t, err)

	msg := []byte("complete_handshake payload")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)

	require.NoError(t, Verify(kp.Public(), msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	kp, err := Generate(Size2048)
	require.NoError(t, err)

	sig, err := kp.Sign([]byte("original"))
	require.NoError(t, err)

	err = Verify(kp.Public(), []byte("tampered"), sig)
	assert.Error(t, err)
}

func TestPublicKeyBlobRoundTrip(t *testing.T) {
	kp, err := Generate(Size2048)
	require.NoError(t, err)

	blob, err := kp.PublicKeyBlob()
	require.NoError(t, err)

	pub, err := DecodePublicKey(blob)
	require.NoError(t, err)
	assert.True(t, kp.Public().Equal(pub))
}

func TestTwoKeyPairsHaveDistinctIDs(t *testing.T) {
	a, err := Generate(Size2048)
	require.NoError(t, err)
	b, err := Generate(Size2048)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
}

// SPDX-License-Identifier: LGPL-3.0-or-later

package wire

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/agentrpc/crypto"
	"github.com/sage-x-project/agentrpc/crypto/keys"
)

func TestCreateAndDecodePlainUnencrypted(t *testing.T) {
	msg, err := CreateWireMessage(RPC, []byte(`{"hello":"world"}`), nil, nil, uuid.New())
	require.NoError(t, err)
	require.Empty(t, msg.Iv)

	data, err := GetDecryptedMessageData(msg, nil, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"hello":"world"}`, string(data))
}

func TestCreateAndDecodeEncryptedAndSigned(t *testing.T) {
	secret, err := crypto.NewSharedSecret()
	require.NoError(t, err)
	cipher, err := crypto.NewSessionCipher(secret)
	require.NoError(t, err)

	kp, err := keys.Generate(keys.Size2048)
	require.NoError(t, err)

	payload := []byte("session id payload")
	msg, err := CreateWireMessage(CompleteHandshake, payload, cipher, kp, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, msg.Iv, cipher.IVSize())
	require.NotEqual(t, payload, msg.Data)

	got, err := GetDecryptedMessageData(msg, cipher, kp.Public())
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	secret, err := crypto.NewSharedSecret()
	require.NoError(t, err)
	cipher, err := crypto.NewSessionCipher(secret)
	require.NoError(t, err)

	kp, err := keys.Generate(keys.Size2048)
	require.NoError(t, err)
	other, err := keys.Generate(keys.Size2048)
	require.NoError(t, err)

	msg, err := CreateWireMessage(CompleteHandshake, []byte("payload"), cipher, kp, uuid.Nil)
	require.NoError(t, err)

	_, err = GetDecryptedMessageData(msg, cipher, other.Public())
	require.Error(t, err)
}

func TestDecodeKeepAliveIsEmpty(t *testing.T) {
	msg := &WireMessage{}
	data, err := GetDecryptedMessageData(msg, nil, nil)
	require.NoError(t, err)
	require.Nil(t, data)
	require.True(t, msg.IsKeepAlive())
}

// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/sage-x-project/agentrpc/crypto/keys"
	"github.com/sage-x-project/agentrpc/wire"
)

// SharedSecretSize is the length in bytes of the session shared secret
// (the SessionId), per spec §3.
const SharedSecretSize = 16

// NewSharedSecret draws a fresh random 16-byte shared secret. The server
// does not call it: it uses the 16 bytes of the SessionId as the secret.
func NewSharedSecret() ([]byte, error) {
	secret := make([]byte, SharedSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("crypto: generate shared secret: %w", err)
	}
	return secret, nil
}

// SealSecret encrypts secret with the receiver's RSA public key (RSA-OAEP)
// and packages it with the sender's own public-key blob, ready to be
// carried as the payload of a signed complete_handshake message.
func SealSecret(secret []byte, receiverPub *rsa.PublicKey, senderKeyBlob []byte) (*wire.EncryptedSecret, error) {
	encrypted, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, receiverPub, secret, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: seal shared secret: %w", err)
	}
	return &wire.EncryptedSecret{
		EncryptedKey:        encrypted,
		SenderPublicKeyBlob: senderKeyBlob,
	}, nil
}

// OpenSecret decrypts an EncryptedSecret with the receiver's own RSA
// private key, returning the raw shared secret bytes.
func OpenSecret(secret *wire.EncryptedSecret, priv *rsa.PrivateKey) ([]byte, error) {
	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, secret.EncryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: open shared secret: %w", err)
	}
	return plain, nil
}

// SenderPublicKey parses the sender's public-key blob out of an EncryptedSecret.
func SenderPublicKey(secret *wire.EncryptedSecret) (*rsa.PublicKey, error) {
	return keys.DecodePublicKey(secret.SenderPublicKeyBlob)
}

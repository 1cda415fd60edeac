// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SessionCipher is the AES layer described in spec §4.2: a symmetric block
// cipher keyed by the session's shared secret (the SessionId), with a
// fresh IV per message. The raw shared secret is never used as the AES
// key directly; it is first run through HKDF the same way the teacher's
// SecureSession derives its ChaCha20-Poly1305 key, which both keeps the
// shared secret out of the AEAD key schedule and lets the signing key be
// derived independently from the same material.
type SessionCipher struct {
	gcm cipher.AEAD
}

// NewSessionCipher derives an AES-256-GCM cipher from the session's shared
// secret (16-byte SessionId).
func NewSessionCipher(sharedSecret []byte) (*SessionCipher, error) {
	if len(sharedSecret) == 0 {
		return nil, fmt.Errorf("crypto: empty shared secret")
	}
	encKey := make([]byte, 32)
	h := hkdf.New(sha256.New, sharedSecret, nil, []byte("agentrpc/session/encryption"))
	if _, err := io.ReadFull(h, encKey); err != nil {
		return nil, fmt.Errorf("crypto: derive session key: %w", err)
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return &SessionCipher{gcm: gcm}, nil
}

// IVSize is the length in bytes of the IV expected by Decrypt.
func (c *SessionCipher) IVSize() int { return c.gcm.NonceSize() }

// Encrypt seals plaintext under a freshly generated IV, returning the
// ciphertext and the IV separately so the caller can place them in the
// WireMessage's Data and Iv fields respectively.
func (c *SessionCipher) Encrypt(plaintext []byte) (ciphertext, iv []byte, err error) {
	iv = make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("crypto: generate iv: %w", err)
	}
	ciphertext = c.gcm.Seal(nil, iv, plaintext, nil)
	return ciphertext, iv, nil
}

// Decrypt opens ciphertext sealed by Encrypt. An IV of the wrong length is
// a protocol-level error (malformed frame), not a security failure.
func (c *SessionCipher) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	if len(iv) != c.gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: invalid iv length %d, want %d", len(iv), c.gcm.NonceSize())
	}
	plaintext, err := c.gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", err)
	}
	return plaintext, nil
}

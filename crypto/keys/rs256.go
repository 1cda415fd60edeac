// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package keys implements the endpoint RSA identity used by the RPC
// runtime's handshake: key generation, PEM-blob export/import, and
// RS256 (PKCS#1 v1.5 + SHA-256) signing used for the handshake and
// auth-response signatures.
package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

// Size is the RSA modulus size in bits. Spec §6 recognizes 2048 or 4096.
type Size int

const (
	Size2048 Size = 2048
	Size4096 Size = 4096
)

// KeyPair is an RSA identity: a private key used to decrypt the key-exchange
// secret and to sign handshake/auth-response payloads, and the matching
// public key advertised to the peer as an opaque PEM blob.
type KeyPair struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	id      string
}

// Generate creates a new RSA key pair of the given size (2048 or 4096).
func Generate(size Size) (*KeyPair, error) {
	if size != Size2048 && size != Size4096 {
		return nil, fmt.Errorf("keys: unsupported RSA key size %d", size)
	}
	priv, err := rsa.GenerateKey(rand.Reader, int(size))
	if err != nil {
		return nil, fmt.Errorf("keys: generate rsa key: %w", err)
	}
	return fromPrivateKey(priv), nil
}

func fromPrivateKey(priv *rsa.PrivateKey) *KeyPair {
	pub := &priv.PublicKey
	hash := sha256.Sum256(pub.N.Bytes())
	return &KeyPair{
		private: priv,
		public:  pub,
		id:      hex.EncodeToString(hash[:8]),
	}
}

// ID returns a short identifier for this key pair, derived from the
// public modulus, suitable for logging.
func (kp *KeyPair) ID() string { return kp.id }

// Public returns the RSA public key.
func (kp *KeyPair) Public() *rsa.PublicKey { return kp.public }

// Private returns the RSA private key.
func (kp *KeyPair) Private() *rsa.PrivateKey { return kp.private }

// PublicKeyBlob PEM-encodes the public key for transmission on the wire
// during the handshake.
func (kp *KeyPair) PublicKeyBlob() ([]byte, error) {
	return EncodePublicKey(kp.public)
}

// Sign signs message with RS256 (SHA-256 digest, PKCS#1 v1.5).
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, kp.private, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("keys: sign: %w", err)
	}
	return sig, nil
}

// Verify checks an RS256 signature produced by the holder of pub.
func Verify(pub *rsa.PublicKey, message, signature []byte) error {
	digest := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return fmt.Errorf("keys: signature verification failed: %w", err)
	}
	return nil
}

// EncodePublicKey PEM-encodes an RSA public key as a PKIX blob.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal public key: %w", err)
	}
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// DecodePublicKey parses a PEM blob produced by EncodePublicKey.
func DecodePublicKey(blob []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(blob)
	if block == nil {
		return nil, fmt.Errorf("keys: invalid PEM public key blob")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("keys: public key blob is not RSA")
	}
	return rsaPub, nil
}

// SPDX-License-Identifier: LGPL-3.0-or-later

package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, priv *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := tok.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func TestJWTBearerProviderAcceptsValidToken(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	provider := NewJWTBearerProvider(&priv.PublicKey, "agentrpc")

	now := time.Now().Unix()
	token := signToken(t, priv, jwt.MapClaims{
		"iss": "agentrpc",
		"sub": "client-123",
		"iat": now,
		"exp": now + 60,
	})

	identity, ok, reason := provider.Authenticate([][]byte{[]byte(token)})
	assert.True(t, ok, reason)
	assert.Equal(t, "client-123", identity)
}

func TestJWTBearerProviderRejectsWrongKey(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	otherPriv, _ := rsa.GenerateKey(rand.Reader, 2048)
	provider := NewJWTBearerProvider(&priv.PublicKey, "")

	token := signToken(t, otherPriv, jwt.MapClaims{"sub": "x"})
	_, ok, reason := provider.Authenticate([][]byte{[]byte(token)})
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestJWTBearerProviderRejectsWrongIssuer(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	provider := NewJWTBearerProvider(&priv.PublicKey, "expected-issuer")

	token := signToken(t, priv, jwt.MapClaims{"iss": "someone-else", "sub": "x"})
	_, ok, _ := provider.Authenticate([][]byte{[]byte(token)})
	assert.False(t, ok)
}

func TestJWTBearerProviderRejectsMissingCredentials(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	provider := NewJWTBearerProvider(&priv.PublicKey, "")
	_, ok, reason := provider.Authenticate(nil)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

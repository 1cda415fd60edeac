// SPDX-License-Identifier: LGPL-3.0-or-later

package auth

import (
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTBearerProvider authenticates a single bearer token against a fixed
// RSA public key, in the style of the teacher's oidc/auth0 Agent (which
// mints RS256 JWTs with jwt.MapClaims); here the server plays the verifier
// role instead of the issuer. The identity stamped on the session is the
// token's "sub" claim.
type JWTBearerProvider struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewJWTBearerProvider builds a provider that verifies RS256 tokens signed
// by publicKey. issuer, when non-empty, is additionally checked against
// the token's "iss" claim.
func NewJWTBearerProvider(publicKey *rsa.PublicKey, issuer string) *JWTBearerProvider {
	return &JWTBearerProvider{publicKey: publicKey, issuer: issuer}
}

func (p *JWTBearerProvider) Authenticate(credentials [][]byte) (string, bool, string) {
	if len(credentials) != 1 {
		return "", false, "expected exactly one bearer token credential"
	}

	token, err := jwt.Parse(string(credentials[0]), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return "", false, err.Error()
	}
	if !token.Valid {
		return "", false, "token is not valid"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false, "token carries no claims"
	}

	if p.issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != p.issuer {
			return "", false, "unexpected issuer"
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false, "token is missing a subject"
	}
	return sub, true, ""
}

// Package jwtx provides the small amount of JOSE glue the token engine
// needs: RS256 compact signing from JWK material and the OIDC token hash
// rule for at_hash / c_hash claims.
package jwtx

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SignRS256 signs claims as a compact JWS using the RSA private key carried
// by the JWK, embedding the key's kid in the header so verifiers can resolve
// it from the published key set.
func SignRS256(key jwk.Key, claims jwt.Claims) (string, error) {
	var raw rsa.PrivateKey
	if err := key.Raw(&raw); err != nil {
		return "", fmt.Errorf("jwtx: not an RSA private key: %w", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = key.KeyID()
	return tok.SignedString(&raw)
}

// TokenHash computes the OIDC hash claim value for an RS256-signed token:
// the left half of the SHA-256 digest of the token's ASCII bytes, base64url
// encoded without padding. Used for both at_hash and c_hash.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:sha256.Size/2])
}

// Keyfunc adapts a kid-indexed key lookup to the jwt parser. The lookup
// receives the kid from the token header and returns the matching JWK; the
// public half is handed to the verifier.
func Keyfunc(lookup func(kid string) (jwk.Key, error)) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("jwtx: token header has no kid")
		}

		key, err := lookup(kid)
		if err != nil {
			return nil, err
		}

		pub, err := jwk.PublicKeyOf(key)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to derive public key: %w", err)
		}

		var raw any
		if err := pub.Raw(&raw); err != nil {
			return nil, fmt.Errorf("jwtx: failed to materialize public key: %w", err)
		}
		return raw, nil
	}
}

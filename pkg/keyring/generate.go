package keyring

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// generateRotatingBatch produces one key per rotating family. Any single
// failure aborts the whole batch so a rotation is all-or-nothing.
func generateRotatingBatch(rsaBits int, now time.Time) ([]Key, error) {
	rsaKey, err := generateRSASigningKey(rsaBits, now)
	if err != nil {
		return nil, err
	}

	curves := []struct {
		kind  Kind
		curve elliptic.Curve
		alg   jwa.SignatureAlgorithm
	}{
		{ECP256, elliptic.P256(), jwa.ES256},
		{ECP384, elliptic.P384(), jwa.ES384},
		{ECP521, elliptic.P521(), jwa.ES512},
	}

	batch := []Key{rsaKey}
	for _, c := range curves {
		key, err := generateECSigningKey(c.kind, c.curve, c.alg, now)
		if err != nil {
			return nil, err
		}
		batch = append(batch, key)
	}

	aesKey, err := generateOctetKey(16, AES128, UseEncryption, "", now)
	if err != nil {
		return nil, err
	}
	return append(batch, aesKey), nil
}

func generateRSASigningKey(bits int, now time.Time) (Key, error) {
	raw, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return Key{}, fmt.Errorf("keyring: failed to generate RSA key: %w", err)
	}

	key, err := jwk.FromRaw(raw)
	if err != nil {
		return Key{}, fmt.Errorf("keyring: failed to wrap RSA key: %w", err)
	}
	if err := setSigningParams(key, jwa.RS256); err != nil {
		return Key{}, err
	}

	return Key{Kind: RSA, Use: UseSignature, JWK: key, CreatedAt: now}, nil
}

func generateECSigningKey(kind Kind, curve elliptic.Curve, alg jwa.SignatureAlgorithm, now time.Time) (Key, error) {
	raw, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return Key{}, fmt.Errorf("keyring: failed to generate %s key: %w", kind, err)
	}

	key, err := jwk.FromRaw(raw)
	if err != nil {
		return Key{}, fmt.Errorf("keyring: failed to wrap %s key: %w", kind, err)
	}
	if err := setSigningParams(key, alg); err != nil {
		return Key{}, err
	}

	return Key{Kind: kind, Use: UseSignature, JWK: key, CreatedAt: now}, nil
}

// generateOctetKey creates a symmetric key of size bytes. An empty kid
// requests a thumbprint-derived identifier; permanent keys pass their fixed
// well-known id instead.
func generateOctetKey(size int, kind Kind, use Use, kid string, now time.Time) (Key, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return Key{}, fmt.Errorf("keyring: failed to generate %s key: %w", kind, err)
	}

	key, err := jwk.FromRaw(buf)
	if err != nil {
		return Key{}, fmt.Errorf("keyring: failed to wrap %s key: %w", kind, err)
	}
	if err := key.Set(jwk.KeyUsageKey, string(use)); err != nil {
		return Key{}, err
	}

	if kid == "" {
		if err := jwk.AssignKeyID(key); err != nil {
			return Key{}, fmt.Errorf("keyring: failed to derive kid: %w", err)
		}
	} else if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return Key{}, err
	}

	return Key{Kind: kind, Use: use, JWK: key, CreatedAt: now}, nil
}

// setSigningParams marks the key for signature use and derives its kid from
// the RFC 7638 thumbprint, so regenerating identical material always yields
// the same identifier.
func setSigningParams(key jwk.Key, alg jwa.SignatureAlgorithm) error {
	if err := key.Set(jwk.KeyUsageKey, string(UseSignature)); err != nil {
		return err
	}
	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return err
	}
	if err := jwk.AssignKeyID(key); err != nil {
		return fmt.Errorf("keyring: failed to derive kid: %w", err)
	}
	return nil
}

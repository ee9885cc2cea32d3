package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"

	"github.com/signetauth/signet/internal/idp/domain"
	"github.com/signetauth/signet/internal/idp/store"
	"github.com/signetauth/signet/pkg/cryptox"
	"github.com/signetauth/signet/pkg/idx"
	"github.com/signetauth/signet/pkg/jwtx"
	"github.com/signetauth/signet/pkg/keyring"
)

var (
	ErrInvalidGrant         = errors.New("invalid_grant")
	ErrInvalidRequest       = errors.New("invalid_request")
	ErrInvalidScope         = errors.New("invalid_scope")
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
)

const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

// ClaimsMapper injects additional principal-derived claims into access and
// ID tokens. Deployments supply an implementation; nil means no extra claims.
type ClaimsMapper interface {
	Map(principal string) map[string]any
}

// UserInfoMapper resolves standard OIDC user-info claims for a principal and
// granted scope. Applied after the claims mapper, so its values win on key
// collision.
type UserInfoMapper interface {
	Map(principal string, scope []string) map[string]any
}

// TokenService mints every signed token the provider issues. It is stateless
// itself: keys come from the keyring, refresh token contexts go to the store.
// The signing algorithm is fixed at RS256.
type TokenService struct {
	Keys          *keyring.Keyring
	RefreshTokens store.RefreshTokens

	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration // 0 means non-expiring refresh tokens
	IDTokenTTL      time.Duration

	// ResourceScopes maps scope values to protected-resource audiences.
	// Every matching scope value appends its audience to access tokens.
	ResourceScopes map[string]string

	// FrontChannelLogoutEnabled gates the sid claim on ID tokens.
	FrontChannelLogoutEnabled bool

	ClaimsMapper   ClaimsMapper   // optional
	UserInfoMapper UserInfoMapper // optional

	// Now overrides the clock in tests. nil means time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// signingKey resolves the current RS256 signing key. A non-RSA result would
// mean the keyring's rotation contract is broken, so it is reported as an
// error rather than used.
func (s *TokenService) signingKey() (keyring.Key, error) {
	key, err := s.Keys.SelectSigningKey(keyring.RSA)
	if err != nil {
		return keyring.Key{}, err
	}
	if key.JWK.KeyType() != jwa.RSA {
		return keyring.Key{}, fmt.Errorf("service: current %s signing key has type %s", keyring.RSA, key.JWK.KeyType())
	}
	return key, nil
}

// CreateAccessToken mints a signed bearer access token. The audience always
// starts with the issuer, followed by the protected-resource audience of
// each granted scope value that maps to one.
func (s *TokenService) CreateAccessToken(principal, clientID string, scope []string) (string, error) {
	now := s.now()

	key, err := s.signingKey()
	if err != nil {
		return "", err
	}

	audience := []string{s.Issuer}
	for _, value := range scope {
		if resource, ok := s.ResourceScopes[value]; ok {
			audience = append(audience, resource)
		}
	}

	claims := jwt.MapClaims{
		"iss":   s.Issuer,
		"sub":   principal,
		"aud":   audience,
		"exp":   jwt.NewNumericDate(now.Add(s.AccessTokenTTL)),
		"iat":   jwt.NewNumericDate(now),
		"jti":   idx.New().String(),
		"scope": strings.Join(scope, " "),
	}

	if s.ClaimsMapper != nil {
		for k, v := range s.ClaimsMapper.Map(principal) {
			claims[k] = v
		}
	}

	return jwtx.SignRS256(key.JWK, claims)
}

// CreateRefreshToken generates a fresh opaque refresh token and persists its
// context. Requires the offline_access scope. A fingerprint collision is
// retried once with a freshly generated token before surfacing.
func (s *TokenService) CreateRefreshToken(ctx context.Context, principal, clientID string, scope []string) (string, error) {
	if !slices.Contains(scope, ScopeOfflineAccess) {
		return "", ErrInvalidScope
	}

	now := s.now()

	var expiry *time.Time
	if s.RefreshTokenTTL > 0 {
		t := now.Add(s.RefreshTokenTTL)
		expiry = &t
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return "", err
		}

		err = s.RefreshTokens.Save(ctx, domain.RefreshToken{
			TokenFingerprint: cryptox.FingerprintToken(opaque),
			Principal:        principal,
			ClientID:         clientID,
			Scope:            scope,
			Expiry:           expiry,
			CreatedAt:        now,
		})
		if err == nil {
			return opaque, nil
		}
		if !errors.Is(err, store.ErrDuplicateToken) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("service: refresh token collision persisted after retry: %w", lastErr)
}

// RevokeRefreshToken revokes a refresh token by its opaque value. Revoking
// an unknown token is a no-op.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, opaque string) error {
	return s.RefreshTokens.Revoke(ctx, cryptox.FingerprintToken(opaque))
}

// IDTokenRequest carries the authorization context an ID token asserts.
type IDTokenRequest struct {
	Principal          string
	ClientID           string
	Scope              []string
	AuthenticationTime time.Time
	SessionID          string
	Nonce              string
	ACR                string
	AMR                []string

	// AccessToken and Code, when set, produce at_hash and c_hash claims per
	// the hybrid-flow hashing rule.
	AccessToken string
	Code        string
}

// CreateIDToken mints a signed ID token for the request. Requires the openid
// scope. Claims-mapper output is merged first, user-info claims second, so
// user-info values take precedence on collision.
func (s *TokenService) CreateIDToken(req IDTokenRequest) (string, error) {
	if !slices.Contains(req.Scope, ScopeOpenID) {
		return "", ErrInvalidScope
	}

	now := s.now()

	key, err := s.signingKey()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"iss":       s.Issuer,
		"sub":       req.Principal,
		"aud":       []string{req.ClientID},
		"exp":       jwt.NewNumericDate(now.Add(s.IDTokenTTL)),
		"iat":       jwt.NewNumericDate(now),
		"auth_time": req.AuthenticationTime.Unix(),
		"azp":       req.ClientID,
	}

	if req.Nonce != "" {
		claims["nonce"] = req.Nonce
	}
	if req.ACR != "" {
		claims["acr"] = req.ACR
	}
	if len(req.AMR) > 0 {
		claims["amr"] = req.AMR
	}
	if s.FrontChannelLogoutEnabled && req.SessionID != "" {
		claims["sid"] = req.SessionID
	}
	if req.AccessToken != "" {
		claims["at_hash"] = jwtx.TokenHash(req.AccessToken)
	}
	if req.Code != "" {
		claims["c_hash"] = jwtx.TokenHash(req.Code)
	}

	if s.ClaimsMapper != nil {
		for k, v := range s.ClaimsMapper.Map(req.Principal) {
			claims[k] = v
		}
	}
	if s.UserInfoMapper != nil {
		for k, v := range s.UserInfoMapper.Map(req.Principal, req.Scope) {
			claims[k] = v
		}
	}

	return jwtx.SignRS256(key.JWK, claims)
}

package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/signetauth/signet/internal/idp/domain"
	"github.com/signetauth/signet/internal/idp/store"
	"github.com/signetauth/signet/pkg/cryptox"
	"github.com/signetauth/signet/pkg/idx"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypePassword          = "password"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeRefreshToken      = "refresh_token"
)

const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// TokenRequest is a parsed token-endpoint request. Only the fields relevant
// to the named grant type are consulted.
type TokenRequest struct {
	GrantType string
	ClientID  string
	Scope     []string

	// authorization_code grant
	Code         string
	CodeVerifier string

	// password grant
	Username string
	Password string

	// refresh_token grant
	RefreshToken string
}

// GrantService resolves token-endpoint grants into token responses. Client
// authentication and request parsing happen upstream; by the time Exchange
// runs, the client is trusted and the requested scope is already validated
// against the client's registration.
type GrantService struct {
	Tokens        *TokenService
	Codes         store.AuthorizationCodes
	RefreshTokens store.RefreshTokens
	Authenticator Authenticator // nil disables the password grant

	CodeTTL time.Duration

	// Now overrides the clock in tests. nil means time.Now.
	Now func() time.Time
}

func (s *GrantService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Exchange dispatches a token request to the handler for its grant type.
func (s *GrantService) Exchange(ctx context.Context, req TokenRequest) (*domain.TokenResponse, error) {
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return s.exchangeAuthorizationCode(ctx, req)
	case GrantTypePassword:
		return s.exchangePassword(ctx, req)
	case GrantTypeClientCredentials:
		return s.exchangeClientCredentials(ctx, req)
	case GrantTypeRefreshToken:
		return s.exchangeRefreshToken(ctx, req)
	default:
		return nil, ErrUnsupportedGrantType
	}
}

// exchangeAuthorizationCode redeems a single-use authorization code. The code
// is consumed atomically before any validation, so a failed PKCE check still
// burns it.
func (s *GrantService) exchangeAuthorizationCode(ctx context.Context, req TokenRequest) (*domain.TokenResponse, error) {
	code, err := s.Codes.Consume(ctx, cryptox.FingerprintToken(req.Code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	if code.ClientID != req.ClientID {
		return nil, ErrInvalidGrant
	}
	if err := verifyCodeVerifier(code, req.CodeVerifier); err != nil {
		return nil, err
	}

	accessToken, err := s.Tokens.CreateAccessToken(code.Principal, code.ClientID, code.Scope)
	if err != nil {
		return nil, err
	}

	resp := &domain.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Tokens.AccessTokenTTL.Seconds()),
		Scope:       scopeString(code.Scope),
	}

	if containsScope(code.Scope, ScopeOfflineAccess) {
		refreshToken, err := s.Tokens.CreateRefreshToken(ctx, code.Principal, code.ClientID, code.Scope)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = refreshToken
	}

	if containsScope(code.Scope, ScopeOpenID) {
		idToken, err := s.Tokens.CreateIDToken(IDTokenRequest{
			Principal:          code.Principal,
			ClientID:           code.ClientID,
			Scope:              code.Scope,
			AuthenticationTime: code.AuthenticationTime,
			SessionID:          code.SessionID,
			Nonce:              code.Nonce,
			AccessToken:        accessToken,
			Code:               req.Code,
		})
		if err != nil {
			return nil, err
		}
		resp.IDToken = idToken
	}

	return resp, nil
}

// exchangePassword validates resource-owner credentials and issues tokens
// directly. No authorization code or session is involved, so the ID token
// asserts the exchange time as the authentication time.
func (s *GrantService) exchangePassword(ctx context.Context, req TokenRequest) (*domain.TokenResponse, error) {
	if s.Authenticator == nil {
		return nil, ErrUnsupportedGrantType
	}

	principal, err := s.Authenticator.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	accessToken, err := s.Tokens.CreateAccessToken(principal, req.ClientID, req.Scope)
	if err != nil {
		return nil, err
	}

	resp := &domain.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Tokens.AccessTokenTTL.Seconds()),
		Scope:       scopeString(req.Scope),
	}

	if containsScope(req.Scope, ScopeOfflineAccess) {
		refreshToken, err := s.Tokens.CreateRefreshToken(ctx, principal, req.ClientID, req.Scope)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = refreshToken
	}

	if containsScope(req.Scope, ScopeOpenID) {
		idToken, err := s.Tokens.CreateIDToken(IDTokenRequest{
			Principal:          principal,
			ClientID:           req.ClientID,
			Scope:              req.Scope,
			AuthenticationTime: s.now(),
			AccessToken:        accessToken,
		})
		if err != nil {
			return nil, err
		}
		resp.IDToken = idToken
	}

	return resp, nil
}

// exchangeClientCredentials issues an access token for the client acting as
// itself. No refresh or ID token is ever issued for this grant.
func (s *GrantService) exchangeClientCredentials(_ context.Context, req TokenRequest) (*domain.TokenResponse, error) {
	accessToken, err := s.Tokens.CreateAccessToken(req.ClientID, req.ClientID, req.Scope)
	if err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Tokens.AccessTokenTTL.Seconds()),
		Scope:       scopeString(req.Scope),
	}, nil
}

// exchangeRefreshToken issues a fresh access token against a stored refresh
// token context. The refresh token itself is not rotated and stays valid
// until it expires or is revoked.
func (s *GrantService) exchangeRefreshToken(ctx context.Context, req TokenRequest) (*domain.TokenResponse, error) {
	token, err := s.RefreshTokens.Load(ctx, cryptox.FingerprintToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	if token.ClientID != req.ClientID {
		return nil, ErrInvalidGrant
	}

	accessToken, err := s.Tokens.CreateAccessToken(token.Principal, token.ClientID, token.Scope)
	if err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.Tokens.AccessTokenTTL.Seconds()),
		Scope:       scopeString(token.Scope),
	}, nil
}

// CodeRequest carries the authorization context bound to a new code.
type CodeRequest struct {
	Principal          string
	ClientID           string
	Scope              []string
	AuthenticationTime time.Time
	SessionID          string
	Nonce              string

	CodeChallenge       string
	CodeChallengeMethod string
}

// IssueCode mints a single-use authorization code for a completed
// authorization and stores its fingerprint. The opaque code value is
// returned to be relayed through the redirect; only its fingerprint
// is ever persisted.
func (s *GrantService) IssueCode(ctx context.Context, req CodeRequest) (string, error) {
	now := s.now()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = idx.New().String()
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return "", err
		}

		err = s.Codes.Store(ctx, domain.AuthorizationCode{
			CodeFingerprint:     cryptox.FingerprintToken(opaque),
			Principal:           req.Principal,
			ClientID:            req.ClientID,
			Scope:               req.Scope,
			AuthenticationTime:  req.AuthenticationTime,
			SessionID:           sessionID,
			Nonce:               req.Nonce,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
			ExpiresAt:           now.Add(s.CodeTTL),
			CreatedAt:           now,
		})
		if err == nil {
			return opaque, nil
		}
		if !errors.Is(err, store.ErrDuplicateCode) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("service: authorization code collision persisted after retry: %w", lastErr)
}

// verifyCodeVerifier checks the PKCE verifier against the challenge stored
// with the code. A code stored without a challenge accepts any request; a
// stored challenge with a missing or mismatched verifier is a malformed
// request rather than a bad grant.
func verifyCodeVerifier(code domain.AuthorizationCode, verifier string) error {
	if code.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return ErrInvalidRequest
	}

	var derived string
	switch code.CodeChallengeMethod {
	case CodeChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(sum[:])
	case CodeChallengeMethodPlain, "":
		derived = verifier
	default:
		return ErrInvalidRequest
	}

	if subtle.ConstantTimeCompare([]byte(derived), []byte(code.CodeChallenge)) != 1 {
		return ErrInvalidRequest
	}
	return nil
}

func containsScope(scope []string, value string) bool {
	return slices.Contains(scope, value)
}

func scopeString(scope []string) string {
	return strings.Join(scope, " ")
}

package service

import (
	"context"
	"errors"

	"github.com/signetauth/signet/pkg/cryptox"
)

// ErrAuthenticationFailed indicates bad resource-owner credentials. The
// password grant maps it to invalid_grant without detail, so callers cannot
// distinguish an unknown user from a wrong password.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Authenticator validates resource-owner credentials for the password grant
// and returns the principal the credentials belong to.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
}

// StaticAuthenticator authenticates against a fixed map of username to
// argon2id password hash. Suitable for development and small closed
// deployments; anything bigger should implement Authenticator against a
// real user directory.
type StaticAuthenticator struct {
	// Users maps usernames to PHC-formatted argon2id hashes produced by
	// cryptox.HashPassword.
	Users map[string]string
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, username, password string) (string, error) {
	hash, ok := a.Users[username]
	if !ok {
		// Burn comparable time on a throwaway hash so unknown users are not
		// distinguishable by response latency.
		_ = cryptox.VerifyPassword(password, phantomHash)
		return "", ErrAuthenticationFailed
	}

	if err := cryptox.VerifyPassword(password, hash); err != nil {
		return "", ErrAuthenticationFailed
	}
	return username, nil
}

// phantomHash is a valid argon2id hash of a random throwaway value, used to
// equalize verification timing for unknown usernames.
const phantomHash = "$argon2id$v=19$m=65536,t=3,p=2$c2lnbmV0LXBoYW50b20$kXlQyL9WVdwDlKaQ0zvIXeC61d4aMJyjsmCFXDamLYo"

package store

import (
	"context"
	"errors"

	"github.com/signetauth/signet/internal/idp/domain"
)

var (
	// ErrNotFound reports an absent row. For codes and refresh tokens an
	// expired row is reported the same way: expiry is enforced at read time,
	// so absent-on-expiry and absent-on-consumed are indistinguishable.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateCode reports an authorization code fingerprint collision.
	ErrDuplicateCode = errors.New("store: duplicate authorization code")

	// ErrDuplicateToken reports a refresh token fingerprint collision. This
	// is the only retryable store condition: the caller regenerates the
	// opaque token and saves again.
	ErrDuplicateToken = errors.New("store: duplicate refresh token")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. Both repositories enforce their atomicity requirements in
// single statements, so no transaction surface is exposed.
type Store interface {
	AuthorizationCodes() AuthorizationCodes
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// AuthorizationCodes is the short-lived, single-use handoff cache between
// the authorize step and the token step.
type AuthorizationCodes interface {
	// Store inserts a freshly minted code context, keyed by fingerprint.
	// Returns ErrDuplicateCode if the fingerprint already exists.
	Store(ctx context.Context, code domain.AuthorizationCode) error

	// Consume atomically reads and deletes the context in one statement.
	// Concurrent callers racing on the same code see at most one success;
	// everyone else, and any caller of an expired or unknown code, gets
	// ErrNotFound.
	Consume(ctx context.Context, fingerprint string) (domain.AuthorizationCode, error)

	// DeleteExpired removes codes that expired without being consumed.
	DeleteExpired(ctx context.Context) error
}

// RefreshTokens is the durable refresh token store with expiry-aware reads.
type RefreshTokens interface {
	// Save persists a new context. Returns ErrDuplicateToken on fingerprint
	// collision; uniqueness is enforced atomically with the insert.
	Save(ctx context.Context, token domain.RefreshToken) error

	// Load returns the context for a fingerprint. Expired-but-not-yet-purged
	// rows are invisible and reported as ErrNotFound.
	Load(ctx context.Context, fingerprint string) (domain.RefreshToken, error)

	// FindByClientIDAndSubject returns the newest live context for a
	// client/subject pair, with the same read-time expiry rule as Load.
	FindByClientIDAndSubject(ctx context.Context, clientID, subject string) (domain.RefreshToken, error)

	// Revoke deletes the context if present; a no-op when absent.
	Revoke(ctx context.Context, fingerprint string) error

	// DeleteExpired removes all rows whose expiry is in the past. Idempotent
	// and safe to run concurrently with reads and writes on other rows.
	DeleteExpired(ctx context.Context) error
}

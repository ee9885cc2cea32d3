package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/signetauth/signet/internal/idp/domain"
	"github.com/signetauth/signet/internal/idp/store"
)

type refreshTokensRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *refreshTokensRepo) Save(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			token_fingerprint, principal, client_id, scope, expiry, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		t.TokenFingerprint,
		t.Principal,
		t.ClientID,
		joinScope(t.Scope),
		mapOptionalTime(t.Expiry),
		t.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateToken
	}
	return err
}

func (r *refreshTokensRepo) Load(ctx context.Context, fingerprint string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token_fingerprint, principal, client_id, scope, expiry, created_at
		FROM refresh_tokens
		WHERE token_fingerprint = ? AND (expiry IS NULL OR expiry > ?)`,
		fingerprint, r.now(),
	)
	return scanRefreshToken(row)
}

func (r *refreshTokensRepo) FindByClientIDAndSubject(ctx context.Context, clientID, subject string) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token_fingerprint, principal, client_id, scope, expiry, created_at
		FROM refresh_tokens
		WHERE client_id = ? AND principal = ? AND (expiry IS NULL OR expiry > ?)
		ORDER BY created_at DESC
		LIMIT 1`,
		clientID, subject, r.now(),
	)
	return scanRefreshToken(row)
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, fingerprint string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_fingerprint = ?`, fingerprint)
	return err
}

func (r *refreshTokensRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expiry IS NOT NULL AND expiry < ?`, r.now())
	return err
}

func scanRefreshToken(row *sql.Row) (domain.RefreshToken, error) {
	var (
		t      domain.RefreshToken
		scope  string
		expiry sql.NullTime
	)
	err := row.Scan(
		&t.TokenFingerprint,
		&t.Principal,
		&t.ClientID,
		&scope,
		&expiry,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}

	t.Scope = splitScope(scope)
	t.Expiry = mapNullTimePtr(expiry)
	return t, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/signetauth/signet/internal/idp/domain"
	"github.com/signetauth/signet/internal/idp/store"
)

type authorizationCodesRepo struct {
	db  *sql.DB
	now func() time.Time
}

func (r *authorizationCodesRepo) Store(ctx context.Context, code domain.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (
			code_fingerprint, principal, client_id, scope, auth_time,
			session_id, nonce, code_challenge, code_challenge_method,
			expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.CodeFingerprint,
		code.Principal,
		code.ClientID,
		joinScope(code.Scope),
		code.AuthenticationTime,
		code.SessionID,
		code.Nonce,
		code.CodeChallenge,
		code.CodeChallengeMethod,
		code.ExpiresAt,
		code.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateCode
	}
	return err
}

// Consume deletes the row and returns its prior value in a single statement,
// so two callers racing on the same code can never both succeed. An expired
// row is removed too but reported as absent.
func (r *authorizationCodesRepo) Consume(ctx context.Context, fingerprint string) (domain.AuthorizationCode, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM authorization_codes
		WHERE code_fingerprint = ?
		RETURNING code_fingerprint, principal, client_id, scope, auth_time,
			session_id, nonce, code_challenge, code_challenge_method,
			expires_at, created_at`,
		fingerprint,
	)

	var (
		code  domain.AuthorizationCode
		scope string
	)
	err := row.Scan(
		&code.CodeFingerprint,
		&code.Principal,
		&code.ClientID,
		&scope,
		&code.AuthenticationTime,
		&code.SessionID,
		&code.Nonce,
		&code.CodeChallenge,
		&code.CodeChallengeMethod,
		&code.ExpiresAt,
		&code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AuthorizationCode{}, store.ErrNotFound
		}
		return domain.AuthorizationCode{}, err
	}

	if !r.now().Before(code.ExpiresAt) {
		return domain.AuthorizationCode{}, store.ErrNotFound
	}

	code.Scope = splitScope(scope)
	return code, nil
}

func (r *authorizationCodesRepo) DeleteExpired(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < ?`, r.now())
	return err
}

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signetauth/signet/internal/idp/domain"
	"github.com/signetauth/signet/internal/idp/store"
	"github.com/signetauth/signet/pkg/cryptox"
)

func testRefreshToken(fingerprint string, expiry *time.Time, created time.Time) domain.RefreshToken {
	return domain.RefreshToken{
		TokenFingerprint: fingerprint,
		Principal:        "alice",
		ClientID:         "web-app",
		Scope:            []string{"openid", "offline_access"},
		Expiry:           expiry,
		CreatedAt:        created,
	}
}

func TestRefreshTokensSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()
	expiry := now.Add(time.Hour)

	fingerprint := cryptox.FingerprintToken("refresh-1")
	require.NoError(t, s.RefreshTokens().Save(ctx, testRefreshToken(fingerprint, &expiry, now)))

	t.Run("load returns the stored context", func(t *testing.T) {
		token, err := s.RefreshTokens().Load(ctx, fingerprint)
		require.NoError(t, err)
		require.Equal(t, "alice", token.Principal)
		require.Equal(t, "web-app", token.ClientID)
		require.Equal(t, []string{"openid", "offline_access"}, token.Scope)
		require.NotNil(t, token.Expiry)
	})

	t.Run("unknown fingerprint", func(t *testing.T) {
		_, err := s.RefreshTokens().Load(ctx, cryptox.FingerprintToken("never-issued"))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate fingerprint", func(t *testing.T) {
		err := s.RefreshTokens().Save(ctx, testRefreshToken(fingerprint, &expiry, now))
		require.ErrorIs(t, err, store.ErrDuplicateToken)
	})
}

func TestRefreshTokensExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	expiry := base.Add(time.Hour)
	expiring := cryptox.FingerprintToken("expiring")
	permanent := cryptox.FingerprintToken("permanent")
	require.NoError(t, s.RefreshTokens().Save(ctx, testRefreshToken(expiring, &expiry, base)))
	require.NoError(t, s.RefreshTokens().Save(ctx, testRefreshToken(permanent, nil, base)))

	t.Run("expired token reads as absent at load time", func(t *testing.T) {
		s.now = func() time.Time { return base.Add(2 * time.Hour) }
		_, err := s.RefreshTokens().Load(ctx, expiring)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("nil expiry never expires", func(t *testing.T) {
		s.now = func() time.Time { return base.AddDate(10, 0, 0) }
		token, err := s.RefreshTokens().Load(ctx, permanent)
		require.NoError(t, err)
		require.Nil(t, token.Expiry)
	})

	t.Run("cleanup removes expired rows but keeps non-expiring ones", func(t *testing.T) {
		s.now = func() time.Time { return base.Add(2 * time.Hour) }
		require.NoError(t, s.RefreshTokens().DeleteExpired(ctx))
		require.NoError(t, s.RefreshTokens().DeleteExpired(ctx)) // idempotent

		s.now = func() time.Time { return base }
		_, err := s.RefreshTokens().Load(ctx, expiring)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.RefreshTokens().Load(ctx, permanent)
		require.NoError(t, err)
	})
}

func TestRefreshTokensFindByClientIDAndSubject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	older := cryptox.FingerprintToken("older")
	newer := cryptox.FingerprintToken("newer")
	require.NoError(t, s.RefreshTokens().Save(ctx, testRefreshToken(older, nil, base.Add(-time.Hour))))
	require.NoError(t, s.RefreshTokens().Save(ctx, testRefreshToken(newer, nil, base)))

	t.Run("returns the most recently issued token", func(t *testing.T) {
		token, err := s.RefreshTokens().FindByClientIDAndSubject(ctx, "web-app", "alice")
		require.NoError(t, err)
		require.Equal(t, newer, token.TokenFingerprint)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := s.RefreshTokens().FindByClientIDAndSubject(ctx, "web-app", "bob")
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.RefreshTokens().FindByClientIDAndSubject(ctx, "other-app", "alice")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRefreshTokensRevoke(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	fingerprint := cryptox.FingerprintToken("revocable")
	require.NoError(t, s.RefreshTokens().Save(ctx, testRefreshToken(fingerprint, nil, now)))

	require.NoError(t, s.RefreshTokens().Revoke(ctx, fingerprint))

	_, err := s.RefreshTokens().Load(ctx, fingerprint)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Revoking an unknown or already revoked token is a no-op.
	require.NoError(t, s.RefreshTokens().Revoke(ctx, fingerprint))
	require.NoError(t, s.RefreshTokens().Revoke(ctx, cryptox.FingerprintToken("never-issued")))
}

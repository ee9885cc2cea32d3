package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signetauth/signet/pkg/cryptox"
)

func TestStaticAuthenticator(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	hash, err := cryptox.HashPassword("hunter2")
	require.NoError(t, err)

	auth := &StaticAuthenticator{Users: map[string]string{"alice": hash}}

	t.Run("valid credentials return the principal", func(t *testing.T) {
		principal, err := auth.Authenticate(ctx, "alice", "hunter2")
		require.NoError(t, err)
		require.Equal(t, "alice", principal)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := auth.Authenticate(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})

	t.Run("unknown user fails identically", func(t *testing.T) {
		_, err := auth.Authenticate(ctx, "mallory", "hunter2")
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	})
}

package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseResourceScopes(t *testing.T) {
	t.Parallel()

	t.Run("parses scope to audience pairs", func(t *testing.T) {
		scopes := parseResourceScopes("sample.read=https://rs.example,sample.write=https://rs.example")
		require.Equal(t, map[string]string{
			"sample.read":  "https://rs.example",
			"sample.write": "https://rs.example",
		}, scopes)
	})

	t.Run("tolerates whitespace and empty entries", func(t *testing.T) {
		scopes := parseResourceScopes(" a=1 , , b=2,=3,c= ")
		require.Equal(t, map[string]string{"a": "1", "b": "2"}, scopes)
	})

	t.Run("empty input yields empty map", func(t *testing.T) {
		require.Empty(t, parseResourceScopes(""))
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	require.NotEmpty(t, cfg.Issuer)
	require.Equal(t, 10*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, 30*24*time.Hour, cfg.RefreshTokenTTL)
	require.Equal(t, 15*time.Minute, cfg.IDTokenTTL)
	require.Equal(t, time.Minute, cfg.CodeTTL)
	require.Equal(t, 24*time.Hour, cfg.KeyRotationInterval)
	require.Equal(t, 28*24*time.Hour, cfg.KeyRetentionPeriod)
	require.False(t, cfg.FrontChannelLogoutEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SIGNET_ISSUER", "https://idp.example")
	t.Setenv("SIGNET_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("SIGNET_REFRESH_TOKEN_TTL", "0")
	t.Setenv("SIGNET_FRONT_CHANNEL_LOGOUT", "true")
	t.Setenv("SIGNET_RESOURCE_SCOPES", "sample.read=https://rs.example")

	cfg := LoadConfig()
	require.Equal(t, "https://idp.example", cfg.Issuer)
	require.Equal(t, 5*time.Minute, cfg.AccessTokenTTL)
	require.Zero(t, cfg.RefreshTokenTTL)
	require.True(t, cfg.FrontChannelLogoutEnabled)
	require.Equal(t, "https://rs.example", cfg.ResourceScopes["sample.read"])
}

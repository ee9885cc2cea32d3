package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer       string // Required: issuer claim for tokens
	DatabaseFile string // Optional: path to SQLite database file (default: ./signet.db)

	AccessTokenTTL  time.Duration // Optional: access token lifetime (default: 10m)
	RefreshTokenTTL time.Duration // Optional: refresh token lifetime, 0 means non-expiring (default: 30 days)
	IDTokenTTL      time.Duration // Optional: ID token lifetime (default: 15m)
	CodeTTL         time.Duration // Optional: authorization code lifetime (default: 1m)

	KeyRotationInterval time.Duration // Optional: interval between signing key rotations (default: 24h)
	KeyRetentionPeriod  time.Duration // Optional: how long rotated-out keys stay published (default: 28 days)
	RSABits             int           // Optional: RSA key size for signing keys (default: 2048)

	// ResourceScopes maps scope values to protected-resource audiences,
	// parsed from "scope=audience,scope=audience" pairs.
	ResourceScopes map[string]string

	FrontChannelLogoutEnabled bool // Optional: include sid in ID tokens (default: false)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:       os.Getenv("SIGNET_ISSUER"),
		DatabaseFile: getEnvOrDefault("SIGNET_DATABASE_FILE", "signet.db"),

		AccessTokenTTL:  getEnvDurationOrDefault("SIGNET_ACCESS_TOKEN_TTL", 10*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("SIGNET_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		IDTokenTTL:      getEnvDurationOrDefault("SIGNET_ID_TOKEN_TTL", 15*time.Minute),
		CodeTTL:         getEnvDurationOrDefault("SIGNET_CODE_TTL", 1*time.Minute),

		KeyRotationInterval: getEnvDurationOrDefault("SIGNET_KEY_ROTATION_INTERVAL", 24*time.Hour),
		KeyRetentionPeriod:  getEnvDurationOrDefault("SIGNET_KEY_RETENTION_PERIOD", 28*24*time.Hour),
		RSABits:             getEnvIntOrDefault("SIGNET_RSA_BITS", 0),

		ResourceScopes: parseResourceScopes(os.Getenv("SIGNET_RESOURCE_SCOPES")),

		FrontChannelLogoutEnabled: getEnvBoolOrDefault("SIGNET_FRONT_CHANNEL_LOGOUT", false),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "http://localhost:8080"
	}

	return cfg
}

// parseResourceScopes parses "scope=audience" pairs separated by commas,
// e.g. "sample.read=http://rs.local,sample.write=http://rs.local".
func parseResourceScopes(value string) map[string]string {
	scopes := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		scope, audience, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || scope == "" || audience == "" {
			continue
		}
		scopes[scope] = audience
	}
	return scopes
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

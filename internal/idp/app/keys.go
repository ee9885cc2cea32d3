package app

import (
	"fmt"
	"log/slog"

	"github.com/signetauth/signet/pkg/keyring"
)

// InitKeyring builds the in-memory keyring and populates it with the
// permanent symmetric keys plus an initial rotating batch. Keys live only in
// memory: every restart invalidates all previously issued tokens.
func InitKeyring(cfg Config, logger *slog.Logger) (*keyring.Keyring, error) {
	keys := keyring.New(keyring.Config{
		RetentionPeriod: cfg.KeyRetentionPeriod,
		RSABits:         cfg.RSABits,
	})

	if err := keys.InitPermanentKeys(); err != nil {
		return nil, fmt.Errorf("failed to initialize permanent keys: %w", err)
	}
	if err := keys.Rotate(); err != nil {
		return nil, fmt.Errorf("failed to generate initial signing keys: %w", err)
	}

	current, err := keys.SelectSigningKey(keyring.RSA)
	if err != nil {
		return nil, fmt.Errorf("no current signing key after initial rotation: %w", err)
	}

	logger.Info("keyring initialized",
		"kid", current.ID(),
		"keys", len(keys.All()),
		"retention_period", cfg.KeyRetentionPeriod,
	)
	logger.Warn("all previously issued tokens are now invalid due to key generation on startup")

	return keys, nil
}

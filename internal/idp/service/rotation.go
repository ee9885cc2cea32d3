package service

import (
	"log/slog"
	"time"

	"github.com/signetauth/signet/pkg/keyring"
)

// RotationService periodically rotates the keyring's signing keys so tokens
// are never signed with keys older than the rotation interval, while retired
// keys stay published for verification until the retention window closes.
type RotationService struct {
	Keys     *keyring.Keyring
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRotationService creates a new rotation service with the given interval.
// If interval is 0 or negative, defaults to 24 hours.
func NewRotationService(keys *keyring.Keyring, logger *slog.Logger, interval time.Duration) *RotationService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	return &RotationService{
		Keys:     keys,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically rotates keys.
// The keyring must already hold an initial batch; Start does not rotate
// immediately. Call Stop() to gracefully shutdown the worker.
func (s *RotationService) Start() {
	go s.run()
	s.Logger.Info("key rotation service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress rotation.
func (s *RotationService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("key rotation service stopped")
}

func (s *RotationService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.rotate()
		case <-s.stopCh:
			return
		}
	}
}

// rotate performs one rotation. Failures leave the previous key set intact,
// so a transient generation error just delays rotation by one interval.
func (s *RotationService) rotate() {
	if err := s.Keys.Rotate(); err != nil {
		s.Logger.Error("key rotation failed", "error", err)
		return
	}

	current, err := s.Keys.SelectSigningKey(keyring.RSA)
	if err != nil {
		s.Logger.Error("no current signing key after rotation", "error", err)
		return
	}
	s.Logger.Info("signing keys rotated", "kid", current.ID(), "published_keys", len(s.Keys.All()))
}

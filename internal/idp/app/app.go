package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/signetauth/signet/internal/idp/service"
	"github.com/signetauth/signet/internal/idp/store"
	"github.com/signetauth/signet/internal/idp/store/drivers/sqlite"
	"github.com/signetauth/signet/pkg/keyring"
	"github.com/signetauth/signet/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the token issuance engine with all its
// dependencies. The HTTP surface is expected to live in a separate frontend
// that embeds this package.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db   store.Store
	keys *keyring.Keyring

	// Services
	tokenService        *service.TokenService
	grantService        *service.GrantService
	rotationService     *service.RotationService
	housekeepingService *service.HousekeepingService
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "signet",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keys, err := InitKeyring(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.keys = keys

	app.initServices()

	return app, nil
}

// Tokens exposes the token service for embedding frontends.
func (app *Application) Tokens() *service.TokenService { return app.tokenService }

// Grants exposes the grant service for embedding frontends.
func (app *Application) Grants() *service.GrantService { return app.grantService }

// Keys exposes the keyring, typically for serving the JWKS document.
func (app *Application) Keys() *keyring.Keyring { return app.keys }

// Run starts the background workers and blocks until shutdown is requested
func (app *Application) Run() error {
	app.rotationService.Start()
	app.housekeepingService.Start()

	app.logger.Info("token engine started", "issuer", app.cfg.Issuer, "version", BuildVersion)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down token engine...")

	app.rotationService.Stop()
	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("token engine stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Keys:          app.keys,
		RefreshTokens: app.db.RefreshTokens(),

		Issuer:          app.cfg.Issuer,
		AccessTokenTTL:  app.cfg.AccessTokenTTL,
		RefreshTokenTTL: app.cfg.RefreshTokenTTL,
		IDTokenTTL:      app.cfg.IDTokenTTL,

		ResourceScopes:            app.cfg.ResourceScopes,
		FrontChannelLogoutEnabled: app.cfg.FrontChannelLogoutEnabled,
	}

	app.grantService = &service.GrantService{
		Tokens:        app.tokenService,
		Codes:         app.db.AuthorizationCodes(),
		RefreshTokens: app.db.RefreshTokens(),
		CodeTTL:       app.cfg.CodeTTL,
	}

	app.rotationService = service.NewRotationService(
		app.keys,
		app.logger,
		app.cfg.KeyRotationInterval,
	)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

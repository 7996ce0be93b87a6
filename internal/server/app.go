// Package server wires configuration, storage, and transport into the two
// runnable applications: the listings HTTP service and the scraper.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-scraper/internal/api"
	"github.com/JakeFAU/listing-scraper/internal/config"
	"github.com/JakeFAU/listing-scraper/internal/listing"
	"github.com/JakeFAU/listing-scraper/internal/logging"
	"github.com/JakeFAU/listing-scraper/internal/metrics"
	memorystorage "github.com/JakeFAU/listing-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/listing-scraper/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App contains the listings service dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	repo      listing.Repository
	apiServer *api.Server
}

// Build creates the service dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.ValidateServe(); err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	// Define a struct for logging only non-sensitive config fields
	type SanitizedConfig struct {
		ServerPort  int    `json:"server_port"`
		Driver      string `json:"driver"`
		AuthEnabled bool   `json:"auth_enabled"`
	}
	logger.Info("Creating application", zap.Any("config", SanitizedConfig{
		ServerPort:  cfg.Server.Port,
		Driver:      cfg.DB.Driver,
		AuthEnabled: cfg.Auth.Enabled,
	}))
	metrics.Init()

	repo, err := setupRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		apiServer: api.NewServer(repo, cfg, logger.Named("api")),
	}, nil
}

// Run serves HTTP until ctx ends or SIGINT/SIGTERM arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases the repository and flushes logs.
func (a *App) Close() {
	if a.repo != nil {
		a.repo.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func setupRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (listing.Repository, error) {
	if cfg.DB.Driver == config.DriverMemory {
		logger.Warn("using in-memory listing store; data is lost on restart")
		return memorystorage.NewListingStore(), nil
	}
	store, err := pgstore.NewListingStore(ctx, pgstore.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.ConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("listing store init failed: %w", err)
	}
	if cfg.DB.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("schema migration failed: %w", err)
		}
		logger.Info("listing schema ensured")
	}
	logger.Info("postgres listing store initialized", zap.Int32("max_conns", cfg.DB.MaxConns))
	return store, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

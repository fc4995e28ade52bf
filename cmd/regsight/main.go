package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/regsight/regsight/internal/auth"
	"github.com/regsight/regsight/internal/config"
	"github.com/regsight/regsight/internal/ingest"
	"github.com/regsight/regsight/internal/ledger"
	"github.com/regsight/regsight/internal/quality"
	"github.com/regsight/regsight/internal/reconcile"
	"github.com/regsight/regsight/internal/register"
	"github.com/regsight/regsight/internal/score"
	"github.com/regsight/regsight/internal/server"
	"github.com/regsight/regsight/internal/storage"
	"github.com/regsight/regsight/internal/telemetry"
	"github.com/regsight/regsight/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("REGSIGHT_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("regsight starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, false)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// The bootstrap admin key is held only as an Argon2id hash; token
	// issuance is disabled entirely when no key is configured.
	var adminKeyHash string
	if cfg.AdminAPIKey != "" {
		adminKeyHash, err = auth.HashAPIKey(cfg.AdminAPIKey)
		if err != nil {
			return fmt.Errorf("auth: hash admin key: %w", err)
		}
	} else {
		logger.Warn("no admin API key configured, token issuance is disabled")
	}

	led := ledger.New(db, logger)
	resolver := ingest.NewResolver(db, led, logger)
	processor := ingest.NewProcessor(resolver, cfg.IngestWorkers, logger)
	checker := quality.NewChecker(db, logger)
	reconciler := reconcile.New(db, logger)
	reviewReg := register.New(db, logger)
	scores := score.NewEngine(db, logger)

	handlers := server.NewHandlers(server.HandlersDeps{
		Store:               db,
		Tokens:              tokens,
		Processor:           processor,
		Ledger:              led,
		Checker:             checker,
		Reconciler:          reconciler,
		Register:            reviewReg,
		Scores:              scores,
		AdminKeyHash:        adminKeyHash,
		QualityWindow:       cfg.QualityWindow,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		Version:             version,
		Logger:              logger,
	})

	srv := server.New(server.ServerConfig{
		Handlers:     handlers,
		Tokens:       tokens,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

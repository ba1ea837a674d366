package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gatepass/server/internal/auth"
	"github.com/gatepass/server/internal/checkin"
	"github.com/gatepass/server/internal/config"
	"github.com/gatepass/server/internal/credential"
	"github.com/gatepass/server/internal/db"
	httphandler "github.com/gatepass/server/internal/http"
	"github.com/gatepass/server/internal/http/handlers"
	"github.com/gatepass/server/internal/logger"
	"github.com/gatepass/server/internal/middleware"
	"github.com/gatepass/server/internal/repo"
	"github.com/gatepass/server/internal/storage"
)

func main() {
	// Load configuration (.env is optional; env vars override)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
	appLogger.Info("Configuration loaded", cfg.LogAttrs()...)

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *slog.Logger) error {
	// Cancelled on SIGINT/SIGTERM; background loops stop with it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL, appLogger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database, appLogger); err != nil {
		return err
	}

	codec, err := credential.NewCodec(cfg.CredentialSecret,
		credential.WithQRSize(cfg.QRSize),
		credential.WithMaxVersion(cfg.QRMaxVersion),
	)
	if err != nil {
		return err
	}

	images, err := storage.NewFSStore(cfg.ImageDir)
	if err != nil {
		return err
	}

	// Initialize repositories
	attendeeRepo := repo.NewAttendeeRepo(database)
	credentialRepo := repo.NewCredentialRepo(database)

	// Initialize check-in services
	verifier := checkin.NewVerifier(codec, attendeeRepo, credentialRepo, appLogger)
	service := checkin.NewService(verifier, attendeeRepo, credentialRepo, checkin.Policy{AllowReentry: cfg.AllowReentry}, appLogger)
	issuer := checkin.NewIssuer(codec, attendeeRepo, credentialRepo, images, appLogger)
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	scanLimiter := middleware.NewRateLimiter(cfg.ScanRateRPS, cfg.ScanRateBurst)
	go scanLimiter.RunCleanup(ctx, 5*time.Minute)

	router := httphandler.NewRouter(httphandler.Handlers{
		Health:     handlers.NewHealthHandler(database),
		Scan:       handlers.NewScanHandler(service, appLogger),
		Credential: handlers.NewCredentialHandler(issuer, appLogger),
	}, jwtService, scanLimiter, appLogger)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}
	stop()

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

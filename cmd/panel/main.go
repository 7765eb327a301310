package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"botpanel/internal/config"
	"botpanel/internal/httpapi"
	"botpanel/internal/providers"
	"botpanel/internal/secrets"
	"botpanel/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("auth_mode", cfg.AuthMode).
		Str("db_driver", cfg.DB.Driver).
		Msg("starting panel")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var box *secrets.Box
	if cfg.SecretBoxKeyB64 != "" {
		box, err = secrets.NewFromBase64(cfg.SecretBoxKeyB64)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize secret box")
		}
		log.Info().Msg("at-rest key encryption enabled")
	}

	store, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.DB.Driver,
		DSN:           cfg.DB.DSN,
		AutoMigrate:   cfg.DB.AutoMigrate,
		MigrationsDir: "migrations",
		Box:           box,
		LogRetention:  cfg.DB.LogRetention,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	seedHash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash admin password")
	}
	if err := store.Seed(ctx, storage.SeedOptions{
		AdminPasswordHash: string(seedHash),
		APIKeys:           cfg.Bot.SeedKeys,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to seed storage")
	}

	server := httpapi.New(httpapi.Options{
		Store:         store,
		Prober:        providers.NewProber(cfg.Probe.Timeout),
		Logger:        log.Logger,
		AuthMode:      cfg.AuthMode,
		AdminUser:     cfg.Admin.User,
		AdminPassword: cfg.Admin.Password,
		BotSecret:     cfg.Bot.Secret,
		SessionTTL:    cfg.Admin.SessionTTL,
	})

	handler := handlers.LoggingHandler(os.Stdout, server.Router())
	handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Bot-Secret"}),
	)(handler)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

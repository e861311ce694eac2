package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jaker3001/lyfehub/internal/api"
	"github.com/jaker3001/lyfehub/internal/config"
	"github.com/jaker3001/lyfehub/internal/health"
	"github.com/jaker3001/lyfehub/internal/metrics"
	"github.com/jaker3001/lyfehub/internal/store"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("LYFEHUB_ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("db_path", cfg.DBPath).
		Str("auth_mode", cfg.AuthMode).
		Bool("sessions_enabled", cfg.SessionsEnabled()).
		Msg("starting lyfehub")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Storage
	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("db", health.DBCheck(st.DB()))

	// Metrics
	m := metrics.New()

	updateTaskGauges := func() {
		counts, err := st.CountTasksByStatus()
		if err != nil {
			logger.Error().Err(err).Msg("failed to count tasks for gauges")
			return
		}
		for _, status := range []store.TaskStatus{
			store.StatusPlanned, store.StatusReady, store.StatusInProgress,
			store.StatusBlocked, store.StatusReview, store.StatusDone,
		} {
			m.SetTaskCount(string(status), float64(counts[status]))
		}
	}
	updateTaskGauges()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				updateTaskGauges()
			}
		}
	}()

	// Auth
	authCfg := api.AuthConfig{
		Mode:          cfg.AuthMode,
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
	}
	if cfg.AuthMode == "api-key" {
		if cfg.KeyringPath == "" {
			logger.Fatal().Msg("AUTH_MODE=api-key requires KEYRING_PATH")
		}
		kr, err := config.LoadKeyring(cfg.KeyringPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load keyring")
		}
		authCfg.Keys = api.KeysFromKeyring(kr)
		logger.Info().Int("keys", len(authCfg.Keys)).Msg("keyring loaded")
	}

	// Retention sweep
	go func() {
		interval := cfg.RetentionInterval
		if interval <= 0 {
			interval = 6 * time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.RunRetention(ctx); err != nil {
					logger.Error().Err(err).Msg("retention sweep failed")
					continue
				}
				if size, err := st.DBSizeBytes(); err == nil {
					logger.Debug().Int64("db_bytes", size).Msg("retention sweep complete")
				}
			}
		}
	}()

	// HTTP server
	srv := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.ListenAddr,
		AuthConfig:  authCfg,
		RateLimit:   api.RateLimitConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
		CORSOrigins: cfg.CORSOrigins,
		TLSCert:     cfg.TLSCert,
		TLSKey:      cfg.TLSKey,
	}, st, checker, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server exited with error")
		}
	}

	cancel()

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}

	logger.Info().Msg("lyfehub stopped")
}

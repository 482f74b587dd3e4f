package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"rdportal/client/internal/cache"
	"rdportal/client/internal/config"
	"rdportal/client/internal/devstub"
	"rdportal/client/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New("portal-devstub", cfg.Environment)
	logger.Warn().Msg("dev stub backend: for local development and tests only")

	sessions, err := newSessionStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("session store init failed")
	}

	users := devstub.NewDirectory()
	if err := users.SeedDefaults(); err != nil {
		logger.Fatal().Err(err).Msg("seed users failed")
	}

	stub := devstub.NewServer(cfg.Stub, users, sessions, logger)

	sweeper := devstub.NewSweeper(sessions, cfg.Stub.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error().Err(err).Msg("sweeper start failed")
	}

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Stub.Host, cfg.Stub.Port),
		Handler:     stub.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("dev stub listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("dev stub failed")
		}
	}()

	waitForShutdown(logger, srv, sweeper)
}

func newSessionStore(cfg *config.AppConfig, logger zerolog.Logger) (devstub.SessionStore, error) {
	switch cfg.Stub.SessionBackend {
	case "redis":
		client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("stub sessions in redis")
		return devstub.NewRedisSessionStore(client), nil
	case "memory", "":
		return devstub.NewMemorySessionStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Stub.SessionBackend)
	}
}

func waitForShutdown(logger zerolog.Logger, srv *http.Server, sweeper *devstub.Sweeper) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	sweeper.Stop()

	logger.Info().Msg("dev stub exited cleanly")
}

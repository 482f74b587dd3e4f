package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"rdportal/client/internal/apiclient"
	"rdportal/client/internal/cache"
	"rdportal/client/internal/config"
	"rdportal/client/internal/gateway"
	"rdportal/client/internal/log"
	"rdportal/client/internal/session"
	"rdportal/client/internal/tokenstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New("portal-gateway", cfg.Environment)

	var redisClient *redis.Client
	if cfg.TokenStore.Backend == "redis" {
		redisClient, err = cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connect failed")
		}
	}

	tokens, err := tokenstore.New(cfg.TokenStore, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("token store init failed")
	}

	client := apiclient.New(cfg.API, tokens, logger)
	manager := session.NewManager(client, tokens, logger)
	client.SetUnauthorizedHandler(manager.Invalidate)

	// Hydration happens off the serving path; the guard blocks individual
	// requests until it settles.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout+5*time.Second)
		defer cancel()
		if err := manager.Hydrate(ctx); err != nil {
			logger.Warn().Err(err).Msg("startup hydration failed")
		}
	}()

	gw, err := gateway.New(cfg, manager, tokens, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway init failed")
	}

	go func() {
		if err := gw.Start(); err != nil {
			logger.Fatal().Err(err).Msg("gateway failed")
		}
	}()

	waitForShutdown(logger, gw, redisClient)
}

func waitForShutdown(logger zerolog.Logger, gw *gateway.Gateway, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("gateway exited cleanly")
}

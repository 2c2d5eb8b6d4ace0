package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/quote-cache/internal/config"
	"github.com/Sternrassler/quote-cache/pkg/logging"
	"github.com/Sternrassler/quote-cache/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Setup(logging.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "quote-proxy",
		Output:  os.Stderr,
	})
	logger := logging.NewLogger("main")

	var redisClient *redis.Client
	var stateStore ratelimit.StateStore = ratelimit.NewMemoryStateStore()

	if cfg.RedisURL != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid Redis configuration")
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", opts.Addr).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis, sharing rate limit state")

		stateStore = ratelimit.NewRedisStateStore(redisClient)
	}

	app, err := newApp(cfg, stateStore, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create resolver")
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           app.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("upstream", cfg.UpstreamBaseURL).
			Msg("Starting quote proxy server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

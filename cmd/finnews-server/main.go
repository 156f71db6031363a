package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/finnews-client/pkg/alphavantage"
	"github.com/Sternrassler/finnews-client/pkg/client"
	"github.com/Sternrassler/finnews-client/pkg/config"
	"github.com/Sternrassler/finnews-client/pkg/logging"
	"github.com/Sternrassler/finnews-client/pkg/sina"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		l := logging.NewLogger(logging.ComponentServer)
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger(logging.ComponentServer)

	// Redis is optional: without it upstream blocks are not shared.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", opts.Addr).Msg("Failed to connect to Redis")
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.Timeout = cfg.HTTPTimeout
	clientCfg.Retry.MaxAttempts = cfg.MaxRetries
	clientCfg.Redis = redisClient

	newsClient, err := client.New(clientCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create news client")
	}
	defer newsClient.Close()

	throttle, err := client.NewRandomDelay(cfg.ThrottleMin, cfg.ThrottleMax, logging.NewLogger(logging.ComponentClient))
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid throttle bounds")
	}

	news, err := sina.NewService(newsClient, throttle, sina.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create news service")
	}

	deps := dependencies{
		news:   news,
		redis:  redisClient,
		logger: logger,
	}

	// Breaker and block state are per host, so both services share the client.
	if cfg.AlphaVantageAPIKey != "" {
		market, err := alphavantage.New(newsClient, alphavantage.Config{APIKey: cfg.AlphaVantageAPIKey})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Alpha Vantage client")
		}
		deps.market = market
	} else {
		logger.Warn().Msg("ALPHAVANTAGE_API_KEY not set, sentiment and movers routes disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("user_agent", cfg.UserAgent).
			Dur("throttle_min", cfg.ThrottleMin).
			Dur("throttle_max", cfg.ThrottleMax).
			Msg("Starting news server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// redisOptions accepts a redis:// URL or a bare host:port.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		return redis.ParseURL(raw)
	}
	return &redis.Options{Addr: raw}, nil
}

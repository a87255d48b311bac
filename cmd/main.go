/**
 * @description
 * This is the main entry point for the bond-service.
 * It loads configuration, opens the bond store, wires the GLEIF client, the
 * optional Redis rate limiter and RabbitMQ publisher into the bond service,
 * and serves the HTTP API until it receives SIGINT or SIGTERM.
 */
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
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/transfa/bond-service/internal/api"
	"github.com/transfa/bond-service/internal/app"
	"github.com/transfa/bond-service/internal/config"
	"github.com/transfa/bond-service/internal/store"
	"github.com/transfa/bond-service/pkg/gleifclient"
	"github.com/transfa/bond-service/pkg/rabbitmq"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("bond-service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("bond-service stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open bond store: %w", err)
	}
	defer repo.Close()
	logger.Info("database connection established")

	gleif := gleifclient.NewClient(cfg.GleifAPIBaseURL, time.Duration(cfg.GleifTimeoutSeconds)*time.Second, logger)

	var publisher rabbitmq.Publisher
	if cfg.RabbitMQURL == "" {
		logger.Warn("rabbitmq url missing; bond events disabled", "env", "RABBITMQ_URL")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
	} else {
		defer producer.Close()
		publisher = producer
		logger.Info("rabbitmq producer connected")
	}

	service := app.NewBondService(repo, gleif, publisher, cfg.BondEventsExchange, logger)

	if redisClient := connectRedis(ctx, cfg, logger); redisClient != nil {
		defer redisClient.Close()
		service.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix), cfg.BondCreateRateLimitPerMinute)
	}

	auth, err := api.NewAuthenticator(api.AuthConfig{
		JWKSURL:  cfg.AuthJWKSURL,
		Secret:   cfg.AuthJWTSecret,
		Audience: cfg.AuthAudience,
		Issuer:   cfg.AuthIssuer,
	})
	if err != nil {
		return fmt.Errorf("configure authentication: %w", err)
	}

	handler := api.NewHandler(service, repo, logger)
	router := api.NewRouter(handler, auth, cfg.AllowedOrigins())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// connectRedis returns a connected client, or nil when rate limiting is
// disabled or Redis cannot be reached.
func connectRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) *redis.Client {
	if cfg.BondCreateRateLimitPerMinute <= 0 {
		logger.Info("bond create rate limiting disabled")
		return nil
	}
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; bond create rate limiting disabled", "env", "REDIS_URL")
		return nil
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; bond create rate limiting disabled", "error", err)
		return nil
	}

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; bond create rate limiting disabled", "error", err)
		client.Close()
		return nil
	}

	logger.Info("redis connected")
	return client
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/post-ratings/internal/cache"
	"github.com/Clark-Hu/post-ratings/internal/config"
	httpserver "github.com/Clark-Hu/post-ratings/internal/http"
	"github.com/Clark-Hu/post-ratings/internal/logging"
	"github.com/Clark-Hu/post-ratings/internal/rating"
	"github.com/Clark-Hu/post-ratings/internal/repository"
	"github.com/Clark-Hu/post-ratings/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(logging.Config{})
		bootLogger.Fatal().Err(err).Msg("config error")
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()

	if cfg.MigrateOnStart {
		if err := st.Migrate(dbCtx); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
	}

	averageCache, redisClient := openAverageCache(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	repo := repository.New(st)
	svcOpts := rating.Options{
		StoreTimeout: time.Duration(cfg.StoreTimeoutSecs) * time.Second,
		Logger:       logger,
	}
	if averageCache != nil {
		svcOpts.Cache = averageCache
	}
	ratings := rating.NewService(rating.StoreFromRepository(repo), svcOpts)
	server := httpserver.New(cfg, st, repo, ratings, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	logger.Info().Msg("server stopped")
}

// openAverageCache connects to Redis when REDIS_URL is set. The service runs
// uncached when Redis is unset or unreachable at startup.
func openAverageCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*cache.AverageCache, *redis.Client) {
	if cfg.RedisURL == "" || cfg.AverageCacheTTLSecs == 0 {
		logger.Info().Msg("average cache disabled")
		return nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	client, err := cache.Connect(connectCtx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, average cache disabled")
		return nil, nil
	}
	return cache.NewAverageCache(client, cache.Options{
		TTL:    time.Duration(cfg.AverageCacheTTLSecs) * time.Second,
		Logger: logger,
	}), client
}

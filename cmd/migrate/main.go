package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/Clark-Hu/post-ratings/internal/logging"
	"github.com/Clark-Hu/post-ratings/internal/store"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status, version")
		dbURL   = flag.String("db-url", "", "Database URL (defaults to DB_URL)")
	)
	flag.Parse()

	_ = godotenv.Load(".env.local")

	logger := logging.New(logging.Config{Level: os.Getenv("LOG_LEVEL"), Format: "console", Output: os.Stderr})

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DB_URL")
	}
	if dsn == "" {
		logger.Fatal().Msg("DB_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool, store.MigrationCommand(*command), logger); err != nil {
		pool.Close()
		logger.Fatal().Err(err).Str("command", *command).Msg("migration failed")
	}
	logger.Info().Str("command", *command).Msg("migration finished")
}

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/post-ratings/db"
)

// MigrationCommand names a goose operation supported by Migrate.
type MigrationCommand string

const (
	MigrateUp      MigrationCommand = "up"
	MigrateDown    MigrationCommand = "down"
	MigrateStatus  MigrationCommand = "status"
	MigrateVersion MigrationCommand = "version"
)

// Migrate runs a goose command against the embedded migrations using the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cmd MigrationCommand, logger zerolog.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(db.Migrations)
	goose.SetLogger(gooseLogger{logger: logger.With().Str("component", "migrate").Logger()})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	var err error
	switch cmd {
	case MigrateUp:
		err = goose.UpContext(ctx, sqlDB, db.MigrationsDir)
	case MigrateDown:
		err = goose.DownContext(ctx, sqlDB, db.MigrationsDir)
	case MigrateStatus:
		err = goose.StatusContext(ctx, sqlDB, db.MigrationsDir)
	case MigrateVersion:
		err = goose.VersionContext(ctx, sqlDB, db.MigrationsDir)
	default:
		return fmt.Errorf("unknown migration command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}
	return nil
}

// Migrate applies all pending migrations to the store's database.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool, MigrateUp, s.logger)
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	logger zerolog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/post-ratings/internal/metrics"
	"github.com/Clark-Hu/post-ratings/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateKey reports a unique constraint violation.
	ErrDuplicateKey = errors.New("repository: duplicate key")
	// ErrStoreUnavailable reports that the database could not be reached or
	// the call timed out before completing.
	ErrStoreUnavailable = errors.New("repository: store unavailable")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Posts   *PostsRepository
	Ratings *RatingsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Posts:   &PostsRepository{pool: pool},
		Ratings: &RatingsRepository{pool: pool},
	}
}

// classify maps a driver error onto the repository sentinels and wraps it
// with the operation name. It returns the metric class alongside.
func classify(op string, err error) (error, string) {
	if err == nil {
		return nil, ""
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound, "not_found"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrDuplicateKey), "duplicate_key"
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrNotFound), "not_found"
		}
		return fmt.Errorf("%s: %w", op, err), "other"
	}

	// Anything the server did not answer (dial failures, timeouts, cancelled
	// contexts, closed pools) means the store is unavailable.
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err), "unavailable"
}

// observe records metrics for op and returns the classified error.
func observe(op string, start time.Time, err error) error {
	classified, class := classify(op, err)
	metrics.ObserveStoreQuery(op, start, class)
	return classified
}

// withObserve is a small helper for single-row queries.
func withObserve[T any](ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	val, err := fn(ctx)
	return val, observe(op, start, err)
}

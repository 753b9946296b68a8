package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/post-ratings/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RatingsRepository provides persistence for post ratings. It holds no
// business rules: range and presence checks belong to the rating service.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

const ratingColumns = `id::text, post_id, score, user_hash, created_at`

// RatingInsertParams captures the payload required to insert a rating.
type RatingInsertParams struct {
	PostID   int64
	UserHash string
	Score    int
}

// RatingListFilters encapsulates pagination over all ratings.
type RatingListFilters struct {
	Limit  int
	Cursor *RatingCursor
}

// RatingListResult returns the paginated payload.
type RatingListResult struct {
	Items      []domain.Rating
	NextCursor *string
}

// FindByPostAndUser looks a rating up by its natural key.
func (r *RatingsRepository) FindByPostAndUser(ctx context.Context, postID int64, userHash string) (domain.Rating, error) {
	const query = `SELECT ` + ratingColumns + ` FROM ratings WHERE post_id = $1 AND user_hash = $2`
	return withObserve(ctx, "rating_find", func(ctx context.Context) (domain.Rating, error) {
		return scanRating(r.pool.QueryRow(ctx, query, postID, userHash))
	})
}

// Insert creates a rating row. A concurrent insert for the same
// (post_id, user_hash) makes the loser fail with ErrDuplicateKey.
func (r *RatingsRepository) Insert(ctx context.Context, params RatingInsertParams) (domain.Rating, error) {
	const query = `
        INSERT INTO ratings (id, post_id, score, user_hash)
        VALUES ($1,$2,$3,$4)
        RETURNING ` + ratingColumns

	return withObserve(ctx, "rating_insert", func(ctx context.Context) (domain.Rating, error) {
		return scanRating(r.pool.QueryRow(ctx, query, uuid.NewString(), params.PostID, params.Score, params.UserHash))
	})
}

// UpdateScore changes the score of an existing rating; created_at is kept.
func (r *RatingsRepository) UpdateScore(ctx context.Context, ratingID string, score int) (domain.Rating, error) {
	const query = `
        UPDATE ratings
        SET score = $2
        WHERE id = $1
        RETURNING ` + ratingColumns

	return withObserve(ctx, "rating_update", func(ctx context.Context) (domain.Rating, error) {
		return scanRating(r.pool.QueryRow(ctx, query, ratingID, score))
	})
}

// ListByPost returns every rating of a post, newest first.
func (r *RatingsRepository) ListByPost(ctx context.Context, postID int64) ([]domain.Rating, error) {
	const query = `SELECT ` + ratingColumns + ` FROM ratings WHERE post_id = $1 ORDER BY created_at DESC, id DESC`
	return withObserve(ctx, "rating_list_by_post", func(ctx context.Context) ([]domain.Rating, error) {
		rows, err := r.pool.Query(ctx, query, postID)
		if err != nil {
			return nil, err
		}
		return collectRatings(rows)
	})
}

// List returns all ratings newest first, one page at a time.
func (r *RatingsRepository) List(ctx context.Context, filters RatingListFilters) (RatingListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	} else if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}

	args := make([]interface{}, 0, 2)
	var qb strings.Builder
	qb.WriteString("SELECT ")
	qb.WriteString(ratingColumns)
	qb.WriteString(" FROM ratings")
	if filters.Cursor != nil {
		args = append(args, filters.Cursor.CreatedAt, filters.Cursor.ID)
		qb.WriteString(" WHERE (created_at, id) < ($1, $2)")
	}
	qb.WriteString(" ORDER BY created_at DESC, id DESC")
	qb.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	items, err := withObserve(ctx, "rating_list", func(ctx context.Context) ([]domain.Rating, error) {
		rows, err := r.pool.Query(ctx, qb.String(), args...)
		if err != nil {
			return nil, err
		}
		return collectRatings(rows)
	})
	if err != nil {
		return RatingListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(RatingCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return RatingListResult{}, err
		}
		nextCursor = &token
	}
	return RatingListResult{Items: items, NextCursor: nextCursor}, nil
}

// Aggregate returns the unrounded rating average, the exact score sum and the
// count for a post.
func (r *RatingsRepository) Aggregate(ctx context.Context, postID int64) (domain.RatingAggregate, error) {
	const query = `
        SELECT AVG(score)::float8 AS average,
               COALESCE(SUM(score), 0)::int8 AS sum,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE post_id = $1
    `
	return withObserve(ctx, "rating_aggregate", func(ctx context.Context) (domain.RatingAggregate, error) {
		var (
			average *float64
			agg     domain.RatingAggregate
		)
		if err := r.pool.QueryRow(ctx, query, postID).Scan(&average, &agg.Sum, &agg.Count); err != nil {
			return domain.RatingAggregate{}, err
		}
		if average != nil {
			agg.Average = *average
		}
		return agg, nil
	})
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.ID,
		&rating.PostID,
		&rating.Score,
		&rating.UserHash,
		&rating.CreatedAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	return rating, nil
}

func collectRatings(rows pgx.Rows) ([]domain.Rating, error) {
	defer rows.Close()
	items := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

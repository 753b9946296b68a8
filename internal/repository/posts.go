package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/post-ratings/internal/domain"
)

// PostsRepository keeps the registry of post identities ratings can refer to.
type PostsRepository struct {
	pool *pgxpool.Pool
}

const postColumns = `id, title, slug, created_at, updated_at`

// PostUpsertParams bundles the fields the CMS sends when registering a post.
type PostUpsertParams struct {
	ID    int64
	Title string
	Slug  string
}

// Upsert registers a post or refreshes its title/slug, and indicates whether
// the row was newly created.
func (r *PostsRepository) Upsert(ctx context.Context, params PostUpsertParams) (domain.Post, bool, error) {
	const query = `
        INSERT INTO posts (id, title, slug)
        VALUES ($1,$2,$3)
        ON CONFLICT (id)
        DO UPDATE SET title = EXCLUDED.title, slug = EXCLUDED.slug, updated_at = now()
        RETURNING ` + postColumns + `, (xmax = 0) AS inserted
    `

	type result struct {
		post     domain.Post
		inserted bool
	}
	res, err := withObserve(ctx, "post_upsert", func(ctx context.Context) (result, error) {
		var res result
		err := r.pool.QueryRow(ctx, query, params.ID, strings.TrimSpace(params.Title), strings.TrimSpace(params.Slug)).Scan(
			&res.post.ID,
			&res.post.Title,
			&res.post.Slug,
			&res.post.CreatedAt,
			&res.post.UpdatedAt,
			&res.inserted,
		)
		return res, err
	})
	if err != nil {
		return domain.Post{}, false, err
	}
	return res.post, res.inserted, nil
}

// GetByID fetches a post by its identifier.
func (r *PostsRepository) GetByID(ctx context.Context, id int64) (domain.Post, error) {
	return withObserve(ctx, "post_get", func(ctx context.Context) (domain.Post, error) {
		return scanPost(r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	})
}

// Exists reports whether a post with the given id is registered.
func (r *PostsRepository) Exists(ctx context.Context, id int64) (bool, error) {
	return withObserve(ctx, "post_exists", func(ctx context.Context) (bool, error) {
		var exists bool
		err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, id).Scan(&exists)
		return exists, err
	})
}

// Delete removes a post; its ratings go with it through ON DELETE CASCADE.
func (r *PostsRepository) Delete(ctx context.Context, id int64) error {
	_, err := withObserve(ctx, "post_delete", func(ctx context.Context) (struct{}, error) {
		tag, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
		if err != nil {
			return struct{}{}, err
		}
		if tag.RowsAffected() == 0 {
			return struct{}{}, pgx.ErrNoRows
		}
		return struct{}{}, nil
	})
	return err
}

func scanPost(row pgx.Row) (domain.Post, error) {
	var post domain.Post
	err := row.Scan(&post.ID, &post.Title, &post.Slug, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return domain.Post{}, err
	}
	return post, nil
}

package rating

import (
	"context"

	"github.com/Clark-Hu/post-ratings/internal/domain"
	"github.com/Clark-Hu/post-ratings/internal/repository"
)

// Store is the persistence boundary used by Service. Implementations report
// absent rows with repository.ErrNotFound, unique violations with
// repository.ErrDuplicateKey and infrastructure failures with
// repository.ErrStoreUnavailable.
type Store interface {
	PostExists(ctx context.Context, postID int64) (bool, error)
	FindByPostAndUser(ctx context.Context, postID int64, userHash string) (domain.Rating, error)
	Insert(ctx context.Context, params repository.RatingInsertParams) (domain.Rating, error)
	UpdateScore(ctx context.Context, ratingID string, score int) (domain.Rating, error)
	ListByPost(ctx context.Context, postID int64) ([]domain.Rating, error)
	List(ctx context.Context, filters repository.RatingListFilters) (repository.RatingListResult, error)
	Aggregate(ctx context.Context, postID int64) (domain.RatingAggregate, error)
}

// AverageCache stores computed aggregates per post. Implementations swallow
// their own failures; a miss simply falls through to the store.
//
// Every post carries a generation that Invalidate advances. Get reports the
// current generation even on a miss, and Set tags the entry with it, so an
// aggregate read before a concurrent write is never served after that
// write's Invalidate.
type AverageCache interface {
	Get(ctx context.Context, postID int64) (agg domain.RatingAggregate, generation int64, ok bool)
	Set(ctx context.Context, postID int64, generation int64, agg domain.RatingAggregate)
	Invalidate(ctx context.Context, postID int64)
}

type repositoryStore struct {
	*repository.RatingsRepository
	posts *repository.PostsRepository
}

func (s repositoryStore) PostExists(ctx context.Context, postID int64) (bool, error) {
	return s.posts.Exists(ctx, postID)
}

// StoreFromRepository adapts the Postgres repositories to Store.
func StoreFromRepository(repo *repository.Repository) Store {
	return repositoryStore{RatingsRepository: repo.Ratings, posts: repo.Posts}
}

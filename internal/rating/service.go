// Package rating implements anonymous post ratings: at most one rating per
// (post, user_hash), submitted through an insert-or-update protocol, and an
// on-demand average rounded to one decimal place.
package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/post-ratings/internal/domain"
	"github.com/Clark-Hu/post-ratings/internal/metrics"
	"github.com/Clark-Hu/post-ratings/internal/repository"
	"github.com/Clark-Hu/post-ratings/internal/validation"
)

const (
	MinScore       = 1
	MaxScore       = 5
	MaxUserHashLen = 64
)

// Input is a rating submission.
type Input struct {
	PostID   int64  `json:"post_id" validate:"required"`
	Score    int    `json:"score" validate:"gte=1,lte=5"`
	UserHash string `json:"user_hash" validate:"required,max=64"`
}

// Result is the stored rating after a submission. Created is false when an
// existing rating was updated in place.
type Result struct {
	Rating  domain.Rating
	Created bool
}

// Options configures a Service.
type Options struct {
	// Cache is optional.
	Cache AverageCache
	// StoreTimeout bounds every individual store call; zero disables it.
	StoreTimeout time.Duration
	Logger       zerolog.Logger
}

// Service is safe for concurrent use; it keeps no mutable state of its own.
type Service struct {
	store   Store
	cache   AverageCache
	timeout time.Duration
	logger  zerolog.Logger
}

// NewService constructs a Service over store.
func NewService(store Store, opts Options) *Service {
	return &Service{
		store:   store,
		cache:   opts.Cache,
		timeout: opts.StoreTimeout,
		logger:  opts.Logger.With().Str("component", "rating").Logger(),
	}
}

// CreateOrUpdate records in.Score as the rating of in.UserHash for in.PostID.
// The first submission for a pair inserts a row; later ones change its score
// and keep its id and created_at.
func (s *Service) CreateOrUpdate(ctx context.Context, in Input) (Result, error) {
	in.UserHash = strings.TrimSpace(in.UserHash)
	if err := validateInput(in); err != nil {
		return Result{}, err
	}
	if err := s.requirePost(ctx, in.PostID); err != nil {
		return Result{}, err
	}

	res, err := s.upsert(ctx, in)
	if err != nil {
		return Result{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, in.PostID)
	}

	action := "updated"
	if res.Created {
		action = "created"
	}
	s.logger.Info().
		Int64("post_id", in.PostID).
		Int("score", in.Score).
		Str("rating_id", res.Rating.ID).
		Msgf("rating %s", action)
	return res, nil
}

func (s *Service) upsert(ctx context.Context, in Input) (Result, error) {
	existing, err := s.find(ctx, in.PostID, in.UserHash)
	switch {
	case err == nil:
		updated, err := s.updateScore(ctx, existing.ID, in.Score)
		if err != nil {
			return Result{}, err
		}
		metrics.RecordSubmission("updated")
		return Result{Rating: updated}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return Result{}, err
	}

	created, err := s.insert(ctx, in)
	switch {
	case err == nil:
		metrics.RecordSubmission("created")
		return Result{Rating: created, Created: true}, nil
	case errors.Is(err, repository.ErrNotFound):
		// the post was deleted after the existence check
		return Result{}, ErrPostNotFound
	case !errors.Is(err, repository.ErrDuplicateKey):
		return Result{}, err
	}

	// A concurrent submission for the same pair inserted first. Retry once as
	// an update of the row that won.
	s.logger.Debug().Int64("post_id", in.PostID).Msg("insert lost race, retrying as update")
	winner, err := s.find(ctx, in.PostID, in.UserHash)
	if err != nil {
		return Result{}, fmt.Errorf("refetch after duplicate key: %w", err)
	}
	updated, err := s.updateScore(ctx, winner.ID, in.Score)
	if err != nil {
		return Result{}, fmt.Errorf("update after duplicate key: %w", err)
	}
	metrics.RecordSubmission("race_retried")
	return Result{Rating: updated}, nil
}

// ListForPost returns the ratings of a post, newest first. A post without
// ratings yields an empty slice.
func (s *Service) ListForPost(ctx context.Context, postID int64) ([]domain.Rating, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	items, err := s.store.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Rating{}
	}
	return items, nil
}

// AverageRating returns the mean score of a post rounded to one decimal
// place, or 0 when the post has no ratings.
func (s *Service) AverageRating(ctx context.Context, postID int64) (float64, error) {
	agg, err := s.Summary(ctx, postID)
	if err != nil {
		return 0, err
	}
	return agg.Average, nil
}

// Summary returns the rounded average together with the number of ratings,
// so callers can tell "no ratings" apart from a real average.
func (s *Service) Summary(ctx context.Context, postID int64) (domain.RatingAggregate, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return domain.RatingAggregate{}, err
	}
	var generation int64
	if s.cache != nil {
		agg, gen, ok := s.cache.Get(ctx, postID)
		if ok {
			return agg, nil
		}
		generation = gen
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	agg, err := s.store.Aggregate(callCtx, postID)
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	agg.Average = roundedMean(agg.Sum, agg.Count)

	if s.cache != nil {
		s.cache.Set(ctx, postID, generation, agg)
	}
	return agg, nil
}

// List pages through every rating, newest first.
func (s *Service) List(ctx context.Context, filters repository.RatingListFilters) (repository.RatingListResult, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.store.List(ctx, filters)
}

// ForgetPost drops cached state for a post that was deleted, so a post later
// registered under the same id starts from an empty aggregate.
func (s *Service) ForgetPost(ctx context.Context, postID int64) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, postID)
	}
}

func (s *Service) requirePost(ctx context.Context, postID int64) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	exists, err := s.store.PostExists(ctx, postID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrPostNotFound
	}
	return nil
}

func (s *Service) find(ctx context.Context, postID int64, userHash string) (domain.Rating, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.store.FindByPostAndUser(ctx, postID, userHash)
}

func (s *Service) insert(ctx context.Context, in Input) (domain.Rating, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	return s.store.Insert(ctx, repository.RatingInsertParams{PostID: in.PostID, UserHash: in.UserHash, Score: in.Score})
}

func (s *Service) updateScore(ctx context.Context, ratingID string, score int) (domain.Rating, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()
	rating, err := s.store.UpdateScore(ctx, ratingID, score)
	if errors.Is(err, repository.ErrNotFound) {
		// the row can only disappear through its post's cascade delete
		return domain.Rating{}, ErrPostNotFound
	}
	return rating, err
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// validateInput applies the struct rules on Input. A missing field wins over
// any other failure.
func validateInput(in Input) error {
	fields, err := validation.Struct(in)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	for _, f := range fields {
		if f.Tag == "required" {
			return &ValidationError{Field: f.Field, Reason: ReasonMissingFields}
		}
	}
	switch f := fields[0]; f.Field {
	case "score":
		return &ValidationError{Field: f.Field, Reason: ReasonScoreOutOfRange}
	case "user_hash":
		return &ValidationError{Field: f.Field, Reason: ReasonUserHashTooLong}
	default:
		return &ValidationError{Field: f.Field, Reason: fmt.Sprintf("%s is invalid", f.Field)}
	}
}

// roundedMean returns sum/count rounded to one decimal place, ties to even.
// It works on the exact integers so that a mean such as 2.25 is a true tie
// rather than whatever its float64 neighbour happens to be.
func roundedMean(sum, count int64) float64 {
	if count <= 0 {
		return 0
	}
	tenths, rem := (sum*10)/count, (sum*10)%count
	switch twice := 2 * rem; {
	case twice > count, twice == count && tenths%2 != 0:
		tenths++
	}
	return float64(tenths) / 10
}

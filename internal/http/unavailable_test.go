package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Clark-Hu/post-ratings/internal/config"
	"github.com/Clark-Hu/post-ratings/internal/domain"
	"github.com/Clark-Hu/post-ratings/internal/logging"
	"github.com/Clark-Hu/post-ratings/internal/rating"
	"github.com/Clark-Hu/post-ratings/internal/repository"
)

// downStore fails every call the way the Postgres repository does when the
// pool cannot reach the database.
type downStore struct{}

func (downStore) fail(op string) error {
	return fmt.Errorf("%s: dial tcp 127.0.0.1:5432: connect: connection refused: %w", op, repository.ErrStoreUnavailable)
}

func (s downStore) PostExists(ctx context.Context, postID int64) (bool, error) {
	return false, s.fail("post_exists")
}

func (s downStore) FindByPostAndUser(ctx context.Context, postID int64, userHash string) (domain.Rating, error) {
	return domain.Rating{}, s.fail("rating_find")
}

func (s downStore) Insert(ctx context.Context, params repository.RatingInsertParams) (domain.Rating, error) {
	return domain.Rating{}, s.fail("rating_insert")
}

func (s downStore) UpdateScore(ctx context.Context, ratingID string, score int) (domain.Rating, error) {
	return domain.Rating{}, s.fail("rating_update")
}

func (s downStore) ListByPost(ctx context.Context, postID int64) ([]domain.Rating, error) {
	return nil, s.fail("rating_list_by_post")
}

func (s downStore) List(ctx context.Context, filters repository.RatingListFilters) (repository.RatingListResult, error) {
	return repository.RatingListResult{}, s.fail("rating_list")
}

func (s downStore) Aggregate(ctx context.Context, postID int64) (domain.RatingAggregate, error) {
	return domain.RatingAggregate{}, s.fail("rating_aggregate")
}

func TestHandlersReportStoreUnavailable(t *testing.T) {
	logger := logging.Nop()
	svc := rating.NewService(downStore{}, rating.Options{StoreTimeout: time.Second, Logger: logger})
	srv := New(config.Config{Port: "0", CORSAllowedOrigins: "*"}, nil, nil, svc, logger)

	cases := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodPost, "/ratings", `{"post_id":1,"score":4,"user_hash":"alice"}`},
		{http.MethodGet, "/ratings/average/1", ""},
		{http.MethodGet, "/ratings/post/1", ""},
		{http.MethodGet, "/ratings", ""},
	}
	for _, c := range cases {
		rec := do(t, srv, c.method, c.target, c.body)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: status = %d, want 503 (%s)", c.method, c.target, rec.Code, rec.Body.String())
		}
		resp := decode[errorResponse](t, rec)
		if resp.Code != "STORE_UNAVAILABLE" {
			t.Fatalf("%s %s: code = %q, want STORE_UNAVAILABLE", c.method, c.target, resp.Code)
		}
	}

	// validation still answers without touching the store
	rec := do(t, srv, http.MethodPost, "/ratings", `{"post_id":1,"score":9,"user_hash":"alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid score: status = %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz without store: status = %d, want 503", rec.Code)
	}
}

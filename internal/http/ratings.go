package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/post-ratings/internal/domain"
	"github.com/Clark-Hu/post-ratings/internal/rating"
	"github.com/Clark-Hu/post-ratings/internal/repository"
)

// Pointers distinguish an absent field from its zero value.
type ratingRequest struct {
	PostID   *int64  `json:"post_id"`
	Score    *int    `json:"score"`
	UserHash *string `json:"user_hash"`
}

type ratingResponse struct {
	ID        string    `json:"id"`
	PostID    int64     `json:"post_id"`
	Score     int       `json:"score"`
	UserHash  string    `json:"user_hash"`
	CreatedAt time.Time `json:"created_at"`
}

type ratingListResponse struct {
	Items      []ratingResponse `json:"items"`
	NextCursor *string          `json:"next_cursor,omitempty"`
}

type averageResponse struct {
	PostID        int64   `json:"post_id"`
	AverageRating float64 `json:"average_rating"`
	RatingsCount  int64   `json:"ratings_count"`
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	if req.PostID == nil || req.Score == nil || req.UserHash == nil {
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", rating.ReasonMissingFields)
		return
	}

	res, err := s.ratings.CreateOrUpdate(r.Context(), rating.Input{
		PostID:   *req.PostID,
		Score:    *req.Score,
		UserHash: *req.UserHash,
	})
	if err != nil {
		s.respondServiceError(w, r, "process rating", err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, r, status, toRatingResponse(res.Rating))
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	filters, err := buildRatingFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	result, err := s.ratings.List(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, "list ratings", err)
		return
	}

	resp := ratingListResponse{
		Items:      toRatingResponses(result.Items),
		NextCursor: result.NextCursor,
	}
	s.respondJSON(w, r, http.StatusOK, resp)
}

func buildRatingFilters(query url.Values) (repository.RatingListFilters, error) {
	var filters repository.RatingListFilters

	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleListPostRatings(w http.ResponseWriter, r *http.Request) {
	postID, err := parsePostIDParam(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	items, err := s.ratings.ListForPost(r.Context(), postID)
	if err != nil {
		s.respondServiceError(w, r, "list ratings", err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, toRatingResponses(items))
}

func (s *Server) handleGetAverage(w http.ResponseWriter, r *http.Request) {
	postID, err := parsePostIDParam(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	agg, err := s.ratings.Summary(r.Context(), postID)
	if err != nil {
		s.respondServiceError(w, r, "fetch average rating", err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, averageResponse{
		PostID:        postID,
		AverageRating: agg.Average,
		RatingsCount:  agg.Count,
	})
}

func toRatingResponse(r domain.Rating) ratingResponse {
	return ratingResponse{
		ID:        r.ID,
		PostID:    r.PostID,
		Score:     r.Score,
		UserHash:  r.UserHash,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func toRatingResponses(items []domain.Rating) []ratingResponse {
	out := make([]ratingResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toRatingResponse(item))
	}
	return out
}

package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Clark-Hu/post-ratings/internal/domain"
	"github.com/Clark-Hu/post-ratings/internal/repository"
	"github.com/Clark-Hu/post-ratings/internal/validation"
)

type postRequest struct {
	ID    int64  `json:"id" validate:"required,gt=0"`
	Title string `json:"title" validate:"required,max=255"`
	Slug  string `json:"slug" validate:"required,max=255"`
}

type postResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleUpsertPost(w http.ResponseWriter, r *http.Request) {
	if !s.verifyBearer(r.Header.Get("Authorization")) {
		s.respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req postRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Slug = strings.TrimSpace(req.Slug)
	fields, err := validation.Struct(req)
	if err != nil {
		s.respondServiceError(w, r, "register post", err)
		return
	}
	if len(fields) > 0 {
		s.respondJSON(w, r, http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: fmt.Sprintf("%s failed %s validation", fields[0].Field, fields[0].Tag),
			Details: fields,
		})
		return
	}

	post, inserted, err := s.repo.Posts.Upsert(r.Context(), repository.PostUpsertParams{
		ID:    req.ID,
		Title: req.Title,
		Slug:  req.Slug,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			s.respondError(w, r, http.StatusConflict, "CONFLICT", "slug already used by another post")
			return
		}
		s.respondServiceError(w, r, "register post", err)
		return
	}

	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
		w.Header().Set("Location", fmt.Sprintf("/ratings/average/%d", post.ID))
	}
	s.respondJSON(w, r, status, toPostResponse(post))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	postID, err := parsePostIDParam(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	post, err := s.repo.Posts.GetByID(r.Context(), postID)
	if err != nil {
		s.respondServiceError(w, r, "get post", err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, toPostResponse(post))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if !s.verifyBearer(r.Header.Get("Authorization")) {
		s.respondError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	postID, err := parsePostIDParam(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	if err := s.repo.Posts.Delete(r.Context(), postID); err != nil {
		s.respondServiceError(w, r, "delete post", err)
		return
	}
	s.ratings.ForgetPost(r.Context(), postID)
	s.requestLogger(r).Info().Int64("post_id", postID).Msg("post deleted")
	w.WriteHeader(http.StatusNoContent)
}

func toPostResponse(p domain.Post) postResponse {
	return postResponse{
		ID:        p.ID,
		Title:     p.Title,
		Slug:      p.Slug,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Clark-Hu/post-ratings/internal/rating"
	"github.com/Clark-Hu/post-ratings/internal/repository"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.requestLogger(r).Error().Err(err).Msg("failed to encode response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.respondJSON(w, r, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesError):
		s.respondError(w, r, http.StatusRequestEntityTooLarge, "BAD_REQUEST", "Request body too large")
	case errors.As(err, &syntaxError):
		s.respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Request body cannot be empty")
	default:
		s.respondError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Unable to parse request body")
	}
}

// respondServiceError maps rating service and store errors onto the error
// envelope. action names the failed operation in logs.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, action string, err error) {
	var verr *rating.ValidationError
	switch {
	case errors.As(err, &verr):
		s.respondJSON(w, r, http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: verr.Reason,
			Details: map[string]string{"field": verr.Field},
		})
	case errors.Is(err, rating.ErrPostNotFound), errors.Is(err, repository.ErrNotFound):
		s.respondError(w, r, http.StatusNotFound, "NOT_FOUND", "post not found")
	case errors.Is(err, repository.ErrStoreUnavailable):
		s.requestLogger(r).Error().Err(err).Str("action", action).Msg("store unavailable")
		s.respondError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "store unavailable, retry later")
	default:
		s.requestLogger(r).Error().Err(err).Str("action", action).Msg("request failed")
		s.respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to "+action)
	}
}

func parsePostIDParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "postID"))
	if raw == "" {
		return 0, fmt.Errorf("missing post id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid post id")
	}
	return id, nil
}

func (s *Server) verifyBearer(header string) bool {
	if header == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token != "" && token == s.cfg.AuthToken
}

package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
	"github.com/Clark-Hu/pokedex-ratings/internal/rating"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type userResponse struct {
	UserID string `json:"userId"`
}

type membershipResponse struct {
	UserID    string `json:"userId"`
	Rated     []int  `json:"rated"`
	Favorites []int  `json:"favorites"`
}

type rateRequest struct {
	Rating *float64 `json:"rating"`
}

type rateResponse struct {
	EntityRating  float64  `json:"entityRating"`
	NumberOfVotes int64    `json:"numberOfVotes"`
	UserRating    *float64 `json:"userRating,omitempty"`
}

type favoriteResponse struct {
	IsFavorite bool `json:"isFavorite"`
}

type summaryResponse struct {
	Rating        float64 `json:"rating"`
	NumberOfVotes int64   `json:"numberOfVotes"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	user, created, err := s.ratings.RegisterUser(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to register user")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, userResponse{UserID: user.ID})
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())
	s.deleteUser(w, r, userID)
}

// handleDeleteUser lets administrators remove any account; other callers may only
// remove their own.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	callerID, _ := userIDFromContext(r.Context())
	target := strings.TrimSpace(chi.URLParam(r, "userID"))
	if target == "" {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "missing user id")
		return
	}
	if target != callerID && roleFromContext(r.Context()) != roleAdmin {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Cannot delete another user's account")
		return
	}
	s.deleteUser(w, r, target)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request, userID string) {
	if err := s.users.OnUserDeleted(r.Context(), userID); err != nil {
		s.respondServiceError(w, r, err, "Failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMembership(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	m, err := s.ratings.Membership(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to load membership")
		return
	}
	s.respondJSON(w, http.StatusOK, membershipResponse{
		UserID:    m.UserID,
		Rated:     sortedOrEmpty(m.Rated),
		Favorites: sortedOrEmpty(m.Favorites),
	})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	number, err := parseNumberParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	userID, _ := userIDFromContext(r.Context())

	var req rateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Rating == nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "rating is required")
		return
	}

	res, err := s.ratings.Rate(r.Context(), userID, number, *req.Rating)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to process rating")
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, toRateResponse(res))
}

func (s *Server) handleUnrate(w http.ResponseWriter, r *http.Request) {
	number, err := parseNumberParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	userID, _ := userIDFromContext(r.Context())

	res, err := s.ratings.Unrate(r.Context(), userID, number)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to remove rating")
		return
	}
	s.respondJSON(w, http.StatusOK, toRateResponse(res))
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	number, err := parseNumberParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	userID, _ := userIDFromContext(r.Context())

	isFavorite, err := s.ratings.ToggleFavorite(r.Context(), userID, number)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to update favorites")
		return
	}
	s.respondJSON(w, http.StatusOK, favoriteResponse{IsFavorite: isFavorite})
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	numbers, err := parseNumbersQuery(r.URL.Query().Get("numbers"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	summaries, err := s.ratings.Summaries(r.Context(), numbers)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to load ratings")
		return
	}

	resp := make(map[string]summaryResponse, len(summaries))
	for n, summary := range summaries {
		resp[strconv.Itoa(n)] = summaryResponse{Rating: summary.Rating, NumberOfVotes: summary.NumberOfVotes}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// parseNumbersQuery parses a comma separated list of pokedex numbers. An empty
// value yields an empty list.
func parseNumbersQuery(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []int{}, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) > 4*rating.MaxBatchKeys {
		return nil, fmt.Errorf("too many pokedex numbers")
	}
	numbers := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid pokedex number %q", strings.TrimSpace(part))
		}
		if err := domain.ValidatePokedexNumber(n); err != nil {
			return nil, fmt.Errorf("invalid pokedex number %q", strings.TrimSpace(part))
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func parseNumberParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "number")
	if raw == "" {
		return 0, fmt.Errorf("missing pokedex number")
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid pokedex number %q", raw)
	}
	return n, nil
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

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps the shared error taxonomy onto HTTP statuses.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error, internalMessage string) {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, apperrors.ErrConflict):
		s.respondError(w, http.StatusConflict, "CONFLICT", "Concurrent update, please retry")
	case errors.Is(err, apperrors.ErrUnauthorized):
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
	case errors.Is(err, apperrors.ErrForbidden):
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Operation not permitted")
	default:
		s.logger.Error(internalMessage,
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", internalMessage)
	}
}

func toRateResponse(res rating.Result) rateResponse {
	return rateResponse{
		EntityRating:  res.EntityRating,
		NumberOfVotes: res.NumberOfVotes,
		UserRating:    res.UserRating,
	}
}

func sortedOrEmpty(values []int) []int {
	if values == nil {
		return []int{}
	}
	sort.Ints(values)
	return values
}

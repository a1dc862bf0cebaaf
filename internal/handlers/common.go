package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cat-map-backend/internal/middleware"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// UserLoader resolves the signed-in user
type UserLoader interface {
	GetUser(ctx context.Context, userID string) (*models.UserProfile, error)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondServiceError maps a service error to its HTTP status. Unexpected
// failures are logged and reported as fallback.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrLoginRequired):
		respondError(w, "Login required", http.StatusUnauthorized)
	case errors.Is(err, services.ErrForbidden):
		respondError(w, "Permission denied", http.StatusForbidden)
	case errors.Is(err, services.ErrNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNicknameTaken):
		respondError(w, "Nickname already taken", http.StatusConflict)
	case errors.Is(err, services.ErrInvalidState):
		respondError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrLocationUnavailable):
		respondError(w, "Location unavailable", http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrConfirmationRequired):
		respondError(w, "Confirmation required", http.StatusPreconditionRequired)
	default:
		log.Error().Err(err).Msg(fallback)
		respondError(w, fallback, http.StatusInternalServerError)
	}
}

// currentUser loads the user of the request's token; nil when anonymous
func currentUser(r *http.Request, users UserLoader) (*models.UserProfile, error) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		return nil, nil
	}
	return users.GetUser(r.Context(), userID)
}

// confirmed reports whether the request carries the interactive confirmation
func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", services.ErrValidation)
	}
	return nil
}

// readImage reads the "image" part of a multipart form. A missing part yields nil.
func readImage(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("%w: invalid multipart form", services.ErrValidation)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: invalid image", services.ErrValidation)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// parseLocation reads lat and lng from form or query values; nil when both are absent
func parseLocation(r *http.Request) (*models.Location, error) {
	latStr, lngStr := r.FormValue("lat"), r.FormValue("lng")
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid lat", services.ErrValidation)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid lng", services.ErrValidation)
	}
	return &models.Location{Lat: lat, Lng: lng}, nil
}

package handlers

import (
	"net/http"

	"cat-map-backend/internal/middleware"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/services"
)

// UploadHandler drives the confirm-before-upload flow
type UploadHandler struct {
	flow           *services.UploadFlow
	users          UserLoader
	maxUploadBytes int64
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(flow *services.UploadFlow, users UserLoader, maxUploadBytes int64) *UploadHandler {
	return &UploadHandler{
		flow:           flow,
		users:          users,
		maxUploadBytes: maxUploadBytes,
	}
}

// GetCurrent handles GET /api/v1/uploads/current
func (h *UploadHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.flow.Current(middleware.GetUserID(r.Context())))
}

// Begin handles POST /api/v1/uploads/current. The form carries the image
// and, optionally, the device location as lat and lng.
func (h *UploadHandler) Begin(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r, h.maxUploadBytes)
	if err != nil {
		respondServiceError(w, err, "Failed to read upload")
		return
	}
	device, err := parseLocation(r)
	if err != nil {
		respondServiceError(w, err, "Failed to read upload")
		return
	}
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	draft, err := h.flow.Begin(r.Context(), services.BeginInput{
		User:           user,
		Image:          image,
		DeviceLocation: device,
	})
	if err != nil {
		respondServiceError(w, err, "Failed to start upload")
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

// Move handles PATCH /api/v1/uploads/current
func (h *UploadHandler) Move(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if err := decodeJSON(r, &loc); err != nil {
		respondServiceError(w, err, "Invalid request")
		return
	}

	draft, err := h.flow.Move(middleware.GetUserID(r.Context()), loc)
	if err != nil {
		respondServiceError(w, err, "Failed to move upload")
		return
	}
	respondJSON(w, http.StatusOK, draft)
}

// Confirm handles POST /api/v1/uploads/current/confirm
func (h *UploadHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	photo, err := h.flow.Confirm(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, err, "Failed to upload photo")
		return
	}
	respondJSON(w, http.StatusCreated, photo)
}

// Cancel handles DELETE /api/v1/uploads/current
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Cancel(middleware.GetUserID(r.Context())); err != nil {
		respondServiceError(w, err, "Failed to cancel upload")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

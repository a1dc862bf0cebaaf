package handlers

import (
	"net/http"

	"cat-map-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// CatHandler handles cat profile HTTP requests
type CatHandler struct {
	cats           *services.CatService
	users          UserLoader
	maxUploadBytes int64
}

// NewCatHandler creates a new cat handler
func NewCatHandler(cats *services.CatService, users UserLoader, maxUploadBytes int64) *CatHandler {
	return &CatHandler{
		cats:           cats,
		users:          users,
		maxUploadBytes: maxUploadBytes,
	}
}

// GetCat handles GET /api/v1/cats/{cat_id}
func (h *CatHandler) GetCat(w http.ResponseWriter, r *http.Request) {
	detail, err := h.cats.Get(r.Context(), chi.URLParam(r, "cat_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get cat")
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

// GetRecentCats handles GET /api/v1/cats/recent
func (h *CatHandler) GetRecentCats(w http.ResponseWriter, r *http.Request) {
	cats, err := h.cats.ListRecent(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to get cats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"cats": cats})
}

// UpdateCat handles PATCH /api/v1/cats/{cat_id}
func (h *CatHandler) UpdateCat(w http.ResponseWriter, r *http.Request) {
	var req services.CatInput
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, err, "Invalid request")
		return
	}
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	cat, err := h.cats.Update(r.Context(), services.CatUpdate{
		CatID:    chi.URLParam(r, "cat_id"),
		Actor:    user,
		CatInput: req,
	})
	if err != nil {
		respondServiceError(w, err, "Failed to update cat")
		return
	}
	respondJSON(w, http.StatusOK, cat)
}

// DeleteCat handles DELETE /api/v1/cats/{cat_id}
func (h *CatHandler) DeleteCat(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	if err := h.cats.Delete(r.Context(), chi.URLParam(r, "cat_id"), user, confirmed(r)); err != nil {
		respondServiceError(w, err, "Failed to delete cat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddCatPhoto handles POST /api/v1/cats/{cat_id}/photos
func (h *CatHandler) AddCatPhoto(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r, h.maxUploadBytes)
	if err != nil {
		respondServiceError(w, err, "Failed to read upload")
		return
	}
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	photo, err := h.cats.AddPhoto(r.Context(), chi.URLParam(r, "cat_id"), user, image)
	if err != nil {
		respondServiceError(w, err, "Failed to add photo")
		return
	}
	respondJSON(w, http.StatusCreated, photo)
}

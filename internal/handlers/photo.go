package handlers

import (
	"net/http"
	"strconv"

	"cat-map-backend/internal/mapview"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	store          *services.PhotoStore
	users          UserLoader
	maxUploadBytes int64
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(store *services.PhotoStore, users UserLoader, maxUploadBytes int64) *PhotoHandler {
	return &PhotoHandler{
		store:          store,
		users:          users,
		maxUploadBytes: maxUploadBytes,
	}
}

// PhotosResponse represents a list of photos
type PhotosResponse struct {
	Photos []*models.Photo `json:"photos"`
}

// GetPhotos handles GET /api/v1/photos
func (h *PhotoHandler) GetPhotos(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	photos := h.store.Photos()
	if refresh || !h.store.Status().Loaded {
		var err error
		photos, err = h.store.FetchAll(r.Context())
		if err != nil {
			respondServiceError(w, err, "Failed to get photos")
			return
		}
	}
	respondJSON(w, http.StatusOK, PhotosResponse{Photos: photos})
}

// PageResponse represents one page of photos
type PageResponse struct {
	Photos []*models.Photo `json:"photos"`
	Next   string          `json:"next,omitempty"`
}

// GetPhotoPage handles GET /api/v1/photos/page
func (h *PhotoHandler) GetPhotoPage(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	photos, err := h.store.Page(r.Context(), r.URL.Query().Get("after"), limit)
	if err != nil {
		respondServiceError(w, err, "Failed to get photos")
		return
	}

	resp := PageResponse{Photos: photos}
	if len(photos) > 0 {
		resp.Next = photos[len(photos)-1].ID
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetRecentPhotos handles GET /api/v1/photos/recent
func (h *PhotoHandler) GetRecentPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.store.FetchRecent(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to get recent photos")
		return
	}
	respondJSON(w, http.StatusOK, PhotosResponse{Photos: photos})
}

// GetVisiblePhotos handles GET /api/v1/photos/visible
func (h *PhotoHandler) GetVisiblePhotos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var vals [4]float64
	for i, key := range []string{"sw_lat", "sw_lng", "ne_lat", "ne_lng"} {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			respondError(w, key+" is required", http.StatusBadRequest)
			return
		}
		vals[i] = v
	}
	bounds := models.Bounds{
		SouthWest: models.Location{Lat: vals[0], Lng: vals[1]},
		NorthEast: models.Location{Lat: vals[2], Lng: vals[3]},
	}

	photos := h.store.Photos()
	if !h.store.Status().Loaded {
		var err error
		if photos, err = h.store.FetchAll(r.Context()); err != nil {
			respondServiceError(w, err, "Failed to get photos")
			return
		}
	}
	respondJSON(w, http.StatusOK, PhotosResponse{Photos: mapview.Visible(photos, bounds)})
}

// GetStatus handles GET /api/v1/photos/status
func (h *PhotoHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Status())
}

// GetPhoto handles GET /api/v1/photos/{photo_id}
func (h *PhotoHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := h.store.Get(r.Context(), chi.URLParam(r, "photo_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get photo")
		return
	}
	respondJSON(w, http.StatusOK, photo)
}

// UploadPhoto handles POST /api/v1/photos
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r, h.maxUploadBytes)
	if err != nil {
		respondServiceError(w, err, "Failed to read upload")
		return
	}
	loc, err := parseLocation(r)
	if err != nil {
		respondServiceError(w, err, "Failed to read upload")
		return
	}
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	photo, err := h.store.Upload(r.Context(), services.UploadInput{Image: image, Location: loc, User: user})
	if err != nil {
		respondServiceError(w, err, "Failed to upload photo")
		return
	}
	respondJSON(w, http.StatusCreated, photo)
}

// DeletePhoto handles DELETE /api/v1/photos/{photo_id}
func (h *PhotoHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	err = h.store.Delete(r.Context(), services.DeleteInput{
		PhotoID:   chi.URLParam(r, "photo_id"),
		Actor:     user,
		Confirmed: confirmed(r),
	})
	if err != nil {
		respondServiceError(w, err, "Failed to delete photo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCatProfile handles POST /api/v1/photos/{photo_id}/cat
func (h *PhotoHandler) CreateCatProfile(w http.ResponseWriter, r *http.Request) {
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

	cat, err := h.store.CreateProfileFromPhoto(r.Context(), req, chi.URLParam(r, "photo_id"), user)
	if err != nil {
		respondServiceError(w, err, "Failed to create cat profile")
		return
	}

	log.Info().Str("cat_id", cat.ID).Msg("Cat profile created from photo")
	respondJSON(w, http.StatusCreated, cat)
}

// GetMapCenter handles GET /api/v1/map/center
func (h *PhotoHandler) GetMapCenter(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLocation(r)
	if err != nil {
		respondServiceError(w, err, "Invalid location")
		return
	}
	respondJSON(w, http.StatusOK, mapview.InitialCenter(loc))
}

package handlers

import (
	"net/http"

	"cat-map-backend/internal/middleware"
	"cat-map-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles sign-in and profile HTTP requests
type UserHandler struct {
	userService    *services.UserService
	maxUploadBytes int64
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, maxUploadBytes int64) *UserHandler {
	return &UserHandler{
		userService:    userService,
		maxUploadBytes: maxUploadBytes,
	}
}

// SignInRequest carries the OAuth authorization code
type SignInRequest struct {
	Code string `json:"code"`
}

// SignIn handles POST /api/v1/sessions
func (h *UserHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, err, "Invalid request")
		return
	}

	session, err := h.userService.SignIn(r.Context(), req.Code)
	if err != nil {
		respondServiceError(w, err, "Failed to sign in")
		return
	}

	log.Info().Str("user_id", session.User.ID).Msg("Session created")
	respondJSON(w, http.StatusOK, session)
}

// SignOut handles DELETE /api/v1/sessions
func (h *UserHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.userService.SignOut(r.Context(), middleware.GetClaims(r.Context())); err != nil {
		respondServiceError(w, err, "Failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMe handles GET /api/v1/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.userService)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// NicknameRequest is the body of a display name change
type NicknameRequest struct {
	DisplayName string `json:"display_name"`
}

// UpdateNickname handles PUT /api/v1/me/nickname
func (h *UserHandler) UpdateNickname(w http.ResponseWriter, r *http.Request) {
	var req NicknameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, err, "Invalid request")
		return
	}
	user, err := currentUser(r, h.userService)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	updated, err := h.userService.UpdateNickname(r.Context(), user, req.DisplayName)
	if err != nil {
		respondServiceError(w, err, "Failed to update nickname")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// UpdateAvatar handles PUT /api/v1/me/avatar
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r, h.maxUploadBytes)
	if err != nil {
		respondServiceError(w, err, "Failed to read upload")
		return
	}
	user, err := currentUser(r, h.userService)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	updated, err := h.userService.UpdateAvatar(r.Context(), user, image)
	if err != nil {
		respondServiceError(w, err, "Failed to update avatar")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// PushTokenRequest registers a device for notifications
type PushTokenRequest struct {
	Token string `json:"token"`
}

// UpdatePushToken handles PUT /api/v1/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	var req PushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, err, "Invalid request")
		return
	}
	user, err := currentUser(r, h.userService)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	if err := h.userService.UpdatePushToken(r.Context(), user, req.Token); err != nil {
		respondServiceError(w, err, "Failed to update push token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

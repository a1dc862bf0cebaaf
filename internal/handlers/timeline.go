package handlers

import (
	"net/http"

	"cat-map-backend/internal/middleware"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// TimelineHandler handles comments and cat timeline posts
type TimelineHandler struct {
	timeline       *services.TimelineService
	users          UserLoader
	authz          services.Authorizer
	maxUploadBytes int64
}

// NewTimelineHandler creates a new timeline handler
func NewTimelineHandler(timeline *services.TimelineService, users UserLoader, authz services.Authorizer, maxUploadBytes int64) *TimelineHandler {
	return &TimelineHandler{
		timeline:       timeline,
		users:          users,
		authz:          authz,
		maxUploadBytes: maxUploadBytes,
	}
}

// CommentRequest is the body of a new comment
type CommentRequest struct {
	Text string `json:"text"`
}

// CommentView is a comment as seen by the requesting viewer
type CommentView struct {
	*models.Comment
	Deletable bool `json:"deletable"`
}

// PostView is a timeline post as seen by the requesting viewer
type PostView struct {
	*models.ThreadPost
	Deletable bool `json:"deletable"`
}

// viewer resolves the optional signed-in user of a public read.
// A failed lookup reads as anonymous.
func (h *TimelineHandler) viewer(r *http.Request) *models.UserProfile {
	user, err := currentUser(r, h.users)
	if err != nil {
		log.Warn().Err(err).Str("user_id", middleware.GetUserID(r.Context())).Msg("Failed to load viewer")
		return nil
	}
	return user
}

// GetComments handles GET /api/v1/photos/{photo_id}/comments
func (h *TimelineHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.timeline.ListComments(r.Context(), chi.URLParam(r, "photo_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get comments")
		return
	}

	viewer := h.viewer(r)
	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, CommentView{Comment: c, Deletable: h.authz.CanModify(viewer, c.UserID)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"comments": views})
}

// AddComment handles POST /api/v1/photos/{photo_id}/comments
func (h *TimelineHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, err, "Invalid request")
		return
	}
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	comment, err := h.timeline.AddComment(r.Context(), chi.URLParam(r, "photo_id"), user, req.Text)
	if err != nil {
		respondServiceError(w, err, "Failed to add comment")
		return
	}
	respondJSON(w, http.StatusCreated, comment)
}

// DeleteComment handles DELETE /api/v1/comments/{comment_id}
func (h *TimelineHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	if err := h.timeline.DeleteComment(r.Context(), chi.URLParam(r, "comment_id"), user, confirmed(r)); err != nil {
		respondServiceError(w, err, "Failed to delete comment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPosts handles GET /api/v1/cats/{cat_id}/threads
func (h *TimelineHandler) GetPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.timeline.ListPosts(r.Context(), chi.URLParam(r, "cat_id"))
	if err != nil {
		respondServiceError(w, err, "Failed to get posts")
		return
	}

	viewer := h.viewer(r)
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, PostView{ThreadPost: p, Deletable: h.authz.CanModify(viewer, p.UserID)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"threads": views})
}

// AddPost handles POST /api/v1/cats/{cat_id}/threads as a multipart form
// with a "text" field and an optional "image" part
func (h *TimelineHandler) AddPost(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r, h.maxUploadBytes)
	if err != nil {
		respondServiceError(w, err, "Failed to read post")
		return
	}
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	post, err := h.timeline.AddPost(r.Context(), services.PostInput{
		CatID: chi.URLParam(r, "cat_id"),
		User:  user,
		Text:  r.FormValue("text"),
		Image: image,
	})
	if err != nil {
		respondServiceError(w, err, "Failed to add post")
		return
	}
	respondJSON(w, http.StatusCreated, post)
}

// DeletePost handles DELETE /api/v1/threads/{thread_id}
func (h *TimelineHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	if err := h.timeline.DeletePost(r.Context(), chi.URLParam(r, "thread_id"), user, confirmed(r)); err != nil {
		respondServiceError(w, err, "Failed to delete post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetActivity handles GET /api/v1/me/activity
func (h *TimelineHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		respondServiceError(w, err, "Failed to load user")
		return
	}

	activity, err := h.timeline.Activity(r.Context(), user)
	if err != nil {
		respondServiceError(w, err, "Failed to get activity")
		return
	}
	respondJSON(w, http.StatusOK, activity)
}

package handlers

import (
	"net/http"

	"cat-map-backend/internal/metrics"
	"cat-map-backend/internal/middleware"
	"cat-map-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services are the application services the router exposes
type Services struct {
	Users          *services.UserService
	Photos         *services.PhotoStore
	Cats           *services.CatService
	Timeline       *services.TimelineService
	Uploads        *services.UploadFlow
	Hub            *services.WSHub
	Authz          services.Authorizer
	MaxUploadBytes int64
}

// NewRouter builds the HTTP routes
func NewRouter(svc Services) http.Handler {
	userHandler := NewUserHandler(svc.Users, svc.MaxUploadBytes)
	photoHandler := NewPhotoHandler(svc.Photos, svc.Users, svc.MaxUploadBytes)
	catHandler := NewCatHandler(svc.Cats, svc.Users, svc.MaxUploadBytes)
	authz := svc.Authz
	if authz == nil {
		authz = services.RoleAuthorizer{}
	}
	timelineHandler := NewTimelineHandler(svc.Timeline, svc.Users, authz, svc.MaxUploadBytes)
	uploadHandler := NewUploadHandler(svc.Uploads, svc.Users, svc.MaxUploadBytes)
	wsHandler := NewWebSocketHandler(svc.Hub, svc.Users)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", userHandler.SignIn)

		// Public routes; a valid token identifies the viewer
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(svc.Users))

			r.Get("/map/center", photoHandler.GetMapCenter)
			r.Get("/photos", photoHandler.GetPhotos)
			r.Get("/photos/page", photoHandler.GetPhotoPage)
			r.Get("/photos/recent", photoHandler.GetRecentPhotos)
			r.Get("/photos/visible", photoHandler.GetVisiblePhotos)
			r.Get("/photos/status", photoHandler.GetStatus)
			r.Get("/photos/{photo_id}", photoHandler.GetPhoto)
			r.Get("/photos/{photo_id}/comments", timelineHandler.GetComments)
			r.Get("/cats/recent", catHandler.GetRecentCats)
			r.Get("/cats/{cat_id}", catHandler.GetCat)
			r.Get("/cats/{cat_id}/threads", timelineHandler.GetPosts)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(svc.Users))

			r.Delete("/sessions", userHandler.SignOut)
			r.Get("/me", userHandler.GetMe)
			r.Get("/me/activity", timelineHandler.GetActivity)
			r.Put("/me/nickname", userHandler.UpdateNickname)
			r.Put("/me/avatar", userHandler.UpdateAvatar)
			r.Put("/me/push-token", userHandler.UpdatePushToken)

			r.Post("/photos", photoHandler.UploadPhoto)
			r.Delete("/photos/{photo_id}", photoHandler.DeletePhoto)
			r.Post("/photos/{photo_id}/cat", photoHandler.CreateCatProfile)
			r.Post("/photos/{photo_id}/comments", timelineHandler.AddComment)
			r.Delete("/comments/{comment_id}", timelineHandler.DeleteComment)

			r.Patch("/cats/{cat_id}", catHandler.UpdateCat)
			r.Delete("/cats/{cat_id}", catHandler.DeleteCat)
			r.Post("/cats/{cat_id}/photos", catHandler.AddCatPhoto)
			r.Post("/cats/{cat_id}/threads", timelineHandler.AddPost)
			r.Delete("/threads/{thread_id}", timelineHandler.DeletePost)

			r.Get("/uploads/current", uploadHandler.GetCurrent)
			r.Post("/uploads/current", uploadHandler.Begin)
			r.Patch("/uploads/current", uploadHandler.Move)
			r.Post("/uploads/current/confirm", uploadHandler.Confirm)
			r.Delete("/uploads/current", uploadHandler.Cancel)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

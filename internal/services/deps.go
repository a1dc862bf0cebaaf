package services

import (
	"context"
	"time"

	"cat-map-backend/internal/events"
	"cat-map-backend/internal/identity"
	"cat-map-backend/internal/imageproc"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/push"
	"cat-map-backend/internal/repository"
)

// PhotoRepository persists photos
type PhotoRepository interface {
	Create(ctx context.Context, photo *models.Photo) error
	GetByID(ctx context.Context, id string) (*models.Photo, error)
	List(ctx context.Context) ([]*models.Photo, error)
	ListSince(ctx context.Context, since time.Time) ([]*models.Photo, error)
	ListPage(ctx context.Context, afterID string, limit int) ([]*models.Photo, error)
	ListByCat(ctx context.Context, catID string) ([]*models.Photo, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Photo, error)
	Delete(ctx context.Context, id string) error
}

// CatRepository reads cat profiles
type CatRepository interface {
	GetByID(ctx context.Context, id string) (*models.CatProfile, error)
	ListSince(ctx context.Context, since time.Time) ([]*models.CatProfile, error)
}

// CommentRepository persists photo comments
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	ListByPhoto(ctx context.Context, photoID string) ([]*models.Comment, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Comment, error)
	Delete(ctx context.Context, id string) error
}

// ThreadRepository persists cat timeline posts
type ThreadRepository interface {
	Create(ctx context.Context, post *models.ThreadPost) error
	GetByID(ctx context.Context, id string) (*models.ThreadPost, error)
	ListByCat(ctx context.Context, catID string) ([]*models.ThreadPost, error)
	ImageReferenced(ctx context.Context, imageURL string) (bool, error)
}

// UserRepository persists user profiles
type UserRepository interface {
	Create(ctx context.Context, user *models.UserProfile) error
	GetByID(ctx context.Context, id string) (*models.UserProfile, error)
	DisplayNameTaken(ctx context.Context, name, excludeID string) (bool, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// CascadeRepository runs multi-record writes atomically
type CascadeRepository interface {
	CreateCatFromPhoto(ctx context.Context, cat *models.CatProfile, photoID string) error
	UpdateCat(ctx context.Context, cat *models.CatProfile, renamed bool) error
	DeleteCat(ctx context.Context, catID string) ([]string, error)
	CreatePostWithPhoto(ctx context.Context, post *models.ThreadPost, photo *models.Photo) error
	DeletePost(ctx context.Context, postID string) ([]string, error)
	UpdateAuthor(ctx context.Context, userID string, patch repository.AuthorPatch) error
}

// OrphanRepository queues stored objects whose deletion failed
type OrphanRepository interface {
	Add(ctx context.Context, orphan *models.OrphanObject) error
	List(ctx context.Context, limit int) ([]*models.OrphanObject, error)
	Delete(ctx context.Context, id string) error
	IncrementAttempts(ctx context.Context, id string) error
}

// ObjectStore stores image bytes and serves them by URL
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// ImageCompressor transcodes uploaded images
type ImageCompressor interface {
	Compress(ctx context.Context, data []byte, opts imageproc.Options) ([]byte, error)
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Notifier delivers push notifications to a device
type Notifier interface {
	Send(ctx context.Context, deviceToken string, msg push.Message) error
}

// TokenDenylist remembers revoked session tokens
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// IdentityProvider turns an authorization code into a verified profile
type IdentityProvider interface {
	Authenticate(ctx context.Context, code string) (*identity.Profile, error)
}

// SnapshotStore persists the last fetched photo set
type SnapshotStore interface {
	Save(ctx context.Context, photos []*models.Photo) error
	Load(ctx context.Context) ([]*models.Photo, bool, error)
}

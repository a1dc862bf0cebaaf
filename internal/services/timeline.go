package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"cat-map-backend/internal/events"
	"cat-map-backend/internal/imageproc"
	"cat-map-backend/internal/metrics"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/push"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MaxPostLength is the longest timeline text, in characters
const MaxPostLength = 100

// PostInput is a new timeline entry; it needs text, an image or both
type PostInput struct {
	CatID string
	User  *models.UserProfile
	Text  string
	Image []byte
}

// ActivityComment is a comment together with the image it was left on
type ActivityComment struct {
	*models.Comment
	PhotoImageURL string `json:"photo_image_url,omitempty"`
}

// Activity is everything a user has contributed
type Activity struct {
	Photos   []*models.Photo    `json:"photos"`
	Comments []*ActivityComment `json:"comments"`
}

// TimelineService handles comments on photos and posts on cat timelines
type TimelineService struct {
	comments  CommentRepository
	threads   ThreadRepository
	photos    PhotoRepository
	cats      CatRepository
	users     UserRepository
	cascades  CascadeRepository
	store     *PhotoStore
	media     *Media
	authz     Authorizer
	publisher EventPublisher
	notifier  Notifier
	now       func() time.Time
}

// NewTimelineService creates a new timeline service
func NewTimelineService(
	comments CommentRepository,
	threads ThreadRepository,
	photos PhotoRepository,
	cats CatRepository,
	users UserRepository,
	cascades CascadeRepository,
	store *PhotoStore,
	media *Media,
	authz Authorizer,
	publisher EventPublisher,
	notifier Notifier,
) *TimelineService {
	return &TimelineService{
		comments:  comments,
		threads:   threads,
		photos:    photos,
		cats:      cats,
		users:     users,
		cascades:  cascades,
		store:     store,
		media:     media,
		authz:     authz,
		publisher: publisher,
		notifier:  notifier,
		now:       time.Now,
	}
}

// AddComment leaves a comment on a photo and notifies the uploader
func (s *TimelineService) AddComment(ctx context.Context, photoID string, user *models.UserProfile, text string) (*models.Comment, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("comment text is required")
	}

	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, lookupErr(err, "photo", photoID)
	}

	comment := &models.Comment{
		ID:        uuid.New().String(),
		PhotoID:   photo.ID,
		Author:    user.AsAuthor(),
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	publish(ctx, s.publisher, events.New(events.CommentCreated, comment.ID, user.ID, comment))
	if photo.UserID != user.ID {
		s.notifyUploader(ctx, photo, comment)
	}

	log.Info().
		Str("comment_id", comment.ID).
		Str("photo_id", photo.ID).
		Str("user_id", user.ID).
		Msg("Comment added")
	return comment, nil
}

func (s *TimelineService) notifyUploader(ctx context.Context, photo *models.Photo, comment *models.Comment) {
	if s.notifier == nil {
		return
	}
	owner, err := s.users.GetByID(ctx, photo.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", photo.UserID).Msg("Failed to load photo owner for notification")
		return
	}
	if owner.PushToken == nil || *owner.PushToken == "" {
		return
	}

	msg := push.Message{
		Title: comment.UserName,
		Body:  comment.Text,
		Data: map[string]string{
			"photo_id":   photo.ID,
			"comment_id": comment.ID,
		},
	}
	if err := s.notifier.Send(context.WithoutCancel(ctx), *owner.PushToken, msg); err != nil {
		log.Warn().Err(err).Str("user_id", owner.ID).Msg("Failed to send comment notification")
	}
}

// ListComments returns a photo's comments, oldest first
func (s *TimelineService) ListComments(ctx context.Context, photoID string) ([]*models.Comment, error) {
	comments, err := s.comments.ListByPhoto(ctx, photoID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}
	return comments, nil
}

// DeleteComment removes a comment; only its author or an admin may
func (s *TimelineService) DeleteComment(ctx context.Context, commentID string, actor *models.UserProfile, confirmed bool) error {
	if actor == nil {
		return ErrLoginRequired
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return lookupErr(err, "comment", commentID)
	}
	if !s.authz.CanModify(actor, comment.UserID) {
		return fmt.Errorf("delete comment %s: %w", comment.ID, ErrForbidden)
	}
	if err := s.comments.Delete(ctx, comment.ID); err != nil {
		return writeErr(err, "delete comment")
	}

	publish(ctx, s.publisher, events.New(events.CommentDeleted, comment.ID, actor.ID, nil))
	metrics.Deletions.WithLabelValues("comment").Inc()
	return nil
}

// AddPost appends an entry to a cat's timeline. An attached image is also
// published as a photo of the cat at the cat's location.
func (s *TimelineService) AddPost(ctx context.Context, in PostInput) (*models.ThreadPost, error) {
	if in.User == nil {
		return nil, ErrLoginRequired
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Image) == 0 {
		return nil, invalid("post needs text or an image")
	}
	if utf8.RuneCountInString(text) > MaxPostLength {
		return nil, invalid("post text exceeds %d characters", MaxPostLength)
	}

	cat, err := s.cats.GetByID(ctx, in.CatID)
	if err != nil {
		return nil, lookupErr(err, "cat", in.CatID)
	}

	now := s.now().UTC()
	post := &models.ThreadPost{
		ID:        uuid.New().String(),
		CatID:     cat.ID,
		Author:    in.User.AsAuthor(),
		Text:      text,
		CreatedAt: now,
	}

	if len(in.Image) == 0 {
		if err := s.threads.Create(ctx, post); err != nil {
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
	} else {
		url, err := s.media.Save(ctx, "threads", "thread", in.Image, imageproc.ThreadOptions)
		if err != nil {
			return nil, err
		}
		post.ImageURL = url

		photo := &models.Photo{
			ID:        uuid.New().String(),
			ImageURL:  url,
			Lat:       cat.Lat,
			Lng:       cat.Lng,
			CreatedAt: now,
			Author:    in.User.AsAuthor(),
			CatID:     &cat.ID,
			CatName:   &cat.Name,
		}
		if err := s.cascades.CreatePostWithPhoto(ctx, post, photo); err != nil {
			s.media.Discard(ctx, "thread write failed", url)
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
		s.store.remember(photo)
		publish(ctx, s.publisher, events.New(events.PhotoUploaded, photo.ID, photo.UserID, photo))
	}

	publish(ctx, s.publisher, events.New(events.ThreadCreated, post.ID, in.User.ID, post))

	log.Info().
		Str("thread_id", post.ID).
		Str("cat_id", cat.ID).
		Str("user_id", in.User.ID).
		Bool("image", post.ImageURL != "").
		Msg("Thread post added")
	return post, nil
}

// ListPosts returns a cat's timeline, newest first
func (s *TimelineService) ListPosts(ctx context.Context, catID string) ([]*models.ThreadPost, error) {
	posts, err := s.threads.ListByCat(ctx, catID)
	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	return posts, nil
}

// DeletePost removes a timeline entry with every photo showing its image,
// then disposes of the stored image
func (s *TimelineService) DeletePost(ctx context.Context, postID string, actor *models.UserProfile, confirmed bool) error {
	if actor == nil {
		return ErrLoginRequired
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	post, err := s.threads.GetByID(ctx, postID)
	if err != nil {
		return lookupErr(err, "thread", postID)
	}
	if !s.authz.CanModify(actor, post.UserID) {
		return fmt.Errorf("delete thread %s: %w", post.ID, ErrForbidden)
	}

	photoIDs, err := s.cascades.DeletePost(ctx, post.ID)
	if err != nil {
		return writeErr(err, "delete thread")
	}
	s.store.forget(photoIDs...)
	if post.ImageURL != "" {
		s.media.Discard(ctx, "thread deleted", post.ImageURL)
	}

	publish(ctx, s.publisher, events.New(events.ThreadDeleted, post.ID, actor.ID, map[string]int{"photos": len(photoIDs)}))
	metrics.Deletions.WithLabelValues("thread").Inc()

	log.Info().
		Str("thread_id", post.ID).
		Str("actor_id", actor.ID).
		Int("photos", len(photoIDs)).
		Msg("Thread post deleted")
	return nil
}

// Activity returns the user's photos and comments, newest first
func (s *TimelineService) Activity(ctx context.Context, user *models.UserProfile) (*Activity, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}

	photos, err := s.photos.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user photos: %w", err)
	}
	comments, err := s.comments.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user comments: %w", err)
	}

	images := make(map[string]string)
	out := make([]*ActivityComment, 0, len(comments))
	for _, c := range comments {
		url, ok := images[c.PhotoID]
		if !ok {
			if p, err := s.store.Get(ctx, c.PhotoID); err == nil {
				url = p.ImageURL
			}
			images[c.PhotoID] = url
		}
		out = append(out, &ActivityComment{Comment: c, PhotoImageURL: url})
	}

	return &Activity{Photos: photos, Comments: out}, nil
}

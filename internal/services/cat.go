package services

import (
	"context"
	"fmt"
	"time"

	"cat-map-backend/internal/events"
	"cat-map-backend/internal/metrics"
	"cat-map-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// CatDetail is a cat profile with its album
type CatDetail struct {
	Cat    *models.CatProfile `json:"cat"`
	Photos []*models.Photo    `json:"photos"`
}

// CatUpdate carries an edit of a cat profile
type CatUpdate struct {
	CatID string
	Actor *models.UserProfile
	CatInput
}

// CatService handles cat profile business logic
type CatService struct {
	cats      CatRepository
	photos    PhotoRepository
	cascades  CascadeRepository
	store     *PhotoStore
	media     *Media
	authz     Authorizer
	publisher EventPublisher
	now       func() time.Time
}

// NewCatService creates a new cat service
func NewCatService(
	cats CatRepository,
	photos PhotoRepository,
	cascades CascadeRepository,
	store *PhotoStore,
	media *Media,
	authz Authorizer,
	publisher EventPublisher,
) *CatService {
	return &CatService{
		cats:      cats,
		photos:    photos,
		cascades:  cascades,
		store:     store,
		media:     media,
		authz:     authz,
		publisher: publisher,
		now:       time.Now,
	}
}

// Get returns a cat profile with its photos, newest first
func (s *CatService) Get(ctx context.Context, catID string) (*CatDetail, error) {
	cat, err := s.cats.GetByID(ctx, catID)
	if err != nil {
		return nil, lookupErr(err, "cat", catID)
	}
	photos, err := s.photos.ListByCat(ctx, catID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cat photos: %w", err)
	}
	return &CatDetail{Cat: cat, Photos: photos}, nil
}

// ListRecent returns the cats registered in the last 24 hours, newest first
func (s *CatService) ListRecent(ctx context.Context) ([]*models.CatProfile, error) {
	cats, err := s.cats.ListSince(ctx, s.now().Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to get recent cats: %w", err)
	}
	return cats, nil
}

// Update edits a cat profile; a new name is copied onto the cat's photos
func (s *CatService) Update(ctx context.Context, in CatUpdate) (*models.CatProfile, error) {
	if in.Actor == nil {
		return nil, ErrLoginRequired
	}
	fields, err := normalizeCatInput(in.CatInput)
	if err != nil {
		return nil, err
	}

	cat, err := s.cats.GetByID(ctx, in.CatID)
	if err != nil {
		return nil, lookupErr(err, "cat", in.CatID)
	}
	if !s.authz.CanModify(in.Actor, cat.CreatedBy) {
		return nil, fmt.Errorf("update cat %s: %w", cat.ID, ErrForbidden)
	}

	renamed := fields.Name != cat.Name
	cat.Name = fields.Name
	cat.Description = fields.Description
	cat.Age = fields.Age
	cat.Tags = fields.Tags

	if err := s.cascades.UpdateCat(ctx, cat, renamed); err != nil {
		return nil, writeErr(err, "update cat")
	}

	if renamed {
		name := cat.Name
		s.store.patch(
			func(p *models.Photo) bool { return p.CatID != nil && *p.CatID == cat.ID },
			func(p models.Photo) models.Photo {
				p.CatName = &name
				return p
			},
		)
	}
	publish(ctx, s.publisher, events.New(events.CatUpdated, cat.ID, in.Actor.ID, cat))

	log.Info().
		Str("cat_id", cat.ID).
		Str("actor_id", in.Actor.ID).
		Bool("renamed", renamed).
		Msg("Cat profile updated")
	return cat, nil
}

// Delete removes a cat, its photos with their comments and its timeline,
// then disposes of every stored image they referenced
func (s *CatService) Delete(ctx context.Context, catID string, actor *models.UserProfile, confirmed bool) error {
	if actor == nil {
		return ErrLoginRequired
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	cat, err := s.cats.GetByID(ctx, catID)
	if err != nil {
		return lookupErr(err, "cat", catID)
	}
	if !s.authz.CanModify(actor, cat.CreatedBy) {
		return fmt.Errorf("delete cat %s: %w", cat.ID, ErrForbidden)
	}

	urls, err := s.cascades.DeleteCat(ctx, cat.ID)
	if err != nil {
		return writeErr(err, "delete cat")
	}

	s.store.forgetWhere(func(p *models.Photo) bool { return p.CatID != nil && *p.CatID == cat.ID })
	s.media.Discard(ctx, "cat deleted", urls...)

	publish(ctx, s.publisher, events.New(events.CatDeleted, cat.ID, actor.ID, map[string]int{"images": len(urls)}))
	metrics.Deletions.WithLabelValues("cat").Inc()

	log.Info().
		Str("cat_id", cat.ID).
		Str("actor_id", actor.ID).
		Int("images", len(urls)).
		Msg("Cat profile deleted")
	return nil
}

// AddPhoto uploads an image straight into a cat's album at the cat's location
func (s *CatService) AddPhoto(ctx context.Context, catID string, user *models.UserProfile, image []byte) (*models.Photo, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	if len(image) == 0 {
		return nil, invalid("image is required")
	}

	cat, err := s.cats.GetByID(ctx, catID)
	if err != nil {
		return nil, lookupErr(err, "cat", catID)
	}

	loc := models.Location{Lat: cat.Lat, Lng: cat.Lng}
	return s.store.upload(ctx, UploadInput{Image: image, Location: &loc, User: user}, cat)
}

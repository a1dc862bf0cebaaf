package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"cat-map-backend/internal/cache"
	"cat-map-backend/internal/events"
	"cat-map-backend/internal/imageproc"
	"cat-map-backend/internal/metrics"
	"cat-map-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	recentWindow    = 24 * time.Hour
	defaultPageSize = 20
	maxPageSize     = 100
)

// UploadInput is a photo to publish on the map
type UploadInput struct {
	Image    []byte
	Location *models.Location
	User     *models.UserProfile
}

// DeleteInput identifies a photo removal and who confirmed it
type DeleteInput struct {
	PhotoID   string
	Actor     *models.UserProfile
	Confirmed bool
}

// CatInput holds the editable fields of a cat profile
type CatInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Age         *string  `json:"age,omitempty"`
	Tags        []string `json:"tags"`
}

// StoreStatus reports the photo store's loading flags
type StoreStatus struct {
	Loading       bool `json:"loading"`
	LoadingRecent bool `json:"loading_recent"`
	Loaded        bool `json:"loaded"`
	Count         int  `json:"count"`
}

// PhotoStore owns the cached photo set and every photo mutation
type PhotoStore struct {
	photos    PhotoRepository
	threads   ThreadRepository
	cascades  CascadeRepository
	media     *Media
	authz     Authorizer
	publisher EventPublisher
	snapshots SnapshotStore

	all    *cache.PhotoCache
	recent *cache.PhotoCache

	mu            sync.Mutex
	loading       int
	loadingRecent int
	listeners     []func()

	now func() time.Time
}

// NewPhotoStore creates a new photo store
func NewPhotoStore(
	photos PhotoRepository,
	threads ThreadRepository,
	cascades CascadeRepository,
	media *Media,
	authz Authorizer,
	publisher EventPublisher,
) *PhotoStore {
	return &PhotoStore{
		photos:    photos,
		threads:   threads,
		cascades:  cascades,
		media:     media,
		authz:     authz,
		publisher: publisher,
		all:       cache.NewPhotoCache(),
		recent:    cache.NewPhotoCache(),
		now:       time.Now,
	}
}

// UseSnapshots persists every fetched photo set to s
func (s *PhotoStore) UseSnapshots(snapshots SnapshotStore) {
	s.snapshots = snapshots
}

// OnChange registers fn to be called after the photo set changes
func (s *PhotoStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *PhotoStore) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Status returns the loading flags
func (s *PhotoStore) Status() StoreStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StoreStatus{
		Loading:       s.loading > 0,
		LoadingRecent: s.loadingRecent > 0,
		Loaded:        s.all.Loaded(),
		Count:         len(s.all.Snapshot()),
	}
}

func (s *PhotoStore) track(counter *int) func() {
	s.mu.Lock()
	*counter++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		*counter--
		s.mu.Unlock()
	}
}

// Warm seeds the cache from the persisted snapshot, if any
func (s *PhotoStore) Warm(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	ticket := s.all.BeginFetch()
	photos, ok, err := s.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm photo cache: %w", err)
	}
	if ok && s.all.Replace(ticket, photos) {
		log.Info().Int("count", len(photos)).Msg("Photo cache warmed from snapshot")
		s.notify()
	}
	return nil
}

// FetchAll reloads every photo, newest first
func (s *PhotoStore) FetchAll(ctx context.Context) ([]*models.Photo, error) {
	done := s.track(&s.loading)
	defer done()

	ticket := s.all.BeginFetch()
	photos, err := s.photos.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photos: %w", err)
	}

	if s.all.Replace(ticket, photos) {
		s.notify()
		if s.snapshots != nil {
			if err := s.snapshots.Save(ctx, photos); err != nil {
				log.Warn().Err(err).Msg("Failed to save photo snapshot")
			}
		}
	} else {
		log.Debug().Uint64("ticket", ticket).Msg("Discarded stale photo fetch")
	}
	return s.all.Snapshot(), nil
}

// FetchRecent reloads the photos of the last 24 hours, newest first
func (s *PhotoStore) FetchRecent(ctx context.Context) ([]*models.Photo, error) {
	done := s.track(&s.loadingRecent)
	defer done()

	ticket := s.recent.BeginFetch()
	photos, err := s.photos.ListSince(ctx, s.now().Add(-recentWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent photos: %w", err)
	}
	s.recent.Replace(ticket, photos)
	return s.Recent(), nil
}

// Photos returns the cached photo set
func (s *PhotoStore) Photos() []*models.Photo {
	return s.all.Snapshot()
}

// Recent returns the cached recent photos still inside the window
func (s *PhotoStore) Recent() []*models.Photo {
	since := s.now().Add(-recentWindow)
	out := make([]*models.Photo, 0)
	for _, p := range s.recent.Snapshot() {
		if !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

// Page returns up to limit photos older than afterID, newest first
func (s *PhotoStore) Page(ctx context.Context, afterID string, limit int) ([]*models.Photo, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	photos, err := s.photos.ListPage(ctx, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get photo page: %w", err)
	}
	return photos, nil
}

// Get returns a photo, preferring the cache
func (s *PhotoStore) Get(ctx context.Context, id string) (*models.Photo, error) {
	if p, ok := s.all.Get(id); ok {
		return p, nil
	}
	p, err := s.photos.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "photo", id)
	}
	return p, nil
}

// Upload stores the image and publishes it as a photo at the given location
func (s *PhotoStore) Upload(ctx context.Context, in UploadInput) (*models.Photo, error) {
	return s.upload(ctx, in, nil)
}

func (s *PhotoStore) upload(ctx context.Context, in UploadInput, cat *models.CatProfile) (*models.Photo, error) {
	if len(in.Image) == 0 || in.Location == nil || in.User == nil {
		return nil, invalid("image, location and user are required")
	}
	if err := validateLocation(*in.Location); err != nil {
		return nil, err
	}

	url, err := s.media.Save(ctx, "images", "photo", in.Image, imageproc.PhotoOptions)
	if err != nil {
		metrics.Uploads.WithLabelValues("failure").Inc()
		return nil, err
	}

	photo := &models.Photo{
		ID:        uuid.New().String(),
		ImageURL:  url,
		Lat:       in.Location.Lat,
		Lng:       in.Location.Lng,
		CreatedAt: s.now().UTC(),
		Author:    in.User.AsAuthor(),
	}
	if cat != nil {
		photo.CatID = &cat.ID
		photo.CatName = &cat.Name
	}

	if err := s.photos.Create(ctx, photo); err != nil {
		s.media.Discard(ctx, "photo record write failed", url)
		metrics.Uploads.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("failed to create photo record: %w", err)
	}

	s.remember(photo)
	s.publish(ctx, events.New(events.PhotoUploaded, photo.ID, photo.UserID, photo))
	metrics.Uploads.WithLabelValues("success").Inc()

	log.Info().
		Str("photo_id", photo.ID).
		Str("user_id", photo.UserID).
		Float64("lat", photo.Lat).
		Float64("lng", photo.Lng).
		Msg("Photo uploaded")

	return photo, nil
}

// Delete removes a photo record and then its stored image
func (s *PhotoStore) Delete(ctx context.Context, in DeleteInput) error {
	if in.Actor == nil {
		return ErrLoginRequired
	}
	if in.PhotoID == "" {
		return invalid("photo id is required")
	}
	if !in.Confirmed {
		return ErrConfirmationRequired
	}

	photo, err := s.photos.GetByID(ctx, in.PhotoID)
	if err != nil {
		return lookupErr(err, "photo", in.PhotoID)
	}
	if !s.authz.CanModify(in.Actor, photo.UserID) {
		return fmt.Errorf("delete photo %s: %w", photo.ID, ErrForbidden)
	}

	if err := s.photos.Delete(ctx, photo.ID); err != nil {
		return writeErr(err, "delete photo")
	}
	s.forget(photo.ID)

	shared, err := s.threads.ImageReferenced(ctx, photo.ImageURL)
	if err != nil {
		log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to check image references, keeping stored image")
	} else if !shared {
		s.media.Discard(ctx, "photo deleted", photo.ImageURL)
	}

	s.publish(ctx, events.New(events.PhotoDeleted, photo.ID, in.Actor.ID, nil))
	metrics.Deletions.WithLabelValues("photo").Inc()

	log.Info().
		Str("photo_id", photo.ID).
		Str("actor_id", in.Actor.ID).
		Msg("Photo deleted")
	return nil
}

// CreateProfileFromPhoto starts a cat profile seeded with a photo's location and image
func (s *PhotoStore) CreateProfileFromPhoto(ctx context.Context, in CatInput, sourcePhotoID string, user *models.UserProfile) (*models.CatProfile, error) {
	if user == nil {
		return nil, ErrLoginRequired
	}
	if sourcePhotoID == "" {
		return nil, invalid("source photo is required")
	}
	fields, err := normalizeCatInput(in)
	if err != nil {
		return nil, err
	}

	photo, err := s.photos.GetByID(ctx, sourcePhotoID)
	if err != nil {
		return nil, lookupErr(err, "photo", sourcePhotoID)
	}
	if photo.CatID != nil {
		return nil, fmt.Errorf("photo %s already belongs to cat %s: %w", photo.ID, *photo.CatID, ErrInvalidState)
	}

	cat := &models.CatProfile{
		ID:           uuid.New().String(),
		Name:         fields.Name,
		Description:  fields.Description,
		Age:          fields.Age,
		Tags:         fields.Tags,
		Lat:          photo.Lat,
		Lng:          photo.Lng,
		MainPhotoURL: photo.ImageURL,
		CreatedBy:    user.ID,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.cascades.CreateCatFromPhoto(ctx, cat, photo.ID); err != nil {
		return nil, writeErr(err, "create cat profile")
	}

	s.patch(
		func(p *models.Photo) bool { return p.ID == photo.ID },
		func(p models.Photo) models.Photo {
			p.CatID = &cat.ID
			p.CatName = &cat.Name
			return p
		},
	)
	s.publish(ctx, events.New(events.CatCreated, cat.ID, user.ID, cat))

	log.Info().
		Str("cat_id", cat.ID).
		Str("photo_id", photo.ID).
		Str("user_id", user.ID).
		Msg("Cat profile created")

	return cat, nil
}

func (s *PhotoStore) remember(photo *models.Photo) {
	s.all.Upsert(photo)
	s.recent.Upsert(photo)
	s.notify()
}

func (s *PhotoStore) forget(ids ...string) {
	if len(ids) == 0 {
		return
	}
	s.all.Remove(ids...)
	s.recent.Remove(ids...)
	s.notify()
}

func (s *PhotoStore) forgetWhere(match func(*models.Photo) bool) {
	s.all.RemoveWhere(match)
	s.recent.RemoveWhere(match)
	s.notify()
}

func (s *PhotoStore) patch(match func(*models.Photo) bool, update func(models.Photo) models.Photo) {
	n := s.all.Patch(match, update)
	n += s.recent.Patch(match, update)
	if n > 0 {
		s.notify()
	}
}

func (s *PhotoStore) publish(ctx context.Context, event events.Event) {
	publish(ctx, s.publisher, event)
}

func publish(ctx context.Context, publisher EventPublisher, event events.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Warn().Err(err).Str("event", string(event.Type)).Msg("Failed to publish event")
	}
}

func validateLocation(loc models.Location) error {
	if math.IsNaN(loc.Lat) || math.IsNaN(loc.Lng) || loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return invalid("location %f,%f is out of range", loc.Lat, loc.Lng)
	}
	return nil
}

// normalizeCatInput trims the fields and de-duplicates tags
func normalizeCatInput(in CatInput) (CatInput, error) {
	out := CatInput{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Tags:        normalizeTags(in.Tags),
	}
	if out.Name == "" {
		return CatInput{}, invalid("cat name is required")
	}
	if in.Age != nil {
		if age := strings.TrimSpace(*in.Age); age != "" {
			out.Age = &age
		}
	}
	return out, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

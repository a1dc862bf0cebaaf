package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cat-map-backend/internal/cache"
	"cat-map-backend/internal/events"
	"cat-map-backend/internal/identity"
	"cat-map-backend/internal/imageproc"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/push"
	"cat-map-backend/internal/repository/memory"
	"cat-map-backend/internal/storage"
)

// passthroughCompressor returns the input unchanged
type passthroughCompressor struct{}

func (passthroughCompressor) Compress(ctx context.Context, data []byte, opts imageproc.Options) ([]byte, error) {
	if len(data) == 0 {
		return nil, imageproc.ErrEmptyImage
	}
	return data, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type sentPush struct {
	token string
	msg   push.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentPush
}

func (n *recordingNotifier) Send(ctx context.Context, deviceToken string, msg push.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentPush{token: deviceToken, msg: msg})
	return nil
}

type fakeIdentity map[string]*identity.Profile

func (f fakeIdentity) Authenticate(ctx context.Context, code string) (*identity.Profile, error) {
	p, ok := f[code]
	if !ok {
		return nil, fmt.Errorf("invalid grant")
	}
	return p, nil
}

type fixture struct {
	db        *memory.DB
	objects   *storage.MemoryStore
	publisher *recordingPublisher
	notifier  *recordingNotifier
	media     *Media
	store     *PhotoStore
	cats      *CatService
	timeline  *TimelineService
	users     *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:        memory.New(),
		objects:   storage.NewMemoryStore("https://cdn.test"),
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	authz := RoleAuthorizer{}
	f.media = NewMedia(f.objects, passthroughCompressor{}, f.db.Orphans())
	f.store = NewPhotoStore(f.db.Photos(), f.db.Threads(), f.db.Cascades(), f.media, authz, f.publisher)
	f.cats = NewCatService(f.db.Cats(), f.db.Photos(), f.db.Cascades(), f.store, f.media, authz, f.publisher)
	f.timeline = NewTimelineService(
		f.db.Comments(), f.db.Threads(), f.db.Photos(), f.db.Cats(), f.db.Users(), f.db.Cascades(),
		f.store, f.media, authz, f.publisher, f.notifier,
	)
	f.users = NewUserService(
		f.db.Users(), f.db.Cascades(),
		fakeIdentity{
			"alice-code": {Subject: "alice", Email: "alice@example.com", Name: "Alice"},
			"admin-code": {Subject: "root", Email: "Admin@Example.com", Name: "Admin"},
		},
		cache.NewMemoryDenylist(), f.media, f.store, f.publisher,
		"test-secret", []string{"admin@example.com"},
	)
	return f
}

func (f *fixture) user(t *testing.T, id, name string) *models.UserProfile {
	t.Helper()
	u := &models.UserProfile{ID: id, DisplayName: name, Email: id + "@example.com", Role: models.RoleUser}
	if err := f.db.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (f *fixture) upload(t *testing.T, user *models.UserProfile, lat, lng float64) *models.Photo {
	t.Helper()
	photo, err := f.store.Upload(context.Background(), UploadInput{
		Image:    []byte("jpeg-" + user.ID),
		Location: &models.Location{Lat: lat, Lng: lng},
		User:     user,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return photo
}

func (f *fixture) catFromPhoto(t *testing.T, user *models.UserProfile, name string) (*models.CatProfile, *models.Photo) {
	t.Helper()
	photo := f.upload(t, user, 37.55, 126.92)
	cat, err := f.store.CreateProfileFromPhoto(context.Background(), CatInput{Name: name}, photo.ID, user)
	if err != nil {
		t.Fatalf("create cat: %v", err)
	}
	return cat, photo
}

func (f *fixture) photoCount(t *testing.T) int {
	t.Helper()
	photos, err := f.db.Photos().List(context.Background())
	if err != nil {
		t.Fatalf("list photos: %v", err)
	}
	return len(photos)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

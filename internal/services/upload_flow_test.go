package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"cat-map-backend/internal/imageproc/imagetest"
	"cat-map-backend/internal/models"
)

func TestUploadFlow_NoLocationWritesNothing(t *testing.T) {
	f := newFixture(t)
	flow := NewUploadFlow(f.store, time.Minute)
	alice := f.user(t, "alice", "Alice")

	_, err := flow.Begin(context.Background(), BeginInput{User: alice, Image: []byte("no exif here")})
	if !errors.Is(err, ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
	if flow.Current("alice").State != FlowIdle {
		t.Fatalf("flow should stay idle")
	}
	if len(f.objects.Keys()) != 0 || f.photoCount(t) != 0 {
		t.Fatalf("nothing should be written without a location")
	}
}

func TestUploadFlow_ConfirmAtMovedLocation(t *testing.T) {
	f := newFixture(t)
	flow := NewUploadFlow(f.store, time.Minute)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")

	draft, err := flow.Begin(ctx, BeginInput{
		User:           alice,
		Image:          []byte("raw"),
		DeviceLocation: &models.Location{Lat: 37.5, Lng: 126.9},
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if draft.State != FlowConfirming || draft.Source != SourceDevice {
		t.Fatalf("unexpected draft: %+v", draft)
	}
	if len(f.objects.Keys()) != 0 {
		t.Fatalf("nothing should be stored before confirmation")
	}

	moved, err := flow.Move("alice", models.Location{Lat: 37.6, Lng: 127.0})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Location.Lat != 37.6 {
		t.Fatalf("marker did not move: %+v", moved.Location)
	}
	if _, err := flow.Move("alice", models.Location{Lat: 200, Lng: 0}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad coordinates, got %v", err)
	}

	photo, err := flow.Confirm(ctx, "alice")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if photo.Lat != 37.6 || photo.Lng != 127.0 {
		t.Fatalf("photo should be placed at the moved marker, got %v,%v", photo.Lat, photo.Lng)
	}
	if flow.Current("alice").State != FlowIdle {
		t.Fatalf("flow should return to idle")
	}
	if _, err := flow.Confirm(ctx, "alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second confirm should fail with ErrInvalidState, got %v", err)
	}
}

func TestUploadFlow_FailedConfirmReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	flow := NewUploadFlow(f.store, time.Minute)
	ctx := context.Background()

	ghost := &models.UserProfile{ID: "ghost"}
	if _, err := flow.Begin(ctx, BeginInput{User: ghost, Image: []byte("raw"), DeviceLocation: &models.Location{Lat: 1, Lng: 1}}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// an emptied image makes the store reject the upload
	flow.mu.Lock()
	flow.drafts["ghost"].image = nil
	flow.mu.Unlock()

	if _, err := flow.Confirm(ctx, "ghost"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if flow.Current("ghost").State != FlowIdle {
		t.Fatalf("failed upload should leave the flow idle")
	}
}

func TestUploadFlow_CancelAndExpire(t *testing.T) {
	f := newFixture(t)
	clock := newTestClock()
	flow := NewUploadFlow(f.store, time.Minute)
	flow.now = clock.Now
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	in := BeginInput{User: alice, Image: []byte("raw"), DeviceLocation: &models.Location{Lat: 1, Lng: 1}}

	if err := flow.Cancel("alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("cancel without a draft should fail, got %v", err)
	}
	if _, err := flow.Begin(ctx, in); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := flow.Cancel("alice"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if flow.Current("alice").State != FlowIdle {
		t.Fatalf("cancel should return to idle")
	}

	if _, err := flow.Begin(ctx, in); err != nil {
		t.Fatalf("begin: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if flow.Current("alice").State != FlowIdle {
		t.Fatalf("expired draft should read as idle")
	}
	if _, err := flow.Confirm(ctx, "alice"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expired draft cannot be confirmed, got %v", err)
	}
	if n := flow.Expire(); n != 1 {
		t.Fatalf("expected 1 expired draft, got %d", n)
	}
	if f.photoCount(t) != 0 {
		t.Fatalf("nothing should be uploaded")
	}
}

func TestUploadFlow_BeginReplacesDraft(t *testing.T) {
	f := newFixture(t)
	flow := NewUploadFlow(f.store, time.Minute)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")

	flow.Begin(ctx, BeginInput{User: alice, Image: []byte("a"), DeviceLocation: &models.Location{Lat: 1, Lng: 1}})
	draft, err := flow.Begin(ctx, BeginInput{User: alice, Image: []byte("b"), DeviceLocation: &models.Location{Lat: 2, Lng: 2}})
	if err != nil {
		t.Fatalf("second begin: %v", err)
	}
	if draft.Location.Lat != 2 {
		t.Fatalf("second draft should replace the first")
	}
}

func TestUploadFlow_PlacementBlinks(t *testing.T) {
	f := newFixture(t)
	flow := NewUploadFlow(f.store, time.Minute)
	flow.blink = 5 * time.Millisecond
	alice := f.user(t, "alice", "Alice")

	var mu sync.Mutex
	var states []bool
	toggled := make(chan struct{}, 1)
	flow.OnPlacement(func(userID string, loc models.Location, lit bool) {
		mu.Lock()
		states = append(states, lit)
		n := len(states)
		mu.Unlock()
		if n >= 3 {
			select {
			case toggled <- struct{}{}:
			default:
			}
		}
	})

	_, err := flow.Begin(context.Background(), BeginInput{User: alice, Image: []byte("raw"), DeviceLocation: &models.Location{Lat: 1, Lng: 1}})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	select {
	case <-toggled:
	case <-time.After(2 * time.Second):
		t.Fatalf("placement marker did not blink")
	}
	if err := flow.Cancel("alice"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !states[0] || states[1] {
		t.Fatalf("marker should start lit and then dim, got %v", states)
	}
}

func TestUploadFlow_ExifLocationWinsOverDevice(t *testing.T) {
	f := newFixture(t)
	flow := NewUploadFlow(f.store, time.Minute)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")

	draft, err := flow.Begin(ctx, BeginInput{
		User:           alice,
		Image:          imagetest.GeotaggedJPEG(t, 37.5, 126.9),
		DeviceLocation: &models.Location{Lat: 35.1, Lng: 129.0},
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if draft.Source != SourceExif {
		t.Fatalf("expected the EXIF location to be used, got source %q", draft.Source)
	}
	if math.Abs(draft.Location.Lat-37.5) > 1e-6 || math.Abs(draft.Location.Lng-126.9) > 1e-6 {
		t.Fatalf("marker should sit at 37.5,126.9, got %+v", draft.Location)
	}

	photo, err := flow.Confirm(ctx, "alice")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if math.Abs(photo.Lat-37.5) > 1e-6 || math.Abs(photo.Lng-126.9) > 1e-6 {
		t.Fatalf("photo should be placed at the EXIF location, got %v,%v", photo.Lat, photo.Lng)
	}
}

func TestUploadFlow_ReplacingDraftDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	flow := NewUploadFlow(f.store, time.Minute)
	flow.blink = 5 * time.Millisecond
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")

	stalled := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	flow.OnPlacement(func(userID string, loc models.Location, lit bool) {
		if !lit {
			once.Do(func() { close(stalled) })
			<-release
		}
	})

	first := models.Location{Lat: 1, Lng: 1}
	if _, err := flow.Begin(ctx, BeginInput{User: alice, Image: []byte("raw"), DeviceLocation: &first}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	select {
	case <-stalled:
	case <-time.After(2 * time.Second):
		t.Fatalf("placement marker did not blink")
	}

	second := models.Location{Lat: 2, Lng: 2}
	replaced := make(chan error, 1)
	go func() {
		_, err := flow.Begin(ctx, BeginInput{User: alice, Image: []byte("raw"), DeviceLocation: &second})
		replaced <- err
	}()

	// the replacement is visible while the old blink loop is still stuck in the listener
	visible := make(chan struct{})
	go func() {
		for {
			if v := flow.Current("alice"); v.Location != nil && *v.Location == second {
				close(visible)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	select {
	case <-visible:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatalf("flow stayed locked while the previous marker was stopping")
	}
	if got := flow.Current("bob").State; got != FlowIdle {
		t.Fatalf("other users should stay idle, got %s", got)
	}

	close(release)
	if err := <-replaced; err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := flow.Cancel("alice"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"cat-map-backend/internal/events"
	"cat-map-backend/internal/models"
)

func TestPhotoStore_UploadDeleteRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	bob := f.user(t, "bob", "Bob")

	photo := f.upload(t, alice, 37.5, 126.9)
	if photo.UserName != "Alice" || photo.CatID != nil {
		t.Fatalf("unexpected photo: %+v", photo)
	}
	if len(f.objects.Keys()) != 1 || f.photoCount(t) != 1 || len(f.store.Photos()) != 1 {
		t.Fatalf("upload should leave one object, one record and one cached photo")
	}

	err := f.store.Delete(ctx, DeleteInput{PhotoID: photo.ID, Actor: alice})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	err = f.store.Delete(ctx, DeleteInput{PhotoID: photo.ID, Actor: bob, Confirmed: true})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	err = f.store.Delete(ctx, DeleteInput{PhotoID: photo.ID, Actor: nil, Confirmed: true})
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
	if f.photoCount(t) != 1 {
		t.Fatalf("rejected deletes must not remove the photo")
	}

	if err := f.store.Delete(ctx, DeleteInput{PhotoID: photo.ID, Actor: alice, Confirmed: true}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if keys := f.objects.Keys(); len(keys) != 0 {
		t.Fatalf("stored image should be gone, got %v", keys)
	}
	if f.photoCount(t) != 0 || len(f.store.Photos()) != 0 {
		t.Fatalf("photo should be gone from repository and cache")
	}

	got := f.publisher.types()
	if len(got) != 2 || got[0] != events.PhotoUploaded || got[1] != events.PhotoDeleted {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestPhotoStore_AdminDeletesAnyPhoto(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")
	admin := &models.UserProfile{ID: "root", Role: models.RoleAdmin}

	photo := f.upload(t, alice, 37.5, 126.9)
	if err := f.store.Delete(context.Background(), DeleteInput{PhotoID: photo.ID, Actor: admin, Confirmed: true}); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if f.photoCount(t) != 0 {
		t.Fatalf("photo should be deleted")
	}
}

func TestPhotoStore_DeleteRemovesComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")

	photo := f.upload(t, alice, 37.5, 126.9)
	if _, err := f.timeline.AddComment(ctx, photo.ID, alice, "cute"); err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if err := f.store.Delete(ctx, DeleteInput{PhotoID: photo.ID, Actor: alice, Confirmed: true}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	comments, err := f.db.Comments().ListByPhoto(ctx, photo.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("comments should be deleted with the photo, got %d", len(comments))
	}
}

func TestPhotoStore_UploadValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")

	tests := []struct {
		name  string
		input UploadInput
		want  error
	}{
		{"no image", UploadInput{Location: &models.Location{Lat: 1, Lng: 1}, User: alice}, ErrValidation},
		{"no location", UploadInput{Image: []byte("x"), User: alice}, ErrValidation},
		{"no user", UploadInput{Image: []byte("x"), Location: &models.Location{Lat: 1, Lng: 1}}, ErrValidation},
		{"latitude out of range", UploadInput{Image: []byte("x"), Location: &models.Location{Lat: 91, Lng: 1}, User: alice}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Upload(context.Background(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(f.objects.Keys()) != 0 || f.photoCount(t) != 0 {
		t.Fatalf("rejected uploads must not write anything")
	}
}

func TestPhotoStore_CreateProfileFromPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	photo := f.upload(t, alice, 37.51, 126.91)

	_, err := f.store.CreateProfileFromPhoto(ctx, CatInput{Name: "  "}, photo.ID, alice)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}

	cat, err := f.store.CreateProfileFromPhoto(ctx, CatInput{Name: " Nabi ", Tags: []string{"tabby", "tabby", " "}}, photo.ID, alice)
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if cat.Name != "Nabi" || cat.Lat != 37.51 || cat.MainPhotoURL != photo.ImageURL || cat.CreatedBy != "alice" {
		t.Fatalf("unexpected cat: %+v", cat)
	}
	if len(cat.Tags) != 1 || cat.Tags[0] != "tabby" {
		t.Fatalf("tags not normalized: %v", cat.Tags)
	}

	stored, err := f.db.Photos().GetByID(ctx, photo.ID)
	if err != nil {
		t.Fatalf("get photo: %v", err)
	}
	if stored.CatID == nil || *stored.CatID != cat.ID || *stored.CatName != "Nabi" {
		t.Fatalf("photo not linked in repository: %+v", stored)
	}
	cached, err := f.store.Get(ctx, photo.ID)
	if err != nil || cached.CatID == nil || *cached.CatID != cat.ID {
		t.Fatalf("photo not linked in cache: %+v, %v", cached, err)
	}

	_, err = f.store.CreateProfileFromPhoto(ctx, CatInput{Name: "Again"}, photo.ID, alice)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for a linked photo, got %v", err)
	}
}

func TestPhotoStore_PageAndRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clock := newTestClock()
	f.store.now = clock.Now
	alice := f.user(t, "alice", "Alice")

	var ids []string
	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		ids = append(ids, f.upload(t, alice, 37.5, 126.9).ID)
	}

	first, err := f.store.Page(ctx, "", 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(first) != 2 || first[0].ID != ids[4] || first[1].ID != ids[3] {
		t.Fatalf("unexpected first page")
	}
	second, err := f.store.Page(ctx, first[1].ID, 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(second) != 3 || second[0].ID != ids[2] {
		t.Fatalf("unexpected second page: %d photos", len(second))
	}

	recent, err := f.store.FetchRecent(ctx)
	if err != nil {
		t.Fatalf("fetch recent: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("expected 5 recent photos, got %d", len(recent))
	}
	clock.Advance(25 * time.Hour)
	if got := f.store.Recent(); len(got) != 0 {
		t.Fatalf("photos older than a day should drop out of recent, got %d", len(got))
	}
}

func TestPhotoStore_OnChange(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "Alice")

	calls := 0
	f.store.OnChange(func() { calls++ })

	photo := f.upload(t, alice, 37.5, 126.9)
	if err := f.store.Delete(context.Background(), DeleteInput{PhotoID: photo.ID, Actor: alice, Confirmed: true}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 change notifications, got %d", calls)
	}
}

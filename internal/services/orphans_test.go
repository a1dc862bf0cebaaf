package services

import (
	"context"
	"testing"
	"time"
)

func TestOrphanSweeper_RetriesFailedDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	photo := f.upload(t, alice, 37.5, 126.9)

	f.objects.SetFailDelete(true)
	if err := f.store.Delete(ctx, DeleteInput{PhotoID: photo.ID, Actor: alice, Confirmed: true}); err != nil {
		t.Fatalf("delete should succeed even when storage fails: %v", err)
	}
	if f.photoCount(t) != 0 {
		t.Fatalf("photo record should be gone")
	}
	queued, _ := f.db.Orphans().List(ctx, 10)
	if len(queued) != 1 || queued[0].URL != photo.ImageURL {
		t.Fatalf("failed delete should be queued, got %+v", queued)
	}

	sweeper := NewOrphanSweeper(f.db.Orphans(), f.objects, time.Minute, 10, 5)
	n, err := sweeper.Sweep(ctx)
	if err != nil || n != 0 {
		t.Fatalf("sweep while storage fails: n=%d err=%v", n, err)
	}
	queued, _ = f.db.Orphans().List(ctx, 10)
	if len(queued) != 1 || queued[0].Attempts != 1 {
		t.Fatalf("attempt should be recorded, got %+v", queued)
	}

	f.objects.SetFailDelete(false)
	n, err = sweeper.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	if keys := f.objects.Keys(); len(keys) != 0 {
		t.Fatalf("orphan should be removed from storage, got %v", keys)
	}
	if queued, _ = f.db.Orphans().List(ctx, 10); len(queued) != 0 {
		t.Fatalf("queue should be empty")
	}
}

func TestOrphanSweeper_GivesUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice", "Alice")
	photo := f.upload(t, alice, 37.5, 126.9)

	f.objects.SetFailDelete(true)
	f.media.Discard(ctx, "test", photo.ImageURL)

	sweeper := NewOrphanSweeper(f.db.Orphans(), f.objects, time.Minute, 10, 2)
	for i := 0; i < 2; i++ {
		if _, err := sweeper.Sweep(ctx); err != nil {
			t.Fatalf("sweep: %v", err)
		}
	}
	if queued, _ := f.db.Orphans().List(ctx, 10); len(queued) != 0 {
		t.Fatalf("orphan should be dropped after max attempts, got %d", len(queued))
	}
}

func TestMedia_DiscardIgnoresMissingObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.media.Discard(ctx, "test", "https://cdn.test/images/gone.jpg", "")
	if queued, _ := f.db.Orphans().List(ctx, 10); len(queued) != 0 {
		t.Fatalf("missing objects should not be queued")
	}
}

package cache

import (
	"context"
	"testing"
	"time"

	"cat-map-backend/internal/models"
)

func at(id string, minutes int) *models.Photo {
	return &models.Photo{ID: id, CreatedAt: time.Date(2026, 10, 16, 12, minutes, 0, 0, time.UTC)}
}

func ids(photos []*models.Photo) []string {
	out := make([]string, len(photos))
	for i, p := range photos {
		out[i] = p.ID
	}
	return out
}

func TestPhotoCache_StaleFetchDiscarded(t *testing.T) {
	c := NewPhotoCache()

	slow := c.BeginFetch()
	fast := c.BeginFetch()

	if !c.Replace(fast, []*models.Photo{at("new", 2), at("old", 1)}) {
		t.Fatalf("newer fetch should apply")
	}
	if c.Replace(slow, []*models.Photo{at("old", 1)}) {
		t.Fatalf("older fetch should be discarded")
	}
	if got := ids(c.Snapshot()); len(got) != 2 || got[0] != "new" {
		t.Fatalf("unexpected cache contents: %v", got)
	}
}

func TestPhotoCache_MutationBeatsInflightFetch(t *testing.T) {
	c := NewPhotoCache()
	ticket := c.BeginFetch()

	c.Upsert(at("uploaded", 5))
	if c.Replace(ticket, []*models.Photo{}) {
		t.Fatalf("fetch started before the upload should not overwrite it")
	}
	if _, ok := c.Get("uploaded"); !ok {
		t.Fatalf("uploaded photo missing")
	}
}

func TestPhotoCache_IncrementalOps(t *testing.T) {
	c := NewPhotoCache()
	c.Replace(c.BeginFetch(), []*models.Photo{at("a", 1), at("b", 2)})

	c.Upsert(at("c", 3))
	if got := ids(c.Snapshot()); got[0] != "c" || len(got) != 3 {
		t.Fatalf("expected c first, got %v", got)
	}

	c.Remove("a", "missing")
	if got := ids(c.Snapshot()); len(got) != 2 {
		t.Fatalf("expected 2 photos after remove, got %v", got)
	}

	name := "Nabi"
	n := c.Patch(
		func(p *models.Photo) bool { return p.ID == "b" },
		func(p models.Photo) models.Photo { p.CatName = &name; return p },
	)
	if n != 1 {
		t.Fatalf("expected 1 patched photo, got %d", n)
	}
	b, _ := c.Get("b")
	if b.CatName == nil || *b.CatName != "Nabi" {
		t.Fatalf("patch not applied")
	}
}

func TestMemoryDenylist(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDenylist()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	if err := d.Revoke(ctx, "jti-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := d.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatalf("expected jti-1 revoked")
	}
	if revoked, _ := d.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatalf("jti-2 was never revoked")
	}

	now = now.Add(2 * time.Hour)
	if revoked, _ := d.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatalf("expired revocation should lapse")
	}
}

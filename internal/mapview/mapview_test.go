package mapview

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cat-map-backend/internal/models"
)

func photo(id string, lat, lng float64) *models.Photo {
	return &models.Photo{ID: id, Lat: lat, Lng: lng, ImageURL: "https://cdn.test/" + id + ".jpg"}
}

func TestReconcile_KeepsUnchangedMarkers(t *testing.T) {
	layer := NewLayer(DefaultZoom)

	diff := layer.Reconcile([]*models.Photo{photo("a", 1, 1), photo("b", 2, 2)})
	if len(diff.Added) != 2 || len(diff.Removed) != 0 {
		t.Fatalf("unexpected initial diff: %+v", diff)
	}
	markerA, _, _ := layer.Marker("a")

	diff = layer.Reconcile([]*models.Photo{photo("a", 1, 1), photo("c", 3, 3)})
	if len(diff.Added) != 1 || diff.Added[0].PhotoID != "c" {
		t.Fatalf("expected only c added, got %+v", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != "b" {
		t.Fatalf("expected only b removed, got %v", diff.Removed)
	}

	again, _, ok := layer.Marker("a")
	if !ok || again != markerA {
		t.Fatalf("marker for unchanged id was recreated")
	}
	if layer.Len() != 2 {
		t.Fatalf("expected 2 markers, got %d", layer.Len())
	}

	if diff := layer.Reconcile([]*models.Photo{photo("a", 1, 1), photo("c", 3, 3)}); !diff.Empty() {
		t.Fatalf("expected empty diff for identical set, got %+v", diff)
	}
}

func TestStyleForZoom_Threshold(t *testing.T) {
	tests := []struct {
		zoom int
		want MarkerKind
	}{
		{15, KindPin},
		{16, KindThumbnail},
		{17, KindThumbnail},
	}
	for _, tt := range tests {
		if got := StyleForZoom(tt.zoom, false).Kind; got != tt.want {
			t.Errorf("StyleForZoom(%d) = %s, want %s", tt.zoom, got, tt.want)
		}
	}
}

func TestStyleForZoom_SelectedStandsOut(t *testing.T) {
	for _, z := range []int{15, 16} {
		plain := StyleForZoom(z, false)
		sel := StyleForZoom(z, true)
		if sel.Size <= plain.Size || sel.ZIndex <= plain.ZIndex || sel.BorderColor == plain.BorderColor {
			t.Errorf("zoom %d: selected style %+v does not stand out from %+v", z, sel, plain)
		}
	}
}

func TestSetZoom_RestylesAcrossThreshold(t *testing.T) {
	layer := NewLayer(15)
	layer.Reconcile([]*models.Photo{photo("a", 1, 1)})

	if changed := layer.SetZoom(16); len(changed) != 1 || changed[0].Style.Kind != KindThumbnail {
		t.Fatalf("expected a restyled to thumbnail, got %+v", changed)
	}
	if changed := layer.SetZoom(17); len(changed) != 0 {
		t.Fatalf("expected no restyle within thumbnail range, got %+v", changed)
	}
}

func TestMarker_StyleReadDuringRestyle(t *testing.T) {
	layer := NewLayer(15)
	layer.Reconcile([]*models.Photo{photo("a", 1, 1)})
	marker, _, _ := layer.Marker("a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			layer.SetZoom(15 + i%2)
		}
	}()

	for i := 0; i < 200; i++ {
		m, style, ok := layer.Marker("a")
		if !ok || m != marker {
			t.Fatalf("marker identity changed during restyle")
		}
		if style.Kind != KindPin && style.Kind != KindThumbnail {
			t.Fatalf("unexpected style %+v", style)
		}
	}
	<-done

	if _, _, ok := layer.Marker("missing"); ok {
		t.Fatalf("expected no marker for an unknown id")
	}
}

func TestSelect(t *testing.T) {
	layer := NewLayer(16)
	layer.Reconcile([]*models.Photo{photo("a", 1, 1), photo("b", 2, 2)})

	if changed := layer.Select("a"); len(changed) != 1 {
		t.Fatalf("expected one restyle, got %d", len(changed))
	}
	if changed := layer.Select("b"); len(changed) != 2 {
		t.Fatalf("expected previous and new marker restyled, got %d", len(changed))
	}
	_, a, _ := layer.Marker("a")
	_, b, _ := layer.Marker("b")
	if a.ZIndex >= b.ZIndex {
		t.Fatalf("selected marker should be on top")
	}
	if changed := layer.Select("missing"); changed != nil || layer.Selected() != "b" {
		t.Fatalf("selecting an unknown id should do nothing")
	}

	layer.Reconcile([]*models.Photo{photo("a", 1, 1)})
	if layer.Selected() != "" {
		t.Fatalf("removing the selected marker should clear selection")
	}
}

func TestVisible_KeepsOrder(t *testing.T) {
	layer := NewLayer(15)
	layer.Reconcile([]*models.Photo{
		photo("in-1", 37.55, 126.92),
		photo("out", 35.1, 129.0),
		photo("in-2", 37.54, 126.93),
	})

	bounds := models.Bounds{
		SouthWest: models.Location{Lat: 37.5, Lng: 126.9},
		NorthEast: models.Location{Lat: 37.6, Lng: 127.0},
	}
	got := layer.Visible(bounds)
	if len(got) != 2 || got[0].ID != "in-1" || got[1].ID != "in-2" {
		t.Fatalf("unexpected visible set: %v", got)
	}
}

func TestInitialCenter(t *testing.T) {
	vp := InitialCenter(nil)
	if vp.Center.Lat != DefaultLat || vp.Center.Lng != DefaultLng || vp.Zoom != 15 {
		t.Fatalf("unexpected default viewport: %+v", vp)
	}
	device := models.Location{Lat: 35.1, Lng: 129.0}
	if vp := InitialCenter(&device); vp.Center != device {
		t.Fatalf("expected device center, got %+v", vp)
	}
}

func TestPlacement_BlinkAndStop(t *testing.T) {
	p := NewPlacement(models.Location{Lat: 1, Lng: 1})
	var toggles atomic.Int32

	p.Blink(context.Background(), 5*time.Millisecond, func(bool) { toggles.Add(1) })
	p.Blink(context.Background(), 5*time.Millisecond, nil)

	deadline := time.Now().Add(time.Second)
	for toggles.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	p.Stop()

	if toggles.Load() < 2 {
		t.Fatalf("expected the placement marker to blink")
	}
	if !p.Lit() {
		t.Fatalf("expected icon lit after stop")
	}

	p.Move(models.Location{Lat: 2, Lng: 3})
	if p.Position() != (models.Location{Lat: 2, Lng: 3}) {
		t.Fatalf("move did not update position")
	}
	p.Stop()
}

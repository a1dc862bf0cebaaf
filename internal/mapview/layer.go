package mapview

import (
	"sync"

	"cat-map-backend/internal/models"
)

// Marker is the rendered representation of one photo
type Marker struct {
	PhotoID  string          `json:"photo_id"`
	Position models.Location `json:"position"`
	ImageURL string          `json:"image_url"`
	Style    Style           `json:"style"`
}

func (m *Marker) copy() *Marker {
	c := *m
	return &c
}

// Diff is the change produced by one reconciliation
type Diff struct {
	Added   []*Marker `json:"added"`
	Removed []string  `json:"removed"`
}

// Empty reports whether the reconciliation changed nothing
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Layer holds the markers of one map client
type Layer struct {
	mu       sync.RWMutex
	markers  map[string]*Marker
	photos   []*models.Photo
	zoom     int
	selected string
}

// NewLayer creates an empty layer at the given zoom
func NewLayer(zoom int) *Layer {
	return &Layer{
		markers: make(map[string]*Marker),
		zoom:    zoom,
	}
}

// Reconcile brings the markers in line with photos. Markers of ids present
// both before and after are left untouched.
func (l *Layer) Reconcile(photos []*models.Photo) Diff {
	l.mu.Lock()
	defer l.mu.Unlock()

	incoming := make(map[string]*models.Photo, len(photos))
	for _, p := range photos {
		incoming[p.ID] = p
	}

	var diff Diff
	for id := range l.markers {
		if _, ok := incoming[id]; !ok {
			delete(l.markers, id)
			diff.Removed = append(diff.Removed, id)
			if l.selected == id {
				l.selected = ""
			}
		}
	}
	for _, p := range photos {
		if _, ok := l.markers[p.ID]; ok {
			continue
		}
		m := &Marker{
			PhotoID:  p.ID,
			Position: p.Location(),
			ImageURL: p.ImageURL,
			Style:    StyleForZoom(l.zoom, p.ID == l.selected),
		}
		l.markers[p.ID] = m
		diff.Added = append(diff.Added, m.copy())
	}

	l.photos = append(l.photos[:0:0], photos...)
	return diff
}

// Marker returns the marker rendered for a photo and a copy of its current style.
// The pointer only identifies the marker; SetZoom and Select restyle it under
// the layer lock, so callers read the returned style instead of m.Style.
func (l *Layer) Marker(photoID string) (m *Marker, style Style, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok = l.markers[photoID]
	if !ok {
		return nil, Style{}, false
	}
	return m, m.Style, true
}

// Len returns the number of rendered markers
func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.markers)
}

// Zoom returns the current zoom level
func (l *Layer) Zoom() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zoom
}

// SetZoom restyles every marker for zoom z and returns the markers whose style changed
func (l *Layer) SetZoom(z int) []*Marker {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.zoom = z
	var changed []*Marker
	for id, m := range l.markers {
		style := StyleForZoom(z, id == l.selected)
		if style != m.Style {
			m.Style = style
			changed = append(changed, m.copy())
		}
	}
	return changed
}

// Select highlights the marker of photoID, clearing the previous selection.
// An empty id clears the selection. It returns the restyled markers.
func (l *Layer) Select(photoID string) []*Marker {
	l.mu.Lock()
	defer l.mu.Unlock()

	if photoID == l.selected {
		return nil
	}
	if _, ok := l.markers[photoID]; photoID != "" && !ok {
		return nil
	}

	var changed []*Marker
	if prev, ok := l.markers[l.selected]; ok {
		prev.Style = StyleForZoom(l.zoom, false)
		changed = append(changed, prev.copy())
	}
	l.selected = photoID
	if m, ok := l.markers[photoID]; ok {
		m.Style = StyleForZoom(l.zoom, true)
		changed = append(changed, m.copy())
	}
	return changed
}

// Selected returns the selected photo id, if any
func (l *Layer) Selected() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected
}

// Visible returns the photos inside bounds in the layer's photo order
func (l *Layer) Visible(bounds models.Bounds) []*models.Photo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Visible(l.photos, bounds)
}

// Visible filters photos down to those inside bounds, keeping their order
func Visible(photos []*models.Photo, bounds models.Bounds) []*models.Photo {
	out := make([]*models.Photo, 0)
	for _, p := range photos {
		if bounds.Contains(p.Location()) {
			out = append(out, p)
		}
	}
	return out
}

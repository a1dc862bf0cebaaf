// Package cache owns the in-process photo set and its optional Redis backing.
package cache

import (
	"sort"
	"sync"

	"cat-map-backend/internal/models"
)

// PhotoCache is the authoritative in-process copy of the photo set, newest first.
// Every fetch and mutation draws a ticket; a fetch result older than the
// last applied ticket is discarded.
type PhotoCache struct {
	mu      sync.RWMutex
	photos  []*models.Photo
	loaded  bool
	next    uint64
	applied uint64
}

// NewPhotoCache creates an empty cache
func NewPhotoCache() *PhotoCache {
	return &PhotoCache{}
}

// BeginFetch returns the ticket a fetch must present to Replace
func (c *PhotoCache) BeginFetch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return c.next
}

// Replace installs a fetched photo set. It reports false when the result is stale.
func (c *PhotoCache) Replace(ticket uint64, photos []*models.Photo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ticket < c.applied {
		return false
	}
	c.applied = ticket
	c.photos = sortNewest(append([]*models.Photo(nil), photos...))
	c.loaded = true
	return true
}

// Snapshot returns a copy of the cached photos
func (c *PhotoCache) Snapshot() []*models.Photo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*models.Photo(nil), c.photos...)
}

// Loaded reports whether a fetch has completed at least once
func (c *PhotoCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Get returns a cached photo by id
func (c *PhotoCache) Get(id string) (*models.Photo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.photos {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Upsert inserts or replaces a photo
func (c *PhotoCache) Upsert(photo *models.Photo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpLocked()

	for i, p := range c.photos {
		if p.ID == photo.ID {
			c.photos[i] = photo
			return
		}
	}
	c.photos = sortNewest(append(c.photos, photo))
}

// Remove drops photos by id
func (c *PhotoCache) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	c.RemoveWhere(func(p *models.Photo) bool {
		_, ok := drop[p.ID]
		return ok
	})
}

// RemoveWhere drops every photo matching match and returns their ids
func (c *PhotoCache) RemoveWhere(match func(*models.Photo) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpLocked()

	var removed []string
	kept := c.photos[:0:0]
	for _, p := range c.photos {
		if match(p) {
			removed = append(removed, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	c.photos = kept
	return removed
}

// Patch replaces every photo matching match with the result of update.
// It returns how many photos changed.
func (c *PhotoCache) Patch(match func(*models.Photo) bool, update func(models.Photo) models.Photo) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpLocked()

	n := 0
	for i, p := range c.photos {
		if match(p) {
			next := update(*p)
			c.photos[i] = &next
			n++
		}
	}
	return n
}

func (c *PhotoCache) bumpLocked() {
	c.next++
	c.applied = c.next
}

func sortNewest(photos []*models.Photo) []*models.Photo {
	sort.SliceStable(photos, func(i, j int) bool {
		return photos[i].CreatedAt.After(photos[j].CreatedAt)
	})
	return photos
}

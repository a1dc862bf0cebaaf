// Package memory holds in-process implementations of the repositories,
// used by tests and by the server when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cat-map-backend/internal/models"
	"cat-map-backend/internal/repository"
)

// DB is the shared state behind every memory repository
type DB struct {
	mu       sync.RWMutex
	photos   map[string]models.Photo
	cats     map[string]models.CatProfile
	comments map[string]models.Comment
	threads  map[string]models.ThreadPost
	users    map[string]models.UserProfile
	orphans  map[string]models.OrphanObject
}

// New creates an empty database
func New() *DB {
	return &DB{
		photos:   make(map[string]models.Photo),
		cats:     make(map[string]models.CatProfile),
		comments: make(map[string]models.Comment),
		threads:  make(map[string]models.ThreadPost),
		users:    make(map[string]models.UserProfile),
		orphans:  make(map[string]models.OrphanObject),
	}
}

// Photos returns the photo repository
func (db *DB) Photos() *PhotoRepo { return &PhotoRepo{db: db} }

// Cats returns the cat repository
func (db *DB) Cats() *CatRepo { return &CatRepo{db: db} }

// Comments returns the comment repository
func (db *DB) Comments() *CommentRepo { return &CommentRepo{db: db} }

// Threads returns the timeline repository
func (db *DB) Threads() *ThreadRepo { return &ThreadRepo{db: db} }

// Users returns the user repository
func (db *DB) Users() *UserRepo { return &UserRepo{db: db} }

// Cascades returns the cascade repository
func (db *DB) Cascades() *CascadeRepo { return &CascadeRepo{db: db} }

// Orphans returns the orphan object repository
func (db *DB) Orphans() *OrphanRepo { return &OrphanRepo{db: db} }

func (db *DB) displayNameTakenLocked(name, excludeID string) bool {
	for id, u := range db.users {
		if id != excludeID && u.DisplayName == name {
			return true
		}
	}
	return false
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repository.ErrNotFound)
}

func newestFirst[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool { return at(items[i]).After(at(items[j])) })
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func clonePhoto(p models.Photo) *models.Photo {
	p.CatID = copyString(p.CatID)
	p.CatName = copyString(p.CatName)
	return &p
}

func cloneCat(c models.CatProfile) *models.CatProfile {
	c.Age = copyString(c.Age)
	c.Tags = append([]string{}, c.Tags...)
	return &c
}

// PhotoRepo is the memory photo repository
type PhotoRepo struct{ db *DB }

// Create creates a new photo
func (r *PhotoRepo) Create(ctx context.Context, photo *models.Photo) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if photo.ID == "" {
		return fmt.Errorf("photo id required")
	}
	if _, exists := r.db.photos[photo.ID]; exists {
		return fmt.Errorf("photo %s: %w", photo.ID, repository.ErrConflict)
	}
	r.db.photos[photo.ID] = *clonePhoto(*photo)
	return nil
}

// GetByID retrieves a photo by ID
func (r *PhotoRepo) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.db.photos[id]
	if !ok {
		return nil, notFound("photo", id)
	}
	return clonePhoto(p), nil
}

// List retrieves every photo, newest first
func (r *PhotoRepo) List(ctx context.Context) ([]*models.Photo, error) {
	return r.filter(func(models.Photo) bool { return true }), nil
}

// ListSince retrieves photos created at or after since, newest first
func (r *PhotoRepo) ListSince(ctx context.Context, since time.Time) ([]*models.Photo, error) {
	return r.filter(func(p models.Photo) bool { return !p.CreatedAt.Before(since) }), nil
}

// ListByCat retrieves the photos of a cat profile, newest first
func (r *PhotoRepo) ListByCat(ctx context.Context, catID string) ([]*models.Photo, error) {
	return r.filter(func(p models.Photo) bool { return p.CatID != nil && *p.CatID == catID }), nil
}

// ListByUser retrieves the photos uploaded by a user, newest first
func (r *PhotoRepo) ListByUser(ctx context.Context, userID string) ([]*models.Photo, error) {
	return r.filter(func(p models.Photo) bool { return p.UserID == userID }), nil
}

// ListPage retrieves up to limit photos older than the photo afterID, newest first
func (r *PhotoRepo) ListPage(ctx context.Context, afterID string, limit int) ([]*models.Photo, error) {
	all := r.filter(func(models.Photo) bool { return true })
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := 0
	if afterID != "" {
		start = len(all)
		for i, p := range all {
			if p.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	page := all[start:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}
	return page, nil
}

// Delete deletes a photo together with its comments
func (r *PhotoRepo) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.photos[id]; !ok {
		return notFound("photo", id)
	}
	r.db.deletePhotoLocked(id)
	return nil
}

func (r *PhotoRepo) filter(keep func(models.Photo) bool) []*models.Photo {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*models.Photo, 0)
	for _, p := range r.db.photos {
		if keep(p) {
			out = append(out, clonePhoto(p))
		}
	}
	newestFirst(out, func(p *models.Photo) time.Time { return p.CreatedAt })
	return out
}

func (db *DB) deletePhotoLocked(id string) {
	delete(db.photos, id)
	for cid, c := range db.comments {
		if c.PhotoID == id {
			delete(db.comments, cid)
		}
	}
}

// CatRepo is the memory cat repository
type CatRepo struct{ db *DB }

// GetByID retrieves a cat profile by ID
func (r *CatRepo) GetByID(ctx context.Context, id string) (*models.CatProfile, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.cats[id]
	if !ok {
		return nil, notFound("cat", id)
	}
	return cloneCat(c), nil
}

// ListSince retrieves cats created at or after since, newest first
func (r *CatRepo) ListSince(ctx context.Context, since time.Time) ([]*models.CatProfile, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*models.CatProfile, 0)
	for _, c := range r.db.cats {
		if !c.CreatedAt.Before(since) {
			out = append(out, cloneCat(c))
		}
	}
	newestFirst(out, func(c *models.CatProfile) time.Time { return c.CreatedAt })
	return out, nil
}

// CommentRepo is the memory comment repository
type CommentRepo struct{ db *DB }

// Create creates a new comment
func (r *CommentRepo) Create(ctx context.Context, comment *models.Comment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if comment.ID == "" {
		return fmt.Errorf("comment id required")
	}
	r.db.comments[comment.ID] = *comment
	return nil
}

// GetByID retrieves a comment by ID
func (r *CommentRepo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.comments[id]
	if !ok {
		return nil, notFound("comment", id)
	}
	return &c, nil
}

// ListByPhoto retrieves the comments of a photo, oldest first
func (r *CommentRepo) ListByPhoto(ctx context.Context, photoID string) ([]*models.Comment, error) {
	out := r.filter(func(c models.Comment) bool { return c.PhotoID == photoID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByUser retrieves the comments written by a user, newest first
func (r *CommentRepo) ListByUser(ctx context.Context, userID string) ([]*models.Comment, error) {
	out := r.filter(func(c models.Comment) bool { return c.UserID == userID })
	newestFirst(out, func(c *models.Comment) time.Time { return c.CreatedAt })
	return out, nil
}

// Delete deletes a comment
func (r *CommentRepo) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.comments[id]; !ok {
		return notFound("comment", id)
	}
	delete(r.db.comments, id)
	return nil
}

func (r *CommentRepo) filter(keep func(models.Comment) bool) []*models.Comment {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*models.Comment, 0)
	for _, c := range r.db.comments {
		if keep(c) {
			c := c
			out = append(out, &c)
		}
	}
	return out
}

// ThreadRepo is the memory timeline repository
type ThreadRepo struct{ db *DB }

// Create creates a new timeline post
func (r *ThreadRepo) Create(ctx context.Context, post *models.ThreadPost) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if post.ID == "" {
		return fmt.Errorf("thread id required")
	}
	r.db.threads[post.ID] = *post
	return nil
}

// GetByID retrieves a timeline post by ID
func (r *ThreadRepo) GetByID(ctx context.Context, id string) (*models.ThreadPost, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.db.threads[id]
	if !ok {
		return nil, notFound("thread", id)
	}
	return &p, nil
}

// ListByCat retrieves the timeline of a cat profile, newest first
func (r *ThreadRepo) ListByCat(ctx context.Context, catID string) ([]*models.ThreadPost, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*models.ThreadPost, 0)
	for _, p := range r.db.threads {
		if p.CatID == catID {
			p := p
			out = append(out, &p)
		}
	}
	newestFirst(out, func(p *models.ThreadPost) time.Time { return p.CreatedAt })
	return out, nil
}

// ImageReferenced reports whether any post uses the image
func (r *ThreadRepo) ImageReferenced(ctx context.Context, imageURL string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, p := range r.db.threads {
		if p.ImageURL != "" && p.ImageURL == imageURL {
			return true, nil
		}
	}
	return false, nil
}

// UserRepo is the memory user repository
type UserRepo struct{ db *DB }

// Create creates a new user; an existing user with the same ID is left untouched
func (r *UserRepo) Create(ctx context.Context, user *models.UserProfile) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.users[user.ID]; exists {
		return nil
	}
	if r.db.displayNameTakenLocked(user.DisplayName, user.ID) {
		return fmt.Errorf("display name %q: %w", user.DisplayName, repository.ErrConflict)
	}
	u := *user
	u.PushToken = copyString(user.PushToken)
	r.db.users[user.ID] = u
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.UserProfile, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	u.PushToken = copyString(u.PushToken)
	return &u, nil
}

// DisplayNameTaken checks whether another user already uses the display name
func (r *UserRepo) DisplayNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	return r.db.displayNameTakenLocked(name, excludeID), nil
}

// UpdatePushToken updates the push token for a user
func (r *UserRepo) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[userID]
	if !ok {
		return notFound("user", userID)
	}
	u.PushToken = copyString(pushToken)
	r.db.users[userID] = u
	return nil
}

// OrphanRepo is the memory orphan repository
type OrphanRepo struct{ db *DB }

// Add queues an object for deletion; a URL already queued is kept once
func (r *OrphanRepo) Add(ctx context.Context, orphan *models.OrphanObject) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, o := range r.db.orphans {
		if o.URL == orphan.URL {
			return nil
		}
	}
	r.db.orphans[orphan.ID] = *orphan
	return nil
}

// List retrieves up to limit queued objects, oldest first
func (r *OrphanRepo) List(ctx context.Context, limit int) ([]*models.OrphanObject, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*models.OrphanObject, 0, len(r.db.orphans))
	for _, o := range r.db.orphans {
		o := o
		out = append(out, &o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes an object from the queue
func (r *OrphanRepo) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	delete(r.db.orphans, id)
	return nil
}

// IncrementAttempts records a failed deletion attempt
func (r *OrphanRepo) IncrementAttempts(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if o, ok := r.db.orphans[id]; ok {
		o.Attempts++
		r.db.orphans[id] = o
	}
	return nil
}

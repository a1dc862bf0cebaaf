package memory

import (
	"context"
	"fmt"

	"cat-map-backend/internal/models"
	"cat-map-backend/internal/repository"
)

// CascadeRepo is the memory cascade repository; every method holds the
// database lock for its whole duration, so each cascade is atomic.
type CascadeRepo struct{ db *DB }

// CreateCatFromPhoto inserts the cat profile and links the source photo to it
func (r *CascadeRepo) CreateCatFromPhoto(ctx context.Context, cat *models.CatProfile, photoID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	photo, ok := r.db.photos[photoID]
	if !ok {
		return notFound("photo", photoID)
	}
	if _, exists := r.db.cats[cat.ID]; exists {
		return fmt.Errorf("cat %s: %w", cat.ID, repository.ErrConflict)
	}

	r.db.cats[cat.ID] = *cloneCat(*cat)
	photo.CatID = copyString(&cat.ID)
	photo.CatName = copyString(&cat.Name)
	r.db.photos[photoID] = photo
	return nil
}

// UpdateCat writes the editable cat fields; when renamed the new name is copied onto its photos
func (r *CascadeRepo) UpdateCat(ctx context.Context, cat *models.CatProfile, renamed bool) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	existing, ok := r.db.cats[cat.ID]
	if !ok {
		return notFound("cat", cat.ID)
	}
	existing.Name = cat.Name
	existing.Description = cat.Description
	existing.Age = copyString(cat.Age)
	existing.Tags = append([]string{}, cat.Tags...)
	r.db.cats[cat.ID] = existing

	if renamed {
		for id, p := range r.db.photos {
			if p.CatID != nil && *p.CatID == cat.ID {
				p.CatName = copyString(&cat.Name)
				r.db.photos[id] = p
			}
		}
	}
	return nil
}

// DeleteCat removes a cat with its photos, their comments and its timeline
func (r *CascadeRepo) DeleteCat(ctx context.Context, catID string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.cats[catID]; !ok {
		return nil, notFound("cat", catID)
	}

	seen := make(map[string]struct{})
	var urls []string
	addURL := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for id, p := range r.db.photos {
		if p.CatID != nil && *p.CatID == catID {
			addURL(p.ImageURL)
			r.db.deletePhotoLocked(id)
		}
	}
	for id, t := range r.db.threads {
		if t.CatID == catID {
			addURL(t.ImageURL)
			delete(r.db.threads, id)
		}
	}
	delete(r.db.cats, catID)
	return urls, nil
}

// CreatePostWithPhoto inserts a timeline post and, when given, its standalone photo
func (r *CascadeRepo) CreatePostWithPhoto(ctx context.Context, post *models.ThreadPost, photo *models.Photo) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if photo != nil {
		if _, exists := r.db.photos[photo.ID]; exists {
			return fmt.Errorf("photo %s: %w", photo.ID, repository.ErrConflict)
		}
		r.db.photos[photo.ID] = *clonePhoto(*photo)
	}
	r.db.threads[post.ID] = *post
	return nil
}

// DeletePost removes a timeline post and every photo sharing its image
func (r *CascadeRepo) DeletePost(ctx context.Context, postID string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	post, ok := r.db.threads[postID]
	if !ok {
		return nil, notFound("thread", postID)
	}
	delete(r.db.threads, postID)

	var photoIDs []string
	if post.ImageURL == "" {
		return photoIDs, nil
	}
	for id, p := range r.db.photos {
		if p.ImageURL == post.ImageURL {
			photoIDs = append(photoIDs, id)
			r.db.deletePhotoLocked(id)
		}
	}
	return photoIDs, nil
}

// UpdateAuthor copies changed author fields onto the user and everything they wrote
func (r *CascadeRepo) UpdateAuthor(ctx context.Context, userID string, patch repository.AuthorPatch) error {
	if patch.Empty() {
		return nil
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[userID]
	if !ok {
		return notFound("user", userID)
	}
	if patch.DisplayName != nil && r.db.displayNameTakenLocked(*patch.DisplayName, userID) {
		return fmt.Errorf("display name %q: %w", *patch.DisplayName, repository.ErrConflict)
	}

	apply := func(a *models.Author) {
		if patch.DisplayName != nil {
			a.UserName = *patch.DisplayName
		}
		if patch.AvatarURL != nil {
			a.AvatarURL = *patch.AvatarURL
		}
	}

	for id, p := range r.db.photos {
		if p.UserID == userID {
			apply(&p.Author)
			r.db.photos[id] = p
		}
	}
	for id, c := range r.db.comments {
		if c.UserID == userID {
			apply(&c.Author)
			r.db.comments[id] = c
		}
	}
	for id, t := range r.db.threads {
		if t.UserID == userID {
			apply(&t.Author)
			r.db.threads[id] = t
		}
	}

	if patch.DisplayName != nil {
		user.DisplayName = *patch.DisplayName
	}
	if patch.AvatarURL != nil {
		user.AvatarURL = *patch.AvatarURL
	}
	r.db.users[userID] = user
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"cat-map-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CascadeRepository runs the multi-record writes that must land together.
// Each method is a single transaction; stored objects are not touched here.
type CascadeRepository struct {
	db *pgxpool.Pool
}

// NewCascadeRepository creates a new cascade repository
func NewCascadeRepository(db *pgxpool.Pool) *CascadeRepository {
	return &CascadeRepository{db: db}
}

// CreateCatFromPhoto inserts the cat profile and links the source photo to it
func (r *CascadeRepository) CreateCatFromPhoto(ctx context.Context, cat *models.CatProfile, photoID string) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO cats (id, name, description, age, tags, lat, lng, main_photo_url, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err := tx.Exec(ctx, query,
			cat.ID, cat.Name, cat.Description, cat.Age, cat.Tags,
			cat.Lat, cat.Lng, cat.MainPhotoURL, cat.CreatedBy, cat.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create cat: %w", err)
		}

		result, err := tx.Exec(ctx, `UPDATE photos SET cat_id = $1, cat_name = $2 WHERE id = $3`, cat.ID, cat.Name, photoID)
		if err != nil {
			return fmt.Errorf("failed to link photo to cat: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("photo %s: %w", photoID, ErrNotFound)
		}
		return nil
	})
}

// UpdateCat writes the editable cat fields; when renamed the new name is copied onto its photos
func (r *CascadeRepository) UpdateCat(ctx context.Context, cat *models.CatProfile, renamed bool) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `UPDATE cats SET name = $1, description = $2, age = $3, tags = $4 WHERE id = $5`
		result, err := tx.Exec(ctx, query, cat.Name, cat.Description, cat.Age, cat.Tags, cat.ID)
		if err != nil {
			return fmt.Errorf("failed to update cat: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("cat %s: %w", cat.ID, ErrNotFound)
		}

		if renamed {
			if _, err := tx.Exec(ctx, `UPDATE photos SET cat_name = $1 WHERE cat_id = $2`, cat.Name, cat.ID); err != nil {
				return fmt.Errorf("failed to rename cat photos: %w", err)
			}
		}
		return nil
	})
}

// DeleteCat removes a cat with its photos, their comments and its timeline.
// It returns the image URLs that were referenced by the removed rows.
func (r *CascadeRepository) DeleteCat(ctx context.Context, catID string) ([]string, error) {
	var urls []string
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		urls = urls[:0]

		rows, err := tx.Query(ctx, `DELETE FROM photos WHERE cat_id = $1 RETURNING id, image_url`, catID)
		if err != nil {
			return fmt.Errorf("failed to delete cat photos: %w", err)
		}
		var photoIDs []string
		for rows.Next() {
			var id, url string
			if err := rows.Scan(&id, &url); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan deleted photo: %w", err)
			}
			photoIDs = append(photoIDs, id)
			urls = append(urls, url)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating deleted photos: %w", err)
		}

		if len(photoIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE photo_id = ANY($1)`, photoIDs); err != nil {
				return fmt.Errorf("failed to delete cat photo comments: %w", err)
			}
		}

		rows, err = tx.Query(ctx, `DELETE FROM threads WHERE cat_id = $1 RETURNING image_url`, catID)
		if err != nil {
			return fmt.Errorf("failed to delete cat threads: %w", err)
		}
		for rows.Next() {
			var url string
			if err := rows.Scan(&url); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan deleted thread: %w", err)
			}
			if url != "" {
				urls = append(urls, url)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating deleted threads: %w", err)
		}

		result, err := tx.Exec(ctx, `DELETE FROM cats WHERE id = $1`, catID)
		if err != nil {
			return fmt.Errorf("failed to delete cat: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("cat %s: %w", catID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dedupe(urls), nil
}

// CreatePostWithPhoto inserts a timeline post and, when given, its standalone photo
func (r *CascadeRepository) CreatePostWithPhoto(ctx context.Context, post *models.ThreadPost, photo *models.Photo) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if photo != nil {
			if err := insertPhoto(ctx, tx, photo); err != nil {
				return err
			}
		}
		return insertThread(ctx, tx, post)
	})
}

// DeletePost removes a timeline post and every photo sharing its image.
// It returns the IDs of the removed photos.
func (r *CascadeRepository) DeletePost(ctx context.Context, postID string) ([]string, error) {
	var photoIDs []string
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		photoIDs = photoIDs[:0]

		var imageURL string
		err := tx.QueryRow(ctx, `DELETE FROM threads WHERE id = $1 RETURNING image_url`, postID).Scan(&imageURL)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("thread %s: %w", postID, ErrNotFound)
			}
			return fmt.Errorf("failed to delete thread: %w", err)
		}
		if imageURL == "" {
			return nil
		}

		rows, err := tx.Query(ctx, `DELETE FROM photos WHERE image_url = $1 RETURNING id`, imageURL)
		if err != nil {
			return fmt.Errorf("failed to delete thread photos: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan deleted photo: %w", err)
			}
			photoIDs = append(photoIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating deleted photos: %w", err)
		}

		if len(photoIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE photo_id = ANY($1)`, photoIDs); err != nil {
				return fmt.Errorf("failed to delete thread photo comments: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return photoIDs, nil
}

// UpdateAuthor merges changed author fields into the user record, then copies
// them onto every photo, comment and post of the user. A display name held by
// another user yields ErrConflict and nothing is written.
func (r *CascadeRepository) UpdateAuthor(ctx context.Context, userID string, patch AuthorPatch) error {
	if patch.Empty() {
		return nil
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE users
			SET display_name = COALESCE($1, display_name), photo_url = COALESCE($2, photo_url)
			WHERE id = $3
		`
		result, err := tx.Exec(ctx, query, patch.DisplayName, patch.AvatarURL, userID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("display name %q: %w", *patch.DisplayName, ErrConflict)
			}
			return fmt.Errorf("failed to update user: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}

		for _, table := range []string{"photos", "comments", "threads"} {
			query := fmt.Sprintf(`
				UPDATE %s
				SET user_name = COALESCE($1, user_name), user_photo_url = COALESCE($2, user_photo_url)
				WHERE user_id = $3
			`, table)
			if _, err := tx.Exec(ctx, query, patch.DisplayName, patch.AvatarURL, userID); err != nil {
				return fmt.Errorf("failed to update %s author: %w", table, err)
			}
		}
		return nil
	})
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cat-map-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const photoColumns = `id, image_url, lat, lng, created_at, user_id, user_name, user_photo_url, cat_id, cat_name`

// PhotoRepository handles database operations for photos
type PhotoRepository struct {
	db *pgxpool.Pool
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db *pgxpool.Pool) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Create creates a new photo
func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	return insertPhoto(ctx, r.db, photo)
}

// GetByID retrieves a photo by ID
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`
	photo, err := scanPhoto(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

// List retrieves every photo, newest first
func (r *PhotoRepository) List(ctx context.Context) ([]*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos ORDER BY created_at DESC`
	return r.query(ctx, query)
}

// ListSince retrieves photos created at or after since, newest first
func (r *PhotoRepository) ListSince(ctx context.Context, since time.Time) ([]*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE created_at >= $1 ORDER BY created_at DESC`
	return r.query(ctx, query, since)
}

// ListByCat retrieves the photos of a cat profile, newest first
func (r *PhotoRepository) ListByCat(ctx context.Context, catID string) ([]*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE cat_id = $1 ORDER BY created_at DESC`
	return r.query(ctx, query, catID)
}

// ListByUser retrieves the photos uploaded by a user, newest first
func (r *PhotoRepository) ListByUser(ctx context.Context, userID string) ([]*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE user_id = $1 ORDER BY created_at DESC`
	return r.query(ctx, query, userID)
}

// ListPage retrieves up to limit photos older than the photo afterID, newest first.
// An empty afterID starts from the newest photo.
func (r *PhotoRepository) ListPage(ctx context.Context, afterID string, limit int) ([]*models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE $1 = '' OR (created_at, id) < (SELECT created_at, id FROM photos WHERE id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	return r.query(ctx, query, afterID, limit)
}

// Delete deletes a photo together with its comments
func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE photo_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete photo comments: %w", err)
		}
		result, err := tx.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete photo: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("photo %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (r *PhotoRepository) query(ctx context.Context, query string, args ...any) ([]*models.Photo, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get photos: %w", err)
	}
	defer rows.Close()

	photos := make([]*models.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}

	return photos, nil
}

func insertPhoto(ctx context.Context, db queryer, photo *models.Photo) error {
	query := `
		INSERT INTO photos (id, image_url, lat, lng, created_at, user_id, user_name, user_photo_url, cat_id, cat_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.Exec(ctx, query,
		photo.ID, photo.ImageURL, photo.Lat, photo.Lng, photo.CreatedAt,
		photo.UserID, photo.UserName, photo.AvatarURL, photo.CatID, photo.CatName,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	var photo models.Photo
	err := row.Scan(
		&photo.ID, &photo.ImageURL, &photo.Lat, &photo.Lng, &photo.CreatedAt,
		&photo.UserID, &photo.UserName, &photo.AvatarURL, &photo.CatID, &photo.CatName,
	)
	if err != nil {
		return nil, err
	}
	return &photo, nil
}

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

const catColumns = `id, name, description, age, tags, lat, lng, main_photo_url, created_by, created_at`

// CatRepository handles database operations for cat profiles
type CatRepository struct {
	db *pgxpool.Pool
}

// NewCatRepository creates a new cat repository
func NewCatRepository(db *pgxpool.Pool) *CatRepository {
	return &CatRepository{db: db}
}

// GetByID retrieves a cat profile by ID
func (r *CatRepository) GetByID(ctx context.Context, id string) (*models.CatProfile, error) {
	query := `SELECT ` + catColumns + ` FROM cats WHERE id = $1`
	cat, err := scanCat(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cat %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get cat: %w", err)
	}
	return cat, nil
}

// ListSince retrieves cat profiles created at or after since, newest first
func (r *CatRepository) ListSince(ctx context.Context, since time.Time) ([]*models.CatProfile, error) {
	query := `SELECT ` + catColumns + ` FROM cats WHERE created_at >= $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get cats: %w", err)
	}
	defer rows.Close()

	cats := make([]*models.CatProfile, 0)
	for rows.Next() {
		cat, err := scanCat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cat: %w", err)
		}
		cats = append(cats, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cats: %w", err)
	}

	return cats, nil
}

func scanCat(row pgx.Row) (*models.CatProfile, error) {
	var cat models.CatProfile
	err := row.Scan(
		&cat.ID, &cat.Name, &cat.Description, &cat.Age, &cat.Tags,
		&cat.Lat, &cat.Lng, &cat.MainPhotoURL, &cat.CreatedBy, &cat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cat.Tags == nil {
		cat.Tags = []string{}
	}
	return &cat, nil
}

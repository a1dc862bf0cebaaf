package repository

import (
	"context"
	"fmt"

	"cat-map-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OrphanRepository tracks stored objects whose deletion failed
type OrphanRepository struct {
	db *pgxpool.Pool
}

// NewOrphanRepository creates a new orphan repository
func NewOrphanRepository(db *pgxpool.Pool) *OrphanRepository {
	return &OrphanRepository{db: db}
}

// Add records an orphaned object
func (r *OrphanRepository) Add(ctx context.Context, orphan *models.OrphanObject) error {
	query := `
		INSERT INTO orphan_objects (id, url, reason, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, orphan.ID, orphan.URL, orphan.Reason, orphan.Attempts, orphan.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add orphan object: %w", err)
	}
	return nil
}

// List returns the oldest orphaned objects first
func (r *OrphanRepository) List(ctx context.Context, limit int) ([]*models.OrphanObject, error) {
	query := `
		SELECT id, url, reason, attempts, created_at
		FROM orphan_objects
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan objects: %w", err)
	}
	defer rows.Close()

	orphans := make([]*models.OrphanObject, 0)
	for rows.Next() {
		var o models.OrphanObject
		if err := rows.Scan(&o.ID, &o.URL, &o.Reason, &o.Attempts, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan orphan object: %w", err)
		}
		orphans = append(orphans, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orphan objects: %w", err)
	}

	return orphans, nil
}

// Delete removes an orphan record once its object is gone
func (r *OrphanRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM orphan_objects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete orphan object: %w", err)
	}
	return nil
}

// IncrementAttempts bumps the retry counter of an orphan record
func (r *OrphanRepository) IncrementAttempts(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `UPDATE orphan_objects SET attempts = attempts + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to update orphan object: %w", err)
	}
	return nil
}

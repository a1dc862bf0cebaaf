package repository

import (
	"context"
	"errors"
	"fmt"

	"cat-map-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const threadColumns = `id, cat_id, user_id, user_name, user_photo_url, text, image_url, created_at`

// ThreadRepository handles database operations for cat timeline posts
type ThreadRepository struct {
	db *pgxpool.Pool
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *pgxpool.Pool) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// Create creates a new timeline post
func (r *ThreadRepository) Create(ctx context.Context, post *models.ThreadPost) error {
	return insertThread(ctx, r.db, post)
}

// GetByID retrieves a timeline post by ID
func (r *ThreadRepository) GetByID(ctx context.Context, id string) (*models.ThreadPost, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE id = $1`
	post, err := scanThread(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return post, nil
}

// ListByCat retrieves the timeline of a cat profile, newest first
func (r *ThreadRepository) ListByCat(ctx context.Context, catID string) ([]*models.ThreadPost, error) {
	query := `SELECT ` + threadColumns + ` FROM threads WHERE cat_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, catID)
	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	defer rows.Close()

	posts := make([]*models.ThreadPost, 0)
	for rows.Next() {
		post, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating threads: %w", err)
	}

	return posts, nil
}

// ImageReferenced checks whether any timeline post shows the image
func (r *ThreadRepository) ImageReferenced(ctx context.Context, imageURL string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM threads WHERE image_url = $1)`, imageURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check thread image: %w", err)
	}
	return exists, nil
}

func insertThread(ctx context.Context, db queryer, post *models.ThreadPost) error {
	query := `
		INSERT INTO threads (id, cat_id, user_id, user_name, user_photo_url, text, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := db.Exec(ctx, query,
		post.ID, post.CatID, post.UserID, post.UserName, post.AvatarURL,
		post.Text, post.ImageURL, post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

func scanThread(row pgx.Row) (*models.ThreadPost, error) {
	var post models.ThreadPost
	err := row.Scan(
		&post.ID, &post.CatID, &post.UserID, &post.UserName, &post.AvatarURL,
		&post.Text, &post.ImageURL, &post.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated
	ErrConflict = errors.New("conflict")
)

// AuthorPatch carries the denormalized author fields that changed on a user
type AuthorPatch struct {
	DisplayName *string
	AvatarURL   *string
}

// Empty reports whether the patch changes nothing
func (p AuthorPatch) Empty() bool {
	return p.DisplayName == nil && p.AvatarURL == nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

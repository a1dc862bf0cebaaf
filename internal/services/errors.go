package services

import (
	"errors"
	"fmt"

	"cat-map-backend/internal/repository"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrLoginRequired        = errors.New("login required")
	ErrNicknameTaken        = errors.New("nickname already taken")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrLocationUnavailable  = errors.New("location unavailable")
	ErrInvalidState         = errors.New("invalid state")
)

// invalid wraps ErrValidation with a message for the caller
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// lookupErr translates a repository lookup failure
func lookupErr(err error, what, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// writeErr translates a repository write failure
func writeErr(err error, action string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

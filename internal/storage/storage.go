package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("object not found")

// ObjectStore stores images and resolves them by public URL
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// ImageKey derives a collision-resistant object key from a timestamp,
// e.g. images/20261016T101530.123456789Z-3f2a9c.jpg
func ImageKey(prefix string, now time.Time, ext string) string {
	ts := now.UTC().Format("20060102T150405.000000000Z")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s/%s-%s%s", strings.TrimSuffix(prefix, "/"), ts, suffix, ext)
}

// keyFromURL strips the public base from an object URL
func keyFromURL(base, url string) (string, error) {
	base = strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(url, base) {
		return "", fmt.Errorf("url %q is not served from %q", url, base)
	}
	key := strings.TrimPrefix(url, base)
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key in url %q", url)
	}
	return key, nil
}

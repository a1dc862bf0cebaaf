package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cat-map-backend/internal/imageproc"
	"cat-map-backend/internal/metrics"
	"cat-map-backend/internal/models"
	"cat-map-backend/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Media stores compressed images and disposes of them, queueing failed deletions
type Media struct {
	store      ObjectStore
	compressor ImageCompressor
	orphans    OrphanRepository
	now        func() time.Time
}

// NewMedia creates a new media helper
func NewMedia(store ObjectStore, compressor ImageCompressor, orphans OrphanRepository) *Media {
	return &Media{
		store:      store,
		compressor: compressor,
		orphans:    orphans,
		now:        time.Now,
	}
}

// Save compresses data with opts and stores it under prefix, returning its URL
func (m *Media) Save(ctx context.Context, prefix, preset string, data []byte, opts imageproc.Options) (string, error) {
	start := time.Now()
	compressed, err := m.compressor.Compress(ctx, data, opts)
	if err != nil {
		if errors.Is(err, imageproc.ErrEmptyImage) {
			return "", invalid("image is empty")
		}
		return "", fmt.Errorf("failed to compress image: %w", err)
	}
	metrics.Compressions.WithLabelValues(preset).Observe(time.Since(start).Seconds())

	key := storage.ImageKey(prefix, m.now(), imageproc.Extension)
	url, err := m.store.Put(ctx, key, compressed, imageproc.ContentType)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return url, nil
}

// Discard deletes stored objects. Failures are logged and queued for the sweeper,
// never returned.
func (m *Media) Discard(ctx context.Context, reason string, urls ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, url := range urls {
		if url == "" {
			continue
		}
		err := m.store.Delete(ctx, url)
		if err == nil || errors.Is(err, storage.ErrNotFound) {
			continue
		}

		log.Warn().Err(err).Str("url", url).Str("reason", reason).Msg("Failed to delete stored object, queueing for retry")
		orphan := &models.OrphanObject{
			ID:        uuid.New().String(),
			URL:       url,
			Reason:    reason,
			CreatedAt: m.now().UTC(),
		}
		if err := m.orphans.Add(ctx, orphan); err != nil {
			log.Error().Err(err).Str("url", url).Msg("Failed to queue orphan object")
			continue
		}
		metrics.OrphansQueued.Inc()
	}
}

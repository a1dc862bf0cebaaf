package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cat-map-backend/internal/metrics"
	"cat-map-backend/internal/storage"

	"github.com/rs/zerolog/log"
)

// OrphanSweeper retries deletion of stored objects left behind by failed cleanups
type OrphanSweeper struct {
	orphans     OrphanRepository
	store       ObjectStore
	interval    time.Duration
	batch       int
	maxAttempts int
}

// NewOrphanSweeper creates a sweeper; maxAttempts <= 0 retries forever
func NewOrphanSweeper(orphans OrphanRepository, store ObjectStore, interval time.Duration, batch, maxAttempts int) *OrphanSweeper {
	if batch <= 0 {
		batch = 50
	}
	return &OrphanSweeper{
		orphans:     orphans,
		store:       store,
		interval:    interval,
		batch:       batch,
		maxAttempts: maxAttempts,
	}
}

// Sweep makes one pass over the queue and returns how many objects were removed
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	orphans, err := s.orphans.List(ctx, s.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphan objects: %w", err)
	}

	removed := 0
	for _, o := range orphans {
		err := s.store.Delete(ctx, o.URL)
		if err == nil || errors.Is(err, storage.ErrNotFound) {
			if err := s.orphans.Delete(ctx, o.ID); err != nil {
				return removed, fmt.Errorf("failed to dequeue orphan object: %w", err)
			}
			removed++
			metrics.OrphansSwept.Inc()
			continue
		}

		if s.maxAttempts > 0 && o.Attempts+1 >= s.maxAttempts {
			log.Error().Err(err).Str("url", o.URL).Int("attempts", o.Attempts+1).Msg("Giving up on orphan object")
			if err := s.orphans.Delete(ctx, o.ID); err != nil {
				return removed, fmt.Errorf("failed to dequeue orphan object: %w", err)
			}
			continue
		}
		log.Warn().Err(err).Str("url", o.URL).Msg("Orphan object deletion failed")
		if err := s.orphans.IncrementAttempts(ctx, o.ID); err != nil {
			return removed, fmt.Errorf("failed to record orphan attempt: %w", err)
		}
	}
	return removed, nil
}

// Run sweeps on every interval until ctx is done
func (s *OrphanSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Orphan sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Msg("Orphan sweep completed")
			}
		}
	}
}

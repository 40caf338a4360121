package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"botify/internal/metrics"
	"botify/internal/repository"
	"botify/internal/storage"
)

const defaultSweepInterval = 10 * time.Minute

// SweepResult summarizes one cleanup pass.
type SweepResult struct {
	Deleted int
	Failed  int
	Dropped int
}

// CleanupService retries stored-file deletions that failed when their bot
// was deleted.
type CleanupService struct {
	queue       *repository.FileCleanupRepository
	files       storage.FileStore
	batchSize   int
	maxAttempts int
}

// NewCleanupService creates a new CleanupService instance.
func NewCleanupService(queue *repository.FileCleanupRepository, files storage.FileStore, batchSize, maxAttempts int) *CleanupService {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if files == nil {
		files = storage.Disabled{}
	}
	return &CleanupService{queue: queue, files: files, batchSize: batchSize, maxAttempts: maxAttempts}
}

// Sweep retries one batch of queued deletions. Entries that keep failing
// are dropped after maxAttempts.
func (s *CleanupService) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	pending, err := s.queue.Pending(ctx, s.batchSize)
	if err != nil {
		return res, translate(err)
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		err := s.files.Delete(ctx, p.FileURL)
		switch {
		case err == nil, errors.Is(err, storage.ErrNotFound):
			if rerr := s.queue.Remove(ctx, p.FileURL); rerr != nil {
				return res, translate(rerr)
			}
			res.Deleted++
			metrics.FileCleanupTotal.WithLabelValues("deleted").Inc()

		case errors.Is(err, storage.ErrForeignURL), p.Attempts+1 >= s.maxAttempts:
			log.Error().Err(err).Str("file_url", p.FileURL).Int("attempts", p.Attempts+1).Msg("Giving up on stored file deletion")
			if rerr := s.queue.Remove(ctx, p.FileURL); rerr != nil {
				return res, translate(rerr)
			}
			res.Dropped++
			metrics.FileCleanupTotal.WithLabelValues("dropped").Inc()

		default:
			if merr := s.queue.MarkFailed(ctx, p.FileURL, err.Error()); merr != nil {
				return res, translate(merr)
			}
			res.Failed++
			metrics.FileCleanupTotal.WithLabelValues("retried").Inc()
		}
	}

	if len(pending) > 0 {
		log.Info().Int("deleted", res.Deleted).Int("failed", res.Failed).Int("dropped", res.Dropped).Msg("File cleanup sweep finished")
	}
	return res, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *CleanupService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("File cleanup sweep failed")
			}
		}
	}
}

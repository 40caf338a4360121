package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"botify/internal/model"
)

// FileCleanupRepository queues stored files whose deletion failed.
type FileCleanupRepository struct {
	db DBTX
}

// NewFileCleanupRepository creates a new FileCleanupRepository instance.
func NewFileCleanupRepository(db DBTX) *FileCleanupRepository {
	return &FileCleanupRepository{db: db}
}

// Enqueue records a failed deletion. Re-enqueueing a known URL only updates
// the last error.
func (r *FileCleanupRepository) Enqueue(ctx context.Context, fileURL, lastError string) error {
	const query = `
		INSERT INTO file_cleanup (file_url, attempts, last_error, created_at, updated_at)
		VALUES ($1, 1, $2, NOW(), NOW())
		ON CONFLICT (file_url)
		DO UPDATE SET last_error = EXCLUDED.last_error, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, fileURL, lastError); err != nil {
		return fmt.Errorf("failed to enqueue file cleanup: %w", err)
	}
	return nil
}

// Pending returns up to limit queued deletions, least recently tried first.
func (r *FileCleanupRepository) Pending(ctx context.Context, limit int) ([]*model.PendingFileDeletion, error) {
	const query = `
		SELECT file_url, attempts, last_error, created_at, updated_at
		FROM file_cleanup
		ORDER BY updated_at, file_url
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query file cleanup: %w", err)
	}

	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.PendingFileDeletion, error) {
		var p model.PendingFileDeletion
		err := row.Scan(&p.FileURL, &p.Attempts, &p.LastError, &p.CreatedAt, &p.UpdatedAt)
		return &p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan file cleanup: %w", err)
	}
	return pending, nil
}

// MarkFailed bumps the attempt counter of a queued deletion.
func (r *FileCleanupRepository) MarkFailed(ctx context.Context, fileURL, lastError string) error {
	const query = `
		UPDATE file_cleanup
		SET attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE file_url = $1
	`
	if _, err := r.db.Exec(ctx, query, fileURL, lastError); err != nil {
		return fmt.Errorf("failed to update file cleanup: %w", err)
	}
	return nil
}

// Remove drops a queued deletion.
func (r *FileCleanupRepository) Remove(ctx context.Context, fileURL string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM file_cleanup WHERE file_url = $1`, fileURL); err != nil {
		return fmt.Errorf("failed to remove file cleanup: %w", err)
	}
	return nil
}

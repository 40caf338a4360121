package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"botify/internal/model"
)

// BotRepository handles bot catalog persistence.
type BotRepository struct {
	db DBTX
}

// NewBotRepository creates a new BotRepository instance.
func NewBotRepository(db DBTX) *BotRepository {
	return &BotRepository{db: db}
}

const botColumns = `id, title, description, platform, user_id, price, file_url, file_name, downloads, rating, ratings_count, official, created_at`

func scanBot(row pgx.Row) (*model.Bot, error) {
	var b model.Bot
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Description,
		&b.Platform,
		&b.UserID,
		&b.Price,
		&b.FileURL,
		&b.FileName,
		&b.Downloads,
		&b.Rating,
		&b.RatingsCount,
		&b.Official,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts b and fills in its creation timestamp.
func (r *BotRepository) Create(ctx context.Context, b *model.Bot) error {
	const query = `
		INSERT INTO bots (id, title, description, platform, user_id, price, file_url, file_name, downloads, rating, ratings_count, official, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		b.ID, b.Title, b.Description, b.Platform, b.UserID, b.Price,
		b.FileURL, b.FileName, b.Downloads, b.Rating, b.RatingsCount, b.Official,
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	return nil
}

// GetByID retrieves a bot. Returns ErrBotNotFound if it does not exist.
func (r *BotRepository) GetByID(ctx context.Context, id string) (*model.Bot, error) {
	const query = `SELECT ` + botColumns + ` FROM bots WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetForUpdate is GetByID that also row-locks the bot.
func (r *BotRepository) GetForUpdate(ctx context.Context, id string) (*model.Bot, error) {
	const query = `SELECT ` + botColumns + ` FROM bots WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *BotRepository) getOne(ctx context.Context, query, id string) (*model.Bot, error) {
	b, err := scanBot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	return b, nil
}

// List returns bots newest first, optionally only official ones.
func (r *BotRepository) List(ctx context.Context, officialOnly bool) ([]*model.Bot, error) {
	const query = `
		SELECT ` + botColumns + `
		FROM bots
		WHERE NOT $1 OR official
		ORDER BY created_at DESC, id
	`
	return r.list(ctx, query, officialOnly)
}

// ListByUser returns the bots published by userID, newest first.
func (r *BotRepository) ListByUser(ctx context.Context, userID string) ([]*model.Bot, error) {
	const query = `
		SELECT ` + botColumns + `
		FROM bots
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`
	return r.list(ctx, query, userID)
}

func (r *BotRepository) list(ctx context.Context, query string, arg any) ([]*model.Bot, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	defer rows.Close()

	var bots []*model.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bot: %w", err)
		}
		bots = append(bots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bots: %w", err)
	}
	return bots, nil
}

// Delete removes a bot. Returns ErrBotNotFound if nothing was deleted.
func (r *BotRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM bots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBotNotFound
	}
	return nil
}

// CountByFileURL returns how many bots reference fileURL.
func (r *BotRepository) CountByFileURL(ctx context.Context, fileURL string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bots WHERE file_url = $1`, fileURL).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count bots by file: %w", err)
	}
	return n, nil
}

// IncrementDownloads bumps the download counter and returns the new value.
func (r *BotRepository) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	const query = `UPDATE bots SET downloads = downloads + 1 WHERE id = $1 RETURNING downloads`

	var downloads int64
	if err := r.db.QueryRow(ctx, query, id).Scan(&downloads); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBotNotFound
		}
		return 0, fmt.Errorf("failed to increment downloads: %w", err)
	}
	return downloads, nil
}

// SaveRating persists the rating aggregate of b.
func (r *BotRepository) SaveRating(ctx context.Context, b *model.Bot) error {
	const query = `UPDATE bots SET rating = $2, ratings_count = $3 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, b.ID, b.Rating, b.RatingsCount)
	if err != nil {
		return fmt.Errorf("failed to save rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBotNotFound
	}
	return nil
}

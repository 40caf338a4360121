package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"botify/internal/model"
	"botify/internal/pkg/id"
)

// PurchaseRepository handles the append-only purchase log.
type PurchaseRepository struct {
	db DBTX
}

// NewPurchaseRepository creates a new PurchaseRepository instance.
func NewPurchaseRepository(db DBTX) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Create appends a purchase record. An empty ID is generated.
func (r *PurchaseRepository) Create(ctx context.Context, p *model.Purchase) error {
	if p.ID == "" {
		pid, err := id.Generate(id.PrefixPurchase)
		if err != nil {
			return err
		}
		p.ID = pid
	}

	const query = `
		INSERT INTO purchases (id, user_id, bot_id, bot_title, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query, p.ID, p.UserID, p.BotID, p.BotTitle, p.Price).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// ListByUserID returns a user's purchases, newest first.
func (r *PurchaseRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Purchase, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	const query = `
		SELECT id, user_id, bot_id, bot_title, price, created_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}

	purchases, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Purchase, error) {
		var p model.Purchase
		err := row.Scan(&p.ID, &p.UserID, &p.BotID, &p.BotTitle, &p.Price, &p.CreatedAt)
		return &p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan purchases: %w", err)
	}
	return purchases, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"botify/internal/model"
	"botify/internal/pkg/id"
)

// DefaultHistoryLimit caps history queries that pass no limit.
const DefaultHistoryLimit = 50

// TransactionRepository handles the append-only transaction log.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a transaction record. An empty ID is generated.
func (r *TransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == "" {
		txID, err := id.Generate(id.PrefixTransaction)
		if err != nil {
			return err
		}
		tx.ID = txID
	}

	const query = `
		INSERT INTO transactions (id, user_id, type, amount, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, tx.ID, tx.UserID, tx.Type, tx.Amount, tx.Description).Scan(&tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListByUserID returns a user's transactions, newest first.
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	const query = `
		SELECT id, user_id, type, amount, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	txs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Transaction, error) {
		var tx model.Transaction
		err := row.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.Description, &tx.CreatedAt)
		return &tx, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan transactions: %w", err)
	}
	return txs, nil
}

// SumByType totals a user's transaction amounts per type.
func (r *TransactionRepository) SumByType(ctx context.Context, userID string) (map[string]int64, error) {
	const query = `
		SELECT type, COALESCE(SUM(amount), 0)::BIGINT
		FROM transactions
		WHERE user_id = $1
		GROUP BY type
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var txType string
		var total int64
		if err := rows.Scan(&txType, &total); err != nil {
			return nil, fmt.Errorf("failed to scan transaction sum: %w", err)
		}
		sums[txType] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction sums: %w", err)
	}
	return sums, nil
}

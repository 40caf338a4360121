package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"botify/internal/metrics"
)

// ErrTxConflict is returned when a transaction still conflicts after every
// retry has been used.
var ErrTxConflict = errors.New("transaction conflict: retries exhausted")

const retryBaseDelay = 10 * time.Millisecond

// TxRunner runs read-modify-write units as SERIALIZABLE transactions,
// retrying them on serialization failures and deadlocks.
type TxRunner struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewTxRunner creates a TxRunner. maxRetries below 1 means a single attempt.
func NewTxRunner(pool *pgxpool.Pool, maxRetries int) *TxRunner {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &TxRunner{pool: pool, maxRetries: maxRetries}
}

// InTx runs fn against a Store bound to a fresh transaction. fn may run more
// than once and must not have side effects outside the Store.
func (r *TxRunner) InTx(ctx context.Context, fn func(s *Store) error) error {
	var err error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		err = r.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}

		metrics.TxRetriesTotal.Inc()
		log.Debug().Err(err).Int("attempt", attempt).Msg("Transaction conflict, retrying")

		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBaseDelay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, err)
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(s *Store) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrBotNotFound  = errors.New("bot not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// PostgreSQL error codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so every repository can run
// standalone or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories bound to one DBTX.
type Store struct {
	Users        *UserRepository
	Bots         *BotRepository
	Transactions *TransactionRepository
	Purchases    *PurchaseRepository
	FileCleanup  *FileCleanupRepository
}

// NewStore binds every repository to db.
func NewStore(db DBTX) *Store {
	return &Store{
		Users:        NewUserRepository(db),
		Bots:         NewBotRepository(db),
		Transactions: NewTransactionRepository(db),
		Purchases:    NewPurchaseRepository(db),
		FileCleanup:  NewFileCleanupRepository(db),
	}
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsRetryable reports whether err is a serialization failure or deadlock that
// a fresh attempt of the same transaction may resolve.
func IsRetryable(err error) bool {
	switch pgErrorCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// stringOrEmpty maps SQL NULL to "".
func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

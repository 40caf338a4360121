package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type migration struct {
	name string
	sql  string
}

// Every statement is idempotent so Migrate can run on every start.
var migrations = []migration{
	{
		name: "users",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				role TEXT NOT NULL DEFAULT 'user',
				bites BIGINT NOT NULL DEFAULT 0 CHECK (bites >= 0),
				monetization_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				total_bots_published INT NOT NULL DEFAULT 0 CHECK (total_bots_published >= 0),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		name: "bots",
		sql: `
			CREATE TABLE IF NOT EXISTS bots (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				platform TEXT NOT NULL DEFAULT '',
				user_id TEXT NOT NULL REFERENCES users(id),
				price BIGINT NOT NULL DEFAULT 0 CHECK (price >= 0),
				file_url TEXT NOT NULL DEFAULT '',
				file_name TEXT NOT NULL DEFAULT '',
				downloads BIGINT NOT NULL DEFAULT 0,
				rating DOUBLE PRECISION NOT NULL DEFAULT 0,
				ratings_count BIGINT NOT NULL DEFAULT 0,
				official BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_bots_user ON bots(user_id);
			CREATE INDEX IF NOT EXISTS idx_bots_official ON bots(official) WHERE official;
			CREATE INDEX IF NOT EXISTS idx_bots_file_url ON bots(file_url) WHERE file_url <> '';
		`,
	},
	{
		name: "membership sets",
		sql: `
			CREATE TABLE IF NOT EXISTS user_bots (
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				bot_id TEXT NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
				PRIMARY KEY (user_id, bot_id)
			);
			CREATE TABLE IF NOT EXISTS user_purchases (
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				bot_id TEXT NOT NULL,
				PRIMARY KEY (user_id, bot_id)
			);
		`,
	},
	{
		name: "transactions",
		sql: `
			CREATE TABLE IF NOT EXISTS transactions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				type TEXT NOT NULL CHECK (type IN ('earn', 'spend', 'purchase', 'sale')),
				amount BIGINT NOT NULL CHECK (amount > 0),
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
			);
			CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		`,
	},
	{
		name: "purchases",
		sql: `
			CREATE TABLE IF NOT EXISTS purchases (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				bot_id TEXT NOT NULL,
				bot_title TEXT NOT NULL DEFAULT '',
				price BIGINT NOT NULL CHECK (price >= 0),
				created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
			);
			CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases(user_id, created_at DESC);
		`,
	},
	{
		name: "file_cleanup",
		sql: `
			CREATE TABLE IF NOT EXISTS file_cleanup (
				file_url TEXT PRIMARY KEY,
				attempts INT NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
}

// Migrate creates the schema and seeds the reserved official account.
func Migrate(ctx context.Context, conn Execer, officialUserID string) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := conn.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Debug().Int("step", i+1).Str("name", m.name).Msg("Migration applied")
	}

	if officialUserID != "" {
		const seed = `
			INSERT INTO users (id, role, bites, monetization_enabled)
			VALUES ($1, 'admin', 0, FALSE)
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := conn.Exec(ctx, seed, officialUserID); err != nil {
			return fmt.Errorf("failed to seed official account: %w", err)
		}
	}

	log.Info().Int("steps", len(migrations)).Msg("All migrations completed successfully")
	return nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the application tables if they do not exist.
// Statements are idempotent so startup can run this unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			model_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, tables.Conversations),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			seq BIGSERIAL,
			created_at TIMESTAMPTZ NOT NULL
		)`, tables.Messages),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_conversation_idx ON %s (conversation_id, created_at, seq)`,
			tables.Messages, tables.Messages),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			output TEXT NOT NULL,
			system_prompt TEXT,
			message_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`, tables.ThinkingRuns),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT 'custom',
			updated_at TIMESTAMPTZ NOT NULL
		)`, tables.Models),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			created_at TIMESTAMPTZ NOT NULL
		)`, tables.Users),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, tables.Sessions),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			base_url TEXT,
			api_key_cipher TEXT,
			api_key_iv TEXT,
			api_key_tag TEXT,
			model TEXT,
			thinking_prompt TEXT,
			updated_at TIMESTAMPTZ NOT NULL
		)`, tables.UserSettings),
	}

	for _, statement := range statements {
		if _, err := pool.Exec(ctx, statement); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

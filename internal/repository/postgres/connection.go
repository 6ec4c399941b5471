package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Conversations string
	Messages      string
	ThinkingRuns  string
	Models        string
	Users         string
	Sessions      string
	UserSettings  string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Conversations: prefix + "conversations",
		Messages:      prefix + "messages",
		ThinkingRuns:  prefix + "thinking_runs",
		Models:        prefix + "models",
		Users:         prefix + "users",
		Sessions:      prefix + "sessions",
		UserSettings:  prefix + "user_settings",
	}
}

// CreateConnectionPool creates a new pgx connection pool.
//
// PgBouncer transaction pooling (port 6543) does not support prepared
// statements; when that port is detected and no explicit
// default_query_exec_mode was set, QueryExecModeCacheDescribe is used
// instead (extended protocol, no prepared statements, still encodes
// JSONB correctly).
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the appropriate query executor for the context:
// the context's transaction when one is present, the pool otherwise.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}

package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// ModelCatalog implements the model-catalog contract using PostgreSQL.
type ModelCatalog struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewModelCatalog creates a new ModelCatalog
func NewModelCatalog(config *RepositoryConfig) repositories.ModelStore {
	return &ModelCatalog{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// UpsertModel inserts or refreshes a catalog entry.
func (c *ModelCatalog) UpsertModel(ctx context.Context, id, displayName, provider string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, display_name, provider, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			provider = EXCLUDED.provider,
			updated_at = EXCLUDED.updated_at
	`, c.tables.Models)

	executor := GetExecutor(ctx, c.pool)
	if _, err := executor.Exec(ctx, query, id, displayName, provider, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}
	return nil
}

// ListModels retrieves catalog entries, most recently updated first.
func (c *ModelCatalog) ListModels(ctx context.Context) ([]models.Model, error) {
	query := fmt.Sprintf(`
		SELECT id, display_name, provider, updated_at
		FROM %s
		ORDER BY updated_at DESC
	`, c.tables.Models)

	executor := GetExecutor(ctx, c.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	entries := []models.Model{}
	for rows.Next() {
		var model models.Model
		if err := rows.Scan(&model.ID, &model.DisplayName, &model.Provider, &model.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		entries = append(entries, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return entries, nil
}

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"loom/internal/domain/repositories"
)

// seedEntry is one model in a catalog seed file.
type seedEntry struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Provider    string `yaml:"provider"`
}

// defaultSeed is used when no seed file is configured. It covers the
// hosted models the default base URL serves.
var defaultSeed = []seedEntry{
	{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", Provider: "openai"},
	{ID: "gpt-4o", DisplayName: "GPT-4o", Provider: "openai"},
	{ID: "qwen-plus", DisplayName: "Qwen Plus", Provider: "alibaba"},
}

// EnsureSeeded makes the model catalog non-empty. An already populated
// catalog is left untouched; otherwise entries come from the YAML seed
// file at path, or from the built-in defaults when path is empty.
func EnsureSeeded(ctx context.Context, catalog repositories.ModelStore, path string, logger *slog.Logger) error {
	existing, err := catalog.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("inspect model catalog: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	entries := defaultSeed
	if path != "" {
		loaded, err := loadSeedFile(path)
		if err != nil {
			return err
		}
		entries = loaded
	}

	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		displayName := entry.DisplayName
		if displayName == "" {
			displayName = entry.ID
		}
		provider := entry.Provider
		if provider == "" {
			provider = "custom"
		}
		if err := catalog.UpsertModel(ctx, entry.ID, displayName, provider); err != nil {
			return fmt.Errorf("seed model %s: %w", entry.ID, err)
		}
	}

	logger.Info("model catalog seeded", "count", len(entries), "source", seedSource(path))
	return nil
}

func loadSeedFile(path string) ([]seedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model seed file: %w", err)
	}

	var file struct {
		Models []seedEntry `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model seed file: %w", err)
	}
	return file.Models, nil
}

func seedSource(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}

package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"loom/internal/domain/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCatalog struct {
	entries []models.Model
}

func (c *fakeCatalog) UpsertModel(ctx context.Context, id, displayName, provider string) error {
	c.entries = append(c.entries, models.Model{ID: id, DisplayName: displayName, Provider: provider})
	return nil
}

func (c *fakeCatalog) ListModels(ctx context.Context) ([]models.Model, error) {
	return c.entries, nil
}

func TestEnsureSeeded_Defaults(t *testing.T) {
	catalog := &fakeCatalog{}

	if err := EnsureSeeded(context.Background(), catalog, "", testLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(catalog.entries) != len(defaultSeed) {
		t.Errorf("entries = %d, want %d", len(catalog.entries), len(defaultSeed))
	}
}

func TestEnsureSeeded_SkipsPopulatedCatalog(t *testing.T) {
	catalog := &fakeCatalog{entries: []models.Model{{ID: "existing"}}}

	if err := EnsureSeeded(context.Background(), catalog, "", testLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(catalog.entries) != 1 {
		t.Errorf("populated catalog must not be reseeded, got %d entries", len(catalog.entries))
	}
}

func TestEnsureSeeded_FromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	seed := `models:
  - id: local-llama
    display_name: Local Llama
    provider: ollama
  - id: bare-model
`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatal(err)
	}

	catalog := &fakeCatalog{}
	if err := EnsureSeeded(context.Background(), catalog, path, testLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(catalog.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(catalog.entries))
	}
	if catalog.entries[0].Provider != "ollama" {
		t.Errorf("provider = %q", catalog.entries[0].Provider)
	}
	// Missing fields fall back to the id and a generic provider.
	if catalog.entries[1].DisplayName != "bare-model" || catalog.entries[1].Provider != "custom" {
		t.Errorf("bare entry = %+v", catalog.entries[1])
	}
}

func TestEnsureSeeded_MissingFile(t *testing.T) {
	catalog := &fakeCatalog{}
	if err := EnsureSeeded(context.Background(), catalog, "/does/not/exist.yaml", testLogger()); err == nil {
		t.Error("expected error for missing seed file")
	}
}

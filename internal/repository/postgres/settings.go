package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/security"
)

// SettingsStore implements per-user settings persistence using
// PostgreSQL. API keys are sealed with AES-256-GCM before they touch
// the database and unsealed on read.
type SettingsStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
	box    *security.Box
	logger *slog.Logger
}

// NewSettingsStore creates a new SettingsStore
func NewSettingsStore(config *RepositoryConfig, box *security.Box) repositories.SettingsStore {
	return &SettingsStore{
		pool:   config.Pool,
		tables: config.Tables,
		box:    box,
		logger: config.Logger,
	}
}

type settingsRow struct {
	baseURL        *string
	apiKeyCipher   *string
	apiKeyIV       *string
	apiKeyTag      *string
	model          *string
	thinkingPrompt *string
}

// GetUserSettings retrieves the user's settings; a user with no stored
// row gets empty settings, not an error.
func (s *SettingsStore) GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	row, err := s.readRow(ctx, userID)
	if err != nil {
		return nil, err
	}

	settings := &models.UserSettings{UserID: userID}
	if row == nil {
		return settings, nil
	}

	settings.BaseURL = deref(row.baseURL)
	settings.Model = deref(row.model)
	settings.ThinkingPrompt = deref(row.thinkingPrompt)

	if row.apiKeyCipher != nil {
		apiKey, err := s.box.Open(&security.SealedSecret{
			CipherText: deref(row.apiKeyCipher),
			IV:         deref(row.apiKeyIV),
			AuthTag:    deref(row.apiKeyTag),
		})
		if err != nil {
			// An undecryptable key (rotated secret) degrades to unset.
			s.logger.Warn("failed to decrypt stored API key", "user_id", userID, "error", err)
		} else {
			settings.APIKey = apiKey
		}
	}
	return settings, nil
}

// SetUserSettings applies a partial update. Nil patch fields keep the
// stored value; empty strings clear it.
func (s *SettingsStore) SetUserSettings(ctx context.Context, userID string, patch repositories.SettingsPatch) error {
	row, err := s.readRow(ctx, userID)
	if err != nil {
		return err
	}
	if row == nil {
		row = &settingsRow{}
	}

	applyPatch(&row.baseURL, patch.BaseURL)
	applyPatch(&row.model, patch.Model)
	applyPatch(&row.thinkingPrompt, patch.ThinkingPrompt)

	if patch.APIKey != nil {
		if *patch.APIKey == "" {
			row.apiKeyCipher, row.apiKeyIV, row.apiKeyTag = nil, nil, nil
		} else {
			sealed, err := s.box.Seal(*patch.APIKey)
			if err != nil {
				return fmt.Errorf("seal API key: %w", err)
			}
			row.apiKeyCipher = &sealed.CipherText
			row.apiKeyIV = &sealed.IV
			row.apiKeyTag = &sealed.AuthTag
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, base_url, api_key_cipher, api_key_iv, api_key_tag, model, thinking_prompt, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			base_url = EXCLUDED.base_url,
			api_key_cipher = EXCLUDED.api_key_cipher,
			api_key_iv = EXCLUDED.api_key_iv,
			api_key_tag = EXCLUDED.api_key_tag,
			model = EXCLUDED.model,
			thinking_prompt = EXCLUDED.thinking_prompt,
			updated_at = EXCLUDED.updated_at
	`, s.tables.UserSettings)

	executor := GetExecutor(ctx, s.pool)
	_, err = executor.Exec(ctx, query,
		userID,
		row.baseURL,
		row.apiKeyCipher,
		row.apiKeyIV,
		row.apiKeyTag,
		row.model,
		row.thinkingPrompt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set user settings: %w", err)
	}
	return nil
}

func (s *SettingsStore) readRow(ctx context.Context, userID string) (*settingsRow, error) {
	query := fmt.Sprintf(`
		SELECT base_url, api_key_cipher, api_key_iv, api_key_tag, model, thinking_prompt
		FROM %s
		WHERE user_id = $1
	`, s.tables.UserSettings)

	executor := GetExecutor(ctx, s.pool)

	var row settingsRow
	err := executor.QueryRow(ctx, query, userID).Scan(
		&row.baseURL,
		&row.apiKeyCipher,
		&row.apiKeyIV,
		&row.apiKeyTag,
		&row.model,
		&row.thinkingPrompt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user settings: %w", err)
	}
	return &row, nil
}

func applyPatch(field **string, patch *string) {
	if patch == nil {
		return
	}
	if *patch == "" {
		*field = nil
		return
	}
	value := *patch
	*field = &value
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

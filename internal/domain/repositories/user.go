package repositories

import (
	"context"
	"time"

	"loom/internal/domain/models"
)

// UserStore manages local accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash, role string) (string, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// SessionStore manages login sessions. Expired sessions are treated as
// absent by GetSession.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string, expiresAt time.Time) (string, error)
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// SettingsPatch carries partial settings updates. A nil field keeps the
// stored value; an empty string clears it.
type SettingsPatch struct {
	BaseURL        *string
	APIKey         *string
	Model          *string
	ThinkingPrompt *string
}

// SettingsStore manages per-user completion settings. Implementations
// encrypt the API key at rest and return it decrypted.
type SettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	SetUserSettings(ctx context.Context, userID string, patch SettingsPatch) error
}

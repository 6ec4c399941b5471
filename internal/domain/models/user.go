package models

import "time"

// User is a local account. Passwords are stored as scrypt hashes.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Session is a cookie-backed login session.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserSettings holds per-user completion credentials and defaults.
// APIKey is plaintext in memory only; it is encrypted at rest and is
// never echoed over the API (clients see an apiKeySet flag instead).
type UserSettings struct {
	UserID         string
	BaseURL        string
	APIKey         string
	Model          string
	ThinkingPrompt string
}

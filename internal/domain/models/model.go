package models

import "time"

// Model is a catalog entry for a completion model the UI can target.
type Model struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Provider    string    `json:"provider"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

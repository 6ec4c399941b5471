package handler

import (
	"log/slog"
	"net/http"

	"loom/internal/domain/repositories"
	"loom/internal/httputil"
)

// SettingsHandler serves per-user completion settings. The stored API
// key is never echoed back; responses carry only a presence flag.
type SettingsHandler struct {
	settings repositories.SettingsStore
	logger   *slog.Logger
}

// NewSettingsHandler creates a new SettingsHandler
func NewSettingsHandler(settings repositories.SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger,
	}
}

type settingsResponse struct {
	BaseURL        string `json:"baseUrl"`
	APIKeySet      bool   `json:"apiKeySet"`
	Model          string `json:"model"`
	ThinkingPrompt string `json:"thinkingPrompt"`
}

type settingsPatchRequest struct {
	BaseURL        *string `json:"baseUrl"`
	APIKey         *string `json:"apiKey"`
	Model          *string `json:"model"`
	ThinkingPrompt *string `json:"thinkingPrompt"`
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	stored, err := h.settings.GetUserSettings(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, settingsResponse{
		BaseURL:        stored.BaseURL,
		APIKeySet:      stored.APIKey != "",
		Model:          stored.Model,
		ThinkingPrompt: stored.ThinkingPrompt,
	})
}

// Update handles PATCH /api/settings
//
// Omitted fields are left untouched; empty strings clear the stored
// value.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req settingsPatchRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := repositories.SettingsPatch{
		BaseURL:        req.BaseURL,
		APIKey:         req.APIKey,
		Model:          req.Model,
		ThinkingPrompt: req.ThinkingPrompt,
	}
	if err := h.settings.SetUserSettings(r.Context(), userID, patch); err != nil {
		handleError(w, err)
		return
	}

	stored, err := h.settings.GetUserSettings(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, settingsResponse{
		BaseURL:        stored.BaseURL,
		APIKeySet:      stored.APIKey != "",
		Model:          stored.Model,
		ThinkingPrompt: stored.ThinkingPrompt,
	})
}

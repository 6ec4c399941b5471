package handler

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"loom/internal/completion"
	"loom/internal/domain/repositories"
	"loom/internal/httputil"
)

// ModelsHandler serves the local model catalog and proxies remote
// model discovery through the completion endpoint.
type ModelsHandler struct {
	catalog  repositories.ModelStore
	settings repositories.SettingsStore
	client   *completion.Client
	logger   *slog.Logger
}

// NewModelsHandler creates a new ModelsHandler
func NewModelsHandler(
	catalog repositories.ModelStore,
	settings repositories.SettingsStore,
	client *completion.Client,
	logger *slog.Logger,
) *ModelsHandler {
	return &ModelsHandler{
		catalog:  catalog,
		settings: settings,
		client:   client,
		logger:   logger,
	}
}

type upsertModelRequest struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Provider    string `json:"provider"`
}

func (r upsertModelRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.DisplayName, validation.Required),
	)
}

// List handles GET /api/models
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.catalog.ListModels(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, entries)
}

// Upsert handles POST /api/models
func (h *ModelsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertModelRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = "custom"
	}

	if err := h.catalog.UpsertModel(r.Context(), req.ID, req.DisplayName, provider); err != nil {
		handleError(w, err)
		return
	}

	entries, err := h.catalog.ListModels(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, entries)
}

// ListRemote handles GET /api/models/remote
//
// It queries the configured completion endpoint's model listing with
// the caller's stored credentials. Query parameters baseUrl and apiKey
// override the stored settings for ad-hoc probing.
func (h *ModelsHandler) ListRemote(w http.ResponseWriter, r *http.Request) {
	baseURL := r.URL.Query().Get("baseUrl")
	apiKey := r.URL.Query().Get("apiKey")

	if baseURL == "" || apiKey == "" {
		if userID := httputil.GetUserID(r); userID != "" {
			stored, err := h.settings.GetUserSettings(r.Context(), userID)
			if err != nil {
				handleError(w, err)
				return
			}
			if baseURL == "" {
				baseURL = stored.BaseURL
			}
			if apiKey == "" {
				apiKey = stored.APIKey
			}
		}
	}

	entries, err := h.client.ListModels(r.Context(), baseURL, apiKey)
	if err != nil {
		h.logger.Warn("remote model listing failed", "error", err)
		httputil.RespondError(w, http.StatusBadGateway, "remote model listing failed")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, entries)
}

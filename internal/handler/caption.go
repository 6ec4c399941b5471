package handler

import (
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"loom/internal/completion"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/httputil"
	"loom/internal/service/chat"
)

const captionPrompt = "Describe this image in one short sentence."

// CaptionHandler produces short captions for uploaded images with a
// one-shot vision completion.
type CaptionHandler struct {
	completer chat.Completer
	settings  repositories.SettingsStore
	logger    *slog.Logger
}

// NewCaptionHandler creates a new CaptionHandler
func NewCaptionHandler(completer chat.Completer, settings repositories.SettingsStore, logger *slog.Logger) *CaptionHandler {
	return &CaptionHandler{
		completer: completer,
		settings:  settings,
		logger:    logger,
	}
}

type captionRequest struct {
	ImageURL string `json:"imageUrl"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
}

func (r captionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ImageURL, validation.Required, is.RequestURI),
	)
}

type captionResponse struct {
	Caption string `json:"caption"`
}

// Caption handles POST /api/media/caption
func (h *CaptionHandler) Caption(w http.ResponseWriter, r *http.Request) {
	var req captionRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored := &models.UserSettings{}
	if userID := httputil.GetUserID(r); userID != "" {
		loaded, err := h.settings.GetUserSettings(r.Context(), userID)
		if err != nil {
			handleError(w, err)
			return
		}
		stored = loaded
	}

	model := req.Model
	if model == "" {
		model = stored.Model
	}
	if model == "" {
		httputil.RespondError(w, http.StatusBadRequest, "no model configured")
		return
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = captionPrompt
	}

	message := models.ChatMessage{
		Role: models.RoleUser,
		Content: models.MessageContent{
			Parts: []models.ContentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &models.ImagePayload{URL: req.ImageURL}},
			},
		},
	}

	result, err := h.completer.Complete(r.Context(), completion.Request{
		BaseURL:  stored.BaseURL,
		APIKey:   stored.APIKey,
		Model:    model,
		Messages: []models.ChatMessage{message},
	}, nil)
	if err != nil {
		h.logger.Warn("caption completion failed", "error", err)
		httputil.RespondError(w, http.StatusBadGateway, "caption generation failed")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, captionResponse{
		Caption: strings.TrimSpace(result.Content),
	})
}

package handler

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/httputil"
)

// ConversationHandler serves conversation CRUD.
type ConversationHandler struct {
	store  repositories.ConversationStore
	logger *slog.Logger
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(store repositories.ConversationStore, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  store,
		logger: logger,
	}
}

type createConversationRequest struct {
	Title   string `json:"title"`
	ModelID string `json:"modelId"`
}

func (r createConversationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ModelID, validation.Required),
	)
}

type updateConversationRequest struct {
	Title   *string `json:"title"`
	ModelID *string `json:"modelId"`
}

// Create handles POST /api/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	title := req.Title
	if title == "" {
		title = models.DefaultConversationTitle
	}

	id, err := h.store.CreateConversation(r.Context(), title, req.ModelID)
	if err != nil {
		handleError(w, err)
		return
	}

	conversation, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, conversation)
}

// List handles GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.ListConversations(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conversations)
}

// Get handles GET /api/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversation, err := h.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conversation)
}

// Update handles PATCH /api/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateConversationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Title == nil && req.ModelID == nil {
		httputil.RespondError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if req.Title != nil {
		if err := h.store.UpdateConversationTitle(r.Context(), id, *req.Title); err != nil {
			handleError(w, err)
			return
		}
	}
	if req.ModelID != nil {
		if err := h.store.UpdateConversationModel(r.Context(), id, *req.ModelID); err != nil {
			handleError(w, err)
			return
		}
	}

	conversation, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conversation)
}

// Delete handles DELETE /api/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"log/slog"
	"net/http"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/httputil"
)

// WorkspaceHandler serves the full client bootstrap snapshot: model
// catalog, conversations with messages, and thinking runs grouped by
// conversation.
type WorkspaceHandler struct {
	store   repositories.ConversationStore
	catalog repositories.ModelStore
	logger  *slog.Logger
}

// NewWorkspaceHandler creates a new WorkspaceHandler
func NewWorkspaceHandler(store repositories.ConversationStore, catalog repositories.ModelStore, logger *slog.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

// Get handles GET /api/workspace
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.catalog.ListModels(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	conversations, err := h.store.ListConversations(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	runs, err := h.store.ListThinkingRuns(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, models.Workspace{
		Models:        catalog,
		Conversations: conversations,
		ThinkingRuns:  runs,
	})
}

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/handler/sse"
	"loom/internal/httputil"
	"loom/internal/service/chat"
)

// ChatHandler runs chat orchestration calls and multiplexes their
// progress onto a server-sent-event stream.
type ChatHandler struct {
	orchestrator *chat.Service
	store        repositories.ConversationStore
	settings     repositories.SettingsStore
	logger       *slog.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(
	orchestrator *chat.Service,
	store repositories.ConversationStore,
	settings repositories.SettingsStore,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		store:        store,
		settings:     settings,
		logger:       logger,
	}
}

// Stream handles POST /api/chat
//
// Event order on the happy path: status, zero or more thinking_delta,
// optional thinking_complete, zero or more message_delta,
// message_complete, optional conversation, done. Cancellation ends the
// stream with stopped, any other failure with error. Exactly one of
// done, stopped, error terminates every call.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.applyStoredSettings(r, &req)

	// Malformed requests are rejected before the stream opens.
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	keepAlive := sse.NewTickerKeepAlive(sse.DefaultKeepAliveInterval)
	keepAlive.Start(stream, h.logger)
	defer keepAlive.Stop()

	// Client disconnect cancels the context and with it both upstream
	// completion calls.
	ctx := r.Context()

	stream.Send("status", map[string]string{"stage": "starting"})

	sinks := chat.Sinks{
		OnThinkingToken: func(token string) {
			if strings.TrimSpace(token) == "" {
				return
			}
			stream.Send("thinking_delta", map[string]string{"delta": token})
		},
		OnThinkingComplete: func(run models.ThinkingRun) {
			stream.Send("thinking_complete", run)
		},
		OnAnswerToken: func(token string) {
			stream.Send("message_delta", map[string]string{"delta": token})
		},
	}

	result, err := h.orchestrator.Orchestrate(ctx, &req, sinks)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			stream.Send("stopped", map[string]string{})
			return
		}
		h.logger.Error("chat orchestration failed", "error", err)
		stream.Send("error", map[string]string{"message": err.Error()})
		return
	}

	stream.Send("message_complete", result.Message)

	// Best effort: the refreshed conversation is a convenience for the
	// client, not part of the contract.
	if conversation, err := h.store.GetConversation(ctx, result.ConversationID); err == nil {
		stream.Send("conversation", conversation)
	} else {
		h.logger.Warn("failed to load refreshed conversation", "conversation_id", result.ConversationID, "error", err)
	}

	stream.Send("done", map[string]string{"conversationId": result.ConversationID})
}

// applyStoredSettings fills request gaps from the user's persisted
// settings. Values supplied on the request always win.
func (h *ChatHandler) applyStoredSettings(r *http.Request, req *chat.Request) {
	userID := httputil.GetUserID(r)
	if userID == "" || h.settings == nil {
		return
	}

	stored, err := h.settings.GetUserSettings(r.Context(), userID)
	if err != nil {
		h.logger.Warn("failed to load user settings", "user_id", userID, "error", err)
		return
	}

	if req.Settings.BaseURL == "" {
		req.Settings.BaseURL = stored.BaseURL
	}
	if req.Settings.APIKey == "" {
		req.Settings.APIKey = stored.APIKey
	}
	if req.Settings.Model == "" {
		req.Settings.Model = stored.Model
	}
	if req.Settings.Thinking != nil && req.Settings.Thinking.Enabled && req.Settings.Thinking.SystemPrompt == "" {
		req.Settings.Thinking.SystemPrompt = stored.ThinkingPrompt
	}
}

package repositories

import (
	"context"
	"time"

	"loom/internal/domain/models"
)

// InsertMessageParams are the inputs for persisting one message.
// CreatedAt falls back to the current time when zero.
type InsertMessageParams struct {
	ConversationID string
	Role           string
	Content        string
	Metadata       *models.MessageMetadata
	CreatedAt      time.Time
}

// InsertThinkingRunParams are the inputs for persisting one thinking
// run. CreatedAt falls back to the current time when zero.
type InsertThinkingRunParams struct {
	ConversationID string
	ModelID        string
	Output         string
	SystemPrompt   *string
	CreatedAt      time.Time
}

// ConversationStore is the persistence contract the chat orchestrator
// depends on. Every message or thinking-run insert/delete touches the
// owning conversation's updated_at.
type ConversationStore interface {
	CreateConversation(ctx context.Context, title, modelID string) (string, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, title string) error
	UpdateConversationModel(ctx context.Context, id, modelID string) error
	DeleteConversation(ctx context.Context, id string) error

	GetMessage(ctx context.Context, id string) (*models.Message, error)
	InsertMessage(ctx context.Context, params InsertMessageParams) (string, error)
	UpdateMessageMetadata(ctx context.Context, id string, metadata *models.MessageMetadata) error
	// DeleteMessagesAfter removes every message in the conversation
	// whose timestamp is >= cutoff (inclusive truncation).
	DeleteMessagesAfter(ctx context.Context, conversationID string, cutoff time.Time) error

	InsertThinkingRun(ctx context.Context, params InsertThinkingRunParams) (string, error)
	UpdateThinkingRunMessage(ctx context.Context, runID, messageID string) error
	// DeleteThinkingRunsAfter removes every thinking run in the
	// conversation whose timestamp is >= cutoff (inclusive truncation).
	DeleteThinkingRunsAfter(ctx context.Context, conversationID string, cutoff time.Time) error
	ListThinkingRuns(ctx context.Context) (map[string][]models.ThinkingRun, error)
}

// ModelStore is the local model-catalog contract.
type ModelStore interface {
	UpsertModel(ctx context.Context, id, displayName, provider string) error
	ListModels(ctx context.Context) ([]models.Model, error)
}

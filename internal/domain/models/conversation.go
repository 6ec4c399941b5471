package models

import "time"

// DefaultConversationTitle is the placeholder title for conversations
// created before any meaningful user content arrives.
const DefaultConversationTitle = "New conversation"

// Conversation is a chat session. ModelID always reflects the model
// used by the most recent orchestration call against it.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ModelID    string    `json:"modelId"`
	ModelLabel string    `json:"modelLabel,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Messages   []Message `json:"messages"`
}

// ThinkingRun records one reasoning-pass invocation. MessageID links
// forward to the assistant message the run preceded; it is nil until
// that message is persisted.
type ThinkingRun struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	ModelID        string    `json:"modelId"`
	Output         string    `json:"output"`
	SystemPrompt   *string   `json:"systemPrompt,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	MessageID      *string   `json:"messageId"`
}

// Workspace is the initial data snapshot the client hydrates from.
type Workspace struct {
	Models        []Model                  `json:"models"`
	Conversations []Conversation           `json:"conversations"`
	ThinkingRuns  map[string][]ThinkingRun `json:"thinkingRuns"`
}

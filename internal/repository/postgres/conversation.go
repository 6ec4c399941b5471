package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// ConversationStore implements the conversation persistence contract
// using PostgreSQL.
type ConversationStore struct {
	pool   *pgxpool.Pool
	tx     repositories.TransactionManager
	tables *TableNames
	logger *slog.Logger
}

// NewConversationStore creates a new ConversationStore
func NewConversationStore(config *RepositoryConfig) repositories.ConversationStore {
	return &ConversationStore{
		pool:   config.Pool,
		tx:     NewTransactionManager(config.Pool),
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateConversation inserts a new conversation and returns its id.
func (s *ConversationStore) CreateConversation(ctx context.Context, title, modelID string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, model_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, s.tables.Conversations)

	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, id, title, modelID, now); err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// GetConversation retrieves a conversation with its messages, ordered
// oldest first. Returns ErrNotFound when the id is unknown.
func (s *ConversationStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, title, model_id, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, s.tables.Conversations)

	executor := GetExecutor(ctx, s.pool)

	var conversation models.Conversation
	err := executor.QueryRow(ctx, query, id).Scan(
		&conversation.ID,
		&conversation.Title,
		&conversation.ModelID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	messages, err := s.listMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conversation.Messages = messages
	return &conversation, nil
}

// ListConversations retrieves every conversation with messages, most
// recently updated first.
func (s *ConversationStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, title, model_id, created_at, updated_at
		FROM %s
		ORDER BY updated_at DESC
	`, s.tables.Conversations)

	executor := GetExecutor(ctx, s.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		var conversation models.Conversation
		err := rows.Scan(
			&conversation.ID,
			&conversation.Title,
			&conversation.ModelID,
			&conversation.CreatedAt,
			&conversation.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	for i := range conversations {
		messages, err := s.listMessages(ctx, conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].Messages = messages
	}
	return conversations, nil
}

// UpdateConversationTitle renames a conversation.
func (s *ConversationStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET title = $1, updated_at = $2 WHERE id = $3
	`, s.tables.Conversations)

	executor := GetExecutor(ctx, s.pool)
	result, err := executor.Exec(ctx, query, title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateConversationModel retargets the conversation's stored model.
func (s *ConversationStore) UpdateConversationModel(ctx context.Context, id, modelID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET model_id = $1, updated_at = $2 WHERE id = $3
	`, s.tables.Conversations)

	executor := GetExecutor(ctx, s.pool)
	result, err := executor.Exec(ctx, query, modelID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update conversation model: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteConversation removes a conversation and its dependent rows.
// All three deletes commit together; a failure leaves no orphaned
// messages or runs behind.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	return s.tx.ExecTx(ctx, func(ctx context.Context) error {
		executor := GetExecutor(ctx, s.pool)

		for _, table := range []string{s.tables.Messages, s.tables.ThinkingRuns} {
			query := fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, table)
			if _, err := executor.Exec(ctx, query, id); err != nil {
				return fmt.Errorf("delete conversation rows: %w", err)
			}
		}

		query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tables.Conversations)
		result, err := executor.Exec(ctx, query, id)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
		}
		return nil
	})
}

// GetMessage retrieves a single message by id.
func (s *ConversationStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM %s
		WHERE id = $1
	`, s.tables.Messages)

	executor := GetExecutor(ctx, s.pool)

	var (
		message      models.Message
		metadataJSON []byte
	)
	err := executor.QueryRow(ctx, query, id).Scan(
		&message.ID,
		&message.ConversationID,
		&message.Role,
		&message.Content,
		&metadataJSON,
		&message.CreatedAt,
	)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}

	message.Metadata = decodeMetadata(metadataJSON, s.logger)
	return &message, nil
}

// InsertMessage persists a message and touches the conversation.
func (s *ConversationStore) InsertMessage(ctx context.Context, params repositories.InsertMessageParams) (string, error) {
	id := uuid.New().String()
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	metadataJSON, err := encodeMetadata(params.Metadata)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.tables.Messages)

	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, id, params.ConversationID, params.Role, params.Content, metadataJSON, createdAt); err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	if err := s.touchConversation(ctx, params.ConversationID, createdAt); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateMessageMetadata backfills attachment metadata on a message.
func (s *ConversationStore) UpdateMessageMetadata(ctx context.Context, id string, metadata *models.MessageMetadata) error {
	metadataJSON, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET metadata = $1 WHERE id = $2`, s.tables.Messages)
	executor := GetExecutor(ctx, s.pool)
	result, err := executor.Exec(ctx, query, metadataJSON, id)
	if err != nil {
		return fmt.Errorf("update message metadata: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteMessagesAfter removes every message at or after the cutoff and
// touches the conversation.
func (s *ConversationStore) DeleteMessagesAfter(ctx context.Context, conversationID string, cutoff time.Time) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE conversation_id = $1 AND created_at >= $2
	`, s.tables.Messages)

	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, conversationID, cutoff); err != nil {
		return fmt.Errorf("delete messages after: %w", err)
	}
	return s.touchConversation(ctx, conversationID, time.Now().UTC())
}

// InsertThinkingRun persists a thinking run and touches the
// conversation.
func (s *ConversationStore) InsertThinkingRun(ctx context.Context, params repositories.InsertThinkingRunParams) (string, error) {
	id := uuid.New().String()
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, model_id, output, system_prompt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.tables.ThinkingRuns)

	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, id, params.ConversationID, params.ModelID, params.Output, params.SystemPrompt, createdAt); err != nil {
		return "", fmt.Errorf("insert thinking run: %w", err)
	}

	if err := s.touchConversation(ctx, params.ConversationID, createdAt); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateThinkingRunMessage links a run forward to the assistant message
// that followed it.
func (s *ConversationStore) UpdateThinkingRunMessage(ctx context.Context, runID, messageID string) error {
	query := fmt.Sprintf(`UPDATE %s SET message_id = $1 WHERE id = $2`, s.tables.ThinkingRuns)

	executor := GetExecutor(ctx, s.pool)
	result, err := executor.Exec(ctx, query, messageID, runID)
	if err != nil {
		return fmt.Errorf("update thinking run message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("thinking run %s: %w", runID, domain.ErrNotFound)
	}
	return nil
}

// DeleteThinkingRunsAfter removes every run at or after the cutoff and
// touches the conversation.
func (s *ConversationStore) DeleteThinkingRunsAfter(ctx context.Context, conversationID string, cutoff time.Time) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE conversation_id = $1 AND created_at >= $2
	`, s.tables.ThinkingRuns)

	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, conversationID, cutoff); err != nil {
		return fmt.Errorf("delete thinking runs after: %w", err)
	}
	return s.touchConversation(ctx, conversationID, time.Now().UTC())
}

// ListThinkingRuns retrieves all runs grouped by conversation id,
// oldest first within each group.
func (s *ConversationStore) ListThinkingRuns(ctx context.Context) (map[string][]models.ThinkingRun, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, model_id, output, system_prompt, message_id, created_at
		FROM %s
		ORDER BY created_at ASC
	`, s.tables.ThinkingRuns)

	executor := GetExecutor(ctx, s.pool)
	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list thinking runs: %w", err)
	}
	defer rows.Close()

	runs := map[string][]models.ThinkingRun{}
	for rows.Next() {
		var run models.ThinkingRun
		err := rows.Scan(
			&run.ID,
			&run.ConversationID,
			&run.ModelID,
			&run.Output,
			&run.SystemPrompt,
			&run.MessageID,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan thinking run: %w", err)
		}
		runs[run.ConversationID] = append(runs[run.ConversationID], run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thinking runs: %w", err)
	}
	return runs, nil
}

// listMessages loads a conversation's messages oldest first; seq breaks
// same-timestamp ties by insertion order.
func (s *ConversationStore) listMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, role, content, metadata, created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC
	`, s.tables.Messages)

	executor := GetExecutor(ctx, s.pool)
	rows, err := executor.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			message      models.Message
			metadataJSON []byte
		)
		err := rows.Scan(
			&message.ID,
			&message.ConversationID,
			&message.Role,
			&message.Content,
			&metadataJSON,
			&message.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.Metadata = decodeMetadata(metadataJSON, s.logger)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// touchConversation bumps updated_at so listings sort by recency.
func (s *ConversationStore) touchConversation(ctx context.Context, id string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET updated_at = $1 WHERE id = $2`, s.tables.Conversations)
	executor := GetExecutor(ctx, s.pool)
	if _, err := executor.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func encodeMetadata(metadata *models.MessageMetadata) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode message metadata: %w", err)
	}
	return encoded, nil
}

func decodeMetadata(metadataJSON []byte, logger *slog.Logger) *models.MessageMetadata {
	if len(metadataJSON) == 0 {
		return nil
	}
	var metadata models.MessageMetadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		logger.Warn("dropping unreadable message metadata", "error", err)
		return nil
	}
	return &metadata
}

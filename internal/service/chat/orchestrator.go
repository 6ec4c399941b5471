package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"loom/internal/completion"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// defaultThinkingPrompt instructs the reasoning pass when the caller
// supplies no prompt of their own.
const defaultThinkingPrompt = "You are an expert reasoning assistant. Think through the user's request in detail and provide a plan."

// Completer is the completion-client contract the orchestrator needs.
type Completer interface {
	Complete(ctx context.Context, req completion.Request, sink completion.TokenSink) (*completion.Result, error)
}

// ThinkingSettings selects the optional reasoning pass. When Enabled,
// both models must be set; the answer model becomes the conversation's
// recorded model.
type ThinkingSettings struct {
	Enabled       bool   `json:"enabled"`
	ThinkingModel string `json:"thinkingModel"`
	AnswerModel   string `json:"answerModel"`
	SystemPrompt  string `json:"systemPrompt,omitempty"`
}

// Validate implements validation.Validatable.
func (t ThinkingSettings) Validate() error {
	if !t.Enabled {
		return nil
	}
	return validation.ValidateStruct(&t,
		validation.Field(&t.ThinkingModel, validation.Required),
		validation.Field(&t.AnswerModel, validation.Required),
	)
}

// Settings are the per-call completion settings.
type Settings struct {
	BaseURL     string            `json:"baseUrl,omitempty"`
	APIKey      string            `json:"apiKey,omitempty"`
	Model       string            `json:"model"`
	Temperature *float64          `json:"temperature,omitempty"`
	Thinking    *ThinkingSettings `json:"thinking,omitempty"`
}

// Validate implements validation.Validatable.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Model, validation.Required),
		validation.Field(&s.Thinking),
	)
}

// Request is one orchestration call: a message history, settings, and
// optionally a regenerate cut point.
type Request struct {
	ConversationID      string               `json:"conversationId,omitempty"`
	Messages            []models.ChatMessage `json:"messages"`
	Settings            Settings             `json:"settings"`
	RegenerateMessageID string               `json:"regenerateMessageId,omitempty"`
}

// Validate implements validation.Validatable.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Messages, validation.Required),
		validation.Field(&r.Settings, validation.Required),
	)
}

// Sinks receive orchestration progress. Any field may be nil. Token
// sinks are forwarded into the completion client; OnThinkingComplete
// fires after the thinking run is persisted and before the answer pass
// starts.
type Sinks struct {
	OnThinkingToken    completion.TokenSink
	OnThinkingComplete func(run models.ThinkingRun)
	OnAnswerToken      completion.TokenSink
}

// Result is the outcome of one orchestration call. ThinkingRun is
// present iff thinking ran; its system prompt is persisted but not
// returned.
type Result struct {
	ConversationID string              `json:"conversationId"`
	Message        models.Message      `json:"message"`
	ThinkingRun    *models.ThinkingRun `json:"thinkingRun,omitempty"`
}

// Service orchestrates chat calls: it decides the thinking/answer call
// sequence, persists both sides of the turn, and replays history for
// regenerate. State is recomputed per call; nothing is cached.
type Service struct {
	store     repositories.ConversationStore
	completer Completer
	tx        repositories.TransactionManager
	logger    *slog.Logger
}

// NewService creates a new chat orchestration service. tx may be nil;
// regenerate truncation then runs without transactional atomicity.
func NewService(store repositories.ConversationStore, completer Completer, tx repositories.TransactionManager, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		completer: completer,
		tx:        tx,
		logger:    logger,
	}
}

// Orchestrate runs one chat call. On completion-client failure the
// call aborts with the user message (and thinking run, if any) already
// persisted; only the answer-phase work is lost. Cancellation
// propagates through ctx into in-flight upstream calls.
func (s *Service) Orchestrate(ctx context.Context, req *Request, sinks Sinks) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	thinking := req.Settings.Thinking
	thinkingEnabled := thinking != nil && thinking.Enabled

	// The final model is what the conversation record reflects.
	finalModel := req.Settings.Model
	if thinkingEnabled {
		finalModel = thinking.AnswerModel
	}

	conversationID := req.ConversationID
	created := false
	if conversationID == "" {
		id, err := s.store.CreateConversation(ctx, models.DefaultConversationTitle, finalModel)
		if err != nil {
			return nil, err
		}
		conversationID = id
		created = true
	}

	// Retarget on every call, not just creation.
	if err := s.store.UpdateConversationModel(ctx, conversationID, finalModel); err != nil {
		return nil, err
	}

	regenerate := req.RegenerateMessageID != ""
	if regenerate {
		if err := s.truncateForRegenerate(ctx, conversationID, req.RegenerateMessageID); err != nil {
			return nil, err
		}
	} else if userMessage := latestUserMessage(req.Messages); userMessage != nil {
		if err := s.persistUserTurn(ctx, conversationID, created, userMessage); err != nil {
			return nil, err
		}
	}

	var (
		thinkingRun    *models.ThinkingRun
		thinkingOutput string
	)
	if thinkingEnabled {
		run, err := s.runThinkingPass(ctx, conversationID, req, sinks)
		if err != nil {
			return nil, err
		}
		thinkingRun = run
		thinkingOutput = run.Output
		if sinks.OnThinkingComplete != nil {
			sinks.OnThinkingComplete(*run)
		}
	}

	// The answer context extends the original history, not the
	// thinking call's augmented one.
	answerMessages := req.Messages
	if thinkingOutput != "" {
		answerMessages = append(copyMessages(req.Messages), models.ChatMessage{
			Role:    models.RoleSystem,
			Content: models.TextContent("Prior thinking:\n" + thinkingOutput),
		})
	}

	answer, err := s.completer.Complete(ctx, completion.Request{
		BaseURL:     req.Settings.BaseURL,
		APIKey:      req.Settings.APIKey,
		Model:       finalModel,
		Temperature: req.Settings.Temperature,
		Messages:    answerMessages,
	}, sinks.OnAnswerToken)
	if err != nil {
		return nil, err
	}

	createdAt := time.Now().UTC()
	messageID, err := s.store.InsertMessage(ctx, repositories.InsertMessageParams{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        answer.Content,
		CreatedAt:      createdAt,
	})
	if err != nil {
		return nil, err
	}

	if thinkingRun != nil {
		// A run always links forward to the answer that followed it.
		if err := s.store.UpdateThinkingRunMessage(ctx, thinkingRun.ID, messageID); err != nil {
			return nil, err
		}
		thinkingRun.MessageID = &messageID
	}

	s.logger.Info("chat orchestrated",
		"conversation_id", conversationID,
		"model", finalModel,
		"thinking", thinkingEnabled,
		"regenerate", regenerate,
	)

	return &Result{
		ConversationID: conversationID,
		Message: models.Message{
			ID:             messageID,
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Content:        answer.Content,
			CreatedAt:      createdAt,
		},
		ThinkingRun: thinkingRun,
	}, nil
}

// truncateForRegenerate discards the regenerate target and everything
// at or after its timestamp, before any new persistence happens.
func (s *Service) truncateForRegenerate(ctx context.Context, conversationID, messageID string) error {
	target, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if target.ConversationID != conversationID {
		return &domain.ValidationError{Message: "regenerate target belongs to a different conversation"}
	}

	// Both truncations land or neither does; a half-truncated history
	// would desync runs from their messages.
	truncate := func(ctx context.Context) error {
		if err := s.store.DeleteThinkingRunsAfter(ctx, conversationID, target.CreatedAt); err != nil {
			return err
		}
		return s.store.DeleteMessagesAfter(ctx, conversationID, target.CreatedAt)
	}
	if s.tx != nil {
		return s.tx.ExecTx(ctx, truncate)
	}
	return truncate(ctx)
}

// persistUserTurn stores the trailing user message with canonical text
// content, backfills attachment metadata derived from image parts, and
// derives a title from the first meaningful user content.
func (s *Service) persistUserTurn(ctx context.Context, conversationID string, created bool, userMessage *models.ChatMessage) error {
	content := userMessage.Content.PlainText()

	messageID, err := s.store.InsertMessage(ctx, repositories.InsertMessageParams{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        content,
	})
	if err != nil {
		return err
	}

	if attachments := userMessage.Content.Attachments(); len(attachments) > 0 {
		metadata := &models.MessageMetadata{Attachments: attachments}
		if err := s.store.UpdateMessageMetadata(ctx, messageID, metadata); err != nil {
			return err
		}
	}

	return s.maybeDeriveTitle(ctx, conversationID, created, content)
}

func (s *Service) maybeDeriveTitle(ctx context.Context, conversationID string, created bool, content string) error {
	title := DeriveTitle(content)
	if title == models.DefaultConversationTitle {
		return nil
	}

	if !created {
		conversation, err := s.store.GetConversation(ctx, conversationID)
		if err != nil {
			return err
		}
		// Only the first meaningful user content names a conversation.
		if conversation.Title != models.DefaultConversationTitle {
			return nil
		}
	}
	return s.store.UpdateConversationTitle(ctx, conversationID, title)
}

// runThinkingPass invokes the thinking model with the system prompt
// prepended and persists the run. The returned run carries no system
// prompt; that stays in storage only.
func (s *Service) runThinkingPass(ctx context.Context, conversationID string, req *Request, sinks Sinks) (*models.ThinkingRun, error) {
	thinking := req.Settings.Thinking

	prompt := strings.TrimSpace(thinking.SystemPrompt)
	if prompt == "" {
		prompt = defaultThinkingPrompt
	}

	messages := append([]models.ChatMessage{{
		Role:    models.RoleSystem,
		Content: models.TextContent(prompt),
	}}, req.Messages...)

	result, err := s.completer.Complete(ctx, completion.Request{
		BaseURL:     req.Settings.BaseURL,
		APIKey:      req.Settings.APIKey,
		Model:       thinking.ThinkingModel,
		Temperature: req.Settings.Temperature,
		Messages:    messages,
	}, sinks.OnThinkingToken)
	if err != nil {
		return nil, err
	}

	createdAt := time.Now().UTC()
	runID, err := s.store.InsertThinkingRun(ctx, repositories.InsertThinkingRunParams{
		ConversationID: conversationID,
		ModelID:        thinking.ThinkingModel,
		Output:         result.Content,
		SystemPrompt:   &prompt,
		CreatedAt:      createdAt,
	})
	if err != nil {
		return nil, err
	}

	return &models.ThinkingRun{
		ID:             runID,
		ConversationID: conversationID,
		ModelID:        thinking.ThinkingModel,
		Output:         result.Content,
		CreatedAt:      createdAt,
	}, nil
}

// latestUserMessage finds the trailing user-role message, if any.
func latestUserMessage(messages []models.ChatMessage) *models.ChatMessage {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			return &messages[i]
		}
	}
	return nil
}

func copyMessages(messages []models.ChatMessage) []models.ChatMessage {
	copied := make([]models.ChatMessage, len(messages))
	copy(copied, messages)
	return copied
}

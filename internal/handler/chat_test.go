package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loom/internal/completion"
	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
	"loom/internal/service/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is a minimal in-memory ConversationStore for transport
// tests.
type memoryStore struct {
	nextID        int
	conversations map[string]*models.Conversation
	messages      []models.Message
	runs          []models.ThinkingRun
}

func newMemoryStore() *memoryStore {
	return &memoryStore{conversations: map[string]*models.Conversation{}}
}

func (s *memoryStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func (s *memoryStore) CreateConversation(ctx context.Context, title, modelID string) (string, error) {
	id := s.id("conv")
	now := time.Now().UTC()
	s.conversations[id] = &models.Conversation{ID: id, Title: title, ModelID: modelID, CreatedAt: now, UpdatedAt: now}
	return id, nil
}

func (s *memoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation: %w", domain.ErrNotFound)
	}
	snapshot := *conversation
	for _, message := range s.messages {
		if message.ConversationID == id {
			snapshot.Messages = append(snapshot.Messages, message)
		}
	}
	return &snapshot, nil
}

func (s *memoryStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	return nil, nil
}

func (s *memoryStore) UpdateConversationTitle(ctx context.Context, id, title string) error {
	if conversation, ok := s.conversations[id]; ok {
		conversation.Title = title
	}
	return nil
}

func (s *memoryStore) UpdateConversationModel(ctx context.Context, id, modelID string) error {
	if conversation, ok := s.conversations[id]; ok {
		conversation.ModelID = modelID
	}
	return nil
}

func (s *memoryStore) DeleteConversation(ctx context.Context, id string) error {
	delete(s.conversations, id)
	return nil
}

func (s *memoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			message := s.messages[i]
			return &message, nil
		}
	}
	return nil, fmt.Errorf("message: %w", domain.ErrNotFound)
}

func (s *memoryStore) InsertMessage(ctx context.Context, params repositories.InsertMessageParams) (string, error) {
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	message := models.Message{
		ID:             s.id("msg"),
		ConversationID: params.ConversationID,
		Role:           params.Role,
		Content:        params.Content,
		CreatedAt:      createdAt,
	}
	s.messages = append(s.messages, message)
	return message.ID, nil
}

func (s *memoryStore) UpdateMessageMetadata(ctx context.Context, id string, metadata *models.MessageMetadata) error {
	return nil
}

func (s *memoryStore) DeleteMessagesAfter(ctx context.Context, conversationID string, cutoff time.Time) error {
	return nil
}

func (s *memoryStore) InsertThinkingRun(ctx context.Context, params repositories.InsertThinkingRunParams) (string, error) {
	run := models.ThinkingRun{
		ID:             s.id("run"),
		ConversationID: params.ConversationID,
		ModelID:        params.ModelID,
		Output:         params.Output,
		SystemPrompt:   params.SystemPrompt,
		CreatedAt:      time.Now().UTC(),
	}
	s.runs = append(s.runs, run)
	return run.ID, nil
}

func (s *memoryStore) UpdateThinkingRunMessage(ctx context.Context, runID, messageID string) error {
	for i := range s.runs {
		if s.runs[i].ID == runID {
			s.runs[i].MessageID = &messageID
		}
	}
	return nil
}

func (s *memoryStore) DeleteThinkingRunsAfter(ctx context.Context, conversationID string, cutoff time.Time) error {
	return nil
}

func (s *memoryStore) ListThinkingRuns(ctx context.Context) (map[string][]models.ThinkingRun, error) {
	return map[string][]models.ThinkingRun{}, nil
}

// scriptedCompleter streams scripted outputs token by token.
type scriptedCompleter struct {
	outputs []string
	err     error
	calls   int
}

func (c *scriptedCompleter) Complete(ctx context.Context, req completion.Request, sink completion.TokenSink) (*completion.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	output := ""
	if c.calls < len(c.outputs) {
		output = c.outputs[c.calls]
	}
	c.calls++
	if sink != nil {
		for _, token := range strings.SplitAfter(output, " ") {
			if token != "" {
				sink(token)
			}
		}
	}
	return &completion.Result{Content: output}, nil
}

type recordedEvent struct {
	name string
	data map[string]json.RawMessage
}

func parseEvents(t *testing.T, body string) []recordedEvent {
	t.Helper()
	var events []recordedEvent
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" || strings.HasPrefix(block, ":") {
			continue
		}
		var event recordedEvent
		for _, line := range strings.Split(block, "\n") {
			if strings.HasPrefix(line, "event: ") {
				event.name = strings.TrimPrefix(line, "event: ")
			}
			if strings.HasPrefix(line, "data: ") {
				payload := strings.TrimPrefix(line, "data: ")
				if err := json.Unmarshal([]byte(payload), &event.data); err != nil {
					t.Fatalf("event %q carries invalid JSON: %q", event.name, payload)
				}
			}
		}
		events = append(events, event)
	}
	return events
}

func eventNames(events []recordedEvent) []string {
	names := make([]string, len(events))
	for i, event := range events {
		names[i] = event.name
	}
	return names
}

func postChat(t *testing.T, h *ChatHandler, payload string) []recordedEvent {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(payload))
	recorder := httptest.NewRecorder()
	h.Stream(recorder, request)
	return parseEvents(t, recorder.Body.String())
}

const plainChatPayload = `{
	"messages": [{"role":"user","content":"hello there"}],
	"settings": {"model":"m1"}
}`

func TestStream_HappyPathSequencing(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{outputs: []string{"Hello back friend"}}
	h := NewChatHandler(chat.NewService(store, completer, nil, testLogger()), store, nil, testLogger())

	events := postChat(t, h, plainChatPayload)
	names := eventNames(events)

	if names[0] != "status" {
		t.Errorf("first event = %q, want status", names[0])
	}
	if names[len(names)-1] != "done" {
		t.Errorf("last event = %q, want done", names[len(names)-1])
	}

	var deltas strings.Builder
	var completeContent string
	terminals := 0
	sawComplete := false
	for _, event := range events {
		switch event.name {
		case "message_delta":
			if sawComplete {
				t.Error("message_delta after message_complete")
			}
			var delta string
			json.Unmarshal(event.data["delta"], &delta)
			deltas.WriteString(delta)
		case "message_complete":
			sawComplete = true
			json.Unmarshal(event.data["content"], &completeContent)
		case "done", "stopped", "error":
			terminals++
		}
	}

	if terminals != 1 {
		t.Errorf("terminal events = %d, want exactly 1", terminals)
	}
	if deltas.String() != completeContent {
		t.Errorf("delta concatenation %q != complete content %q", deltas.String(), completeContent)
	}
	if completeContent != "Hello back friend" {
		t.Errorf("content = %q", completeContent)
	}

	// The refreshed conversation rides along before done.
	idx := func(name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		return -1
	}
	if idx("conversation") == -1 || idx("conversation") > idx("done") {
		t.Errorf("conversation event missing or after done: %v", names)
	}
}

func TestStream_ThinkingSequencing(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{outputs: []string{"deep thought", "the answer"}}
	h := NewChatHandler(chat.NewService(store, completer, nil, testLogger()), store, nil, testLogger())

	events := postChat(t, h, `{
		"messages": [{"role":"user","content":"why"}],
		"settings": {"model":"m1","thinking":{"enabled":true,"thinkingModel":"t1","answerModel":"a1"}}
	}`)
	names := eventNames(events)

	lastThinkingDelta, thinkingComplete, firstMessageDelta := -1, -1, len(names)
	for i, name := range names {
		switch name {
		case "thinking_delta":
			lastThinkingDelta = i
		case "thinking_complete":
			thinkingComplete = i
		case "message_delta":
			if i < firstMessageDelta {
				firstMessageDelta = i
			}
		}
	}

	if thinkingComplete == -1 {
		t.Fatalf("no thinking_complete in %v", names)
	}
	if lastThinkingDelta > thinkingComplete {
		t.Errorf("thinking_delta after thinking_complete: %v", names)
	}
	if firstMessageDelta < thinkingComplete {
		t.Errorf("message_delta before thinking_complete: %v", names)
	}
}

func TestStream_ErrorTerminal(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{err: errors.New("endpoint melted")}
	h := NewChatHandler(chat.NewService(store, completer, nil, testLogger()), store, nil, testLogger())

	events := postChat(t, h, plainChatPayload)
	names := eventNames(events)

	if names[len(names)-1] != "error" {
		t.Fatalf("last event = %q, want error: %v", names[len(names)-1], names)
	}
	for _, name := range names {
		if name == "message_complete" || name == "done" {
			t.Errorf("unexpected %q on failure path", name)
		}
	}

	var message string
	json.Unmarshal(events[len(events)-1].data["message"], &message)
	if !strings.Contains(message, "endpoint melted") {
		t.Errorf("error message = %q", message)
	}
}

func TestStream_CancellationYieldsStopped(t *testing.T) {
	store := newMemoryStore()
	completer := &scriptedCompleter{err: context.Canceled}
	h := NewChatHandler(chat.NewService(store, completer, nil, testLogger()), store, nil, testLogger())

	events := postChat(t, h, plainChatPayload)
	names := eventNames(events)

	if names[len(names)-1] != "stopped" {
		t.Errorf("last event = %q, want stopped: %v", names[len(names)-1], names)
	}
	for _, name := range names {
		if name == "error" {
			t.Error("cancellation must not surface as error")
		}
	}
}

func TestStream_RejectsInvalidRequestBeforeStreaming(t *testing.T) {
	store := newMemoryStore()
	h := NewChatHandler(chat.NewService(store, &scriptedCompleter{}, nil, testLogger()), store, nil, testLogger())

	request := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[],"settings":{}}`))
	recorder := httptest.NewRecorder()
	h.Stream(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "application/problem+json" {
		t.Errorf("Content-Type = %q, want problem+json", got)
	}
}

package chatstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"loom/internal/domain/models"
	"loom/internal/service/chat"
)

// State is the live view of an in-flight chat call. Message and
// Thinking accumulate streamed deltas; Err carries the last error
// event's message.
type State struct {
	IsStreaming bool
	Message     string
	Thinking    string
	Err         string
}

// Session is a client for the chat SSE endpoint. It maintains a cached
// workspace snapshot and reconciles completed messages, thinking runs,
// and conversations into it as terminal payloads arrive. At most one
// stream is active per session; a new send aborts the previous one.
type Session struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	generation uint64
	state      State
	workspace  models.Workspace
	onChange   func(State)
}

// NewSession creates a Session against the given server base URL.
// onChange, when non-nil, is invoked with a state snapshot after every
// event.
func NewSession(baseURL string, client *http.Client, logger *slog.Logger, onChange func(State)) *Session {
	if client == nil {
		client = http.DefaultClient
	}
	return &Session{
		baseURL:  baseURL,
		client:   client,
		logger:   logger,
		onChange: onChange,
		workspace: models.Workspace{
			ThinkingRuns: map[string][]models.ThinkingRun{},
		},
	}
}

// State returns a snapshot of the current stream state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Workspace returns the cached workspace snapshot.
func (s *Session) Workspace() models.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspace
}

// LoadWorkspace replaces the cached snapshot from the server.
func (s *Session) LoadWorkspace(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/workspace", nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("load workspace: unexpected status %d", resp.StatusCode)
	}

	var workspace models.Workspace
	if err := json.NewDecoder(resp.Body).Decode(&workspace); err != nil {
		return fmt.Errorf("decode workspace: %w", err)
	}
	if workspace.ThinkingRuns == nil {
		workspace.ThinkingRuns = map[string][]models.ThinkingRun{}
	}

	s.mu.Lock()
	s.workspace = workspace
	s.mu.Unlock()
	return nil
}

// SendChat runs one chat call and consumes its event stream until a
// terminal event. Any stream still in flight is aborted first. The
// returned conversation id comes from the done event; cancellation
// returns ctx's error.
func (s *Session) SendChat(ctx context.Context, request chat.Request) (string, error) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		// Single-flight: the previous stream dies before this one starts.
		s.cancel()
	}
	s.generation++
	generation := s.generation
	s.cancel = cancel
	s.state = State{IsStreaming: true}
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		// A superseded call tears down only its own context; the session
		// fields belong to whichever call started last.
		if s.generation == generation {
			s.cancel = nil
			s.state.IsStreaming = false
		}
		s.mu.Unlock()
	}()

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("send chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("send chat: status %d: %s", resp.StatusCode, payload)
	}

	return s.consume(ctx, resp.Body)
}

// Stop aborts the in-flight stream, if any.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Session) consume(ctx context.Context, body io.Reader) (string, error) {
	decoder := NewDecoder(body)
	conversationID := ""

	for {
		event, err := decoder.Next()
		if err != nil {
			if ctx.Err() != nil {
				return conversationID, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				// Stream ended without a terminal event.
				return conversationID, nil
			}
			return conversationID, fmt.Errorf("read event stream: %w", err)
		}

		terminal := s.apply(event, &conversationID)
		if terminal {
			if event.Name == "error" {
				return conversationID, fmt.Errorf("chat failed: %s", s.State().Err)
			}
			return conversationID, nil
		}
	}
}

// apply folds one event into the session state. It reports whether the
// event terminates the stream.
func (s *Session) apply(event *Event, conversationID *string) bool {
	s.mu.Lock()
	terminal := false

	switch event.Name {
	case "status":
		// Informational only.

	case "thinking_delta":
		s.state.Thinking += decodeDelta(event.Data)

	case "message_delta":
		s.state.Message += decodeDelta(event.Data)

	case "thinking_complete":
		var run models.ThinkingRun
		if err := json.Unmarshal(event.Data, &run); err == nil && run.ID != "" {
			s.reconcileThinkingRun(run)
		}

	case "message_complete":
		var message models.Message
		if err := json.Unmarshal(event.Data, &message); err == nil && message.ID != "" {
			s.reconcileMessage(message)
		}

	case "conversation":
		var conversation models.Conversation
		if err := json.Unmarshal(event.Data, &conversation); err == nil && conversation.ID != "" {
			s.reconcileConversation(conversation)
		}

	case "done":
		var payload struct {
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(event.Data, &payload); err == nil {
			*conversationID = payload.ConversationID
		}
		s.state.IsStreaming = false
		terminal = true

	case "stopped":
		s.state.IsStreaming = false
		terminal = true

	case "error":
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(event.Data, &payload); err == nil {
			s.state.Err = payload.Message
		}
		// IsStreaming stays set until a terminal event; the server
		// closes the stream right after, so treat error as terminal
		// once the message is recorded.
		s.state.IsStreaming = false
		terminal = true
	}

	snapshot := s.state
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
	return terminal
}

// reconcileMessage replaces or appends the message in its conversation
// by id. Callers hold s.mu.
func (s *Session) reconcileMessage(message models.Message) {
	for i := range s.workspace.Conversations {
		conversation := &s.workspace.Conversations[i]
		if conversation.ID != message.ConversationID {
			continue
		}
		for j := range conversation.Messages {
			if conversation.Messages[j].ID == message.ID {
				conversation.Messages[j] = message
				return
			}
		}
		conversation.Messages = append(conversation.Messages, message)
		return
	}
}

// reconcileThinkingRun replaces or appends the run by id. Callers hold
// s.mu.
func (s *Session) reconcileThinkingRun(run models.ThinkingRun) {
	runs := s.workspace.ThinkingRuns[run.ConversationID]
	for i := range runs {
		if runs[i].ID == run.ID {
			runs[i] = run
			return
		}
	}
	s.workspace.ThinkingRuns[run.ConversationID] = append(runs, run)
}

// reconcileConversation replaces or inserts the conversation by id.
// Callers hold s.mu.
func (s *Session) reconcileConversation(conversation models.Conversation) {
	for i := range s.workspace.Conversations {
		if s.workspace.Conversations[i].ID == conversation.ID {
			s.workspace.Conversations[i] = conversation
			return
		}
	}
	s.workspace.Conversations = append(s.workspace.Conversations, conversation)
}

func decodeDelta(data json.RawMessage) string {
	var payload struct {
		Delta string `json:"delta"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Delta
}

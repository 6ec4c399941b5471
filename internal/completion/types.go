package completion

import (
	"fmt"

	"loom/internal/domain/models"
)

// DefaultBaseURL is used when a request carries no endpoint of its own.
const DefaultBaseURL = "https://api.openai.com/v1"

const (
	defaultTemperature = 0.7
	// legacyMaxTokens caps legacy /completions responses, which have no
	// sensible server-side default.
	legacyMaxTokens = 1024
)

// Request describes one completion call.
type Request struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	Messages    []models.ChatMessage
}

// Usage is the upstream token accounting, passed through verbatim.
// Unavailable (nil) in streaming mode.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the normalized outcome of a completion call, identical for
// chat-style and legacy-style endpoints.
type Result struct {
	Content string
	Usage   *Usage
}

// TokenSink receives incremental tokens during a streamed completion.
// A nil sink selects non-streaming mode.
type TokenSink func(delta string)

// EndpointError is a non-2xx upstream response. The captured body
// drives the legacy-endpoint fallback decision.
type EndpointError struct {
	Status int
	Body   string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("completion endpoint returned %d: %s", e.Status, e.Body)
}

// ModelInfo is one entry of the upstream model listing, normalized.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Provider    string `json:"provider"`
}

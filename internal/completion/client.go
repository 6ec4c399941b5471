package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"loom/internal/domain/models"
)

// Client talks to an OpenAI-compatible completion endpoint. It prefers
// the chat/completions shape and falls back to the legacy completions
// shape when the endpoint signals it does not support the primary one.
type Client struct {
	httpClient     *http.Client
	defaultBaseURL string
	logger         *slog.Logger
}

// NewClient creates a completion client. defaultBaseURL may be empty,
// in which case the public default endpoint is used.
func NewClient(defaultBaseURL string, logger *slog.Logger) *Client {
	if defaultBaseURL == "" {
		defaultBaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient:     &http.Client{},
		defaultBaseURL: defaultBaseURL,
		logger:         logger,
	}
}

// attempt is one endpoint shape to try: a path plus the request body
// built for that shape. The fallback policy is an ordered list of
// attempts rather than nested error handling.
type attempt struct {
	path string
	body map[string]interface{}
}

// Complete performs one completion. When sink is non-nil the request is
// streamed and each incremental token is forwarded to the sink in
// emission order; the returned Result then carries the concatenation of
// all forwarded tokens and no usage data.
func (c *Client) Complete(ctx context.Context, req Request, sink TokenSink) (*Result, error) {
	base := c.resolveBaseURL(req.BaseURL)
	streaming := sink != nil

	result, err := c.do(ctx, base, req.APIKey, chatAttempt(req, streaming), sink)
	if err == nil {
		return result, nil
	}
	if !shouldFallback(err) {
		return nil, err
	}

	c.logger.Debug("falling back to legacy completions endpoint",
		"model", req.Model,
		"error", err,
	)
	return c.do(ctx, base, req.APIKey, legacyAttempt(req, streaming), sink)
}

// shouldFallback reports whether a primary-attempt failure indicates a
// chat-incapable endpoint: a 404, or a 400 whose body matches the
// usual "model/endpoint unsupported" wording.
func shouldFallback(err error) bool {
	var endpointErr *EndpointError
	if !errors.As(err, &endpointErr) {
		return false
	}
	if endpointErr.Status == http.StatusNotFound {
		return true
	}
	if endpointErr.Status == http.StatusBadRequest {
		body := strings.ToLower(endpointErr.Body)
		return strings.Contains(body, "does not exist") || strings.Contains(body, "unsupported")
	}
	return false
}

func chatAttempt(req Request, streaming bool) attempt {
	return attempt{
		path: "/chat/completions",
		body: map[string]interface{}{
			"model":       req.Model,
			"temperature": temperature(req.Temperature),
			"messages":    req.Messages,
			"stream":      streaming,
		},
	}
}

func legacyAttempt(req Request, streaming bool) attempt {
	return attempt{
		path: "/completions",
		body: map[string]interface{}{
			"model":       req.Model,
			"temperature": temperature(req.Temperature),
			"prompt":      FlattenMessages(req.Messages),
			"max_tokens":  legacyMaxTokens,
			"stream":      streaming,
		},
	}
}

func temperature(t *float64) float64 {
	if t != nil {
		return *t
	}
	return defaultTemperature
}

// FlattenMessages renders a structured message list as the single
// prompt string the legacy completions endpoint takes: one line per
// message, "ROLE: text", image parts replaced by a literal marker.
func FlattenMessages(messages []models.ChatMessage) string {
	lines := make([]string, 0, len(messages))
	for _, message := range messages {
		var text string
		if message.Content.Parts == nil {
			text = message.Content.Text
		} else {
			segments := make([]string, 0, len(message.Content.Parts))
			for _, part := range message.Content.Parts {
				if part.Type == "image_url" {
					segments = append(segments, "[Image omitted]")
				} else {
					segments = append(segments, part.Text)
				}
			}
			text = strings.Join(segments, " ")
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(message.Role), text))
	}
	return strings.Join(lines, "\n")
}

func (c *Client) do(ctx context.Context, base, apiKey string, a attempt, sink TokenSink) (*Result, error) {
	payload, err := json.Marshal(a.body)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+a.path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// A missing key is allowed for local endpoints.
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &EndpointError{Status: resp.StatusCode, Body: string(body)}
	}

	if sink != nil {
		return readStream(ctx, resp.Body, sink)
	}
	return parseResponse(resp.Body)
}

// choice mirrors the overlapping chat/legacy response shapes.
type choice struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Text  string `json:"text"`
	Delta *struct {
		Content string `json:"content"`
	} `json:"delta"`
}

type apiResponse struct {
	Choices []choice `json:"choices"`
	Usage   *Usage   `json:"usage"`
}

// parseResponse normalizes a non-streaming response from either
// endpoint shape into a Result.
func parseResponse(body io.Reader) (*Result, error) {
	var parsed apiResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}

	var content string
	if len(parsed.Choices) > 0 {
		content = extractContent(parsed.Choices[0])
	}
	return &Result{Content: content, Usage: parsed.Usage}, nil
}

func extractContent(c choice) string {
	if c.Message != nil && c.Message.Content != "" {
		return c.Message.Content
	}
	if c.Text != "" {
		return c.Text
	}
	if c.Delta != nil {
		return c.Delta.Content
	}
	return ""
}

// ListModels fetches the upstream model listing and normalizes it.
func (c *Client) ListModels(ctx context.Context, baseURL, apiKey string) ([]ModelInfo, error) {
	base := c.resolveBaseURL(baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &EndpointError{Status: resp.StatusCode, Body: string(body)}
	}

	var listing struct {
		Data []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
			OwnedBy     string `json:"owned_by"`
			Provider    string `json:"provider"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	infos := make([]ModelInfo, 0, len(listing.Data))
	for _, entry := range listing.Data {
		info := ModelInfo{ID: entry.ID, DisplayName: entry.Name, Provider: entry.OwnedBy}
		if info.DisplayName == "" {
			info.DisplayName = entry.DisplayName
		}
		if info.DisplayName == "" {
			info.DisplayName = entry.ID
		}
		if info.Provider == "" {
			info.Provider = entry.Provider
		}
		if info.Provider == "" {
			info.Provider = "remote"
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// resolveBaseURL picks the effective endpoint and strips a single
// trailing slash.
func (c *Client) resolveBaseURL(baseURL string) string {
	if baseURL == "" {
		baseURL = c.defaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/")
}

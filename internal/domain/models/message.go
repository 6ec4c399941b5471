package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message roles accepted over the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ImageToken replaces image parts when multimodal content is
// canonicalized to plain text for storage.
const ImageToken = "[Image]"

// Message is a persisted conversation message. Content is always the
// canonical plain-text form; image attachments live in Metadata.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Role           string           `json:"role"`
	Content        string           `json:"content"`
	CreatedAt      time.Time        `json:"createdAt"`
	Metadata       *MessageMetadata `json:"metadata"`
}

// MessageMetadata holds attachment info derived from multimodal content
// parts. It is non-nil only when the source content carried at least
// one image part.
type MessageMetadata struct {
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment references an image attached to a message.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// ImagePayload is the OpenAI-compatible image_url object.
type ImagePayload struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ContentPart is one element of structured message content, either a
// text part or an image_url part.
type ContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ImagePayload `json:"image_url,omitempty"`
}

// MessageContent is either a plain string or an ordered sequence of
// content parts, matching the chat/completions message content shape.
// Parts is nil when the content was a plain string.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// TextContent wraps a plain string as message content.
func TextContent(text string) MessageContent {
	return MessageContent{Text: text}
}

// PartsContent wraps structured parts as message content.
func PartsContent(parts []ContentPart) MessageContent {
	return MessageContent{Parts: parts}
}

// UnmarshalJSON accepts either a JSON string or an array of parts.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "\"") {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = MessageContent{Text: text}
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content must be a string or an array of parts: %w", err)
	}
	*c = MessageContent{Parts: parts}
	return nil
}

// MarshalJSON emits the original shape: a string for plain content, an
// array for structured parts.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// PlainText canonicalizes the content to a single string. Image parts
// are replaced by the ImageToken; text parts are joined by newlines.
func (c MessageContent) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}

	segments := make([]string, 0, len(c.Parts))
	for _, part := range c.Parts {
		switch part.Type {
		case "image_url":
			segments = append(segments, ImageToken)
		default:
			segments = append(segments, part.Text)
		}
	}
	return strings.Join(segments, "\n")
}

// Attachments derives attachment records from image parts. Returns nil
// when the content carries no images.
func (c MessageContent) Attachments() []Attachment {
	var attachments []Attachment
	for _, part := range c.Parts {
		if part.Type == "image_url" && part.ImageURL != nil {
			attachments = append(attachments, Attachment{URL: part.ImageURL.URL})
		}
	}
	return attachments
}

// ChatMessage is one entry of an incoming request's message history.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

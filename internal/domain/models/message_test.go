package models

import (
	"encoding/json"
	"testing"
)

func TestMessageContent_UnmarshalStringOrParts(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantPlain string
	}{
		{
			name:      "plain string",
			payload:   `{"role":"user","content":"just text"}`,
			wantPlain: "just text",
		},
		{
			name: "structured parts",
			payload: `{"role":"user","content":[
				{"type":"text","text":"look at this"},
				{"type":"image_url","image_url":{"url":"http://x/a.png"}}
			]}`,
			wantPlain: "look at this\n" + ImageToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var message ChatMessage
			if err := json.Unmarshal([]byte(tt.payload), &message); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := message.Content.PlainText(); got != tt.wantPlain {
				t.Errorf("PlainText = %q, want %q", got, tt.wantPlain)
			}
		})
	}
}

func TestMessageContent_Attachments(t *testing.T) {
	content := MessageContent{Parts: []ContentPart{
		{Type: "text", Text: "two images"},
		{Type: "image_url", ImageURL: &ImagePayload{URL: "http://x/1.png"}},
		{Type: "image_url", ImageURL: &ImagePayload{URL: "http://x/2.png"}},
	}}

	attachments := content.Attachments()
	if len(attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(attachments))
	}
	if attachments[0].URL != "http://x/1.png" || attachments[1].URL != "http://x/2.png" {
		t.Errorf("attachments = %+v", attachments)
	}

	if got := TextContent("plain").Attachments(); got != nil {
		t.Errorf("text content attachments = %+v, want nil", got)
	}
}

package sse

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriter_Framing(t *testing.T) {
	recorder := httptest.NewRecorder()

	writer, err := NewWriter(recorder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := recorder.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := recorder.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}

	if err := writer.Send("status", map[string]string{"stage": "starting"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := writer.Send("message_delta", map[string]string{"delta": "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := writer.WriteKeepAlive(); err != nil {
		t.Fatalf("keepalive: %v", err)
	}

	body := recorder.Body.String()
	want := "event: status\ndata: {\"stage\":\"starting\"}\n\n" +
		"event: message_delta\ndata: {\"delta\":\"hi\"}\n\n" +
		": keepalive\n\n"
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestWriter_EventsSeparatedByBlankLine(t *testing.T) {
	recorder := httptest.NewRecorder()
	writer, _ := NewWriter(recorder)

	for i := 0; i < 3; i++ {
		writer.Send("done", map[string]string{})
	}

	blocks := strings.Split(strings.TrimSuffix(recorder.Body.String(), "\n\n"), "\n\n")
	if len(blocks) != 3 {
		t.Errorf("blocks = %d, want 3", len(blocks))
	}
	for _, block := range blocks {
		if !strings.HasPrefix(block, "event: done\ndata: ") {
			t.Errorf("malformed block %q", block)
		}
	}
}

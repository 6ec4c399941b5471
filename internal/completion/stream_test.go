package completion

import (
	"context"
	"io"
	"strings"
	"testing"
)

// segmentReader yields the stream in caller-chosen byte segments, so
// tests can probe every chunk boundary.
type segmentReader struct {
	segments []string
	index    int
}

func (r *segmentReader) Read(p []byte) (int, error) {
	if r.index >= len(r.segments) {
		return 0, io.EOF
	}
	n := copy(p, r.segments[r.index])
	r.index++
	return n, nil
}

const sampleStream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"lo \"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\"world\"}}]}\n\n" +
	"data: [DONE]\n\n"

func TestReadStream_ChunkBoundaryInvariance(t *testing.T) {
	// Split the identical logical stream at every possible byte
	// boundary; the accumulated content must never change.
	for split := 1; split < len(sampleStream); split++ {
		reader := &segmentReader{segments: []string{
			sampleStream[:split],
			sampleStream[split:],
		}}

		var tokens []string
		result, err := readStream(context.Background(), reader, func(token string) {
			tokens = append(tokens, token)
		})
		if err != nil {
			t.Fatalf("split %d: unexpected error: %v", split, err)
		}
		if result.Content != "Hello world" {
			t.Fatalf("split %d: content = %q, want %q", split, result.Content, "Hello world")
		}
		if joined := strings.Join(tokens, ""); joined != result.Content {
			t.Fatalf("split %d: token concatenation %q != content %q", split, joined, result.Content)
		}
	}
}

func TestReadStream_LegacyTextField(t *testing.T) {
	stream := "data: {\"choices\":[{\"text\":\"plain \"}]}\n\n" +
		"data: {\"choices\":[{\"text\":\"tokens\"}]}\n\n" +
		"data: [DONE]\n\n"

	result, err := readStream(context.Background(), strings.NewReader(stream), func(string) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "plain tokens" {
		t.Errorf("content = %q, want %q", result.Content, "plain tokens")
	}
}

func TestReadStream_MalformedChunkSwallowed(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n" +
		"data: [DONE]\n\n"

	result, err := readStream(context.Background(), strings.NewReader(stream), func(string) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "ab" {
		t.Errorf("content = %q, want %q", result.Content, "ab")
	}
}

func TestReadStream_EmptyTokensSkipped(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n" +
		"data: [DONE]\n\n"

	calls := 0
	result, err := readStream(context.Background(), strings.NewReader(stream), func(string) {
		calls++
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("sink calls = %d, want 1", calls)
	}
	if result.Content != "x" {
		t.Errorf("content = %q, want %q", result.Content, "x")
	}
}

func TestReadStream_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := readStream(ctx, strings.NewReader(sampleStream), func(string) {})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

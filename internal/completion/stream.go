package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// chunkSeparator delimits SSE protocol chunks.
var chunkSeparator = []byte("\n\n")

// readStream consumes an SSE response body, forwarding each extracted
// token to the sink as soon as its chunk is complete. Emission is
// per-chunk, preserving token order; malformed chunks are dropped
// rather than aborting an otherwise healthy stream.
func readStream(ctx context.Context, body io.Reader, sink TokenSink) (*Result, error) {
	var (
		buffer  []byte
		content strings.Builder
		read    = make([]byte, 4096)
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		n, err := body.Read(read)
		if n > 0 {
			buffer = append(buffer, read[:n]...)
			buffer = drainChunks(buffer, &content, sink)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			// A cancelled context surfaces as a read error on the
			// closed body; report the cancellation, not the IO error.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
	}

	// Usage is not reported by streaming responses.
	return &Result{Content: content.String()}, nil
}

// drainChunks processes every complete chunk in the buffer and returns
// the unconsumed remainder.
func drainChunks(buffer []byte, content *strings.Builder, sink TokenSink) []byte {
	for {
		idx := bytes.Index(buffer, chunkSeparator)
		if idx == -1 {
			return buffer
		}
		processChunk(string(buffer[:idx]), content, sink)
		buffer = buffer[idx+len(chunkSeparator):]
	}
}

// processChunk extracts the incremental token from one protocol chunk
// and forwards it. A [DONE] payload ends processing of the chunk.
func processChunk(chunk string, content *strings.Builder, sink TokenSink) {
	var dataLines []string
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return
		}
		dataLines = append(dataLines, payload)
	}
	if len(dataLines) == 0 {
		return
	}

	var parsed apiResponse
	if err := json.Unmarshal([]byte(strings.Join(dataLines, "")), &parsed); err != nil {
		// Malformed chunk: a dropped token beats a dead stream.
		return
	}
	if len(parsed.Choices) == 0 {
		return
	}

	token := streamToken(parsed.Choices[0])
	if token == "" {
		return
	}
	content.WriteString(token)
	sink(token)
}

// streamToken prefers the chat-style delta, then the legacy text field.
func streamToken(c choice) string {
	if c.Delta != nil && c.Delta.Content != "" {
		return c.Delta.Content
	}
	return c.Text
}

package chatstream

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// Event is one decoded server-sent event. Data always holds valid
// JSON; blocks with no data line or an unparseable payload decode to
// an empty object so consumers never see malformed JSON.
type Event struct {
	Name string
	Data json.RawMessage
}

var emptyObject = json.RawMessage("{}")

// Decoder incrementally parses a server-sent-event byte stream. Bytes
// are buffered until a blank-line boundary completes an event block.
type Decoder struct {
	r    io.Reader
	buf  []byte
	page [4096]byte
	err  error
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
// Trailing bytes with no terminating boundary are discarded, matching
// how browsers treat truncated streams.
func (d *Decoder) Next() (*Event, error) {
	for {
		if event := d.takeEvent(); event != nil {
			return event, nil
		}
		if d.err != nil {
			return nil, d.err
		}

		n, err := d.r.Read(d.page[:])
		if n > 0 {
			d.buf = append(d.buf, d.page[:n]...)
		}
		if err != nil {
			d.err = err
		}
	}
}

// takeEvent pops one complete block off the buffer, skipping blocks
// that contain only comments.
func (d *Decoder) takeEvent() *Event {
	for {
		idx := bytes.Index(d.buf, []byte("\n\n"))
		if idx < 0 {
			return nil
		}

		block := string(d.buf[:idx])
		d.buf = d.buf[idx+2:]

		if event := parseBlock(block); event != nil {
			return event
		}
	}
}

// parseBlock decodes one event block. The event name defaults to
// "message" when no event line is present.
func parseBlock(block string) *Event {
	name := "message"
	var dataLines []string
	sawField := false

	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, ":"):
			// Comment line; keep-alives arrive this way.
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			sawField = true
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			sawField = true
		}
	}

	if !sawField {
		return nil
	}

	data := emptyObject
	if len(dataLines) > 0 {
		joined := strings.Join(dataLines, "\n")
		if json.Valid([]byte(joined)) {
			data = json.RawMessage(joined)
		}
	}
	return &Event{Name: name, Data: data}
}

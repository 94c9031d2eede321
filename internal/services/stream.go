package services

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/tmaxmax/go-sse"

	"github.com/sohal70760/islamicai-webui/internal/models"
)

// readState tracks the decode loop so that the terminal paths are explicit:
// a stream ends in exactly one of stateDone or stateErrored, and the error
// path yields exactly once.
type readState int

const (
	stateReading readState = iota
	stateDone
	stateErrored
)

type streamChunk struct {
	Type     string          `json:"type"`
	Content  string          `json:"content"`
	Delta    string          `json:"delta"`
	Text     string          `json:"text"`
	Data     json.RawMessage `json:"data"`
	Metadata json.RawMessage `json:"metadata"`
}

// decodeStream turns a raw event-stream body into typed stream events. It
// owns the body and closes it when iteration stops. Frames are decoded by
// sse.Read; each payload is either the terminal sentinel, a JSON chunk
// routed by its type discriminator, or, when JSON parsing fails, a literal
// content delta.
func decodeStream(body io.ReadCloser) iter.Seq2[models.StreamEvent, error] {
	return func(yield func(models.StreamEvent, error) bool) {
		defer body.Close()

		state := stateReading
		for ev, err := range sse.Read(body, nil) {
			if state != stateReading {
				break
			}
			if err != nil {
				state = stateErrored
				yield(models.StreamEvent{}, fmt.Errorf("error reading stream: %w", err))
				break
			}

			event, terminal := parsePayload(ev.Data)
			if terminal {
				state = stateDone
				break
			}
			if event.Kind == models.EventContent && event.Content == "" {
				continue
			}
			if !yield(event, nil) {
				state = stateDone
				break
			}
		}
	}
}

// parsePayload decodes a single data payload. The second return value is
// true for the terminal sentinel, which must stop decoding without being
// emitted as content.
func parsePayload(data string) (models.StreamEvent, bool) {
	data = strings.TrimSpace(data)
	if data == "[DONE]" || data == "DONE" {
		return models.StreamEvent{}, true
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Non-JSON backends stream bare text; treat the payload as a
		// literal delta.
		return models.StreamEvent{Kind: models.EventContent, Content: data}, false
	}

	kind := models.EventKindFromType(chunk.Type)
	switch kind {
	case models.EventContent:
		return models.StreamEvent{Kind: kind, Content: chunk.delta()}, false
	case models.EventError:
		return models.StreamEvent{Kind: kind, Content: chunk.Content, Data: chunk.Data}, false
	default:
		return models.StreamEvent{Kind: kind, Data: chunk.Data, Metadata: chunk.Metadata}, false
	}
}

// delta returns the content delta regardless of which field the backend
// used to carry it.
func (c streamChunk) delta() string {
	for _, s := range []string{c.Delta, c.Content, c.Text} {
		if s != "" {
			return s
		}
	}
	return ""
}

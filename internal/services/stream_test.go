package services

import (
	"io"
	"strings"
	"testing"

	"github.com/sohal70760/islamicai-webui/internal/models"
)

func collectEvents(t *testing.T, body string) ([]models.StreamEvent, error) {
	t.Helper()

	var events []models.StreamEvent
	var streamErr error
	for ev, err := range decodeStream(io.NopCloser(strings.NewReader(body))) {
		if err != nil {
			streamErr = err
			continue
		}
		events = append(events, ev)
	}
	return events, streamErr
}

func TestDecodeStreamContent(t *testing.T) {
	body := "data: {\"type\":\"content\",\"delta\":\"Hel\"}\n\n" +
		"data: {\"type\":\"content\",\"content\":\"lo, \"}\n\n" +
		"data: {\"type\":\"content\",\"text\":\"world\"}\n\n" +
		"data: [DONE]\n\n"

	events, err := collectEvents(t, body)
	if err != nil {
		t.Fatalf("decodeStream() error = %v", err)
	}

	var got string
	for _, ev := range events {
		if ev.Kind != models.EventContent {
			t.Errorf("event kind = %v, want content", ev.Kind)
		}
		got += ev.Content
	}
	if got != "Hello, world" {
		t.Errorf("assembled content = %q, want %q", got, "Hello, world")
	}
}

func TestDecodeStreamStopsAtSentinel(t *testing.T) {
	tests := []struct {
		name     string
		sentinel string
	}{
		{name: "Bracketed sentinel", sentinel: "[DONE]"},
		{name: "Bare sentinel", sentinel: "DONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := "data: {\"type\":\"content\",\"delta\":\"before\"}\n\n" +
				"data: " + tt.sentinel + "\n\n" +
				"data: {\"type\":\"content\",\"delta\":\"after\"}\n\n"

			events, err := collectEvents(t, body)
			if err != nil {
				t.Fatalf("decodeStream() error = %v", err)
			}
			if len(events) != 1 || events[0].Content != "before" {
				t.Errorf("events after sentinel = %+v, want only %q", events, "before")
			}
		})
	}
}

func TestDecodeStreamLiteralFallback(t *testing.T) {
	body := "data: plain text chunk\n\ndata: [DONE]\n\n"

	events, err := collectEvents(t, body)
	if err != nil {
		t.Fatalf("decodeStream() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != models.EventContent || events[0].Content != "plain text chunk" {
		t.Errorf("event = %+v, want literal content delta", events[0])
	}
}

func TestDecodeStreamSideChannel(t *testing.T) {
	body := "data: {\"type\":\"start\"}\n\n" +
		"data: {\"type\":\"news_search_start\",\"data\":{\"query\":\"q\"}}\n\n" +
		"data: {\"type\":\"analytics\",\"data\":{\"count\":1}}\n\n" +
		"data: {\"type\":\"content\",\"delta\":\"hi\"}\n\n" +
		"data: {\"type\":\"mystery\"}\n\n" +
		"data: {\"type\":\"end\"}\n\n" +
		"data: [DONE]\n\n"

	events, err := collectEvents(t, body)
	if err != nil {
		t.Fatalf("decodeStream() error = %v", err)
	}

	wantKinds := []models.EventKind{
		models.EventStart,
		models.EventNewsSearchStart,
		models.EventAnalytics,
		models.EventContent,
		models.EventUnknown,
		models.EventEnd,
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d", len(events), len(wantKinds))
	}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Errorf("event[%d] kind = %v, want %v", i, events[i].Kind, want)
		}
	}
	if string(events[2].Data) != `{"count":1}` {
		t.Errorf("analytics data = %s, want payload carried through", events[2].Data)
	}
}

func TestDecodeStreamSkipsEmptyDeltas(t *testing.T) {
	body := "data: {\"type\":\"content\",\"delta\":\"\"}\n\n" +
		"data: {\"type\":\"content\",\"delta\":\"x\"}\n\n" +
		"data: [DONE]\n\n"

	events, err := collectEvents(t, body)
	if err != nil {
		t.Fatalf("decodeStream() error = %v", err)
	}
	if len(events) != 1 || events[0].Content != "x" {
		t.Errorf("events = %+v, want empty delta skipped", events)
	}
}

func TestDecodeStreamErrorEvent(t *testing.T) {
	body := "data: {\"type\":\"error\",\"content\":\"model overloaded\"}\n\n" +
		"data: [DONE]\n\n"

	events, err := collectEvents(t, body)
	if err != nil {
		t.Fatalf("decodeStream() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != models.EventError || events[0].Content != "model overloaded" {
		t.Errorf("event = %+v, want error event with message", events[0])
	}
}

func TestDecodeStreamTruncatedBody(t *testing.T) {
	// No trailing blank line and no sentinel: sse.Read reports an
	// unexpected EOF, which must surface exactly once.
	body := "data: {\"type\":\"content\",\"delta\":\"partial\"}\n\ndata: {\"type\":\"cont"

	events, err := collectEvents(t, body)
	if err == nil {
		t.Fatal("decodeStream() expected error for truncated body")
	}
	if len(events) != 1 || events[0].Content != "partial" {
		t.Errorf("events = %+v, want the complete frame before the error", events)
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sohal70760/islamicai-webui/internal/models"
)

func TestSendMessageDirectReply(t *testing.T) {
	var gotReq ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reply":      "Assalamu alaikum!",
			"session_id": gotReq.SessionID,
			"location_info": map[string]any{
				"city": "Dhaka",
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	reply, err := client.SendMessage(context.Background(), ChatRequest{
		Message:          "salam",
		SessionID:        "islamicai-session-1-abcd1234",
		StreamingOptions: DefaultStreamingOptions(),
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if reply.Stream != nil {
		t.Error("SendMessage() returned a stream for a JSON response")
	}
	if reply.Direct == nil {
		t.Fatal("SendMessage() returned no direct reply")
	}
	if got := reply.Direct.Text(); got != "Assalamu alaikum!" {
		t.Errorf("Text() = %q, want %q", got, "Assalamu alaikum!")
	}
	if reply.Direct.LocationInfo == nil || reply.Direct.LocationInfo.City != "Dhaka" {
		t.Errorf("LocationInfo = %+v, want city Dhaka", reply.Direct.LocationInfo)
	}
	if gotReq.Message != "salam" {
		t.Errorf("request message = %q, want %q", gotReq.Message, "salam")
	}
	if !gotReq.StreamingOptions.EnableStreaming {
		t.Error("request streaming_options not carried through")
	}
}

func TestSendMessageStreamedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		_, _ = w.Write([]byte("data: {\"type\":\"content\",\"delta\":\"Bismillah\"}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	reply, err := client.SendMessage(context.Background(), ChatRequest{
		Message:          "start",
		StreamingOptions: DefaultStreamingOptions(),
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if reply.Direct != nil {
		t.Error("SendMessage() returned a direct reply for an event stream")
	}
	if reply.Stream == nil {
		t.Fatal("SendMessage() returned no stream")
	}

	var got string
	for ev, err := range reply.Stream {
		if err != nil {
			t.Fatalf("stream error = %v", err)
		}
		if ev.Kind == models.EventContent {
			got += ev.Content
		}
	}
	if got != "Bismillah" {
		t.Errorf("streamed content = %q, want %q", got, "Bismillah")
	}
}

func TestSendMessageHTTPError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "JSON error body",
			status:      http.StatusTooManyRequests,
			body:        `{"error":"rate limit exceeded"}`,
			wantMessage: "rate limit exceeded",
		},
		{
			name:        "Plain text body",
			status:      http.StatusInternalServerError,
			body:        "internal failure",
			wantMessage: "internal failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, nil)
			_, err := client.SendMessage(context.Background(), ChatRequest{Message: "x"})
			if err == nil {
				t.Fatal("SendMessage() expected error")
			}

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("error = %v, want *HTTPError", err)
			}
			if httpErr.Status != tt.status {
				t.Errorf("status = %d, want %d", httpErr.Status, tt.status)
			}
			if httpErr.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", httpErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestSendMessageNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.SendMessage(context.Background(), ChatRequest{Message: "x"})
	if err == nil {
		t.Fatal("SendMessage() expected error for unreachable backend")
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		t.Errorf("error = %v, want transport error, not *HTTPError", err)
	}
}

func TestSendMessageCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(srv.URL, nil)
	_, err := client.SendMessage(ctx, ChatRequest{Message: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus string
	}{
		{name: "JSON status", body: `{"status":"healthy"}`, wantStatus: "healthy"},
		{name: "Unparseable body", body: "OK", wantStatus: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("path = %s, want /health", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, nil)
			health, err := client.CheckHealth(context.Background())
			if err != nil {
				t.Fatalf("CheckHealth() error = %v", err)
			}
			if health.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", health.Status, tt.wantStatus)
			}
		})
	}
}

func TestCheckHealthDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	if _, err := client.CheckHealth(context.Background()); err == nil {
		t.Fatal("CheckHealth() expected error for unhealthy backend")
	}
}

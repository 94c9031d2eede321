package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sohal70760/islamicai-webui/internal/models"
)

// Client talks to the remote IslamicAI chat backend. A single POST either
// returns a complete JSON reply or an event stream of incremental deltas;
// the caller distinguishes the two through the Reply it gets back.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger,
	}
}

// StreamingOptions mirrors the backend's streaming_options request field.
type StreamingOptions struct {
	EnableStreaming bool `json:"enableStreaming"`
	ChunkSize       int  `json:"chunkSize,omitempty"`
	Delay           int  `json:"delay,omitempty"`
	IncludeMetadata bool `json:"includeMetadata,omitempty"`
}

// DefaultStreamingOptions returns the streaming parameters the backend
// expects by default.
func DefaultStreamingOptions() StreamingOptions {
	return StreamingOptions{
		EnableStreaming: true,
		ChunkSize:       50,
		Delay:           30,
		IncludeMetadata: true,
	}
}

// AdvancedFeatures is the backend-defined passthrough bundle toggling
// learning, news integration, and memory optimization.
type AdvancedFeatures struct {
	EnableLearning           bool   `json:"enableLearning"`
	EnableNewsIntegration    bool   `json:"enableNewsIntegration"`
	EnableMemoryOptimization bool   `json:"enableMemoryOptimization"`
	IntelligenceLevel        string `json:"intelligenceLevel,omitempty"`
	AdaptiveResponse         bool   `json:"adaptiveResponse,omitempty"`
}

// DefaultAdvancedFeatures enables the full feature set.
func DefaultAdvancedFeatures() AdvancedFeatures {
	return AdvancedFeatures{
		EnableLearning:           true,
		EnableNewsIntegration:    true,
		EnableMemoryOptimization: true,
		IntelligenceLevel:        "maximum",
		AdaptiveResponse:         true,
	}
}

// ChatRequest is the JSON body of a chat POST.
type ChatRequest struct {
	Message          string               `json:"message"`
	SessionID        string               `json:"session_id"`
	LanguageInfo     *models.LanguageInfo `json:"language_info,omitempty"`
	StreamingOptions StreamingOptions     `json:"streaming_options"`
	AdvancedFeatures *AdvancedFeatures    `json:"advanced_features,omitempty"`
	ManualIP         string               `json:"manual_ip,omitempty"`
}

// LocationInfo is optional side-channel metadata on direct replies.
type LocationInfo struct {
	City      string `json:"city,omitempty"`
	Region    string `json:"region,omitempty"`
	Country   string `json:"country,omitempty"`
	Source    string `json:"source,omitempty"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// DirectReply is a complete, non-streamed backend reply.
type DirectReply struct {
	Reply            string          `json:"reply"`
	Response         string          `json:"response"`
	Message          string          `json:"message"`
	SessionID        string          `json:"session_id"`
	Analytics        json.RawMessage `json:"analytics,omitempty"`
	LearningInsights json.RawMessage `json:"learning_insights,omitempty"`
	LocationInfo     *LocationInfo   `json:"location_info,omitempty"`
}

// Text returns the reply text regardless of which field the backend used.
func (d DirectReply) Text() string {
	for _, s := range []string{d.Reply, d.Response, d.Message} {
		if s != "" {
			return s
		}
	}
	return "No response received"
}

// Reply is the outcome of a chat POST: exactly one of Direct or Stream is
// set, depending on the response content type.
type Reply struct {
	Direct *DirectReply
	Stream iter.Seq2[models.StreamEvent, error]
}

// HTTPError is a non-2xx backend response with its best-effort parsed
// error body.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// SendMessage POSTs a chat request and dispatches on the response shape.
// An event-stream content type yields Reply.Stream, which owns the response
// body and closes it when the iterator finishes; anything else is parsed as
// a direct JSON reply. Context cancellation is returned as-is so callers can
// tell a self-inflicted abort from a genuine transport failure.
func (c *Client) SendMessage(ctx context.Context, chatReq ChatRequest) (Reply, error) {
	jsonBody, err := json.Marshal(chatReq)
	if err != nil {
		return Reply{}, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat", bytes.NewBuffer(jsonBody))
	if err != nil {
		return Reply{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Sending chat message",
		slog.String("sessionID", chatReq.SessionID),
		slog.Bool("streaming", chatReq.StreamingOptions.EnableStreaming))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		return Reply{}, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		return Reply{}, readHTTPError(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/event-stream") {
		return Reply{Stream: decodeStream(resp.Body)}, nil
	}

	defer resp.Body.Close()
	var direct DirectReply
	if err := json.NewDecoder(resp.Body).Decode(&direct); err != nil {
		return Reply{}, fmt.Errorf("error unmarshaling response: %w", err)
	}
	return Reply{Direct: &direct}, nil
}

// HealthStatus is the backend's health endpoint payload.
type HealthStatus struct {
	Status string `json:"status"`
}

// CheckHealth probes the backend's health endpoint.
func (c *Client) CheckHealth(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, readHTTPError(resp)
	}

	var status HealthStatus
	// Some deployments answer with a bare string; an unparseable body still
	// counts as healthy.
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{Status: "ok"}, nil
	}
	return status, nil
}

func readHTTPError(resp *http.Response) *HTTPError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return &HTTPError{Status: resp.StatusCode}
	}

	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return &HTTPError{Status: resp.StatusCode, Message: parsed.Error}
	}
	return &HTTPError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmaxmax/go-sse"

	islamicaiwebui "github.com/sohal70760/islamicai-webui"
	"github.com/sohal70760/islamicai-webui/internal/chat"
	"github.com/sohal70760/islamicai-webui/internal/models"
)

const errLoggerKey = "err"

// Conversation is the controller surface the web handlers drive.
type Conversation interface {
	Messages() []models.Message
	SessionID() string
	Title() string
	Sending() bool
	Sessions() []models.SessionMeta

	Submit(text string, opts chat.SendOptions)
	Regenerate(index int)
	StartEdit(index int)
	CancelEdit()
	SaveEdit(index int, text string)

	NewSession()
	SwitchToSession(id string) error
	DeleteSession(id string) error
}

// SSE event types for real-time updates.
var (
	messageSSEType  = sse.Type("message")
	messagesSSEType = sse.Type("messages")
	sessionsSSEType = sse.Type("sessions")
	settledSSEType  = sse.Type("settled")
)

const sessionsSSETopic = "sessions"

// Main wires the conversation controller to the browser: it renders the
// chat templates and pushes incremental updates over server-sent events. It
// implements chat.Notifier.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  markdownRenderer

	conv   Conversation
	logger *slog.Logger
}

// NewMain creates the handler set around a conversation controller. The
// SSE server subscribes every client to the default topic plus the session
// index topic.
func NewMain(conv Conversation, logger *slog.Logger) (*Main, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.ParseFS(
		islamicaiwebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return nil, err
	}

	return &Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, sessionsSSETopic},
				}, true
			},
		},
		templates: tmpl,
		markdown:  newMarkdown(),
		conv:      conv,
		logger:    logger,
	}, nil
}

// HandleSSE serves the event stream connection.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown broadcasts a close message and terminates the SSE server.
func (m *Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	e.AppendData("bye")
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// MessageUpdated publishes an in-place message change.
func (m *Main) MessageUpdated(msg models.Message) {
	payload, err := json.Marshal(messageView{
		ID:        msg.ID,
		IsUser:    msg.IsUser,
		Streaming: msg.Streaming,
		Content:   msg.Content,
		HTML:      m.renderContent(msg),
	})
	if err != nil {
		m.logger.Error("Failed to marshal message update", slog.String(errLoggerKey, err.Error()))
		return
	}

	e := &sse.Message{Type: messageSSEType}
	e.AppendData(string(payload))
	if err := m.sseSrv.Publish(e); err != nil {
		m.logger.Error("Failed to publish message update", slog.String(errLoggerKey, err.Error()))
	}
}

// ConversationChanged publishes the full rendered message list.
func (m *Main) ConversationChanged() {
	html, err := m.renderChatbox()
	if err != nil {
		m.logger.Error("Failed to render chatbox", slog.String(errLoggerKey, err.Error()))
		return
	}

	e := &sse.Message{Type: messagesSSEType}
	e.AppendData(html)
	if err := m.sseSrv.Publish(e); err != nil {
		m.logger.Error("Failed to publish messages", slog.String(errLoggerKey, err.Error()))
	}
}

// SessionsChanged publishes the rendered session list to the sessions topic.
func (m *Main) SessionsChanged() {
	html, err := m.renderSessionList()
	if err != nil {
		m.logger.Error("Failed to render session list", slog.String(errLoggerKey, err.Error()))
		return
	}

	e := &sse.Message{Type: sessionsSSEType}
	e.AppendData(html)
	if err := m.sseSrv.Publish(e, sessionsSSETopic); err != nil {
		m.logger.Error("Failed to publish sessions", slog.String(errLoggerKey, err.Error()))
	}
}

// ExchangeSettled tells clients to drop the typing indicator.
func (m *Main) ExchangeSettled() {
	e := &sse.Message{Type: settledSSEType}
	e.AppendData("done")
	if err := m.sseSrv.Publish(e); err != nil {
		m.logger.Error("Failed to publish settled event", slog.String(errLoggerKey, err.Error()))
	}
}

type messageView struct {
	ID        int64         `json:"id"`
	IsUser    bool          `json:"isUser"`
	Streaming bool          `json:"streaming"`
	Content   string        `json:"content"`
	HTML      template.HTML `json:"html"`

	// Index is the message's position in the conversation, used by the
	// edit and regenerate buttons. Only meaningful in full renders; in-place
	// updates leave the rendered buttons untouched.
	Index int `json:"-"`
}

type sessionView struct {
	ID      string
	Title   string
	Preview string
	Active  bool
}

func (m *Main) messageViews() []messageView {
	messages := m.conv.Messages()
	views := make([]messageView, len(messages))
	for i, msg := range messages {
		views[i] = messageView{
			ID:        msg.ID,
			IsUser:    msg.IsUser,
			Streaming: msg.Streaming,
			Content:   msg.Content,
			HTML:      m.renderContent(msg),
			Index:     i,
		}
	}
	return views
}

func (m *Main) sessionViews() []sessionView {
	active := m.conv.SessionID()
	sessions := m.conv.Sessions()
	views := make([]sessionView, len(sessions))
	for i, s := range sessions {
		views[i] = sessionView{
			ID:      s.ID,
			Title:   s.Title,
			Preview: s.Preview,
			Active:  s.ID == active,
		}
	}
	return views
}

// renderContent formats a message for display. Assistant text goes through
// the markdown formatter; user text is rendered as escaped plain text.
func (m *Main) renderContent(msg models.Message) template.HTML {
	if msg.IsUser {
		return template.HTML(template.HTMLEscapeString(msg.Content))
	}
	return m.markdown.Render(msg.Content)
}

func (m *Main) renderChatbox() (string, error) {
	var sb strings.Builder
	data := chatboxData{
		CurrentSessionID: m.conv.SessionID(),
		Sending:          m.conv.Sending(),
		Messages:         m.messageViews(),
	}
	if err := m.templates.ExecuteTemplate(&sb, "chatbox", data); err != nil {
		return "", fmt.Errorf("failed to execute chatbox template: %w", err)
	}
	return sb.String(), nil
}

func (m *Main) renderSessionList() (string, error) {
	var sb strings.Builder
	for _, s := range m.sessionViews() {
		if err := m.templates.ExecuteTemplate(&sb, "session_item", s); err != nil {
			return "", fmt.Errorf("failed to execute session_item template: %w", err)
		}
	}
	return sb.String(), nil
}

type chatboxData struct {
	CurrentSessionID string
	Sending          bool
	Messages         []messageView
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the placeholder title a session carries until its first
// qualifying user message.
const DefaultTitle = "New Chat"

// Message represents a single conversation turn. IDs are assigned in
// insertion order and are unique within their session, which makes them a
// stable reference for in-place streaming updates. Streaming is transient
// state and is never persisted.
type Message struct {
	ID      int64  `json:"id"`
	Content string `json:"message"`
	IsUser  bool   `json:"isUser"`

	Streaming bool `json:"-"`
}

// Session is one persisted conversation: an ordered message sequence plus
// metadata. UpdatedAt is a millisecond epoch timestamp of the last mutation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt int64     `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// SessionMeta is the index entry derived from a Session. The session index
// is a bounded, most-recently-updated-first list of these.
type SessionMeta struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Preview   string `json:"preview,omitempty"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Meta derives the index entry for a session.
func (s Session) Meta() SessionMeta {
	return SessionMeta{
		ID:        s.ID,
		Title:     s.Title,
		Preview:   PreviewFromMessages(s.Messages),
		UpdatedAt: s.UpdatedAt,
	}
}

// NewSessionID generates a fresh client-side session identifier from the
// current time plus a slice of random entropy.
func NewSessionID() string {
	return fmt.Sprintf("islamicai-session-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// TitleFromMessage derives a session title from a user message: whitespace
// collapsed, truncated to 48 runes with an ellipsis.
func TitleFromMessage(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return DefaultTitle
	}
	runes := []rune(cleaned)
	if len(runes) > 48 {
		return string(runes[:45]) + "…"
	}
	return cleaned
}

// PreviewFromMessages builds a short preview string from the first user
// message in the sequence.
func PreviewFromMessages(messages []Message) string {
	for _, m := range messages {
		if !m.IsUser {
			continue
		}
		preview := strings.TrimSpace(m.Content)
		runes := []rune(preview)
		if len(runes) > 50 {
			return string(runes[:47]) + "..."
		}
		return preview
	}
	return "No messages yet"
}

package models

import (
	"strings"
	"testing"
)

func TestTitleFromMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "Short message",
			text: "What is sabr?",
			want: "What is sabr?",
		},
		{
			name: "Whitespace collapsed",
			text: "  What \n is\t sabr?  ",
			want: "What is sabr?",
		},
		{
			name: "Whitespace only",
			text: "   \n\t ",
			want: DefaultTitle,
		},
		{
			name: "Exactly at the limit",
			text: strings.Repeat("a", 48),
			want: strings.Repeat("a", 48),
		},
		{
			name: "Over the limit",
			text: strings.Repeat("a", 49),
			want: strings.Repeat("a", 45) + "…",
		},
		{
			name: "Multibyte runes counted as one",
			text: strings.Repeat("ا", 49),
			want: strings.Repeat("ا", 45) + "…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromMessage(tt.text); got != tt.want {
				t.Errorf("TitleFromMessage(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestPreviewFromMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		want     string
	}{
		{
			name: "First user message",
			messages: []Message{
				{Content: "greeting", IsUser: false},
				{Content: "first question", IsUser: true},
				{Content: "second question", IsUser: true},
			},
			want: "first question",
		},
		{
			name: "No user messages",
			messages: []Message{
				{Content: "greeting", IsUser: false},
			},
			want: "No messages yet",
		},
		{
			name:     "Empty sequence",
			messages: nil,
			want:     "No messages yet",
		},
		{
			name: "Long message truncated",
			messages: []Message{
				{Content: strings.Repeat("b", 60), IsUser: true},
			},
			want: strings.Repeat("b", 47) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreviewFromMessages(tt.messages); got != tt.want {
				t.Errorf("PreviewFromMessages() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if !strings.HasPrefix(id, "islamicai-session-") {
		t.Errorf("NewSessionID() = %q, want islamicai-session- prefix", id)
	}
	if id == NewSessionID() {
		t.Error("NewSessionID() returned the same id twice")
	}
}

func TestSessionMeta(t *testing.T) {
	session := Session{
		ID:        "s1",
		Title:     "Title",
		UpdatedAt: 42,
		Messages: []Message{
			{Content: "greeting", IsUser: false},
			{Content: "hello there", IsUser: true},
		},
	}

	meta := session.Meta()
	if meta.ID != "s1" || meta.Title != "Title" || meta.UpdatedAt != 42 {
		t.Errorf("Meta() = %+v, want fields carried through", meta)
	}
	if meta.Preview != "hello there" {
		t.Errorf("Meta() preview = %q, want %q", meta.Preview, "hello there")
	}
}

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sohal70760/islamicai-webui/internal/chat"
)

// HandleChats accepts a user message through form data and starts an
// exchange. The user bubble is echoed synchronously, so the re-rendered
// chatbox already contains it; the assistant reply arrives over SSE.
func (m *Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	if msg == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	m.conv.Submit(msg, chat.SendOptions{})

	html, err := m.renderChatbox()
	if err != nil {
		m.logger.Error("Failed to render chatbox", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := w.Write([]byte(html)); err != nil {
		m.logger.Error("Failed to write response", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleRegenerate discards the assistant message at the given index and
// requests a fresh reply in its place.
func (m *Main) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		http.Error(w, "Valid index is required", http.StatusBadRequest)
		return
	}

	m.conv.Regenerate(index)
	w.WriteHeader(http.StatusAccepted)
}

// HandleEdit manages the edit lifecycle of a user message. The action form
// field selects the step: "start" enters edit mode, "cancel" leaves it, and
// "save" (the default) applies the new text and regenerates everything
// after it.
func (m *Main) HandleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	index, err := strconv.Atoi(r.FormValue("index"))
	if err != nil {
		http.Error(w, "Valid index is required", http.StatusBadRequest)
		return
	}

	switch r.FormValue("action") {
	case "start":
		m.conv.StartEdit(index)
		w.WriteHeader(http.StatusNoContent)
	case "cancel":
		m.conv.CancelEdit()
		w.WriteHeader(http.StatusNoContent)
	default:
		text := r.FormValue("message")
		if text == "" {
			http.Error(w, "Message is required", http.StatusBadRequest)
			return
		}
		m.conv.SaveEdit(index, text)
		w.WriteHeader(http.StatusAccepted)
	}
}

// HandleNewSession resets the conversation to a fresh session.
func (m *Main) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.conv.NewSession()

	html, err := m.renderChatbox()
	if err != nil {
		m.logger.Error("Failed to render chatbox", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := w.Write([]byte(html)); err != nil {
		m.logger.Error("Failed to write response", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleSelectSession switches the conversation to a stored session.
func (m *Main) HandleSelectSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.FormValue("id")
	if id == "" {
		http.Error(w, "Session id is required", http.StatusBadRequest)
		return
	}

	if err := m.conv.SwitchToSession(id); err != nil {
		m.logger.Error("Failed to switch session",
			slog.String("sessionID", id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	html, err := m.renderChatbox()
	if err != nil {
		m.logger.Error("Failed to render chatbox", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := w.Write([]byte(html)); err != nil {
		m.logger.Error("Failed to write response", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleDeleteSession removes a stored session.
func (m *Main) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.FormValue("id")
	if id == "" {
		http.Error(w, "Session id is required", http.StatusBadRequest)
		return
	}

	if err := m.conv.DeleteSession(id); err != nil {
		m.logger.Error("Failed to delete session",
			slog.String("sessionID", id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

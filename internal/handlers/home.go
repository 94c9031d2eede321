package handlers

import (
	"log/slog"
	"net/http"
)

type homePageData struct {
	CurrentSessionID string
	Title            string
	Sending          bool
	Sessions         []sessionView
	Messages         []messageView
}

// HandleHome renders the chat page with the active conversation and the
// recent session list.
func (m *Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := homePageData{
		CurrentSessionID: m.conv.SessionID(),
		Title:            m.conv.Title(),
		Sending:          m.conv.Sending(),
		Sessions:         m.sessionViews(),
		Messages:         m.messageViews(),
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

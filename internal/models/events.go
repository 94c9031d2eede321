package models

import "encoding/json"

// EventKind is the closed set of stream event discriminators the backend
// emits. Payloads with a discriminator outside this set map to EventUnknown
// and are routed to the side channel rather than silently dropped.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventContent
	EventStart
	EventEnd
	EventError
	EventAnalytics
	EventLearningInsights
	EventNewsIntegration
	EventNewsSearchStart
	EventNewsSearchProgress
	EventNewsSearchEnd
	EventInternetSearchStart
	EventInternetSearchProgress
	EventInternetSearchEnd
)

var eventKindNames = map[string]EventKind{
	"content":                  EventContent,
	"start":                    EventStart,
	"end":                      EventEnd,
	"error":                    EventError,
	"analytics":                EventAnalytics,
	"learning_insights":        EventLearningInsights,
	"news_integration":         EventNewsIntegration,
	"news_search_start":        EventNewsSearchStart,
	"news_search_progress":     EventNewsSearchProgress,
	"news_search_end":          EventNewsSearchEnd,
	"internet_search_start":    EventInternetSearchStart,
	"internet_search_progress": EventInternetSearchProgress,
	"internet_search_end":      EventInternetSearchEnd,
}

// EventKindFromType maps a wire `type` discriminator to its EventKind.
func EventKindFromType(s string) EventKind {
	if k, ok := eventKindNames[s]; ok {
		return k
	}
	return EventUnknown
}

func (k EventKind) String() string {
	for name, kind := range eventKindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// IsContent reports whether the event carries a content delta. Everything
// else is side-channel data and must never be concatenated into message
// content.
func (k EventKind) IsContent() bool { return k == EventContent }

// StreamEvent is one decoded server-sent event from a streaming chat reply.
// Content is filled for EventContent and EventError; Data and Metadata carry
// the raw side-channel payloads for the other kinds.
type StreamEvent struct {
	Kind     EventKind
	Content  string
	Data     json.RawMessage
	Metadata json.RawMessage
}

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/sohal70760/islamicai-webui/internal/models"
	"github.com/sohal70760/islamicai-webui/internal/services"
)

const revealChunk = 8

// streamPhase names the stages of consuming a streamed reply so that each
// terminal path is explicit: a stream settles after flushing or fails, never
// both.
type streamPhase int

const (
	phaseReading streamPhase = iota
	phaseFlushing
	phaseFailed
	phaseAborted
)

// exchange runs one send from POST to settled state. It is the only
// goroutine that mutates the messages created for this exchange; staleness
// checks against the exchange sequence number stop it from touching state
// once a forced newer exchange supersedes it.
func (c *Controller) exchange(ctx context.Context, cancel context.CancelFunc, ex uint64,
	sessionID, text string, recent []models.Message, opts SendOptions,
) {
	defer c.settle(ex, cancel)

	langInfo := models.DetectLanguage(text, recent)
	req := services.ChatRequest{
		Message:          text,
		SessionID:        sessionID,
		LanguageInfo:     &langInfo,
		StreamingOptions: c.streaming,
		AdvancedFeatures: c.advanced,
		ManualIP:         c.manualIP,
	}

	reply, err := c.transport.SendMessage(ctx, req)
	if err != nil {
		c.renderSendError(ex, err)
		return
	}

	switch {
	case reply.Stream != nil:
		c.consumeStream(ex, reply.Stream, opts)
	case reply.Direct != nil:
		c.revealDirect(ctx, ex, reply.Direct, opts)
	}
}

// consumeStream applies a streamed reply to a fresh placeholder message.
// Content deltas are buffered and committed at most once per commit
// interval; the final partial buffer is always flushed. Side-channel events
// never reach message content.
func (c *Controller) consumeStream(ex uint64, stream iter.Seq2[models.StreamEvent, error], opts SendOptions) {
	msgID, ok := c.insertPlaceholder(ex, opts.InsertAt)
	if !ok {
		return
	}

	lim := rate.NewLimiter(rate.Every(c.commitInterval), 1)
	pending := ""
	errorEvent := ""
	var readErr error

	phase := phaseReading
	for ev, err := range stream {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				phase = phaseAborted
			} else {
				phase = phaseFailed
				readErr = err
			}
			break
		}

		switch ev.Kind {
		case models.EventContent:
			pending += ev.Content
			if lim.Allow() {
				c.appendContent(ex, msgID, pending)
				pending = ""
			}
		case models.EventAnalytics:
			c.setAnalytics(ev.Data, nil)
		case models.EventLearningInsights:
			c.setAnalytics(nil, ev.Data)
		case models.EventError:
			errorEvent = ev.Content
			c.sideEvent(ev)
		default:
			c.sideEvent(ev)
		}
	}

	if phase == phaseReading {
		phase = phaseFlushing
	}

	switch phase {
	case phaseAborted:
		// Self-inflicted by a newer exchange; freeze without touching
		// content.
		c.finishStreaming(ex, msgID)
	case phaseFailed:
		c.appendContent(ex, msgID, pending)
		c.failStreaming(ex, msgID, fmt.Sprintf("Error: %v", readErr))
	case phaseFlushing:
		c.appendContent(ex, msgID, pending)
		if errorEvent != "" && c.messageContent(msgID) == "" {
			c.failStreaming(ex, msgID, "Error: "+errorEvent)
			return
		}
		c.finishStreaming(ex, msgID)
	}
}

// revealDirect types a complete reply out progressively. The reveal is pure
// presentation: the final committed content is always the full reply text.
func (c *Controller) revealDirect(ctx context.Context, ex uint64, direct *services.DirectReply, opts SendOptions) {
	c.setAnalytics(direct.Analytics, direct.LearningInsights)
	if direct.LocationInfo != nil {
		c.mu.Lock()
		c.location = direct.LocationInfo
		c.mu.Unlock()
	}

	msgID, ok := c.insertPlaceholder(ex, opts.InsertAt)
	if !ok {
		return
	}

	full := direct.Text()
	runes := []rune(full)
	lim := rate.NewLimiter(rate.Every(c.commitInterval), 1)
	ticker := time.NewTicker(c.revealTick)
	defer ticker.Stop()

	for i := revealChunk; i < len(runes); i += revealChunk {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				// Superseded mid-reveal; leave the prefix frozen.
				c.finishStreaming(ex, msgID)
				return
			}
			// Deadline during a purely local reveal: skip straight to the
			// full text.
			i = len(runes)
		case <-ticker.C:
		}
		if i < len(runes) && lim.Allow() {
			c.setContent(ex, msgID, string(runes[:i]))
		}
	}

	c.setContent(ex, msgID, full)
	c.finishStreaming(ex, msgID)
}

// renderSendError turns a transport failure into a user-visible assistant
// message. Cancellation stays silent.
func (c *Controller) renderSendError(ex uint64, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	var text string
	var httpErr *services.HTTPError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		text = "Error: The request timed out. Please try again."
	case errors.As(err, &httpErr):
		if httpErr.Message != "" {
			text = "Error: " + httpErr.Message
		} else {
			text = fmt.Sprintf("Error: HTTP %d - %s", httpErr.Status, http.StatusText(httpErr.Status))
		}
	default:
		text = "Error: Could not connect to the backend. This may be a network or CORS restriction."
	}

	c.logger.Error("Exchange failed", slog.String("err", err.Error()))

	c.mu.Lock()
	if c.activeSeq != ex {
		c.mu.Unlock()
		return
	}
	msg := models.Message{ID: c.nextMsgID, Content: text, IsUser: false}
	c.nextMsgID++
	c.messages = append(c.messages, msg)
	c.schedulePersistLocked()
	c.mu.Unlock()

	c.notifier.ConversationChanged()
}

// settle leaves the active state if this exchange still owns it.
func (c *Controller) settle(ex uint64, cancel context.CancelFunc) {
	cancel()

	c.mu.Lock()
	wasActive := c.activeSeq == ex
	if wasActive {
		c.sending = false
		c.cancel = nil
	}
	c.mu.Unlock()

	if wasActive {
		c.notifier.ExchangeSettled()
	}
}

// insertPlaceholder adds the empty streaming assistant message for an
// exchange, at the requested index or at the end.
func (c *Controller) insertPlaceholder(ex uint64, insertAt int) (int64, bool) {
	c.mu.Lock()
	if c.activeSeq != ex {
		c.mu.Unlock()
		return 0, false
	}
	msg := models.Message{ID: c.nextMsgID, IsUser: false, Streaming: true}
	c.nextMsgID++
	idx := insertAt
	if idx <= 0 || idx > len(c.messages) {
		idx = len(c.messages)
	}
	c.messages = slices.Insert(c.messages, idx, msg)
	c.schedulePersistLocked()
	c.mu.Unlock()

	c.notifier.ConversationChanged()
	return msg.ID, true
}

// appendContent commits a delta to a streaming message. Content only ever
// grows; a stale exchange commits nothing.
func (c *Controller) appendContent(ex uint64, msgID int64, delta string) {
	if delta == "" {
		return
	}

	c.mu.Lock()
	if c.activeSeq != ex {
		c.mu.Unlock()
		return
	}
	i := c.indexOfLocked(msgID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.messages[i].Content += delta
	updated := c.messages[i]
	c.schedulePersistLocked()
	c.mu.Unlock()

	c.notifier.MessageUpdated(updated)
}

// setContent overwrites a revealing message with a longer prefix of the
// final text.
func (c *Controller) setContent(ex uint64, msgID int64, content string) {
	c.mu.Lock()
	if c.activeSeq != ex {
		c.mu.Unlock()
		return
	}
	i := c.indexOfLocked(msgID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.messages[i].Content = content
	updated := c.messages[i]
	c.schedulePersistLocked()
	c.mu.Unlock()

	c.notifier.MessageUpdated(updated)
}

// finishStreaming freezes the message. Runs even for superseded exchanges
// so no settled message is ever left with a live streaming flag.
func (c *Controller) finishStreaming(ex uint64, msgID int64) {
	c.mu.Lock()
	i := c.indexOfLocked(msgID)
	if i < 0 || !c.messages[i].Streaming {
		c.mu.Unlock()
		return
	}
	c.messages[i].Streaming = false
	updated := c.messages[i]
	if c.activeSeq == ex {
		c.schedulePersistLocked()
	}
	c.mu.Unlock()

	c.notifier.MessageUpdated(updated)
}

// failStreaming substitutes an error text into the streaming message and
// freezes it. The conversation stays usable.
func (c *Controller) failStreaming(ex uint64, msgID int64, text string) {
	c.mu.Lock()
	if c.activeSeq != ex {
		c.mu.Unlock()
		return
	}
	i := c.indexOfLocked(msgID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	if c.messages[i].Content == "" {
		c.messages[i].Content = text
	} else {
		c.messages[i].Content += "\n\n" + text
	}
	c.messages[i].Streaming = false
	updated := c.messages[i]
	c.schedulePersistLocked()
	c.mu.Unlock()

	c.notifier.MessageUpdated(updated)
}

func (c *Controller) messageContent(msgID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOfLocked(msgID); i >= 0 {
		return c.messages[i].Content
	}
	return ""
}

func (c *Controller) indexOfLocked(msgID int64) int {
	return slices.IndexFunc(c.messages, func(m models.Message) bool { return m.ID == msgID })
}

func (c *Controller) setAnalytics(analytics, insights json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if analytics != nil {
		c.analytics = analytics
	}
	if insights != nil {
		c.learningInsights = insights
	}
}

func (c *Controller) sideEvent(ev models.StreamEvent) {
	if c.onSideEvent != nil {
		c.onSideEvent(ev)
		return
	}
	c.logger.Debug("Stream side event", slog.String("kind", ev.Kind.String()))
}

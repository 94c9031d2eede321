package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sohal70760/islamicai-webui/internal/models"
	"github.com/sohal70760/islamicai-webui/internal/services"
)

const (
	greetingMessage   = "Hey there! How can I help you today? 😊"
	newSessionMessage = "New session started. Previous conversation history has been cleared."

	defaultCommitInterval   = 50 * time.Millisecond
	defaultRevealTick       = 16 * time.Millisecond
	defaultDebounceInterval = 300 * time.Millisecond
	defaultExchangeTimeout  = 5 * time.Minute
)

// Transport sends a chat message to the backend and reports the reply shape.
type Transport interface {
	SendMessage(ctx context.Context, req services.ChatRequest) (services.Reply, error)
}

// Store is the session persistence layer the controller writes through.
type Store interface {
	ReadIndex(ctx context.Context) []models.SessionMeta
	ReadSession(ctx context.Context, id string) (models.Session, error)
	WriteSession(ctx context.Context, session models.Session) error
	DeleteSession(ctx context.Context, id string) error
}

// Notifier receives UI-facing change notifications from the controller.
type Notifier interface {
	// MessageUpdated fires on in-place content changes to a single message.
	MessageUpdated(msg models.Message)
	// ConversationChanged fires on structural changes: insert, remove,
	// truncate, or a wholesale session switch.
	ConversationChanged()
	// SessionsChanged fires when the persisted session index changed.
	SessionsChanged()
	// ExchangeSettled fires when an exchange leaves its active state.
	ExchangeSettled()
}

type noopNotifier struct{}

func (noopNotifier) MessageUpdated(models.Message) {}
func (noopNotifier) ConversationChanged()          {}
func (noopNotifier) SessionsChanged()              {}
func (noopNotifier) ExchangeSettled()              {}

// SendOptions tune a single Submit call. InsertAt places the assistant reply
// at a specific index instead of appending; values of zero or below mean
// append (index zero always holds the greeting, so it is never a valid
// insertion point). Force aborts any in-flight exchange first; regenerate
// and edit-resend use it together with SuppressEcho to avoid a duplicate
// user bubble.
type SendOptions struct {
	SuppressEcho bool
	InsertAt     int
	Force        bool
}

// EditState marks which user message is being edited. It is transient and
// never persisted.
type EditState struct {
	Index int
	Text  string
}

// Options configure a Controller. Zero values select the defaults.
type Options struct {
	Logger           *slog.Logger
	Notifier         Notifier
	Streaming        services.StreamingOptions
	Advanced         *services.AdvancedFeatures
	ManualIP         string
	CommitInterval   time.Duration
	RevealTick       time.Duration
	DebounceInterval time.Duration
	ExchangeTimeout  time.Duration

	// OnSideEvent receives stream events that are not content deltas:
	// search progress, start/end markers, unknown types. Nil means they are
	// logged at debug level.
	OnSideEvent func(models.StreamEvent)
}

// Controller owns the authoritative message sequence for the active session
// and orchestrates send, regenerate, and edit-and-resend exchanges against
// the backend. All state, including the per-session analytics the backend
// streams back, lives on the instance.
type Controller struct {
	transport Transport
	store     Store
	notifier  Notifier
	logger    *slog.Logger

	streaming services.StreamingOptions
	advanced  *services.AdvancedFeatures
	manualIP  string

	commitInterval  time.Duration
	revealTick      time.Duration
	exchangeTimeout time.Duration
	onSideEvent     func(models.StreamEvent)

	persist *scheduler

	mu        sync.Mutex
	sessionID string
	title     string
	messages  []models.Message
	nextMsgID int64
	editing   *EditState

	sending   bool
	activeSeq uint64
	seq       uint64
	cancel    context.CancelFunc

	analytics        json.RawMessage
	learningInsights json.RawMessage
	location         *services.LocationInfo
}

// NewController creates a controller with a fresh session containing the
// greeting message.
func NewController(transport Transport, store Store, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}
	if opts.CommitInterval <= 0 {
		opts.CommitInterval = defaultCommitInterval
	}
	if opts.RevealTick <= 0 {
		opts.RevealTick = defaultRevealTick
	}
	if opts.DebounceInterval <= 0 {
		opts.DebounceInterval = defaultDebounceInterval
	}
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = defaultExchangeTimeout
	}
	if !opts.Streaming.EnableStreaming && opts.Streaming.ChunkSize == 0 {
		opts.Streaming = services.DefaultStreamingOptions()
	}

	return &Controller{
		transport:       transport,
		store:           store,
		notifier:        opts.Notifier,
		logger:          opts.Logger,
		streaming:       opts.Streaming,
		advanced:        opts.Advanced,
		manualIP:        opts.ManualIP,
		commitInterval:  opts.CommitInterval,
		revealTick:      opts.RevealTick,
		exchangeTimeout: opts.ExchangeTimeout,
		onSideEvent:     opts.OnSideEvent,
		persist:         newScheduler(opts.DebounceInterval),
		sessionID:       models.NewSessionID(),
		title:           models.DefaultTitle,
		messages:        []models.Message{{ID: 1, Content: greetingMessage, IsUser: false}},
		nextMsgID:       2,
	}
}

// SetNotifier replaces the notifier. Call before serving; it is not safe
// once exchanges may be in flight.
func (c *Controller) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	c.notifier = n
}

// SessionID returns the active session id.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Title returns the active session title.
func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Sending reports whether an exchange is currently active.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Messages returns a copy of the active message sequence.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Analytics returns the latest session analytics the backend reported.
func (c *Controller) Analytics() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.analytics
}

// LearningInsights returns the latest learning insights the backend reported.
func (c *Controller) LearningInsights() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.learningInsights
}

// Location returns the location metadata from the most recent direct reply.
func (c *Controller) Location() *services.LocationInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.location
}

// Sessions lists the persisted session index, most recent first.
func (c *Controller) Sessions() []models.SessionMeta {
	return c.store.ReadIndex(context.Background())
}

// Submit starts a new exchange for the given text. Empty or whitespace-only
// text is a silent no-op, as is submitting while another exchange is active
// without Force.
func (c *Controller) Submit(text string, opts SendOptions) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" || (c.sending && !opts.Force) {
		c.mu.Unlock()
		return
	}

	if opts.Force && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if !opts.SuppressEcho {
		if len(c.messages) <= 1 && c.title == models.DefaultTitle {
			c.title = models.TitleFromMessage(text)
		}
		c.messages = append(c.messages, models.Message{
			ID:      c.nextMsgID,
			Content: text,
			IsUser:  true,
		})
		c.nextMsgID++
		c.schedulePersistLocked()
	}

	c.seq++
	ex := c.seq
	c.activeSeq = ex
	c.sending = true

	ctx, cancel := context.WithTimeout(context.Background(), c.exchangeTimeout)
	c.cancel = cancel

	sessionID := c.sessionID
	recent := slices.Clone(c.messages)
	c.mu.Unlock()

	if !opts.SuppressEcho {
		c.notifier.ConversationChanged()
	}

	go c.exchange(ctx, cancel, ex, sessionID, text, recent, opts)
}

// StartEdit puts the user message at index into edit mode.
func (c *Controller) StartEdit(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.messages) || !c.messages[index].IsUser {
		return
	}
	c.editing = &EditState{Index: index, Text: c.messages[index].Content}
}

// CancelEdit leaves edit mode without changes.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing = nil
}

// Editing returns the current edit state, or nil.
func (c *Controller) Editing() *EditState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == nil {
		return nil
	}
	state := *c.editing
	return &state
}

// SaveEdit replaces the user message at index with text, discards every
// message after it, and re-runs the exchange in place. The truncation is
// destructive: trailing history is gone for good.
func (c *Controller) SaveEdit(index int, text string) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" || index < 0 || index >= len(c.messages) || !c.messages[index].IsUser {
		c.mu.Unlock()
		return
	}
	c.messages = c.messages[:index+1]
	c.messages[index].Content = text
	c.editing = nil
	c.schedulePersistLocked()
	c.mu.Unlock()

	c.notifier.ConversationChanged()
	c.Submit(text, SendOptions{SuppressEcho: true, InsertAt: index + 1, Force: true})
}

// Regenerate discards the assistant message at index and requests a fresh
// reply for the nearest preceding user message, inserted at the vacated
// position.
func (c *Controller) Regenerate(index int) {
	c.mu.Lock()
	if index < 0 || index >= len(c.messages) || c.messages[index].IsUser {
		c.mu.Unlock()
		return
	}

	userText := ""
	for i := index - 1; i >= 0; i-- {
		if c.messages[i].IsUser {
			userText = c.messages[i].Content
			break
		}
	}
	if userText == "" {
		c.mu.Unlock()
		return
	}

	c.messages = slices.Delete(c.messages, index, index+1)
	c.schedulePersistLocked()
	c.mu.Unlock()

	c.notifier.ConversationChanged()
	c.Submit(userText, SendOptions{SuppressEcho: true, InsertAt: index, Force: true})
}

// Abort cancels any in-flight exchange. Silent: cancellation is never
// rendered as an error.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// NewSession abandons the active conversation and starts a fresh one.
func (c *Controller) NewSession() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.persist.Cancel()
	c.sessionID = models.NewSessionID()
	c.title = models.DefaultTitle
	c.messages = []models.Message{{ID: 1, Content: newSessionMessage, IsUser: false}}
	c.nextMsgID = 2
	c.editing = nil
	c.sending = false
	c.analytics = nil
	c.learningInsights = nil
	c.location = nil
	c.schedulePersistLocked()
	c.mu.Unlock()

	c.notifier.ConversationChanged()
}

// SwitchToSession replaces the active conversation with a stored one. State
// of the previous session beyond what debounced persistence already captured
// is discarded.
func (c *Controller) SwitchToSession(id string) error {
	session, err := c.store.ReadSession(context.Background(), id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.persist.Cancel()
	c.sessionID = session.ID
	c.title = session.Title
	if c.title == "" {
		c.title = models.DefaultTitle
	}
	c.messages = slices.Clone(session.Messages)
	c.nextMsgID = nextMessageID(c.messages)
	c.editing = nil
	c.sending = false
	c.analytics = nil
	c.learningInsights = nil
	c.location = nil
	c.mu.Unlock()

	c.notifier.ConversationChanged()
	return nil
}

// DeleteSession removes a stored session. Deleting the active session also
// starts a fresh one.
func (c *Controller) DeleteSession(id string) error {
	if err := c.store.DeleteSession(context.Background(), id); err != nil {
		return err
	}

	c.mu.Lock()
	active := c.sessionID == id
	c.mu.Unlock()

	if active {
		c.NewSession()
	} else {
		c.notifier.SessionsChanged()
	}
	return nil
}

// LoadLatest restores the most recently updated stored session, if any has
// messages. Called once at startup.
func (c *Controller) LoadLatest(ctx context.Context) {
	index := c.store.ReadIndex(ctx)
	if len(index) == 0 {
		return
	}
	session, err := c.store.ReadSession(ctx, index[0].ID)
	if err != nil || len(session.Messages) == 0 {
		return
	}

	c.mu.Lock()
	c.sessionID = session.ID
	c.title = session.Title
	if c.title == "" {
		c.title = models.DefaultTitle
	}
	c.messages = slices.Clone(session.Messages)
	c.nextMsgID = nextMessageID(c.messages)
	c.mu.Unlock()

	c.notifier.ConversationChanged()
}

// Close aborts any in-flight exchange and flushes pending persistence.
func (c *Controller) Close() {
	c.Abort()
	c.persist.Flush()
}

func nextMessageID(messages []models.Message) int64 {
	var maxID int64
	for _, m := range messages {
		if m.ID > maxID {
			maxID = m.ID
		}
	}
	return maxID + 1
}

// schedulePersistLocked arms the debounced write of the active session.
// Callers must hold c.mu.
func (c *Controller) schedulePersistLocked() {
	c.persist.Schedule(c.persistNow)
}

// persistNow writes the current session snapshot. Storage failures are
// swallowed: in-memory state stays authoritative for the page lifetime.
func (c *Controller) persistNow() {
	c.mu.Lock()
	session := models.Session{
		ID:        c.sessionID,
		Title:     c.title,
		UpdatedAt: time.Now().UnixMilli(),
		Messages:  slices.Clone(c.messages),
	}
	c.mu.Unlock()

	if err := c.store.WriteSession(context.Background(), session); err != nil {
		c.logger.Warn("Failed to persist session",
			slog.String("sessionID", session.ID),
			slog.String("err", err.Error()))
		return
	}
	c.notifier.SessionsChanged()
}

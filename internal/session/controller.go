// ABOUTME: Session controller - the widget's conversation state machine
// ABOUTME: Owns the active conversation, send guards, unread count, and persistence

package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonware/support-widget/internal/dedupe"
	"github.com/halcyonware/support-widget/internal/reply"
	"github.com/halcyonware/support-widget/internal/store"
)

// State is the controller's lifecycle state.
type State string

const (
	// StateIdle means no conversation has been opened yet.
	StateIdle State = "idle"
	// StateActive means a conversation id is assigned and sends are allowed.
	StateActive State = "active"
	// StateSending means an outbound request is in flight.
	StateSending State = "sending"
)

// NetworkErrorText is the synthetic agent message shown when the outbound
// call fails.
const NetworkErrorText = "Network error. Please check your connection and try again."

// DefaultMaxMessageLength caps user input length.
const DefaultMaxMessageLength = 500

// Send guard errors. All are rejections of the input, not failures of the
// session: the caller drops the action and the session state is unchanged.
var (
	ErrNotActive       = errors.New("session is not active")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrDuplicateAction = errors.New("duplicate send action")
)

// AgentCaller defines what the controller needs from the agent endpoint.
type AgentCaller interface {
	Ask(ctx context.Context, message, sessionID string) (json.RawMessage, error)
}

// Repository defines the persistence lifecycle the controller drives:
// load-on-init and save-on-mutation.
type Repository interface {
	Load(ctx context.Context) ([]*store.Conversation, error)
	Save(ctx context.Context, snapshot []*store.Conversation) error
}

// Controller orchestrates one widget session: it tracks the active
// conversation, dispatches outbound messages, normalizes replies, appends
// exchanges to the store, and maintains unread state. Safe for concurrent
// use; at most one send is in flight at a time.
type Controller struct {
	mu        sync.Mutex
	state     State
	currentID string
	log       []*store.Message
	unread    int
	focused   bool

	store   store.Store
	repo    Repository
	agent   AgentCaller
	actions *dedupe.Cache
	logger  *slog.Logger
	maxLen  int
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxMessageLength overrides the input length cap.
func WithMaxMessageLength(n int) Option {
	return func(c *Controller) { c.maxLen = n }
}

// WithActionCache sets the dedupe cache used to reject duplicate send
// actions. Without one, only the state guard protects against double sends.
func WithActionCache(cache *dedupe.Cache) Option {
	return func(c *Controller) { c.actions = cache }
}

// New creates a controller. Call Init before use to restore persisted
// history.
func New(st store.Store, repo Repository, caller AgentCaller, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		state:  StateIdle,
		store:  st,
		repo:   repo,
		agent:  caller,
		logger: logger.With("component", "session"),
		maxLen: DefaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init loads the persisted snapshot into the store. A missing or unreadable
// slot yields an empty store; only infrastructure failures are returned.
func (c *Controller) Init(ctx context.Context) error {
	snapshot, err := c.repo.Load(ctx)
	if err != nil {
		return err
	}
	c.store.Restore(snapshot)
	c.logger.Info("session initialized", "conversations", len(snapshot))
	return nil
}

// OpenWidget brings the widget into focus and clears the unread count. On
// the first open it assigns a fresh conversation id; the conversation itself
// is materialized in the store only once a message is exchanged.
func (c *Controller) OpenWidget() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.focused = true
	c.unread = 0
	if c.state == StateIdle {
		c.currentID = uuid.New().String()
		c.log = nil
		c.state = StateActive
		c.logger.Debug("widget opened", "conversation_id", c.currentID)
	}
}

// CloseWidget marks the widget unfocused. The session and its in-flight
// state survive; replies arriving while closed count as unread.
func (c *Controller) CloseWidget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = false
}

// SetFocused records whether the widget is visually focused, which decides
// whether arriving replies increment the unread count.
func (c *Controller) SetFocused(focused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = focused
}

// Compose applies the input-time length cap: text beyond the maximum is
// truncated, mirroring the input field, so Send only ever rejects over-length
// text that bypassed composition.
func (c *Controller) Compose(text string) string {
	runes := []rune(text)
	if len(runes) > c.maxLen {
		return string(runes[:c.maxLen])
	}
	return text
}

// Send dispatches one user message to the agent and appends the resulting
// exchange to the active conversation. actionID identifies the user action
// for deduplication and may be empty.
//
// Guards, checked before anything is sent: the session must be Active (not
// Idle, not already Sending), the text must be non-empty after trimming and
// within the length cap, and the action must not be a duplicate. A guard
// rejection is a silent no-op for the conversation: nothing is appended,
// nothing is persisted.
//
// A transport failure is not an error from Send: it is surfaced as a single
// synthetic agent message, and the unread rule applies the same as on
// success.
func (c *Controller) Send(ctx context.Context, text, actionID string) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return ErrNotActive
	case StateSending:
		c.mu.Unlock()
		return ErrNotActive
	}
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return ErrEmptyMessage
	}
	if len([]rune(text)) > c.maxLen {
		c.mu.Unlock()
		return ErrMessageTooLong
	}
	if actionID != "" && c.actions != nil && c.actions.CheckAndMark(actionID) {
		c.mu.Unlock()
		c.logger.Debug("duplicate send action ignored", "action_id", actionID)
		return ErrDuplicateAction
	}

	conversationID := c.currentID
	userMsg := &store.Message{
		ID:        uuid.New().String(),
		Role:      store.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}
	c.log = append(c.log, userMsg)
	c.state = StateSending
	c.mu.Unlock()

	agentMsg := c.exchange(ctx, conversationID, text)

	c.mu.Lock()
	conv := c.store.AppendExchange(conversationID, userMsg, agentMsg)
	if c.currentID == conversationID {
		c.log = conv.Messages
	}
	if !c.focused {
		// One unread per exchange, regardless of how many messages it appended
		c.unread++
	}
	c.state = StateActive
	c.mu.Unlock()

	c.persist()
	return nil
}

// exchange performs the outbound call and normalizes the result into the
// agent message for this exchange. Transport failures become the fixed
// network-error message.
func (c *Controller) exchange(ctx context.Context, conversationID, text string) *store.Message {
	msg := &store.Message{
		ID:   uuid.New().String(),
		Role: store.RoleAgent,
	}

	payload, err := c.agent.Ask(ctx, text, conversationID)
	if err != nil {
		c.logger.Warn("agent call failed", "error", err, "conversation_id", conversationID)
		msg.Content = NetworkErrorText
		msg.Timestamp = time.Now()
		return msg
	}

	normalized := reply.Normalize(payload)
	msg.Content = normalized.Text
	msg.Reply = normalized.Data
	msg.Timestamp = time.Now()
	return msg
}

// NewConversation discards the displayed log and assigns a fresh
// conversation id. The prior conversation remains in the store. Rejected
// while a send is in flight.
func (c *Controller) NewConversation() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive {
		return ErrNotActive
	}
	c.currentID = uuid.New().String()
	c.log = nil
	c.logger.Debug("new conversation", "conversation_id", c.currentID)
	return nil
}

// SelectConversation switches the displayed log to an existing conversation.
// An unknown id leaves the session unchanged and returns store.ErrNotFound.
func (c *Controller) SelectConversation(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive {
		return ErrNotActive
	}
	conv, err := c.store.Get(id)
	if err != nil {
		return err
	}
	c.currentID = conv.ID
	c.log = conv.Messages
	return nil
}

// Conversations returns the history list, filtered by title substring and
// ordered most-recent-first.
func (c *Controller) Conversations(filter string) []*store.Conversation {
	return c.store.List(filter)
}

// Messages returns the displayed message log.
func (c *Controller) Messages() []*store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*store.Message, len(c.log))
	copy(out, c.log)
	return out
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Loading reports whether an outbound request is in flight.
func (c *Controller) Loading() bool {
	return c.State() == StateSending
}

// Unread returns the number of exchanges that completed while the widget was
// unfocused.
func (c *Controller) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// ActiveConversationID returns the id bound to the displayed log, or empty
// while Idle.
func (c *Controller) ActiveConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

// persist saves the whole store through the repository. It uses a detached
// timeout context so persistence completes even when the request context has
// been cancelled; failures are logged, never fatal to the session.
func (c *Controller) persist() {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.repo.Save(saveCtx, c.store.Snapshot()); err != nil {
		c.logger.Error("failed to persist conversations", "error", err)
	}
}

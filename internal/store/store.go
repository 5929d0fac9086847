// ABOUTME: Conversation store types and the in-memory implementation
// ABOUTME: Conversations are append-only message logs, lazily created on first exchange

package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/halcyonware/support-widget/internal/reply"
)

// ErrNotFound is returned when a requested conversation does not exist.
// Lookups never fabricate an empty conversation for an unknown id.
var ErrNotFound = errors.New("conversation not found")

// Message roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// DefaultTitle is used when the first user message trims to nothing.
const DefaultTitle = "New Conversation"

// titleMaxLen bounds derived conversation titles.
const titleMaxLen = 50

// Message is a single entry in a conversation log. Messages are immutable
// once created; membership in a log is append-only.
type Message struct {
	ID        string       `json:"id"`
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
	Reply     *reply.Reply `json:"structuredData,omitempty"`
}

// Conversation is an ordered message log with derived metadata. It is owned
// exclusively by the store and mutated only by appending messages.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// clone returns a copy safe to hand out: the message slice is copied, the
// messages themselves are immutable and shared.
func (c *Conversation) clone() *Conversation {
	msgs := make([]*Message, len(c.Messages))
	copy(msgs, c.Messages)
	dup := *c
	dup.Messages = msgs
	return &dup
}

// Store defines what the session controller needs from conversation storage.
type Store interface {
	Get(id string) (*Conversation, error)
	AppendExchange(id string, userMsg, agentMsg *Message) *Conversation
	List(filter string) []*Conversation
	Snapshot() []*Conversation
	Restore(conversations []*Conversation)
}

// MemoryStore is the in-memory Store implementation backing one widget
// session. It is safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
	}
}

// Get returns the conversation with the given id, or ErrNotFound.
func (s *MemoryStore) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.clone(), nil
}

// AppendExchange appends a user/agent message pair to the conversation with
// the given id, creating the conversation on first use. A new conversation
// takes its title from the user message and its CreatedAt from the user
// message timestamp; UpdatedAt always moves to the append time.
func (s *MemoryStore) AppendExchange(id string, userMsg, agentMsg *Message) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv, ok := s.conversations[id]
	if !ok {
		conv = &Conversation{
			ID:        id,
			Title:     DeriveTitle(userMsg.Content),
			CreatedAt: userMsg.Timestamp,
		}
		s.conversations[id] = conv
	}
	conv.Messages = append(conv.Messages, userMsg, agentMsg)
	conv.UpdatedAt = now

	return conv.clone()
}

// List returns conversations whose title contains the filter substring,
// case-insensitively, ordered most-recently-updated first. An empty filter
// matches everything.
func (s *MemoryStore) List(filter string) []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(filter)
	out := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if needle != "" && !strings.Contains(strings.ToLower(conv.Title), needle) {
			continue
		}
		out = append(out, conv.clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot returns every conversation for persistence, oldest-created first
// so snapshots are deterministic.
func (s *MemoryStore) Snapshot() []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Restore replaces the store contents with a previously persisted snapshot.
func (s *MemoryStore) Restore(conversations []*Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[string]*Conversation, len(conversations))
	for _, conv := range conversations {
		s.conversations[conv.ID] = conv.clone()
	}
}

// DeriveTitle produces a conversation title from the first user message:
// trimmed, truncated to 50 characters, defaulting when empty.
func DeriveTitle(content string) string {
	title := strings.TrimSpace(content)
	if title == "" {
		return DefaultTitle
	}
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		title = string(runes[:titleMaxLen])
	}
	return title
}

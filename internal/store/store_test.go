// ABOUTME: Tests for the in-memory conversation store
// ABOUTME: Verifies lazy creation, title derivation, ordering, and filtering

package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonware/support-widget/internal/reply"
)

func newMessage(role, content string, at time.Time) *Message {
	return &Message{
		ID:        role + "-" + content,
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
}

func TestMemoryStore_Get_UnknownID(t *testing.T) {
	s := NewMemoryStore()

	conv, err := s.Get("nope")
	assert.Nil(t, conv)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_AppendExchange_CreatesConversation(t *testing.T) {
	s := NewMemoryStore()
	sent := time.Now().Add(-2 * time.Second)

	conv := s.AppendExchange("conv-1",
		newMessage(RoleUser, "Hi", sent),
		newMessage(RoleAgent, "Hello! How can I help?", time.Now()),
	)

	assert.Equal(t, "conv-1", conv.ID)
	assert.Equal(t, "Hi", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, RoleUser, conv.Messages[0].Role)
	assert.Equal(t, RoleAgent, conv.Messages[1].Role)
	assert.Equal(t, sent, conv.CreatedAt)
	assert.True(t, conv.UpdatedAt.After(conv.CreatedAt), "UpdatedAt must trail CreatedAt")

	// Exactly one conversation exists
	assert.Len(t, s.List(""), 1)
}

func TestMemoryStore_AppendExchange_AppendsToExisting(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()

	first := s.AppendExchange("conv-1",
		newMessage(RoleUser, "First question", now),
		newMessage(RoleAgent, "First answer", now),
	)

	second := s.AppendExchange("conv-1",
		newMessage(RoleUser, "Second question", now),
		newMessage(RoleAgent, "Second answer", now),
	)

	assert.Equal(t, "First question", second.Title, "title keeps the first user message")
	require.Len(t, second.Messages, 4)
	assert.Equal(t, "Second answer", second.Messages[3].Content)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
	assert.Len(t, s.List(""), 1)
}

func TestMemoryStore_AppendExchange_PreservesStructuredData(t *testing.T) {
	s := NewMemoryStore()
	conf := 0.8
	agentMsg := newMessage(RoleAgent, "answer", time.Now())
	agentMsg.Reply = &reply.Reply{Answer: "answer", Confidence: &conf}

	conv := s.AppendExchange("conv-1", newMessage(RoleUser, "q", time.Now()), agentMsg)

	require.NotNil(t, conv.Messages[1].Reply)
	assert.Equal(t, 0.8, *conv.Messages[1].Reply.Confidence)
	assert.Nil(t, conv.Messages[0].Reply)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "Hi", "Hi"},
		{"trimmed", "  How do refunds work?  ", "How do refunds work?"},
		{"empty", "", DefaultTitle},
		{"whitespace only", "   \n\t", DefaultTitle},
		{"truncated to 50", strings.Repeat("a", 80), strings.Repeat("a", 50)},
		{"exactly 50 kept", strings.Repeat("b", 50), strings.Repeat("b", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.content))
		})
	}
}

func TestMemoryStore_List_OrdersMostRecentFirst(t *testing.T) {
	s := NewMemoryStore()
	base := time.Now()

	s.AppendExchange("old", newMessage(RoleUser, "old topic", base.Add(-time.Hour)), newMessage(RoleAgent, "a", base))
	time.Sleep(2 * time.Millisecond)
	s.AppendExchange("new", newMessage(RoleUser, "new topic", base), newMessage(RoleAgent, "a", base))

	list := s.List("")
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestMemoryStore_List_FiltersCaseInsensitively(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()

	s.AppendExchange("a", newMessage(RoleUser, "Password reset", now), newMessage(RoleAgent, "ok", now))
	s.AppendExchange("b", newMessage(RoleUser, "Billing question", now), newMessage(RoleAgent, "ok", now))

	list := s.List("PASSWORD")
	require.Len(t, list, 1)
	assert.Equal(t, "Password reset", list[0].Title)

	assert.Empty(t, s.List("refund"))
	assert.Len(t, s.List(""), 2)
}

func TestMemoryStore_SnapshotRestore(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.AppendExchange("a", newMessage(RoleUser, "one", now.Add(-time.Minute)), newMessage(RoleAgent, "r", now))
	s.AppendExchange("b", newMessage(RoleUser, "two", now), newMessage(RoleAgent, "r", now))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID, "snapshot ordered oldest-created first")

	fresh := NewMemoryStore()
	fresh.Restore(snap)

	got, err := fresh.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Title)
	require.Len(t, got.Messages, 2)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.AppendExchange("a", newMessage(RoleUser, "one", now), newMessage(RoleAgent, "r", now))

	got, err := s.Get("a")
	require.NoError(t, err)
	got.Messages = got.Messages[:0]
	got.Title = "mutated"

	again, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "one", again.Title)
	assert.Len(t, again.Messages, 2)
}

// ABOUTME: HTTP API handlers and JSON DTOs for the widget session
// ABOUTME: Translates requests into controller calls and state into responses

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/halcyonware/support-widget/internal/reply"
	"github.com/halcyonware/support-widget/internal/session"
	"github.com/halcyonware/support-widget/internal/store"
)

// unreadDisplayCap is the largest count rendered literally; anything above
// shows as "99+".
const unreadDisplayCap = 99

// starterQuestions are the quick-reply suggestions offered before the first
// message of a conversation.
var starterQuestions = []string{
	"What are your pricing plans?",
	"How do I reset my password?",
	"What's your refund policy?",
}

// SendRequest is the JSON request body for POST /api/send.
type SendRequest struct {
	Text     string `json:"text"`
	ActionID string `json:"action_id,omitempty"`
}

// FocusRequest is the JSON request body for POST /api/widget/focus.
type FocusRequest struct {
	Focused bool `json:"focused"`
}

// MessageResponse is the JSON representation of one message in the log.
type MessageResponse struct {
	ID                string   `json:"id"`
	Role              string   `json:"role"`
	Content           string   `json:"content"`
	Timestamp         string   `json:"timestamp"`
	Sources           []string `json:"sources,omitempty"`
	ConfidencePercent *int     `json:"confidence_percent,omitempty"`
	SuggestedActions  []string `json:"suggested_actions,omitempty"`
}

// ConversationResponse is the JSON representation of one history entry.
type ConversationResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// StateResponse is the JSON response for GET /api/state and for every
// endpoint that mutates the session.
type StateResponse struct {
	State                string            `json:"state"`
	Loading              bool              `json:"loading"`
	Unread               int               `json:"unread"`
	UnreadDisplay        string            `json:"unread_display,omitempty"`
	ActiveConversationID string            `json:"active_conversation_id,omitempty"`
	Messages             []MessageResponse `json:"messages"`
	StarterQuestions     []string          `json:"starter_questions,omitempty"`
}

// handleOpenWidget handles POST /api/widget/open.
func (s *Server) handleOpenWidget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.controller.OpenWidget()
	s.writeState(w)
}

// handleCloseWidget handles POST /api/widget/close.
func (s *Server) handleCloseWidget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.controller.CloseWidget()
	s.writeState(w)
}

// handleFocusWidget handles POST /api/widget/focus.
func (s *Server) handleFocusWidget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req FocusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.controller.SetFocused(req.Focused)
	s.writeState(w)
}

// handleSend handles POST /api/send. The call is synchronous: the response
// carries the log including the agent's reply (or the network-error message).
// A duplicate action is a silent no-op that still returns current state.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.controller.Send(r.Context(), req.Text, req.ActionID)
	switch {
	case err == nil:
		s.writeState(w)
	case errors.Is(err, session.ErrDuplicateAction):
		s.writeState(w)
	case errors.Is(err, session.ErrNotActive):
		s.sendJSONError(w, http.StatusConflict, "session not ready to send")
	case errors.Is(err, session.ErrEmptyMessage):
		s.sendJSONError(w, http.StatusBadRequest, "text is required")
	case errors.Is(err, session.ErrMessageTooLong):
		s.sendJSONError(w, http.StatusBadRequest, "text exceeds maximum length")
	default:
		s.logger.Error("send failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleConversations handles GET /api/conversations and
// POST /api/conversations/new via the trailing-slash route.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	filter := r.URL.Query().Get("q")
	conversations := s.controller.Conversations(filter)

	response := ListConversationsResponse{
		Conversations: make([]ConversationResponse, len(conversations)),
	}
	for i, conv := range conversations {
		response.Conversations[i] = ConversationResponse{
			ID:           conv.ID,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
			CreatedAt:    conv.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    conv.UpdatedAt.Format(time.RFC3339),
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleConversationRoutes dispatches /api/conversations/new and
// /api/conversations/{id}/select.
func (s *Server) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	switch {
	case rest == "new":
		s.handleNewConversation(w, r)
	case strings.HasSuffix(rest, "/select"):
		id := strings.TrimSuffix(rest, "/select")
		if id == "" {
			s.sendJSONError(w, http.StatusBadRequest, "conversation id is required")
			return
		}
		s.handleSelectConversation(w, r, id)
	default:
		s.sendJSONError(w, http.StatusNotFound, "unknown conversation route")
	}
}

// handleNewConversation handles POST /api/conversations/new.
func (s *Server) handleNewConversation(w http.ResponseWriter, r *http.Request) {
	err := s.controller.NewConversation()
	if errors.Is(err, session.ErrNotActive) {
		s.sendJSONError(w, http.StatusConflict, "session not ready")
		return
	}
	if err != nil {
		s.logger.Error("new conversation failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeState(w)
}

// handleSelectConversation handles POST /api/conversations/{id}/select.
func (s *Server) handleSelectConversation(w http.ResponseWriter, r *http.Request, id string) {
	err := s.controller.SelectConversation(id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if errors.Is(err, session.ErrNotActive) {
		s.sendJSONError(w, http.StatusConflict, "session not ready")
		return
	}
	if err != nil {
		s.logger.Error("select conversation failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeState(w)
}

// handleState handles GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.writeState(w)
}

// writeState renders the full widget state as JSON.
func (s *Server) writeState(w http.ResponseWriter) {
	messages := s.controller.Messages()

	response := StateResponse{
		State:                string(s.controller.State()),
		Loading:              s.controller.Loading(),
		Unread:               s.controller.Unread(),
		UnreadDisplay:        unreadDisplay(s.controller.Unread()),
		ActiveConversationID: s.controller.ActiveConversationID(),
		Messages:             make([]MessageResponse, len(messages)),
	}
	for i, msg := range messages {
		response.Messages[i] = messageResponse(msg)
	}
	if len(messages) == 0 {
		response.StarterQuestions = starterQuestions
	}

	s.writeJSON(w, http.StatusOK, response)
}

// messageResponse converts a stored message into its DTO, flattening any
// structured reply data onto the message.
func messageResponse(msg *store.Message) MessageResponse {
	out := MessageResponse{
		ID:        msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: msg.Timestamp.Format(time.RFC3339),
	}
	if msg.Reply != nil {
		out.Sources = msg.Reply.Sources
		out.SuggestedActions = msg.Reply.SuggestedActions
		if msg.Reply.Confidence != nil {
			pct := reply.ConfidencePercent(*msg.Reply.Confidence)
			out.ConfidencePercent = &pct
		}
	}
	return out
}

// unreadDisplay formats the unread badge text. Zero renders as empty (no
// badge), counts above the cap render as "99+".
func unreadDisplay(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > unreadDisplayCap:
		return "99+"
	default:
		return strconv.Itoa(n)
	}
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

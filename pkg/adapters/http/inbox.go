package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// DefaultMessagesLimit is the page size of GET /api/conversations/{phone}/messages.
const DefaultMessagesLimit = 100

// ListConversations handles GET /api/conversations.
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.Builder.Conversations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// GetUnreadCount handles GET /api/conversations/unread.
func (s *Server) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.Builder.UnreadCount(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

// GetMessages handles GET /api/conversations/{phone}/messages.
// Reading a conversation marks its incoming messages as read.
func (s *Server) GetMessages(w http.ResponseWriter, r *http.Request) {
	limit := DefaultMessagesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(w, r, badRequest(fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = n
	}
	msgs, err := s.Builder.ReadConversation(r.Context(), chi.URLParam(r, "phone"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": orEmpty(msgs)})
}

// MarkRead handles POST /api/conversations/{phone}/read.
func (s *Server) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.Builder.MarkRead(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

// DeleteConversation handles DELETE /api/conversations/{phone}.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	n, err := s.Builder.DeleteConversation(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// SearchMessages handles GET /api/messages/search.
func (s *Server) SearchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := s.Builder.SearchMessages(r.Context(), q.Get("q"), q.Get("phone"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": orEmpty(msgs)})
}

// SearchContacts handles GET /api/contacts.
func (s *Server) SearchContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.Builder.Contacts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

func orEmpty(msgs []domain.ChatMessage) []domain.ChatMessage {
	if msgs == nil {
		return []domain.ChatMessage{}
	}
	return msgs
}

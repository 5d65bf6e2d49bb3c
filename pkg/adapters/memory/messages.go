package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/wabuilder/pkg/domain"
)

// MessageLog implements ports.MessageLog in memory.
type MessageLog struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage
	byID     map[string]int
}

// NewMessageLog creates an empty message log.
func NewMessageLog() *MessageLog {
	return &MessageLog{byID: make(map[string]int)}
}

// Append stores a copy of msg.
func (l *MessageLog) Append(ctx context.Context, msg *domain.ChatMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if msg.MessageID != "" {
		if _, ok := l.byID[msg.MessageID]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateMessage, msg.MessageID)
		}
		l.byID[msg.MessageID] = len(l.messages)
	}
	l.messages = append(l.messages, copyMessage(*msg))
	return nil
}

// LastOutgoing returns the newest outgoing message for phone.
func (l *MessageLog) LastOutgoing(ctx context.Context, phone string) (*domain.ChatMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var last *domain.ChatMessage
	for i := range l.messages {
		m := &l.messages[i]
		if m.Phone != phone || m.Direction != domain.DirectionOutgoing {
			continue
		}
		if last == nil || !m.Timestamp.Before(last.Timestamp) {
			last = m
		}
	}
	if last == nil {
		return nil, fmt.Errorf("%w: no outgoing message for %s", domain.ErrMessageNotFound, phone)
	}
	out := copyMessage(*last)
	return &out, nil
}

// UpdateStatus sets the status of a logged message.
func (l *MessageLog) UpdateStatus(ctx context.Context, messageID, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.byID[messageID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrMessageNotFound, messageID)
	}
	l.messages[i].Status = status
	return nil
}

// History returns up to limit messages for phone, oldest first.
func (l *MessageLog) History(ctx context.Context, phone string, limit int) ([]domain.ChatMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.ChatMessage
	for _, m := range l.messages {
		if m.Phone == phone {
			out = append(out, copyMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Conversations summarizes the log per contact, most recent first.
func (l *MessageLog) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	type summary struct {
		conv     domain.Conversation
		nameTime time.Time
	}
	byPhone := make(map[string]*summary)
	for i := range l.messages {
		m := &l.messages[i]
		s, ok := byPhone[m.Phone]
		if !ok {
			s = &summary{conv: domain.Conversation{Phone: m.Phone}}
			byPhone[m.Phone] = s
		}
		if !ok || !m.Timestamp.Before(s.conv.LastMessageTime) {
			s.conv.LastMessageTime = m.Timestamp
			s.conv.LastMessage = m.Text
		}
		if name := m.ContactName(); name != "" && !m.Timestamp.Before(s.nameTime) {
			s.conv.ContactName = name
			s.nameTime = m.Timestamp
		}
		if m.Unread() {
			s.conv.UnreadCount++
		}
	}

	out := make([]domain.Conversation, 0, len(byPhone))
	for _, s := range byPhone {
		out = append(out, s.conv)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].LastMessageTime.After(out[j].LastMessageTime)
		}
		return out[i].Phone < out[j].Phone
	})
	return out, nil
}

// MarkRead marks the unread incoming messages of phone as read.
func (l *MessageLog) MarkRead(ctx context.Context, phone string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for i := range l.messages {
		if l.messages[i].Phone == phone && l.messages[i].Unread() {
			l.messages[i].Status = domain.StatusRead
			n++
		}
	}
	return n, nil
}

// UnreadCount counts unread incoming messages.
func (l *MessageLog) UnreadCount(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for i := range l.messages {
		if l.messages[i].Unread() {
			n++
		}
	}
	return n, nil
}

// Search returns up to limit messages containing query, newest first.
func (l *MessageLog) Search(ctx context.Context, query, phone string, limit int) ([]domain.ChatMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []domain.ChatMessage
	for _, m := range l.messages {
		if phone != "" && m.Phone != phone {
			continue
		}
		if strings.Contains(strings.ToLower(m.Text), needle) {
			out = append(out, copyMessage(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteConversation drops every message of phone.
func (l *MessageLog) DeleteConversation(ctx context.Context, phone string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.messages[:0]
	removed := 0
	for _, m := range l.messages {
		if m.Phone == phone {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	l.messages = kept

	l.byID = make(map[string]int, len(kept))
	for i, m := range kept {
		if m.MessageID != "" {
			l.byID[m.MessageID] = i
		}
	}
	return removed, nil
}

func copyMessage(m domain.ChatMessage) domain.ChatMessage {
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}

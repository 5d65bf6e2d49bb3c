package ports

import (
	"context"
	"time"

	"github.com/aretw0/wabuilder/pkg/domain"
)

// ConfigStore persists configuration records by name.
type ConfigStore interface {
	// Get returns the record called name.
	// Returns domain.ErrConfigNotFound if it does not exist.
	Get(ctx context.Context, name string) (*domain.BotConfig, error)

	// Put creates or replaces the record with cfg.Name and stamps its Modified time.
	Put(ctx context.Context, cfg *domain.BotConfig) error

	// List returns the names of all records, sorted.
	List(ctx context.Context) ([]string, error)

	// Delete removes the record called name.
	// Returns domain.ErrConfigNotFound if it does not exist.
	Delete(ctx context.Context, name string) error
}

// SessionCache stores one JSON object per session under a common key prefix.
type SessionCache interface {
	// Load returns the data of a session. A missing or expired session yields an empty map.
	Load(ctx context.Context, sessionID string) (map[string]any, error)

	// Store replaces the data of a session. A zero ttl keeps the entry until cleared.
	Store(ctx context.Context, sessionID string, data map[string]any, ttl time.Duration) error

	// Delete removes one session.
	Delete(ctx context.Context, sessionID string) error

	// Clear removes every session under the prefix and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}

// MessageLog records chat messages per contact.
type MessageLog interface {
	// Append stores msg. Returns domain.ErrDuplicateMessage if msg.MessageID is already logged.
	Append(ctx context.Context, msg *domain.ChatMessage) error

	// LastOutgoing returns the most recent outgoing message sent to phone.
	// Returns domain.ErrMessageNotFound if none was sent.
	LastOutgoing(ctx context.Context, phone string) (*domain.ChatMessage, error)

	// UpdateStatus sets the delivery status of a logged message.
	// Returns domain.ErrMessageNotFound if the message is unknown.
	UpdateStatus(ctx context.Context, messageID, status string) error

	// History returns up to limit messages exchanged with phone, oldest first.
	// A limit of zero or less returns all of them.
	History(ctx context.Context, phone string, limit int) ([]domain.ChatMessage, error)

	// Conversations returns one summary per contact, most recent activity first.
	Conversations(ctx context.Context) ([]domain.Conversation, error)

	// MarkRead marks every unread incoming message from phone as read and
	// returns how many changed.
	MarkRead(ctx context.Context, phone string) (int, error)

	// UnreadCount returns the number of unread incoming messages across all contacts.
	UnreadCount(ctx context.Context) (int, error)

	// Search returns up to limit messages whose text contains query, ignoring
	// case, newest first. An empty phone searches every conversation.
	Search(ctx context.Context, query, phone string, limit int) ([]domain.ChatMessage, error)

	// DeleteConversation removes every message exchanged with phone and
	// returns how many were removed.
	DeleteConversation(ctx context.Context, phone string) (int, error)
}

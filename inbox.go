package wabuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/wabuilder/pkg/domain"
)

const (
	// SearchLimit caps the results of SearchMessages.
	SearchLimit = 50
	// ContactsLimit caps the results of Contacts.
	ContactsLimit = 20
)

// Conversations lists one summary per contact, most recent activity first.
func (b *Builder) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	return b.messages.Conversations(ctx)
}

// Contacts returns the contacts whose name or phone contains query, ignoring
// case. An empty query lists the most recent contacts.
func (b *Builder) Contacts(ctx context.Context, query string) ([]domain.Conversation, error) {
	convs, err := b.messages.Conversations(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	digits := domain.NormalizePhone(needle)

	out := make([]domain.Conversation, 0, ContactsLimit)
	for _, c := range convs {
		if len(out) == ContactsLimit {
			break
		}
		if needle == "" ||
			strings.Contains(strings.ToLower(c.ContactName), needle) ||
			(digits != "" && strings.Contains(c.Phone, digits)) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ReadConversation returns up to limit messages exchanged with phone, oldest
// first, and marks the incoming ones as read.
func (b *Builder) ReadConversation(ctx context.Context, phone string, limit int) ([]domain.ChatMessage, error) {
	phone, err := contactPhone(phone)
	if err != nil {
		return nil, err
	}
	msgs, err := b.messages.History(ctx, phone, limit)
	if err != nil {
		return nil, err
	}
	if _, err := b.messages.MarkRead(ctx, phone); err != nil {
		return nil, fmt.Errorf("mark %s read: %w", phone, err)
	}
	return msgs, nil
}

// MarkRead marks every incoming message from phone as read.
func (b *Builder) MarkRead(ctx context.Context, phone string) (int, error) {
	phone, err := contactPhone(phone)
	if err != nil {
		return 0, err
	}
	return b.messages.MarkRead(ctx, phone)
}

// UnreadCount returns the number of unread incoming messages across all contacts.
func (b *Builder) UnreadCount(ctx context.Context) (int, error) {
	return b.messages.UnreadCount(ctx)
}

// SearchMessages finds messages containing query, newest first. An empty
// phone searches every conversation.
func (b *Builder) SearchMessages(ctx context.Context, query, phone string) ([]domain.ChatMessage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrInvalidInput)
	}
	if phone != "" {
		var err error
		if phone, err = contactPhone(phone); err != nil {
			return nil, err
		}
	}
	return b.messages.Search(ctx, query, phone, SearchLimit)
}

// DeleteConversation removes every message exchanged with phone.
func (b *Builder) DeleteConversation(ctx context.Context, phone string) (int, error) {
	phone, err := contactPhone(phone)
	if err != nil {
		return 0, err
	}
	n, err := b.messages.DeleteConversation(ctx, phone)
	if err != nil {
		return 0, err
	}
	b.logger.Info("conversation deleted", "phone", phone, "messages", n)
	return n, nil
}

func contactPhone(raw string) (string, error) {
	phone := domain.NormalizePhone(raw)
	if phone == "" {
		return "", fmt.Errorf("%w: phone %q has no digits", ErrInvalidInput, raw)
	}
	return phone, nil
}

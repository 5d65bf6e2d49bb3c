package domain

import "time"

// Direction of a chat message relative to the bot.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Delivery statuses reported by the WhatsApp webhook.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// ChatMessage is one entry of the per-contact message log.
// Outgoing entries remember which template produced them so the next incoming
// message can be routed from it.
type ChatMessage struct {
	MessageID string    `json:"message_id"`
	Phone     string    `json:"phone"`
	Direction string    `json:"direction"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	TemplateID   string `json:"template_id,omitempty"`
	TemplateName string `json:"template_name,omitempty"`
	MessageLevel string `json:"message_level,omitempty"`
	NextLevel    string `json:"next_level,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NormalizePhone strips every non-digit from a phone number or WhatsApp ID.
func NormalizePhone(raw string) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			out = append(out, raw[i])
		}
	}
	return string(out)
}

// Conversation summarizes the messages exchanged with one contact.
type Conversation struct {
	Phone           string    `json:"phone"`
	ContactName     string    `json:"contact_name,omitempty"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

// Unread reports whether m is an incoming message nobody has read yet.
func (m *ChatMessage) Unread() bool {
	return m.Direction == DirectionIncoming && m.Status != StatusRead
}

// ContactName returns the WhatsApp profile name recorded with m, if any.
func (m *ChatMessage) ContactName() string {
	name, _ := m.Metadata["contact_name"].(string)
	return name
}

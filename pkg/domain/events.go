package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventFlowSaved     EventType = "flow_saved"
	EventFlowImported  EventType = "flow_imported"
	EventRouteResolved EventType = "route_resolved"
	EventCacheCleared  EventType = "cache_cleared"
	EventWebhook       EventType = "webhook_message"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Config    string    `json:"config,omitempty"`
}

// FlowEvent reports a save or an import of a chatbot flow.
type FlowEvent struct {
	EventBase
	Chatbot   string        `json:"chatbot"`
	Templates int           `json:"templates"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// RouteEvent reports which template answered an incoming message and why.
type RouteEvent struct {
	EventBase
	Phone      string `json:"phone"`
	TemplateID string `json:"template_id,omitempty"`
	Match      string `json:"match"`
}

// CacheEvent reports a session cache purge.
type CacheEvent struct {
	EventBase
	Keys int `json:"keys"`
}

// WebhookEvent reports one message received through the webhook.
type WebhookEvent struct {
	EventBase
	Phone       string `json:"phone"`
	MessageType string `json:"message_type"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// LifecycleHooks defines callbacks for builder observability.
type LifecycleHooks struct {
	OnFlowSaved     func(context.Context, *FlowEvent)
	OnFlowImported  func(context.Context, *FlowEvent)
	OnRouteResolved func(context.Context, *RouteEvent)
	OnCacheCleared  func(context.Context, *CacheEvent)
	OnWebhook       func(context.Context, *WebhookEvent)
}

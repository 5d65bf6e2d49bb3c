package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/wabuilder/pkg/domain"
)

// LoggingHooks logs every lifecycle event on logger.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFlowSaved: func(ctx context.Context, e *domain.FlowEvent) {
			if e.Err != nil {
				logger.ErrorContext(ctx, "flow_save_failed", "config", e.Config, "chatbot", e.Chatbot, "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "flow_saved",
				"config", e.Config,
				"chatbot", e.Chatbot,
				"templates", e.Templates,
				"duration", e.Duration,
			)
		},
		OnFlowImported: func(ctx context.Context, e *domain.FlowEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "flow_import_failed", "config", e.Config, "chatbot", e.Chatbot, "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "flow_imported", "config", e.Config, "chatbot", e.Chatbot, "templates", e.Templates)
		},
		OnRouteResolved: func(ctx context.Context, e *domain.RouteEvent) {
			logger.DebugContext(ctx, "route_resolved", "phone", e.Phone, "template", e.TemplateID, "match", e.Match)
		},
		OnCacheCleared: func(ctx context.Context, e *domain.CacheEvent) {
			logger.InfoContext(ctx, "cache_cleared", "keys", e.Keys)
		},
		OnWebhook: func(ctx context.Context, e *domain.WebhookEvent) {
			logger.DebugContext(ctx, "webhook_message", "phone", e.Phone, "type", e.MessageType, "duplicate", e.Duplicate)
		},
	}
}

// Combine returns hooks that call each of hooks in order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		out.OnFlowSaved = chain(out.OnFlowSaved, h.OnFlowSaved)
		out.OnFlowImported = chain(out.OnFlowImported, h.OnFlowImported)
		out.OnRouteResolved = chain(out.OnRouteResolved, h.OnRouteResolved)
		out.OnCacheCleared = chain(out.OnCacheCleared, h.OnCacheCleared)
		out.OnWebhook = chain(out.OnWebhook, h.OnWebhook)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

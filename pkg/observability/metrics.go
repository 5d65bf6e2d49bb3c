package observability

import (
	"context"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	FlowSaves        *prometheus.CounterVec
	FlowImports      *prometheus.CounterVec
	RouteResolutions *prometheus.CounterVec
	CacheClears      prometheus.Counter
	WebhookMessages  *prometheus.CounterVec
	SaveDuration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FlowSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabuilder_flow_saves_total",
				Help: "Total number of flow saves, by result",
			},
			[]string{"result"},
		),
		FlowImports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabuilder_flow_imports_total",
				Help: "Total number of flow imports, by result",
			},
			[]string{"result"},
		),
		RouteResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabuilder_route_resolutions_total",
				Help: "Total number of reply template resolutions, by matching rule",
			},
			[]string{"match"},
		),
		CacheClears: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wabuilder_cache_clears_total",
			Help: "Total number of session cache purges",
		}),
		WebhookMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabuilder_webhook_messages_total",
				Help: "Total number of messages received through the webhook, by type",
			},
			[]string{"type"},
		),
		SaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wabuilder_save_duration_seconds",
			Help:    "Duration of flow saves",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.FlowSaves, m.FlowImports, m.RouteResolutions, m.CacheClears, m.WebhookMessages, m.SaveDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFlowSaved: func(_ context.Context, e *domain.FlowEvent) {
			m.FlowSaves.WithLabelValues(result(e.Err)).Inc()
			if e.Err == nil {
				m.SaveDuration.Observe(e.Duration.Seconds())
			}
		},
		OnFlowImported: func(_ context.Context, e *domain.FlowEvent) {
			m.FlowImports.WithLabelValues(result(e.Err)).Inc()
		},
		OnRouteResolved: func(_ context.Context, e *domain.RouteEvent) {
			m.RouteResolutions.WithLabelValues(e.Match).Inc()
		},
		OnCacheCleared: func(_ context.Context, _ *domain.CacheEvent) {
			m.CacheClears.Inc()
		},
		OnWebhook: func(_ context.Context, e *domain.WebhookEvent) {
			m.WebhookMessages.WithLabelValues(e.MessageType).Inc()
		},
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

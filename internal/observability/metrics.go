package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	PushConnections     prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	WebhookEvents       *prometheus.CounterVec
	PresenceTransitions *prometheus.CounterVec
	PollDiscarded       prometheus.Counter
	PollErrors          prometheus.Counter
	PushMessages        *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PushConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_connections",
			Help:      "Number of tutor push connections currently registered.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session directory events by type.",
		}, []string{"event"}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Media provider webhook events by event type and outcome.",
		}, []string{"event", "outcome"}),
		PresenceTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_transitions_total",
			Help:      "Presence state changes by source and new state.",
		}, []string{"source", "state"}),
		PollDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_poll_discarded_total",
			Help:      "Poll results dropped because a recent webhook disagreed.",
		}),
		PollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_poll_errors_total",
			Help:      "Room occupancy queries that failed.",
		}),
		PushMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_total",
			Help:      "Push channel messages by type and result.",
		}, []string{"type", "result"}),
	}
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveWebhook(event, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) ObserveTransition(source, state string) {
	if m == nil {
		return
	}
	m.PresenceTransitions.WithLabelValues(source, state).Inc()
}

func (m *Metrics) ObservePollDiscarded() {
	if m == nil {
		return
	}
	m.PollDiscarded.Inc()
}

func (m *Metrics) ObservePollError() {
	if m == nil {
		return
	}
	m.PollErrors.Inc()
}

func (m *Metrics) ObservePush(msgType, result string) {
	if m == nil {
		return
	}
	m.PushMessages.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) SetPushConnections(n int) {
	if m == nil {
		return
	}
	m.PushConnections.Set(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Package metrics exposes gateway counters in the prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatgate"

// Metrics holds every gateway collector on its own registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	resolveStage       *prometheus.CounterVec
	webhookRequests    *prometheus.CounterVec
	dispatchTotal      *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
	deliveryFailures   *prometheus.CounterVec
	trackingFailures   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		resolveStage: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_stage_total",
			Help:      "Bot resolutions by the fallback stage that matched.",
		}, []string{"channel", "stage"}),
		webhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests by outcome.",
		}, []string{"channel", "outcome"}),
		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Work items dispatched by backend.",
		}, []string{"channel", "backend"}),
		completionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of completion provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"channel", "outcome"}),
		deliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Replies that could not be delivered to the channel.",
		}, []string{"channel"}),
		trackingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_failures_total",
			Help:      "Conversation records that failed to persist.",
		}),
	}
}

// ObserveStage implements the resolver stage observer.
func (m *Metrics) ObserveStage(channel, stage string) {
	if m == nil {
		return
	}
	m.resolveStage.WithLabelValues(channel, stage).Inc()
}

func (m *Metrics) WebhookRequest(channel, outcome string) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) Dispatched(channel, backend string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(channel, backend).Inc()
}

func (m *Metrics) Completion(channel, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completionDuration.WithLabelValues(channel, outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) DeliveryFailed(channel string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) TrackingFailed() {
	if m == nil {
		return
	}
	m.trackingFailures.Inc()
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// FulfillmentMetrics counts payment webhook outcomes and label purchases.
type FulfillmentMetrics struct {
	webhookEvents *prometheus.CounterVec
	labels        *prometheus.CounterVec
	triggers      *prometheus.CounterVec
}

// NewFulfillmentMetrics registers the fulfillment counters on reg. A nil
// registerer yields a no-op recorder.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stripe",
		Name:      "webhook_events_total",
		Help:      "Stripe webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
	labels := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "shipping",
		Name:      "label_purchases_total",
		Help:      "Shipping label purchase attempts by outcome.",
	}, []string{"outcome"})
	triggers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "automation",
		Name:      "trigger_deliveries_total",
		Help:      "Automation trigger deliveries by sink and outcome.",
	}, []string{"sink", "outcome"})
	reg.MustRegister(webhookEvents, labels, triggers)
	return &FulfillmentMetrics{
		webhookEvents: webhookEvents,
		labels:        labels,
		triggers:      triggers,
	}
}

// WebhookEvent records one processed webhook delivery.
func (m *FulfillmentMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// LabelPurchase records a label purchase attempt.
func (m *FulfillmentMetrics) LabelPurchase(outcome string) {
	if m == nil || m.labels == nil {
		return
	}
	m.labels.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// TriggerDelivery records an automation sink delivery.
func (m *FulfillmentMetrics) TriggerDelivery(sink, outcome string) {
	if m == nil || m.triggers == nil {
		return
	}
	m.triggers.WithLabelValues(normalizeLabel(sink), normalizeLabel(outcome)).Inc()
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFulfillmentMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewFulfillmentMetrics(reg)

	m.WebhookEvent("checkout.session.completed", "processed")
	m.WebhookEvent("checkout.session.completed", "processed")
	m.WebhookEvent("checkout.session.completed", "duplicate")
	m.LabelPurchase("purchased")
	m.TriggerDelivery("http", "failed")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"processed webhooks", testutil.ToFloat64(m.webhookEvents.WithLabelValues("checkout.session.completed", "processed")), 2},
		{"duplicate webhooks", testutil.ToFloat64(m.webhookEvents.WithLabelValues("checkout.session.completed", "duplicate")), 1},
		{"label purchases", testutil.ToFloat64(m.labels.WithLabelValues("purchased")), 1},
		{"trigger failures", testutil.ToFloat64(m.triggers.WithLabelValues("http", "failed")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, tt.got)
		}
	}

	if n := testutil.CollectAndCount(m.webhookEvents); n != 2 {
		t.Fatalf("expected 2 webhook series, got %d", n)
	}
}

func TestFulfillmentMetricsNilSafe(t *testing.T) {
	var m *FulfillmentMetrics
	m.WebhookEvent("a", "b")
	m.LabelPurchase("c")
	m.TriggerDelivery("d", "e")
	NewFulfillmentMetrics(nil).LabelPurchase("x")
}

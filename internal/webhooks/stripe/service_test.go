package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fastidp/fastidp-backend/pkg/config"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/metrics"
	"github.com/fastidp/fastidp-backend/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stripe/stripe-go/v84"
)

type stubLifecycle struct {
	completed map[string]string
	expired   map[string]bool
	known     map[string]bool
	err       error
}

func newStubLifecycle(sessions ...string) *stubLifecycle {
	known := map[string]bool{}
	for _, s := range sessions {
		known[s] = true
	}
	return &stubLifecycle{completed: map[string]string{}, expired: map[string]bool{}, known: known}
}

func (s *stubLifecycle) MarkCompleted(_ context.Context, sessionID, paymentIntentID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if !s.known[sessionID] {
		return false, nil
	}
	if _, done := s.completed[sessionID]; done || s.expired[sessionID] {
		return false, nil
	}
	s.completed[sessionID] = paymentIntentID
	return true, nil
}

func (s *stubLifecycle) MarkExpired(_ context.Context, sessionID string) (bool, error) {
	if !s.known[sessionID] {
		return false, nil
	}
	if _, done := s.completed[sessionID]; done || s.expired[sessionID] {
		return false, nil
	}
	s.expired[sessionID] = true
	return true, nil
}

func sessionEvent(t *testing.T, eventType stripe.EventType, sessionID, intentID string) *stripe.Event {
	t.Helper()
	body := map[string]any{"id": sessionID, "object": "checkout.session"}
	if intentID != "" {
		body["payment_intent"] = intentID
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{ID: "evt_" + sessionID, Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func newTestService(t *testing.T, lifecycle paymentLifecycle, reg prometheus.Registerer) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Applications: lifecycle,
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Metrics:      metrics.NewFulfillmentMetrics(reg),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return service
}

func TestService_CheckoutCompletedMarksApplication(t *testing.T) {
	lifecycle := newStubLifecycle("cs_1")
	reg := prometheus.NewRegistry()
	service := newTestService(t, lifecycle, reg)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_1", "pi_1")
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if lifecycle.completed["cs_1"] != "pi_1" {
		t.Fatalf("expected session completed with intent, got %v", lifecycle.completed)
	}

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("duplicate event: %v", err)
	}
	if len(lifecycle.completed) != 1 {
		t.Fatalf("expected a single completion")
	}

	count, err := testutil.GatherAndCount(reg, "fastidp_stripe_webhook_events_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected processed and noop series, got %d", count)
	}
}

func TestService_UnknownSessionIsNoop(t *testing.T) {
	lifecycle := newStubLifecycle()
	service := newTestService(t, lifecycle, nil)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_missing", "")
	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown session should succeed: %v", err)
	}
	if len(lifecycle.completed) != 0 {
		t.Fatalf("expected no mutation")
	}
}

func TestService_ExpiredAfterCompletionIsNoop(t *testing.T) {
	lifecycle := newStubLifecycle("cs_1")
	service := newTestService(t, lifecycle, nil)
	ctx := context.Background()

	if err := service.HandleEvent(ctx, sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_1", "pi_1")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := service.HandleEvent(ctx, sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, "cs_1", "")); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if lifecycle.expired["cs_1"] {
		t.Fatalf("completed session must not expire")
	}
}

func TestService_IgnoresOtherEvents(t *testing.T) {
	lifecycle := newStubLifecycle("cs_1")
	service := newTestService(t, lifecycle, nil)

	raw, _ := json.Marshal(map[string]any{"id": "pi_1", "object": "payment_intent"})
	for _, eventType := range []stripe.EventType{stripe.EventTypePaymentIntentSucceeded, stripe.EventTypeCustomerCreated} {
		event := &stripe.Event{ID: "evt_1", Type: eventType, Data: &stripe.EventData{Raw: raw}}
		if err := service.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("%s: %v", eventType, err)
		}
	}
	if len(lifecycle.completed) != 0 || len(lifecycle.expired) != 0 {
		t.Fatalf("expected no transitions")
	}
}

func TestService_RejectsMalformedSession(t *testing.T) {
	service := newTestService(t, newStubLifecycle(), nil)

	event := &stripe.Event{ID: "evt_1", Type: stripe.EventTypeCheckoutSessionCompleted, Data: &stripe.EventData{Raw: []byte(`{"object":"checkout.session"}`)}}
	if err := service.HandleEvent(context.Background(), event); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := service.HandleEvent(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil event")
	}
}

func TestService_PropagatesStoreErrors(t *testing.T) {
	lifecycle := newStubLifecycle("cs_1")
	lifecycle.err = errors.New("db down")
	service := newTestService(t, lifecycle, nil)

	if err := service.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "cs_1", "")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEventDeduper_SecondDeliveryIsDuplicate(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	guard, err := NewEventDeduper(client, time.Hour)
	if err != nil {
		t.Fatalf("deduper: %v", err)
	}
	ctx := context.Background()

	dup, err := guard.Claim(ctx, "evt_1")
	if err != nil || dup {
		t.Fatalf("first delivery: dup=%v err=%v", dup, err)
	}
	dup, err = guard.Claim(ctx, "evt_1")
	if err != nil || !dup {
		t.Fatalf("second delivery: dup=%v err=%v", dup, err)
	}
	if err := guard.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	dup, err = guard.Claim(ctx, "evt_1")
	if err != nil || dup {
		t.Fatalf("after delete: dup=%v err=%v", dup, err)
	}
}

func TestNewEventDeduperDefaultsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := redis.New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	deduper, err := NewEventDeduper(client, 0)
	if err != nil {
		t.Fatalf("deduper: %v", err)
	}
	if _, err := deduper.Claim(context.Background(), "evt_ttl"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ttl := mr.TTL(client.IdempotencyKey(dedupScope, "evt_ttl")); ttl != DefaultDedupTTL {
		t.Fatalf("expected default ttl, got %s", ttl)
	}
	if _, err := deduper.Claim(context.Background(), ""); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
	if _, err := NewEventDeduper(nil, time.Hour); err == nil {
		t.Fatalf("expected error without store")
	}
}

package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/metrics"
	"go.uber.org/multierr"
)

// EventApplicationPaid is emitted once per application when payment lands.
const EventApplicationPaid = "application.paid"

// Payload is what downstream automation receives for a paid application.
type Payload struct {
	Event           string                              `json:"event"`
	ApplicationID   string                              `json:"application_id"`
	PaymentStatus   enums.PaymentStatus                 `json:"payment_status"`
	FulfillmentType enums.FulfillmentType               `json:"fulfillment_type"`
	SessionID       string                              `json:"stripe_session_id,omitempty"`
	PaymentIntentID string                              `json:"stripe_payment_intent_id,omitempty"`
	ShippingCountry string                              `json:"shipping_country,omitempty"`
	CompletedAt     time.Time                           `json:"completed_at"`
	Form            map[string]any                      `json:"form"`
	Documents       map[enums.DocumentCategory][]string `json:"documents"`
}

// NewPayload flattens the stored form and attaches payment metadata. links
// holds the document URLs to hand out; nil falls back to the stored URLs.
func NewPayload(app *models.Application, links map[enums.DocumentCategory][]string) (Payload, error) {
	form, err := app.FormData.Flatten()
	if err != nil {
		return Payload{}, fmt.Errorf("flatten form data: %w", err)
	}
	if links == nil {
		links = make(map[enums.DocumentCategory][]string, len(app.FileURLs))
		for category, refs := range app.FileURLs {
			for _, ref := range refs {
				links[category] = append(links[category], ref.URL)
			}
		}
	}

	payload := Payload{
		Event:           EventApplicationPaid,
		ApplicationID:   app.ApplicationID,
		PaymentStatus:   app.PaymentStatus,
		FulfillmentType: app.FulfillmentType,
		Form:            form,
		Documents:       links,
	}
	if app.StripeSessionID != nil {
		payload.SessionID = *app.StripeSessionID
	}
	if app.StripePaymentIntentID != nil {
		payload.PaymentIntentID = *app.StripePaymentIntentID
	}
	if app.ShippingCountry != nil {
		payload.ShippingCountry = *app.ShippingCountry
	}
	if app.CompletedAt != nil {
		payload.CompletedAt = app.CompletedAt.UTC()
	} else {
		payload.CompletedAt = app.UpdatedAt.UTC()
	}
	return payload, nil
}

// Trigger notifies downstream automation about a paid application.
type Trigger interface {
	Fire(ctx context.Context, payload Payload) error
}

// Sink is a named Trigger, so fan-out failures can be attributed.
type Sink struct {
	Name    string
	Trigger Trigger
}

// FanOut delivers to every sink and reports all failures together. One sink
// failing never stops the others.
type FanOut struct {
	sinks   []Sink
	logg    *logger.Logger
	metrics *metrics.FulfillmentMetrics
}

func NewFanOut(logg *logger.Logger, m *metrics.FulfillmentMetrics, sinks ...Sink) *FanOut {
	active := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink.Trigger != nil {
			active = append(active, sink)
		}
	}
	return &FanOut{sinks: active, logg: logg, metrics: m}
}

// Sinks lists the configured sink names.
func (f *FanOut) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, sink := range f.sinks {
		names = append(names, sink.Name)
	}
	return names
}

func (f *FanOut) Fire(ctx context.Context, payload Payload) error {
	var errs error
	for _, sink := range f.sinks {
		if err := sink.Trigger.Fire(ctx, payload); err != nil {
			f.metrics.TriggerDelivery(sink.Name, "failed")
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sink.Name, err))
			continue
		}
		f.metrics.TriggerDelivery(sink.Name, "delivered")
	}
	return errs
}

// LogTrigger records the event in the service log only. It is the sink used
// when no downstream endpoint is configured.
type LogTrigger struct {
	logg *logger.Logger
}

func NewLogTrigger(logg *logger.Logger) *LogTrigger {
	return &LogTrigger{logg: logg}
}

func (l *LogTrigger) Fire(ctx context.Context, payload Payload) error {
	if l == nil || l.logg == nil {
		return nil
	}
	ctx = l.logg.WithFields(ctx, map[string]any{
		"application_id":   payload.ApplicationID,
		"fulfillment_type": payload.FulfillmentType,
		"event":            payload.Event,
	})
	l.logg.Info(ctx, "automation trigger recorded")
	return nil
}

package stripewebhook

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/metrics"
	"github.com/stripe/stripe-go/v84"
)

const (
	outcomeProcessed = "processed"
	outcomeNoop      = "noop"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

type paymentLifecycle interface {
	MarkCompleted(ctx context.Context, sessionID, paymentIntentID string) (bool, error)
	MarkExpired(ctx context.Context, sessionID string) (bool, error)
}

type ServiceParams struct {
	Applications paymentLifecycle
	Logger       *logger.Logger
	Metrics      *metrics.FulfillmentMetrics
}

// Service applies verified Stripe events to applications.
type Service struct {
	applications paymentLifecycle
	logg         *logger.Logger
	metrics      *metrics.FulfillmentMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Applications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "application service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		applications: params.Applications,
		logg:         params.Logger,
		metrics:      params.Metrics,
	}, nil
}

// HandleEvent dispatches one event. Events for unknown sessions and repeated
// deliveries succeed without side effects.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithEventID(ctx, event.ID)
	ctx = s.logg.WithField(ctx, "event_type", eventType)

	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		s.metrics.WebhookEvent(eventType, outcomeFailed)
		return err
	}
	s.metrics.WebhookEvent(eventType, outcome)
	return nil
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (string, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		sess, err := decodeSession(event)
		if err != nil {
			return "", err
		}
		intentID := ""
		if sess.PaymentIntent != nil {
			intentID = sess.PaymentIntent.ID
		}
		moved, err := s.applications.MarkCompleted(ctx, sess.ID, intentID)
		return transitionOutcome(moved), err
	case stripe.EventTypeCheckoutSessionExpired:
		sess, err := decodeSession(event)
		if err != nil {
			return "", err
		}
		moved, err := s.applications.MarkExpired(ctx, sess.ID)
		return transitionOutcome(moved), err
	case stripe.EventTypePaymentIntentSucceeded:
		s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", event.GetObjectValue("id")), "payment intent succeeded")
		return outcomeProcessed, nil
	default:
		s.logg.Info(ctx, "stripe event ignored")
		return outcomeIgnored, nil
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if sess.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &sess, nil
}

func transitionOutcome(moved bool) string {
	if moved {
		return outcomeProcessed
	}
	return outcomeNoop
}

package controllers

import (
	"context"
	"net/http"

	"github.com/fastidp/fastidp-backend/api/responses"
	"github.com/fastidp/fastidp-backend/api/validators"
	"github.com/fastidp/fastidp-backend/internal/payments"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
)

type paymentCreator interface {
	CreatePaymentIntent(ctx context.Context, applicationID string) (*payments.IntentResult, error)
	CreateCheckout(ctx context.Context, input payments.CheckoutInput) (*payments.CheckoutResult, error)
}

type paymentIntentRequest struct {
	ApplicationID string `json:"applicationId" validate:"required,max=128"`
}

type checkoutSessionRequest struct {
	ApplicationID string `json:"applicationId" validate:"required,max=128"`
	SuccessURL    string `json:"successUrl"`
	CancelURL     string `json:"cancelUrl"`
}

// CreatePaymentIntent prices the stored application and opens a PaymentIntent.
func CreatePaymentIntent(svc paymentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload paymentIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreatePaymentIntent(r.Context(), payload.ApplicationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CreateCheckout opens a hosted Stripe Checkout Session.
func CreateCheckout(svc paymentCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload checkoutSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateCheckout(r.Context(), payments.CheckoutInput{
			ApplicationID: payload.ApplicationID,
			SuccessURL:    payload.SuccessURL,
			CancelURL:     payload.CancelURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

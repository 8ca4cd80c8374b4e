package controllers

import (
	"context"
	"net/http"

	"github.com/fastidp/fastidp-backend/api/responses"
	"github.com/fastidp/fastidp-backend/api/validators"
	"github.com/fastidp/fastidp-backend/internal/shipping"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
)

type labelPurchaser interface {
	PurchaseLabel(ctx context.Context, applicationID string, opts shipping.PurchaseOptions) (*shipping.PurchaseResult, error)
}

type createLabelRequest struct {
	ApplicationID   string `json:"applicationId" validate:"required,max=128"`
	MaxDeliveryDays int    `json:"maxDeliveryDays" validate:"min=0,max=60"`
}

// CreateShippingLabel buys the carrier label for a paid application. A label
// that already exists is returned with 200 instead of 201.
func CreateShippingLabel(svc labelPurchaser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var payload createLabelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PurchaseLabel(r.Context(), payload.ApplicationID, shipping.PurchaseOptions{
			MaxDeliveryDays: payload.MaxDeliveryDays,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.AlreadyPurchased {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

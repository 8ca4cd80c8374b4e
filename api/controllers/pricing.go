package controllers

import (
	"net/http"

	"github.com/fastidp/fastidp-backend/api/responses"
	"github.com/fastidp/fastidp-backend/api/validators"
	"github.com/fastidp/fastidp-backend/internal/pricing"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
)

type quoter interface {
	Compute(sel pricing.Selection) (pricing.PriceQuote, error)
}

type quoteRequest struct {
	SelectedPermits  []string `json:"selectedPermits" validate:"max=10"`
	ProcessingSpeed  string   `json:"processingSpeed"`
	ShippingCategory string   `json:"shippingCategory"`
}

// PricingQuote previews the order summary for a partially filled form.
func PricingQuote(engine quoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing unavailable"))
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := engine.Compute(pricing.Selection{
			SelectedPermits:  payload.SelectedPermits,
			ProcessingSpeed:  enums.ProcessingSpeed(payload.ProcessingSpeed),
			ShippingCategory: enums.ShippingCategory(payload.ShippingCategory),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

package controllers

import (
	"context"
	"net/http"

	"github.com/fastidp/fastidp-backend/api/responses"
	"github.com/fastidp/fastidp-backend/api/validators"
	"github.com/fastidp/fastidp-backend/internal/payments"
	"github.com/fastidp/fastidp-backend/internal/shipping"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/types"
)

type addressVerifier interface {
	VerifyAddress(ctx context.Context, addr types.ShippingAddress) (*shipping.AddressVerification, error)
}

type couponValidator interface {
	ValidateCoupon(ctx context.Context, code string) (*payments.CouponResult, error)
}

type validateAddressRequest struct {
	Name    string `json:"name" validate:"max=128"`
	Street1 string `json:"street1" validate:"required,max=256"`
	Street2 string `json:"street2" validate:"max=256"`
	City    string `json:"city" validate:"max=128"`
	State   string `json:"state" validate:"max=64"`
	Zip     string `json:"zip" validate:"max=32"`
	Country string `json:"country" validate:"max=64"`
	Phone   string `json:"phone" validate:"max=32"`
}

type validateCouponRequest struct {
	Code string `json:"code" validate:"required,max=128"`
}

// ValidateAddress verifies a delivery address with the carrier aggregator.
func ValidateAddress(svc addressVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var body validateAddressRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyAddress(r.Context(), types.ShippingAddress{
			Name:       validators.SanitizeString(body.Name, 128),
			Street1:    validators.SanitizeString(body.Street1, 256),
			Street2:    validators.SanitizeString(body.Street2, 256),
			City:       validators.SanitizeString(body.City, 128),
			State:      validators.SanitizeCode(body.State, 64),
			PostalCode: validators.SanitizeString(body.Zip, 32),
			Country:    validators.SanitizeCode(body.Country, 64),
			Phone:      validators.SanitizeString(body.Phone, 32),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ValidateCoupon looks up a promotion code. Unknown codes are reported as
// invalid rather than as an error.
func ValidateCoupon(svc couponValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var body validateCouponRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ValidateCoupon(r.Context(), body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

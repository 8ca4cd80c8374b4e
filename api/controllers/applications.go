package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/fastidp/fastidp-backend/api/responses"
	"github.com/fastidp/fastidp-backend/api/validators"
	"github.com/fastidp/fastidp-backend/internal/applications"
	"github.com/fastidp/fastidp-backend/internal/documents"
	"github.com/fastidp/fastidp-backend/internal/pricing"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/types"
)

const (
	applicationIDField = "applicationId"
	formDataField      = "formData"
)

// documentFields maps multipart file fields to document categories.
var documentFields = []struct {
	field    string
	category enums.DocumentCategory
}{
	{"driversLicense", enums.DocumentDriversLicense},
	{"passportPhoto", enums.DocumentPassportPhoto},
	{"signature", enums.DocumentSignature},
}

type applicationCreator interface {
	Create(ctx context.Context, input applications.CreateInput) (*applications.CreateResult, error)
}

type applicationResponse struct {
	ApplicationID   string                `json:"application_id"`
	PaymentStatus   enums.PaymentStatus   `json:"payment_status"`
	FulfillmentType enums.FulfillmentType `json:"fulfillment_type"`
	CountryCode     string                `json:"country_code,omitempty"`
	Quote           pricing.PriceQuote    `json:"quote"`
}

// CreateApplication accepts the multipart application form with its identity
// documents.
func CreateApplication(svc applicationCreator, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "application service unavailable"))
			return
		}

		if err := validators.ParseMultipart(w, r, maxBodyBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var form types.FormData
		if strings.TrimSpace(r.FormValue(formDataField)) != "" {
			if err := validators.DecodeFormJSON(r, formDataField, &form); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Create(r.Context(), applications.CreateInput{
			ApplicationID: r.FormValue(applicationIDField),
			FormData:      form,
			Documents:     uploadedDocuments(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, applicationResponse{
			ApplicationID:   result.Application.ApplicationID,
			PaymentStatus:   result.Application.PaymentStatus,
			FulfillmentType: result.Decision.Type,
			CountryCode:     result.Decision.CountryCode,
			Quote:           result.Quote,
		})
	}
}

func uploadedDocuments(r *http.Request) []documents.File {
	var files []documents.File
	for _, df := range documentFields {
		for _, header := range validators.FormFiles(r, df.field) {
			fh := header
			files = append(files, documents.File{
				Category: df.category,
				FileName: fh.Filename,
				Size:     fh.Size,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}
	return files
}

package controllers

import (
	"context"
	"net/http"

	"github.com/fastidp/fastidp-backend/api/responses"
	"github.com/fastidp/fastidp-backend/pkg/db/models"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type testCompleter interface {
	MarkTestCompleted(ctx context.Context, applicationID string) (*models.Application, error)
}

// CompleteTestApplication marks an application paid without Stripe. Only
// registered outside production when test fixtures are enabled.
func CompleteTestApplication(svc testCompleter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "application service unavailable"))
			return
		}

		app, err := svc.MarkTestCompleted(r.Context(), chi.URLParam(r, "applicationId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"application_id": app.ApplicationID,
			"payment_status": app.PaymentStatus,
		})
	}
}

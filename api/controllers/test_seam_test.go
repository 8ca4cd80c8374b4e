package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/go-chi/chi/v5"
)

type stubTestCompleter struct {
	id  string
	err error
}

func (s *stubTestCompleter) MarkTestCompleted(_ context.Context, applicationID string) (*models.Application, error) {
	s.id = applicationID
	if s.err != nil {
		return nil, s.err
	}
	return &models.Application{ApplicationID: applicationID, PaymentStatus: enums.PaymentStatusTestCompleted}, nil
}

func TestCompleteTestApplicationReadsPathParam(t *testing.T) {
	t.Parallel()

	svc := &stubTestCompleter{}
	router := chi.NewRouter()
	router.Post("/test/applications/{applicationId}/complete", CompleteTestApplication(svc, nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/test/applications/app-9/complete", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.id != "app-9" {
		t.Fatalf("unexpected id %q", svc.id)
	}
}

func TestCompleteTestApplicationSettled(t *testing.T) {
	t.Parallel()

	svc := &stubTestCompleter{err: pkgerrors.New(pkgerrors.CodeStateConflict, "application is not pending")}
	router := chi.NewRouter()
	router.Post("/test/applications/{applicationId}/complete", CompleteTestApplication(svc, nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/test/applications/app-9/complete", nil))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

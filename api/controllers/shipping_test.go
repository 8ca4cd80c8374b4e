package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fastidp/fastidp-backend/internal/shipping"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/types"
)

type stubLabelPurchaser struct {
	id     string
	opts   shipping.PurchaseOptions
	result *shipping.PurchaseResult
	err    error
}

func (s *stubLabelPurchaser) PurchaseLabel(_ context.Context, applicationID string, opts shipping.PurchaseOptions) (*shipping.PurchaseResult, error) {
	s.id = applicationID
	s.opts = opts
	return s.result, s.err
}

func TestCreateShippingLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result *shipping.PurchaseResult
		err    error
		want   int
	}{
		{"purchased", &shipping.PurchaseResult{ApplicationID: "app-1", Label: types.ShippingLabel{TrackingCode: "9400"}}, nil, http.StatusCreated},
		{"already purchased", &shipping.PurchaseResult{ApplicationID: "app-1", AlreadyPurchased: true}, nil, http.StatusOK},
		{"no qualifying rate", nil, pkgerrors.New(pkgerrors.CodeValidation, "no rate within deadline"), http.StatusBadRequest},
		{"in progress", nil, pkgerrors.New(pkgerrors.CodeStateConflict, "label purchase already in progress"), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		svc := &stubLabelPurchaser{result: tt.result, err: tt.err}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shipping/labels", strings.NewReader(`{"applicationId":"app-1","maxDeliveryDays":4}`))
		resp := httptest.NewRecorder()
		CreateShippingLabel(svc, nil).ServeHTTP(resp, req)

		if resp.Code != tt.want {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.want, resp.Code)
		}
		if svc.id != "app-1" || svc.opts.MaxDeliveryDays != 4 {
			t.Fatalf("%s: unexpected call %q %+v", tt.name, svc.id, svc.opts)
		}
	}
}

func TestCreateShippingLabelRejectsNegativeDeadline(t *testing.T) {
	t.Parallel()

	svc := &stubLabelPurchaser{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shipping/labels", strings.NewReader(`{"applicationId":"app-1","maxDeliveryDays":-1}`))
	resp := httptest.NewRecorder()
	CreateShippingLabel(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.id != "" {
		t.Fatalf("service should not be called")
	}
}

package shipping

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/easypost"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubProvider struct {
	shipment    *easypost.Shipment
	createErr   error
	buyErr      error
	verified    *easypost.Address
	createCalls int
	buyCalls    int
	lastRequest easypost.ShipmentRequest
	boughtRate  string
}

func (p *stubProvider) VerifyAddress(ctx context.Context, addr easypost.Address) (*easypost.Address, error) {
	if p.verified != nil {
		return p.verified, nil
	}
	return &addr, nil
}

func (p *stubProvider) CreateShipment(ctx context.Context, req easypost.ShipmentRequest) (*easypost.Shipment, error) {
	p.createCalls++
	p.lastRequest = req
	if p.createErr != nil {
		return nil, p.createErr
	}
	return p.shipment, nil
}

func (p *stubProvider) BuyShipment(ctx context.Context, shipmentID, rateID string) (*easypost.Shipment, error) {
	p.buyCalls++
	p.boughtRate = rateID
	if p.buyErr != nil {
		return nil, p.buyErr
	}
	return &easypost.Shipment{
		ID:           shipmentID,
		TrackingCode: "9400TRACK",
		PostageLabel: &easypost.PostageLabel{LabelURL: "https://labels.example/label.png"},
	}, nil
}

type memoryLabelStore struct {
	apps   map[string]*models.Application
	saved  map[string]types.ShippingLabel
	failed map[string]string
}

func newMemoryLabelStore(apps ...*models.Application) *memoryLabelStore {
	store := &memoryLabelStore{
		apps:   map[string]*models.Application{},
		saved:  map[string]types.ShippingLabel{},
		failed: map[string]string{},
	}
	for _, app := range apps {
		store.apps[app.ApplicationID] = app
	}
	return store
}

func (m *memoryLabelStore) FindByID(ctx context.Context, id string) (*models.Application, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *app
	return &copied, nil
}

func (m *memoryLabelStore) ClaimLabel(ctx context.Context, id string) (bool, error) {
	app, ok := m.apps[id]
	if !ok {
		return false, nil
	}
	if app.LabelStatus != enums.LabelStatusNone && app.LabelStatus != enums.LabelStatusFailed {
		return false, nil
	}
	app.LabelStatus = enums.LabelStatusPurchasing
	return true, nil
}

func (m *memoryLabelStore) SaveLabel(ctx context.Context, id string, label types.ShippingLabel, at time.Time) error {
	app := m.apps[id]
	app.LabelStatus = enums.LabelStatusPurchased
	app.TrackingCode = &label.TrackingCode
	app.LabelURL = &label.LabelURL
	app.ShippingCarrier = &label.Carrier
	app.ShippingService = &label.Service
	app.ShippingRateCents = &label.RateCents
	m.saved[id] = label
	return nil
}

func (m *memoryLabelStore) FailLabel(ctx context.Context, id, reason string) error {
	m.apps[id].LabelStatus = enums.LabelStatusFailed
	m.failed[id] = reason
	return nil
}

func (m *memoryLabelStore) ListAwaitingLabel(ctx context.Context, before time.Time, limit int) ([]models.Application, error) {
	out := []models.Application{}
	for _, app := range m.apps {
		if app.PaymentStatus == enums.PaymentStatusCompleted &&
			app.FulfillmentType == enums.FulfillmentAutomated &&
			app.LabelStatus == enums.LabelStatusNone {
			out = append(out, *app)
		}
	}
	return out, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testShippingConfig() config.ShippingConfig {
	return config.ShippingConfig{
		StandardMaxDays: 10,
		FastMaxDays:     5,
		FastestMaxDays:  3,
		ParcelLengthIn:  9.5,
		ParcelWidthIn:   6.5,
		ParcelHeightIn:  0.5,
		ParcelWeightOz:  4,
		CustomsSigner:   "Fast IDP",
		CustomsValueUSD: 20,
		CustomsHSTariff: "4901.99",
	}
}

func newTestService(t *testing.T, provider Provider, store LabelStore) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Provider:    provider,
		Store:       store,
		Logger:      testLogger(),
		Config:      testShippingConfig(),
		FromAddress: easypost.Address{Street1: "100 Congress Ave", City: "Austin", State: "TX", Zip: "78701", Country: "US"},
		Now:         func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func paidDomesticApplication(id string, speed enums.ProcessingSpeed) *models.Application {
	return &models.Application{
		ApplicationID:   id,
		PaymentStatus:   enums.PaymentStatusCompleted,
		FulfillmentType: enums.FulfillmentAutomated,
		LabelStatus:     enums.LabelStatusNone,
		FormData: types.FormData{
			Email:            "ana@example.com",
			FirstName:        "Ana",
			LastName:         "Lopez",
			SelectedPermits:  []string{"idp_1949"},
			ProcessingSpeed:  speed,
			ShippingCategory: enums.ShippingDomestic,
			ShippingAddress: &types.ShippingAddress{
				Street1:    "1 Main St",
				City:       "Denver",
				State:      "CO",
				PostalCode: "80202",
			},
		},
	}
}

func threeRates() *easypost.Shipment {
	return &easypost.Shipment{
		ID: "shp_1",
		Rates: []easypost.Rate{
			{ID: "ground", Carrier: "USPS", Service: "GroundAdvantage", Rate: "5.10", DeliveryDays: "6"},
			{ID: "priority", Carrier: "USPS", Service: "Priority", Rate: "9.15", DeliveryDays: "3"},
			{ID: "express", Carrier: "USPS", Service: "Express", Rate: "31.00", DeliveryDays: "1"},
			{ID: "broken", Carrier: "USPS", Service: "Mystery", Rate: "n/a", DeliveryDays: "1"},
		},
	}
}

func TestPurchaseLabelBuysFastestWithinDeadline(t *testing.T) {
	store := newMemoryLabelStore(paidDomesticApplication("app-1", enums.ProcessingStandard))
	provider := &stubProvider{shipment: threeRates()}
	svc := newTestService(t, provider, store)

	result, err := svc.PurchaseLabel(context.Background(), "app-1", PurchaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "express", provider.boughtRate)
	assert.Equal(t, "9400TRACK", result.Label.TrackingCode)
	assert.Equal(t, int64(3100), result.Label.RateCents)
	assert.Equal(t, enums.LabelStatusPurchased, store.apps["app-1"].LabelStatus)
	assert.Nil(t, provider.lastRequest.CustomsInfo)
	assert.Equal(t, "Ana Lopez", provider.lastRequest.ToAddress.Name)
	assert.Equal(t, "US", provider.lastRequest.ToAddress.Country)
}

func TestPurchaseLabelOverrideDeadline(t *testing.T) {
	store := newMemoryLabelStore(paidDomesticApplication("app-1", enums.ProcessingStandard))
	provider := &stubProvider{shipment: &easypost.Shipment{
		ID: "shp_1",
		Rates: []easypost.Rate{
			{ID: "ground", Rate: "5.10", DeliveryDays: "6"},
			{ID: "priority", Rate: "9.15", DeliveryDays: "3"},
		},
	}}
	svc := newTestService(t, provider, store)

	_, err := svc.PurchaseLabel(context.Background(), "app-1", PurchaseOptions{MaxDeliveryDays: 3})
	require.NoError(t, err)
	assert.Equal(t, "priority", provider.boughtRate)
}

func TestPurchaseLabelNoQualifyingRateRecordsFailure(t *testing.T) {
	store := newMemoryLabelStore(paidDomesticApplication("app-1", enums.ProcessingFastest))
	provider := &stubProvider{shipment: &easypost.Shipment{
		ID:    "shp_1",
		Rates: []easypost.Rate{{ID: "ground", Rate: "5.10", DeliveryDays: "6"}},
	}}
	svc := newTestService(t, provider, store)

	_, err := svc.PurchaseLabel(context.Background(), "app-1", PurchaseOptions{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	var noRate *NoQualifyingRateError
	assert.True(t, errors.As(err, &noRate))
	assert.Equal(t, 0, provider.buyCalls)
	assert.Equal(t, enums.LabelStatusFailed, store.apps["app-1"].LabelStatus)
	assert.Contains(t, store.failed["app-1"], "no shipping rate")
}

func TestPurchaseLabelIsIdempotentOncePurchased(t *testing.T) {
	store := newMemoryLabelStore(paidDomesticApplication("app-1", enums.ProcessingStandard))
	provider := &stubProvider{shipment: threeRates()}
	svc := newTestService(t, provider, store)

	_, err := svc.PurchaseLabel(context.Background(), "app-1", PurchaseOptions{})
	require.NoError(t, err)

	again, err := svc.PurchaseLabel(context.Background(), "app-1", PurchaseOptions{})
	require.NoError(t, err)
	assert.True(t, again.AlreadyPurchased)
	assert.Equal(t, "9400TRACK", again.Label.TrackingCode)
	assert.Equal(t, 1, provider.buyCalls)
	assert.Equal(t, 1, provider.createCalls)
}

func TestPurchaseLabelRejectsIneligibleApplications(t *testing.T) {
	pending := paidDomesticApplication("pending", enums.ProcessingStandard)
	pending.PaymentStatus = enums.PaymentStatusPending
	manual := paidDomesticApplication("manual", enums.ProcessingStandard)
	manual.FulfillmentType = enums.FulfillmentManual
	inFlight := paidDomesticApplication("inflight", enums.ProcessingStandard)
	inFlight.LabelStatus = enums.LabelStatusPurchasing

	store := newMemoryLabelStore(pending, manual, inFlight)
	provider := &stubProvider{shipment: threeRates()}
	svc := newTestService(t, provider, store)

	for _, id := range []string{"pending", "manual", "inflight"} {
		_, err := svc.PurchaseLabel(context.Background(), id, PurchaseOptions{})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "id=%s err=%v", id, err)
	}
	_, err := svc.PurchaseLabel(context.Background(), "missing", PurchaseOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 0, provider.createCalls)
}

func TestPurchaseLabelProviderFailureIsRetryable(t *testing.T) {
	store := newMemoryLabelStore(paidDomesticApplication("app-1", enums.ProcessingStandard))
	provider := &stubProvider{
		shipment:  threeRates(),
		createErr: pkgerrors.Provider("easypost", errors.New("status 503"), false, "shipping provider rejected the request"),
	}
	svc := newTestService(t, provider, store)

	_, err := svc.PurchaseLabel(context.Background(), "app-1", PurchaseOptions{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, enums.LabelStatusFailed, store.apps["app-1"].LabelStatus)

	provider.createErr = nil
	result, err := svc.PurchaseLabel(context.Background(), "app-1", PurchaseOptions{})
	require.NoError(t, err)
	assert.False(t, result.AlreadyPurchased)
}

func TestPurchaseLabelInternationalFromFreeText(t *testing.T) {
	app := paidDomesticApplication("intl", enums.ProcessingFast)
	app.FormData.ShippingCategory = enums.ShippingInternational
	app.FormData.ShippingAddress = nil
	app.FormData.SelectedPermits = []string{"idp_1949", "idp_1926"}
	full := "12 Rue de Rivoli\nAppartement 4\n75001 Paris\nFrance"
	country := "FR"
	pccc := "P123"
	app.InternationalFullAddress = &full
	app.ShippingCountry = &country
	app.PCCCCode = &pccc
	instructions := "Leave with concierge"
	app.InternationalDeliveryInstructions = &instructions

	store := newMemoryLabelStore(app)
	provider := &stubProvider{shipment: threeRates()}
	svc := newTestService(t, provider, store)

	_, err := svc.PurchaseLabel(context.Background(), "intl", PurchaseOptions{})
	require.NoError(t, err)

	to := provider.lastRequest.ToAddress
	assert.Equal(t, "12 Rue de Rivoli", to.Street1)
	assert.Equal(t, "Appartement 4", to.Street2)
	assert.Equal(t, "75001 Paris", to.City)
	assert.Equal(t, "FR", to.Country)
	assert.Equal(t, "P123", to.FederalTaxID)
	require.NotNil(t, provider.lastRequest.CustomsInfo)
	assert.Equal(t, 2, provider.lastRequest.CustomsInfo.CustomsItems[0].Quantity)
	assert.InDelta(t, 40.0, provider.lastRequest.CustomsInfo.CustomsItems[0].Value, 0.001)
	assert.Equal(t, "Leave with concierge", provider.lastRequest.DeliveryInstructions)
}

func TestPurchasePendingAggregatesFailures(t *testing.T) {
	ok := paidDomesticApplication("ok", enums.ProcessingStandard)
	noAddress := paidDomesticApplication("no-address", enums.ProcessingStandard)
	noAddress.FormData.ShippingAddress = nil

	store := newMemoryLabelStore(ok, noAddress)
	provider := &stubProvider{shipment: threeRates()}
	svc := newTestService(t, provider, store)

	purchased, err := svc.PurchasePending(context.Background(), 15*time.Minute, 10)
	assert.Equal(t, 1, purchased)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-address")
}

func TestVerifyAddressReportsDeliveryErrors(t *testing.T) {
	provider := &stubProvider{verified: &easypost.Address{
		Street1: "1 NOWHERE RD",
		Country: "US",
		Verifications: &easypost.Verifications{Delivery: &easypost.Verification{
			Success: false,
			Errors:  []easypost.FieldError{{Field: "street1", Message: "Address not found"}},
		}},
	}}
	svc := newTestService(t, provider, newMemoryLabelStore())

	result, err := svc.VerifyAddress(context.Background(), types.ShippingAddress{Street1: "1 nowhere rd"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"Address not found"}, result.Errors)
	assert.Equal(t, "1 NOWHERE RD", result.Address.Street1)

	_, err = svc.VerifyAddress(context.Background(), types.ShippingAddress{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeadlineFor(t *testing.T) {
	svc := newTestService(t, &stubProvider{}, newMemoryLabelStore())
	assert.Equal(t, 10, svc.DeadlineFor(enums.ProcessingStandard))
	assert.Equal(t, 5, svc.DeadlineFor(enums.ProcessingFast))
	assert.Equal(t, 3, svc.DeadlineFor(enums.ProcessingFastest))
	assert.Equal(t, 10, svc.DeadlineFor(""))
}

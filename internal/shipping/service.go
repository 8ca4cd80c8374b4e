package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fastidp/fastidp-backend/internal/fulfillment"
	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/easypost"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/metrics"
	"github.com/fastidp/fastidp-backend/pkg/types"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	customsContentsType  = "documents"
	customsDescription   = "International Driving Permit"
	customsEELPFC        = "NOEEI 30.37(a)"
	customsOriginCountry = "US"
	labelErrorMaxLength  = 500
)

// Provider is the carrier aggregator used for rating and label purchase.
type Provider interface {
	VerifyAddress(ctx context.Context, addr easypost.Address) (*easypost.Address, error)
	CreateShipment(ctx context.Context, req easypost.ShipmentRequest) (*easypost.Shipment, error)
	BuyShipment(ctx context.Context, shipmentID, rateID string) (*easypost.Shipment, error)
}

// LabelStore persists label state on application records.
type LabelStore interface {
	FindByID(ctx context.Context, applicationID string) (*models.Application, error)
	ClaimLabel(ctx context.Context, applicationID string) (bool, error)
	SaveLabel(ctx context.Context, applicationID string, label types.ShippingLabel, purchasedAt time.Time) error
	FailLabel(ctx context.Context, applicationID, reason string) error
	ListAwaitingLabel(ctx context.Context, completedBefore time.Time, limit int) ([]models.Application, error)
}

type ServiceParams struct {
	Provider    Provider
	Store       LabelStore
	Logger      *logger.Logger
	Metrics     *metrics.FulfillmentMetrics
	Config      config.ShippingConfig
	FromAddress easypost.Address
	Now         func() time.Time
}

type Service struct {
	provider Provider
	store    LabelStore
	logg     *logger.Logger
	metrics  *metrics.FulfillmentMetrics
	cfg      config.ShippingConfig
	from     easypost.Address
	now      func() time.Time
}

// PurchaseOptions overrides the per-speed delivery deadline when positive.
type PurchaseOptions struct {
	MaxDeliveryDays int
}

// PurchaseResult describes the label attached to an application.
type PurchaseResult struct {
	ApplicationID    string              `json:"application_id"`
	Label            types.ShippingLabel `json:"label"`
	Rate             *RateQuote          `json:"rate,omitempty"`
	AlreadyPurchased bool                `json:"already_purchased"`
}

// AddressVerification is the outcome of a delivery verification.
type AddressVerification struct {
	Valid   bool                  `json:"valid"`
	Address types.ShippingAddress `json:"address"`
	Errors  []string              `json:"errors,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping provider required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "label store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if strings.TrimSpace(params.FromAddress.Street1) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ship-from address required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		provider: params.Provider,
		store:    params.Store,
		logg:     params.Logger,
		metrics:  params.Metrics,
		cfg:      params.Config,
		from:     params.FromAddress,
		now:      now,
	}, nil
}

// FromAddressFromConfig builds the ship-from address.
func FromAddressFromConfig(cfg config.EasyPostConfig) easypost.Address {
	return easypost.Address{
		Name:    cfg.FromName,
		Company: cfg.FromCompany,
		Street1: cfg.FromStreet1,
		Street2: cfg.FromStreet2,
		City:    cfg.FromCity,
		State:   cfg.FromState,
		Zip:     cfg.FromPostalCode,
		Country: cfg.FromCountry,
		Phone:   cfg.FromPhone,
		Email:   cfg.FromEmail,
	}
}

// DeadlineFor maps a processing speed to the maximum acceptable transit time.
func (s *Service) DeadlineFor(speed enums.ProcessingSpeed) int {
	switch speed {
	case enums.ProcessingFastest:
		return positiveOr(s.cfg.FastestMaxDays, 3)
	case enums.ProcessingFast:
		return positiveOr(s.cfg.FastMaxDays, 5)
	default:
		return positiveOr(s.cfg.StandardMaxDays, 10)
	}
}

// PurchaseLabel buys exactly one label for a paid, automated application. The
// claim on label_status keeps concurrent callers from buying twice; a failed
// purchase is recorded and may be retried by calling again.
func (s *Service) PurchaseLabel(ctx context.Context, applicationID string, opts PurchaseOptions) (*PurchaseResult, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application_id is required")
	}
	ctx = s.logg.WithApplicationID(ctx, applicationID)

	app, err := s.store.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}

	if !app.PaymentStatus.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "application is not paid").
			WithDetails(map[string]any{"payment_status": app.PaymentStatus})
	}
	if app.FulfillmentType != enums.FulfillmentAutomated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "application requires manual fulfillment")
	}
	switch app.LabelStatus {
	case enums.LabelStatusPurchased:
		return &PurchaseResult{
			ApplicationID:    applicationID,
			Label:            labelFromApplication(app),
			AlreadyPurchased: true,
		}, nil
	case enums.LabelStatusPurchasing:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "label purchase already in progress")
	}

	req, err := s.buildShipment(app)
	if err != nil {
		return nil, err
	}

	claimed, err := s.store.ClaimLabel(ctx, applicationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim label purchase")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "label purchase already in progress")
	}

	shipment, err := s.provider.CreateShipment(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, applicationID, err)
	}

	quotes := s.quotesFrom(ctx, shipment.Rates)
	maxDays := opts.MaxDeliveryDays
	if maxDays <= 0 {
		maxDays = s.DeadlineFor(app.FormData.ProcessingSpeed)
	}
	best, err := SelectBestRate(quotes, maxDays)
	if err != nil {
		var noRate *NoQualifyingRateError
		if errors.As(err, &noRate) {
			err = pkgerrors.Wrap(pkgerrors.CodeValidation, err, "no shipping rate meets the delivery deadline").
				WithDetails(map[string]any{
					"max_delivery_days": noRate.MaxDeliveryDays,
					"rates_considered":  noRate.Considered,
				})
		}
		return nil, s.fail(ctx, applicationID, err)
	}

	bought, err := s.provider.BuyShipment(ctx, shipment.ID, best.ID)
	if err != nil {
		return nil, s.fail(ctx, applicationID, err)
	}

	label := types.ShippingLabel{
		TrackingCode: bought.TrackingCode,
		Carrier:      best.Carrier,
		Service:      best.Service,
		RateCents:    best.RateCents,
	}
	if bought.PostageLabel != nil {
		label.LabelURL = bought.PostageLabel.LabelURL
	}

	if err := s.store.SaveLabel(ctx, applicationID, label, s.now().UTC()); err != nil {
		s.logg.Error(ctx, "label bought but not recorded", err)
	}
	s.metrics.LabelPurchase("purchased")

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"carrier":       label.Carrier,
		"service":       label.Service,
		"tracking_code": label.TrackingCode,
		"rate_cents":    label.RateCents,
	})
	s.logg.Info(logCtx, "shipping label purchased")

	return &PurchaseResult{ApplicationID: applicationID, Label: label, Rate: &best}, nil
}

// PurchasePending buys labels for paid automated applications that have been
// waiting longer than olderThan. Individual failures are recorded on the rows
// and returned together.
func (s *Service) PurchasePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	pending, err := s.store.ListAwaitingLabel(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list applications awaiting labels")
	}

	purchased := 0
	var errs error
	for _, app := range pending {
		if ctx.Err() != nil {
			return purchased, multierr.Append(errs, ctx.Err())
		}
		result, err := s.PurchaseLabel(ctx, app.ApplicationID, PurchaseOptions{})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("application %s: %w", app.ApplicationID, err))
			continue
		}
		if !result.AlreadyPurchased {
			purchased++
		}
	}
	return purchased, errs
}

// VerifyAddress checks a destination with the carrier aggregator.
func (s *Service) VerifyAddress(ctx context.Context, addr types.ShippingAddress) (*AddressVerification, error) {
	if strings.TrimSpace(addr.Street1) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "street1 is required")
	}
	verified, err := s.provider.VerifyAddress(ctx, toProviderAddress(addr, ""))
	if err != nil {
		return nil, err
	}

	out := &AddressVerification{Valid: true, Address: fromProviderAddress(*verified)}
	if verified.Verifications != nil && verified.Verifications.Delivery != nil {
		delivery := verified.Verifications.Delivery
		out.Valid = delivery.Success
		for _, fe := range delivery.Errors {
			out.Errors = append(out.Errors, fe.Message)
		}
	}
	return out, nil
}

func (s *Service) fail(ctx context.Context, applicationID string, cause error) error {
	reason := cause.Error()
	if len(reason) > labelErrorMaxLength {
		reason = reason[:labelErrorMaxLength]
	}
	if err := s.store.FailLabel(ctx, applicationID, reason); err != nil {
		s.logg.Error(ctx, "record label failure", err)
	}
	s.metrics.LabelPurchase("failed")
	s.logg.Error(ctx, "shipping label purchase failed", cause)
	return cause
}

func (s *Service) quotesFrom(ctx context.Context, rates []easypost.Rate) []RateQuote {
	quotes := make([]RateQuote, 0, len(rates))
	for _, rate := range rates {
		quote, err := QuoteFromEasyPost(rate)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "rate_id", rate.ID), "skipping unparseable rate")
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes
}

func (s *Service) buildShipment(app *models.Application) (easypost.ShipmentRequest, error) {
	form := app.FormData
	var to easypost.Address

	switch form.ShippingCategory {
	case enums.ShippingDomestic, enums.ShippingMilitary:
		if form.ShippingAddress == nil || strings.TrimSpace(form.ShippingAddress.Street1) == "" {
			return easypost.ShipmentRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
		}
		to = toProviderAddress(*form.ShippingAddress, "US")
	case enums.ShippingInternational:
		country := destinationCountry(app)
		if country == "" {
			return easypost.ShipmentRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "destination country unresolved")
		}
		if form.ShippingAddress != nil && strings.TrimSpace(form.ShippingAddress.Street1) != "" {
			to = toProviderAddress(*form.ShippingAddress, country)
			to.Country = country
		} else {
			parsed, ok := addressFromFreeText(stringValue(app.InternationalFullAddress), country)
			if !ok {
				return easypost.ShipmentRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "international address is incomplete")
			}
			to = parsed
		}
	default:
		return easypost.ShipmentRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping category")
	}
	if to.Name == "" {
		to.Name = form.FullName()
	}
	if to.Email == "" {
		to.Email = form.Email
	}
	if to.Phone == "" {
		to.Phone = form.Phone
	}
	if pccc := stringValue(app.PCCCCode); pccc != "" {
		to.FederalTaxID = pccc
	}

	req := easypost.ShipmentRequest{
		ToAddress:   to,
		FromAddress: s.from,
		Parcel: easypost.Parcel{
			Length: s.cfg.ParcelLengthIn,
			Width:  s.cfg.ParcelWidthIn,
			Height: s.cfg.ParcelHeightIn,
			Weight: s.cfg.ParcelWeightOz,
		},
		Reference: app.ApplicationID,
	}
	if form.ShippingCategory != enums.ShippingDomestic {
		req.CustomsInfo = s.customsFor(form)
	}
	if instructions := stringValue(app.InternationalDeliveryInstructions); instructions != "" {
		req.DeliveryInstructions = instructions
	}
	return req, nil
}

func (s *Service) customsFor(form types.FormData) *easypost.CustomsInfo {
	quantity := len(form.SelectedPermits)
	if quantity == 0 {
		quantity = 1
	}
	return &easypost.CustomsInfo{
		ContentsType:      customsContentsType,
		CustomsCertify:    true,
		CustomsSigner:     s.cfg.CustomsSigner,
		EELPFC:            customsEELPFC,
		NonDeliveryOption: "return",
		RestrictionType:   "none",
		CustomsItems: []easypost.CustomsItem{{
			Description:    customsDescription,
			Quantity:       quantity,
			Value:          s.cfg.CustomsValueUSD * float64(quantity),
			Weight:         s.cfg.ParcelWeightOz,
			HSTariffNumber: s.cfg.CustomsHSTariff,
			OriginCountry:  customsOriginCountry,
		}},
	}
}

func destinationCountry(app *models.Application) string {
	if raw := strings.TrimSpace(stringValue(app.ShippingCountry)); raw != "" {
		if len(raw) == 2 {
			return strings.ToUpper(raw)
		}
		if code, ok := fulfillment.ExtractCountryCode(raw); ok {
			return code
		}
	}
	if code, ok := fulfillment.ExtractCountryCode(stringValue(app.InternationalFullAddress)); ok {
		return code
	}
	return ""
}

// addressFromFreeText reads "street / [street2...] / city line / country"
// style input. The trailing country line is dropped when present.
func addressFromFreeText(text, country string) (easypost.Address, bool) {
	lines := []string{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r", "\n"), "\n") {
		if trimmed := strings.Trim(strings.TrimSpace(line), ",;"); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) > 1 {
		if code, ok := fulfillment.ExtractCountryCode(lines[len(lines)-1]); ok && code == country {
			lines = lines[:len(lines)-1]
		}
	}
	if len(lines) < 2 {
		return easypost.Address{}, false
	}
	addr := easypost.Address{
		Street1: lines[0],
		City:    lines[len(lines)-1],
		Country: country,
	}
	if len(lines) > 2 {
		addr.Street2 = strings.Join(lines[1:len(lines)-1], ", ")
	}
	return addr, true
}

func toProviderAddress(addr types.ShippingAddress, defaultCountry string) easypost.Address {
	country := strings.ToUpper(strings.TrimSpace(addr.Country))
	if country == "" {
		country = defaultCountry
	}
	return easypost.Address{
		Name:    strings.TrimSpace(addr.Name),
		Street1: strings.TrimSpace(addr.Street1),
		Street2: strings.TrimSpace(addr.Street2),
		City:    strings.TrimSpace(addr.City),
		State:   strings.TrimSpace(addr.State),
		Zip:     strings.TrimSpace(addr.PostalCode),
		Country: country,
		Phone:   strings.TrimSpace(addr.Phone),
	}
}

func fromProviderAddress(addr easypost.Address) types.ShippingAddress {
	return types.ShippingAddress{
		Name:       addr.Name,
		Street1:    addr.Street1,
		Street2:    addr.Street2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.Zip,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func labelFromApplication(app *models.Application) types.ShippingLabel {
	label := types.ShippingLabel{
		TrackingCode: stringValue(app.TrackingCode),
		LabelURL:     stringValue(app.LabelURL),
		Carrier:      stringValue(app.ShippingCarrier),
		Service:      stringValue(app.ShippingService),
	}
	if app.ShippingRateCents != nil {
		label.RateCents = *app.ShippingRateCents
	}
	return label
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

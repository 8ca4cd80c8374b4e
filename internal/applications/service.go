package applications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fastidp/fastidp-backend/internal/automation"
	"github.com/fastidp/fastidp-backend/internal/documents"
	"github.com/fastidp/fastidp-backend/internal/fulfillment"
	"github.com/fastidp/fastidp-backend/internal/pricing"
	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/types"
	"gorm.io/gorm"
)

const (
	maxApplicationIDLength = 128
	defaultTriggerTimeout  = 30 * time.Second
)

type documentStore interface {
	Save(ctx context.Context, applicationID string, files []documents.File) (types.FileURLs, error)
	Discard(ctx context.Context, files types.FileURLs)
	DownloadURLs(ctx context.Context, files types.FileURLs) map[enums.DocumentCategory][]string
}

type pricer interface {
	Compute(sel pricing.Selection) (pricing.PriceQuote, error)
}

type ServiceParams struct {
	Repo      Repository
	Documents documentStore
	Pricing   pricer
	Router    *fulfillment.Router
	Trigger   automation.Trigger
	Logger    *logger.Logger
	Now       func() time.Time

	// TriggerTimeout bounds the automation fan-out after a completion.
	TriggerTimeout time.Duration
}

// Service owns the application lifecycle: creation, payment completion and
// expiry. Payment status only moves out of pending through the conditional
// updates in the repository.
type Service struct {
	repo      Repository
	documents documentStore
	pricing   pricer
	router    *fulfillment.Router
	trigger   automation.Trigger
	logg      *logger.Logger
	now       func() time.Time

	triggerTimeout time.Duration
}

// CreateInput is a submitted application with its identity documents.
type CreateInput struct {
	ApplicationID string
	FormData      types.FormData
	Documents     []documents.File
}

// CreateResult is the stored application plus the routing decision and quote.
type CreateResult struct {
	Application *models.Application
	Decision    fulfillment.Decision
	Quote       pricing.PriceQuote
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "application repository required")
	}
	if params.Documents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "document store required")
	}
	if params.Pricing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "pricing engine required")
	}
	if params.Router == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment router required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	trigger := params.Trigger
	if trigger == nil {
		trigger = automation.NewLogTrigger(params.Logger)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	triggerTimeout := params.TriggerTimeout
	if triggerTimeout <= 0 {
		triggerTimeout = defaultTriggerTimeout
	}
	return &Service{
		repo:           params.Repo,
		documents:      params.Documents,
		pricing:        params.Pricing,
		router:         params.Router,
		trigger:        trigger,
		logg:           params.Logger,
		now:            now,
		triggerTimeout: triggerTimeout,
	}, nil
}

// Create validates and stores a new application. Documents are uploaded
// before the insert; if anything fails nothing is persisted.
func (s *Service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	input.ApplicationID = strings.TrimSpace(input.ApplicationID)
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithApplicationID(ctx, input.ApplicationID)
	form := input.FormData

	quote, err := s.pricing.Compute(pricing.SelectionFromForm(form))
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindByID(ctx, input.ApplicationID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "application already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}

	decision := s.router.Resolve(form.ShippingCategory, form.ShippingCountry, form.InternationalFullAddress)

	fileURLs, err := s.documents.Save(ctx, input.ApplicationID, input.Documents)
	if err != nil {
		return nil, err
	}

	app := &models.Application{
		ApplicationID:   input.ApplicationID,
		FormData:        form,
		FileURLs:        fileURLs,
		PaymentStatus:   enums.PaymentStatusPending,
		FulfillmentType: decision.Type,
		LabelStatus:     enums.LabelStatusNone,
	}
	if form.ShippingCategory == enums.ShippingInternational {
		app.InternationalFullAddress = optional(form.InternationalFullAddress)
		app.InternationalLocalAddress = optional(form.InternationalLocalAddress)
		app.InternationalDeliveryInstructions = optional(form.InternationalDeliveryInstructions)
		app.PCCCCode = optional(form.PCCCCode)
		country := decision.CountryCode
		if country == "" {
			country = strings.TrimSpace(form.ShippingCountry)
		}
		app.ShippingCountry = optional(country)
	}

	if err := s.repo.Create(ctx, app); err != nil {
		s.documents.Discard(ctx, fileURLs)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store application")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"fulfillment_type":   decision.Type,
		"fulfillment_reason": decision.Reason,
		"shipping_category":  form.ShippingCategory,
		"total_cents":        quote.TotalCents,
	})
	s.logg.Info(logCtx, "application created")

	return &CreateResult{Application: app, Decision: decision, Quote: quote}, nil
}

// Get loads an application by id.
func (s *Service) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, requiredField("application_id")
	}
	app, err := s.repo.FindByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load application")
	}
	return app, nil
}

// MarkCompleted moves the application tied to sessionID from pending to
// completed and fires the automation trigger. Repeated or unknown sessions
// are no-ops; the bool reports whether this call made the transition.
func (s *Service) MarkCompleted(ctx context.Context, sessionID, paymentIntentID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, requiredField("session_id")
	}
	ctx = s.logg.WithSessionID(ctx, sessionID)

	transitioned, err := s.repo.MarkCompleted(ctx, sessionID, strings.TrimSpace(paymentIntentID), s.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark application completed")
	}
	if !transitioned {
		s.logNoTransition(ctx, sessionID, "completion")
		return false, nil
	}

	app, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		s.logg.Error(ctx, "reload completed application", err)
		return true, nil
	}
	ctx = s.logg.WithApplicationID(ctx, app.ApplicationID)
	s.logg.Info(ctx, "application payment completed")
	s.fire(ctx, app)
	return true, nil
}

// MarkExpired moves a pending application to expired when its checkout
// session lapses.
func (s *Service) MarkExpired(ctx context.Context, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, requiredField("session_id")
	}
	ctx = s.logg.WithSessionID(ctx, sessionID)

	transitioned, err := s.repo.MarkExpired(ctx, sessionID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark application expired")
	}
	if !transitioned {
		s.logNoTransition(ctx, sessionID, "expiry")
		return false, nil
	}
	s.logg.Info(ctx, "application checkout expired")
	return true, nil
}

// MarkTestCompleted simulates a successful payment outside production.
func (s *Service) MarkTestCompleted(ctx context.Context, applicationID string) (*models.Application, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, requiredField("application_id")
	}
	ctx = s.logg.WithApplicationID(ctx, applicationID)

	transitioned, err := s.repo.MarkTestCompleted(ctx, applicationID, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark application test completed")
	}
	app, err := s.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		if app.PaymentStatus == enums.PaymentStatusTestCompleted {
			return app, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "application is not pending").
			WithDetails(map[string]any{"payment_status": app.PaymentStatus})
	}
	s.logg.Warn(ctx, "application marked test_completed")
	s.fire(ctx, app)
	return app, nil
}

// AttachCheckoutSession records the checkout session created for an
// application. It reports false when the application is no longer pending or
// its session changed since previousSessionID was read.
func (s *Service) AttachCheckoutSession(ctx context.Context, applicationID, previousSessionID, sessionID string) (bool, error) {
	attached, err := s.repo.AttachCheckoutSession(ctx, applicationID, previousSessionID, sessionID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach checkout session")
	}
	return attached, nil
}

// AttachPaymentIntent records the payment intent created for an application.
func (s *Service) AttachPaymentIntent(ctx context.Context, applicationID, paymentIntentID string) error {
	if err := s.repo.AttachPaymentIntent(ctx, applicationID, paymentIntentID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment intent")
	}
	return nil
}

// fire runs detached from the caller's cancellation: the status transition
// has already happened and cannot be replayed to re-fire.
func (s *Service) fire(ctx context.Context, app *models.Application) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.triggerTimeout)
	defer cancel()

	payload, err := automation.NewPayload(app, s.documents.DownloadURLs(ctx, app.FileURLs))
	if err != nil {
		s.logg.Error(ctx, "build automation payload", err)
		return
	}
	if err := s.trigger.Fire(ctx, payload); err != nil {
		s.logg.Error(ctx, "automation trigger failed", err)
	}
}

func (s *Service) logNoTransition(ctx context.Context, sessionID, action string) {
	app, err := s.repo.FindBySessionID(ctx, sessionID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.logg.Warn(s.logg.WithField(ctx, "action", action), "no application for checkout session")
	case err != nil:
		s.logg.Error(ctx, "load application by session", err)
	default:
		ctx = s.logg.WithFields(ctx, map[string]any{
			"action":         action,
			"application_id": app.ApplicationID,
			"payment_status": app.PaymentStatus,
		})
		s.logg.Info(ctx, "application already settled")
	}
}

func validateCreate(input CreateInput) error {
	if input.ApplicationID == "" {
		return requiredField("application_id")
	}
	if len(input.ApplicationID) > maxApplicationIDLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"application_id": "is too long"})
	}
	form := input.FormData
	checks := []struct {
		field string
		ok    bool
	}{
		{"email", strings.TrimSpace(form.Email) != ""},
		{"first_name", strings.TrimSpace(form.FirstName) != ""},
		{"last_name", strings.TrimSpace(form.LastName) != ""},
		{"selected_permits", len(form.SelectedPermits) > 0},
		{"processing_speed", strings.TrimSpace(string(form.ProcessingSpeed)) != ""},
		{"shipping_category", strings.TrimSpace(string(form.ShippingCategory)) != ""},
	}
	for _, check := range checks {
		if !check.ok {
			return requiredField(check.field)
		}
	}

	present := map[enums.DocumentCategory]bool{}
	for _, doc := range input.Documents {
		if doc.Open != nil {
			present[doc.Category] = true
		}
	}
	for _, category := range enums.RequiredDocumentCategories {
		if !present[category] {
			return requiredField(string(category))
		}
	}
	return nil
}

func requiredField(field string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{field: "is required"})
}

func optional(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

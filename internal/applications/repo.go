package applications

import (
	"context"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/db"
	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/types"
	"gorm.io/gorm"
)

// Repository persists application records. Status changes are conditional
// single-row updates; the bool results report whether a row transitioned.
type Repository interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, applicationID string) (*models.Application, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Application, error)
	MarkCompleted(ctx context.Context, sessionID, paymentIntentID string, completedAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, sessionID string) (bool, error)
	MarkTestCompleted(ctx context.Context, applicationID string, completedAt time.Time) (bool, error)
	AttachCheckoutSession(ctx context.Context, applicationID, previousSessionID, sessionID string) (bool, error)
	AttachPaymentIntent(ctx context.Context, applicationID, paymentIntentID string) error
	ClaimLabel(ctx context.Context, applicationID string) (bool, error)
	SaveLabel(ctx context.Context, applicationID string, label types.ShippingLabel, purchasedAt time.Time) error
	FailLabel(ctx context.Context, applicationID, reason string) error
	ListAwaitingLabel(ctx context.Context, completedBefore time.Time, limit int) ([]models.Application, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, app *models.Application) error {
	err := r.db.WithContext(ctx).Create(app).Error
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "application already exists")
	}
	return err
}

func (r *repository) FindByID(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	err := r.db.WithContext(ctx).Where("application_id = ?", applicationID).First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Application, error) {
	var app models.Application
	err := r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *repository) MarkCompleted(ctx context.Context, sessionID, paymentIntentID string, completedAt time.Time) (bool, error) {
	updates := map[string]any{
		"payment_status": enums.PaymentStatusCompleted,
		"completed_at":   completedAt,
		"updated_at":     completedAt,
	}
	if paymentIntentID != "" {
		updates["stripe_payment_intent_id"] = paymentIntentID
	}
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("stripe_session_id = ? AND payment_status = ?", sessionID, enums.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkExpired(ctx context.Context, sessionID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("stripe_session_id = ? AND payment_status = ?", sessionID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusExpired,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkTestCompleted(ctx context.Context, applicationID string, completedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("application_id = ? AND payment_status = ?", applicationID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusTestCompleted,
			"completed_at":   completedAt,
			"updated_at":     completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AttachCheckoutSession sets sessionID only while the application is pending
// and still holds previousSessionID ("" for none).
func (r *repository) AttachCheckoutSession(ctx context.Context, applicationID, previousSessionID, sessionID string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Application{})
	if previousSessionID == "" {
		query = query.Where("application_id = ? AND payment_status = ? AND (stripe_session_id IS NULL OR stripe_session_id = '')",
			applicationID, enums.PaymentStatusPending)
	} else {
		query = query.Where("application_id = ? AND payment_status = ? AND stripe_session_id = ?",
			applicationID, enums.PaymentStatusPending, previousSessionID)
	}
	result := query.Updates(map[string]any{
		"stripe_session_id": sessionID,
		"updated_at":        time.Now().UTC(),
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) AttachPaymentIntent(ctx context.Context, applicationID, paymentIntentID string) error {
	return r.attach(ctx, applicationID, "stripe_payment_intent_id", paymentIntentID)
}

func (r *repository) attach(ctx context.Context, applicationID, column, value string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("application_id = ?", applicationID).
		Updates(map[string]any{
			column:       value,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ClaimLabel(ctx context.Context, applicationID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("application_id = ? AND label_status IN ?", applicationID,
			[]enums.LabelStatus{enums.LabelStatusNone, enums.LabelStatusFailed}).
		Updates(map[string]any{
			"label_status": enums.LabelStatusPurchasing,
			"label_error":  nil,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) SaveLabel(ctx context.Context, applicationID string, label types.ShippingLabel, purchasedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("application_id = ?", applicationID).
		Updates(map[string]any{
			"label_status":        enums.LabelStatusPurchased,
			"tracking_code":       label.TrackingCode,
			"label_url":           label.LabelURL,
			"shipping_carrier":    label.Carrier,
			"shipping_service":    label.Service,
			"shipping_rate_cents": label.RateCents,
			"label_error":         nil,
			"label_purchased_at":  purchasedAt,
			"updated_at":          purchasedAt,
		}).Error
}

func (r *repository) FailLabel(ctx context.Context, applicationID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("application_id = ? AND label_status = ?", applicationID, enums.LabelStatusPurchasing).
		Updates(map[string]any{
			"label_status": enums.LabelStatusFailed,
			"label_error":  reason,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// ListAwaitingLabel returns paid automated applications with no label yet,
// longest-waiting first.
func (r *repository) ListAwaitingLabel(ctx context.Context, completedBefore time.Time, limit int) ([]models.Application, error) {
	var apps []models.Application
	query := r.db.WithContext(ctx).
		Where("payment_status = ? AND fulfillment_type = ? AND label_status = ?",
			enums.PaymentStatusCompleted, enums.FulfillmentAutomated, enums.LabelStatusNone).
		Where("completed_at <= ?", completedBefore).
		Order("completed_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

package models

import (
	"time"

	"github.com/fastidp/fastidp-backend/pkg/enums"
	"github.com/fastidp/fastidp-backend/pkg/types"
)

// Application is a single permit order, from form submission through payment
// and label purchase.
type Application struct {
	ApplicationID   string                `gorm:"column:application_id;primaryKey"`
	FormData        types.FormData        `gorm:"column:form_data;type:jsonb;serializer:json;not null"`
	FileURLs        types.FileURLs        `gorm:"column:file_urls;type:jsonb;serializer:json;not null"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;not null;default:'pending'"`
	FulfillmentType enums.FulfillmentType `gorm:"column:fulfillment_type;not null"`

	StripeSessionID       *string `gorm:"column:stripe_session_id"`
	StripePaymentIntentID *string `gorm:"column:stripe_payment_intent_id"`

	InternationalFullAddress          *string `gorm:"column:international_full_address"`
	InternationalLocalAddress         *string `gorm:"column:international_local_address"`
	InternationalDeliveryInstructions *string `gorm:"column:international_delivery_instructions"`
	ShippingCountry                   *string `gorm:"column:shipping_country"`
	PCCCCode                          *string `gorm:"column:pccc_code"`

	LabelStatus       enums.LabelStatus `gorm:"column:label_status;not null;default:'none'"`
	TrackingCode      *string           `gorm:"column:tracking_code"`
	LabelURL          *string           `gorm:"column:label_url"`
	ShippingCarrier   *string           `gorm:"column:shipping_carrier"`
	ShippingService   *string           `gorm:"column:shipping_service"`
	ShippingRateCents *int64            `gorm:"column:shipping_rate_cents"`
	LabelError        *string           `gorm:"column:label_error"`
	LabelPurchasedAt  *time.Time        `gorm:"column:label_purchased_at"`

	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Application) TableName() string { return "applications" }

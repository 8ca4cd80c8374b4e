package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// PaidApplicationRow mirrors the paid_applications BigQuery schema.
type PaidApplicationRow struct {
	ApplicationID   string             `bigquery:"application_id"`
	Event           string             `bigquery:"event"`
	CompletedAt     time.Time          `bigquery:"completed_at"`
	PaymentStatus   string             `bigquery:"payment_status"`
	FulfillmentType string             `bigquery:"fulfillment_type"`
	SessionID       *string            `bigquery:"stripe_session_id"`
	PaymentIntentID *string            `bigquery:"stripe_payment_intent_id"`
	ShippingCountry *string            `bigquery:"shipping_country"`
	Payload         cbigquery.NullJSON `bigquery:"payload"`
}

// PaidApplicationSchema is the table layout PaidApplicationRow writes to.
// Rows are partitioned by day on PaidApplicationPartitionField.
var PaidApplicationSchema = cbigquery.Schema{
	{Name: "application_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event", Type: cbigquery.StringFieldType, Required: true},
	{Name: "completed_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "payment_status", Type: cbigquery.StringFieldType},
	{Name: "fulfillment_type", Type: cbigquery.StringFieldType},
	{Name: "stripe_session_id", Type: cbigquery.StringFieldType},
	{Name: "stripe_payment_intent_id", Type: cbigquery.StringFieldType},
	{Name: "shipping_country", Type: cbigquery.StringFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}

const PaidApplicationPartitionField = "completed_at"

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// BigQueryRecorder appends one row per paid application for reporting.
type BigQueryRecorder struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

func NewBigQueryRecorder(client tableInserter, table string, retry RetryPolicy) (*BigQueryRecorder, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.New("bigquery table is required")
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = max(defaultMaximumBackoff, retry.InitialBackoff)
	}
	return &BigQueryRecorder{client: client, table: table, retry: retry}, nil
}

func (r *BigQueryRecorder) Fire(ctx context.Context, payload Payload) error {
	row, err := RowFromPayload(payload)
	if err != nil {
		return err
	}
	return r.insertWithRetry(ctx, []any{&row})
}

// RowFromPayload converts a payload into its BigQuery row.
func RowFromPayload(payload Payload) (PaidApplicationRow, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return PaidApplicationRow{}, fmt.Errorf("marshal payload: %w", err)
	}
	return PaidApplicationRow{
		ApplicationID:   payload.ApplicationID,
		Event:           payload.Event,
		CompletedAt:     payload.CompletedAt,
		PaymentStatus:   string(payload.PaymentStatus),
		FulfillmentType: string(payload.FulfillmentType),
		SessionID:       optional(payload.SessionID),
		PaymentIntentID: optional(payload.PaymentIntentID),
		ShippingCountry: optional(payload.ShippingCountry),
		Payload:         cbigquery.NullJSON{Valid: true, JSONVal: string(raw)},
	}, nil
}

func (r *BigQueryRecorder) insertWithRetry(ctx context.Context, rows []any) error {
	attempts := 0
	backoff := r.retry.InitialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.client.InsertRows(ctx, r.table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= r.retry.MaxAttempts || !isRetryableBigQueryError(err) {
			return fmt.Errorf("insert %s rows: %w", r.table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, r.retry.MaximumBackoff)
	}
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var pme *cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if pme == nil || len(*pme) == 0 {
			return false
		}
		for _, rowErr := range *pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

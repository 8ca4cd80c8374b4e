package automation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/fastidp/fastidp-backend/pkg/db/models"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/metrics"
	"github.com/fastidp/fastidp-backend/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func paidApplication() *models.Application {
	session := "cs_test_1"
	intent := "pi_1"
	completed := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	return &models.Application{
		ApplicationID:         "app-1",
		PaymentStatus:         enums.PaymentStatusCompleted,
		FulfillmentType:       enums.FulfillmentAutomated,
		StripeSessionID:       &session,
		StripePaymentIntentID: &intent,
		CompletedAt:           &completed,
		FormData: types.FormData{
			Email:            "ana@example.com",
			FirstName:        "Ana",
			LastName:         "Lopez",
			SelectedPermits:  []string{"idp_1949"},
			ProcessingSpeed:  enums.ProcessingFast,
			ShippingCategory: enums.ShippingDomestic,
			ShippingAddress:  &types.ShippingAddress{Street1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701"},
		},
		FileURLs: types.FileURLs{
			enums.DocumentSignature: {{Path: "applications/app-1/signature/0-sig.pdf", URL: "https://storage.example/sig.pdf"}},
		},
	}
}

func TestNewPayloadFlattensForm(t *testing.T) {
	payload, err := NewPayload(paidApplication(), nil)
	require.NoError(t, err)

	assert.Equal(t, EventApplicationPaid, payload.Event)
	assert.Equal(t, "cs_test_1", payload.SessionID)
	assert.Equal(t, "pi_1", payload.PaymentIntentID)
	assert.Equal(t, "Austin", payload.Form["shipping_address_city"])
	assert.Equal(t, "idp_1949", payload.Form["selected_permits"])
	assert.Equal(t, []string{"https://storage.example/sig.pdf"}, payload.Documents[enums.DocumentSignature])

	signed := map[enums.DocumentCategory][]string{enums.DocumentSignature: {"https://signed.example/sig"}}
	payload, err = NewPayload(paidApplication(), signed)
	require.NoError(t, err)
	assert.Equal(t, signed, payload.Documents)
}

func TestHTTPTriggerPostsSignedPayload(t *testing.T) {
	var gotSecret string
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get(SecretHeader)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	trigger, err := NewHTTPTrigger(srv.URL, "shh", time.Second)
	require.NoError(t, err)

	payload, err := NewPayload(paidApplication(), nil)
	require.NoError(t, err)
	require.NoError(t, trigger.Fire(context.Background(), payload))

	assert.Equal(t, "shh", gotSecret)
	assert.Equal(t, "app-1", got.ApplicationID)
	assert.Equal(t, "ana@example.com", got.Form["email"])
}

func TestHTTPTriggerReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	trigger, err := NewHTTPTrigger(srv.URL, "", 0)
	require.NoError(t, err)
	err = trigger.Fire(context.Background(), Payload{ApplicationID: "app-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	_, err = NewHTTPTrigger(" ", "", 0)
	assert.Error(t, err)
}

type failingTrigger struct{ calls int }

func (f *failingTrigger) Fire(context.Context, Payload) error {
	f.calls++
	return errors.New("down")
}

type countingTrigger struct{ calls int }

func (c *countingTrigger) Fire(context.Context, Payload) error {
	c.calls++
	return nil
}

func TestFanOutDeliversToEverySink(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewFulfillmentMetrics(reg)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	bad := &failingTrigger{}
	good := &countingTrigger{}
	fan := NewFanOut(logg, m, Sink{Name: "http", Trigger: bad}, Sink{Name: "log", Trigger: good}, Sink{Name: "unset"})

	err := fan.Fire(context.Background(), Payload{ApplicationID: "app-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http: down")
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)
	assert.Equal(t, []string{"http", "log"}, fan.Sinks())

	count, err := testutil.GatherAndCount(reg, "fastidp_automation_trigger_deliveries_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

type fakePublisher struct {
	msg *gcppubsub.Message
	err error
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "msg-1", r.err }

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.msg = msg
	return fakeResult{err: f.err}
}

func TestPubSubTriggerPublishesAttributes(t *testing.T) {
	pub := &fakePublisher{}
	trigger := &PubSubTrigger{pub: pub}

	payload, err := NewPayload(paidApplication(), nil)
	require.NoError(t, err)
	require.NoError(t, trigger.Fire(context.Background(), payload))

	require.NotNil(t, pub.msg)
	assert.Equal(t, "app-1", pub.msg.Attributes["application_id"])
	assert.Equal(t, EventApplicationPaid, pub.msg.Attributes["event"])

	pub.err = errors.New("topic gone")
	assert.Error(t, trigger.Fire(context.Background(), payload))

	_, err = NewPubSubTrigger(nil)
	assert.Error(t, err)
}

type fakeInserter struct {
	calls int
	errs  []error
	rows  []any
}

func (f *fakeInserter) InsertRows(_ context.Context, _ string, rows []any) error {
	f.calls++
	f.rows = rows
	if len(f.errs) >= f.calls {
		return f.errs[f.calls-1]
	}
	return nil
}

func TestBigQueryRecorderRetriesTransientErrors(t *testing.T) {
	inserter := &fakeInserter{errs: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}}}
	recorder, err := NewBigQueryRecorder(inserter, "paid_applications", RetryPolicy{InitialBackoff: time.Millisecond})
	require.NoError(t, err)

	payload, err := NewPayload(paidApplication(), nil)
	require.NoError(t, err)
	require.NoError(t, recorder.Fire(context.Background(), payload))
	assert.Equal(t, 2, inserter.calls)

	row, ok := inserter.rows[0].(*PaidApplicationRow)
	require.True(t, ok)
	assert.Equal(t, "app-1", row.ApplicationID)
	require.NotNil(t, row.SessionID)
	assert.True(t, row.Payload.Valid)
}

func TestBigQueryRecorderStopsOnPermanentErrors(t *testing.T) {
	inserter := &fakeInserter{errs: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	recorder, err := NewBigQueryRecorder(inserter, "paid_applications", RetryPolicy{InitialBackoff: time.Millisecond})
	require.NoError(t, err)

	err = recorder.Fire(context.Background(), Payload{ApplicationID: "app-1"})
	require.Error(t, err)
	assert.Equal(t, 1, inserter.calls)

	_, err = NewBigQueryRecorder(inserter, " ", RetryPolicy{})
	assert.Error(t, err)
}

func TestPaidApplicationSchemaMatchesRowTags(t *testing.T) {
	rowType := reflect.TypeOf(PaidApplicationRow{})
	require.Len(t, PaidApplicationSchema, rowType.NumField())

	for i := 0; i < rowType.NumField(); i++ {
		assert.Equal(t, rowType.Field(i).Tag.Get("bigquery"), PaidApplicationSchema[i].Name)
	}
	assert.Equal(t, PaidApplicationPartitionField, PaidApplicationSchema[2].Name)
}

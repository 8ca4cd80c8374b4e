package shipping

import (
	"errors"
	"testing"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/easypost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBestRatePrefersFewestDays(t *testing.T) {
	quotes := []RateQuote{
		{ID: "slow_cheap", DeliveryDays: 7, RateCents: 500},
		{ID: "fast", DeliveryDays: 2, RateCents: 2500},
		{ID: "mid", DeliveryDays: 4, RateCents: 900},
	}

	best, err := SelectBestRate(quotes, 5)
	require.NoError(t, err)
	assert.Equal(t, "fast", best.ID)
}

func TestSelectBestRateTieBreaksOnDateThenPrice(t *testing.T) {
	early := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	quotes := []RateQuote{
		{ID: "late_cheap", DeliveryDays: 3, RateCents: 700, DeliveryDate: &late},
		{ID: "early_pricey", DeliveryDays: 3, RateCents: 1500, DeliveryDate: &early},
	}
	best, err := SelectBestRate(quotes, 3)
	require.NoError(t, err)
	assert.Equal(t, "early_pricey", best.ID)

	undated := []RateQuote{
		{ID: "a", DeliveryDays: 3, RateCents: 1200, DeliveryDate: &early},
		{ID: "b", DeliveryDays: 3, RateCents: 800},
	}
	best, err = SelectBestRate(undated, 3)
	require.NoError(t, err)
	assert.Equal(t, "b", best.ID)
}

func TestSelectBestRateInclusiveDeadline(t *testing.T) {
	best, err := SelectBestRate([]RateQuote{{ID: "edge", DeliveryDays: 5, RateCents: 100}}, 5)
	require.NoError(t, err)
	assert.Equal(t, "edge", best.ID)
}

func TestSelectBestRateNoQualifyingRate(t *testing.T) {
	quotes := []RateQuote{
		{ID: "slow", DeliveryDays: 8},
		{ID: "unknown", DeliveryDays: UnknownDeliveryDays},
	}

	_, err := SelectBestRate(quotes, 3)
	var noRate *NoQualifyingRateError
	require.True(t, errors.As(err, &noRate))
	assert.Equal(t, 3, noRate.MaxDeliveryDays)
	assert.Equal(t, 2, noRate.Considered)

	_, err = SelectBestRate(nil, 10)
	require.True(t, errors.As(err, &noRate))
	assert.Equal(t, 0, noRate.Considered)
}

func TestParseDeliveryDays(t *testing.T) {
	cases := map[string]int{
		"3":    3,
		" 5 ":  5,
		"2.2":  3,
		"":     UnknownDeliveryDays,
		"soon": UnknownDeliveryDays,
		"-1":   UnknownDeliveryDays,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseDeliveryDays(raw), "raw=%q", raw)
	}
}

func TestParseRateCents(t *testing.T) {
	cents, err := ParseRateCents("7.58")
	require.NoError(t, err)
	assert.Equal(t, int64(758), cents)

	cents, err = ParseRateCents("12")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), cents)

	_, err = ParseRateCents("n/a")
	require.Error(t, err)
}

func TestQuoteFromEasyPost(t *testing.T) {
	date := time.Date(2026, time.October, 21, 0, 0, 0, 0, time.UTC)
	quote, err := QuoteFromEasyPost(easypost.Rate{
		ID:           "rate_1",
		Carrier:      "USPS",
		Service:      "Priority",
		Rate:         "9.15",
		DeliveryDays: "2",
		DeliveryDate: &date,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(915), quote.RateCents)
	assert.Equal(t, 2, quote.DeliveryDays)
	require.NotNil(t, quote.DeliveryDate)
	assert.Equal(t, 21, quote.DeliveryDate.Day())

	quote, err = QuoteFromEasyPost(easypost.Rate{ID: "rate_2", Rate: "4.00"})
	require.NoError(t, err)
	assert.Equal(t, UnknownDeliveryDays, quote.DeliveryDays)
	assert.Nil(t, quote.DeliveryDate)
}

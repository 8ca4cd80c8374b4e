package shipping

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fastidp/fastidp-backend/pkg/easypost"
	"github.com/shopspring/decimal"
)

// UnknownDeliveryDays is used when a carrier gives no usable estimate, so the
// rate sorts after every dated one and fails any realistic deadline.
const UnknownDeliveryDays = 999

// RateQuote is one carrier offer for a shipment.
type RateQuote struct {
	ID           string     `json:"id"`
	Carrier      string     `json:"carrier"`
	Service      string     `json:"service"`
	RateCents    int64      `json:"rate_cents"`
	DeliveryDays int        `json:"delivery_days"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
}

// NoQualifyingRateError reports that no quote met the delivery deadline.
type NoQualifyingRateError struct {
	MaxDeliveryDays int
	Considered      int
}

func (e *NoQualifyingRateError) Error() string {
	return fmt.Sprintf("no shipping rate delivers within %d days (%d considered)", e.MaxDeliveryDays, e.Considered)
}

// SelectBestRate keeps the quotes that arrive within maxDeliveryDays and picks
// the fastest one. Ties break on the earlier delivery date when both quotes
// carry one, then on the cheaper rate.
func SelectBestRate(quotes []RateQuote, maxDeliveryDays int) (RateQuote, error) {
	eligible := make([]RateQuote, 0, len(quotes))
	for _, q := range quotes {
		if q.DeliveryDays <= maxDeliveryDays {
			eligible = append(eligible, q)
		}
	}
	if len(eligible) == 0 {
		return RateQuote{}, &NoQualifyingRateError{MaxDeliveryDays: maxDeliveryDays, Considered: len(quotes)}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.DeliveryDays != b.DeliveryDays {
			return a.DeliveryDays < b.DeliveryDays
		}
		if a.DeliveryDate != nil && b.DeliveryDate != nil && !a.DeliveryDate.Equal(*b.DeliveryDate) {
			return a.DeliveryDate.Before(*b.DeliveryDate)
		}
		return a.RateCents < b.RateCents
	})
	return eligible[0], nil
}

// ParseDeliveryDays reads a carrier's delivery estimate. Fractional values
// round up; anything unparseable becomes UnknownDeliveryDays.
func ParseDeliveryDays(raw string) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UnknownDeliveryDays
	}
	if days, err := strconv.Atoi(trimmed); err == nil {
		if days < 0 {
			return UnknownDeliveryDays
		}
		return days
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return UnknownDeliveryDays
	}
	return int(math.Ceil(f))
}

// ParseRateCents converts a decimal dollar string such as "7.58" to cents.
func ParseRateCents(raw string) (int64, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", raw, err)
	}
	return amount.Shift(2).Round(0).IntPart(), nil
}

// QuoteFromEasyPost normalizes a provider rate.
func QuoteFromEasyPost(rate easypost.Rate) (RateQuote, error) {
	cents, err := ParseRateCents(rate.Rate)
	if err != nil {
		return RateQuote{}, err
	}
	quote := RateQuote{
		ID:           rate.ID,
		Carrier:      rate.Carrier,
		Service:      rate.Service,
		RateCents:    cents,
		DeliveryDays: ParseDeliveryDays(rate.DeliveryDays),
		DeliveryDate: rate.DeliveryDate,
	}
	return quote, nil
}

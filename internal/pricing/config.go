package pricing

import (
	"fmt"
	"strings"

	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const (
	PermitIDP1949 = "idp_1949"
	PermitIDP1926 = "idp_1926"

	permitUnitCents int64 = 2000
)

// UnknownSelectionPolicy decides what happens when the processing speed or
// shipping category is missing or unrecognized.
type UnknownSelectionPolicy string

const (
	// PolicyZeroFee drops the processing line item and charges nothing for it.
	PolicyZeroFee UnknownSelectionPolicy = "zero_fee"
	// PolicyReject fails the quote with a validation error.
	PolicyReject UnknownSelectionPolicy = "reject"
)

// Permit is a sellable permit in the catalog.
type Permit struct {
	ID              string
	Name            string
	UnitAmountCents int64
}

// FeeTable holds the combined processing and shipping fee per category and speed.
type FeeTable map[enums.ShippingCategory]map[enums.ProcessingSpeed]int64

// Config is the single source of pricing and routing constants shared by
// every handler that quotes or charges an application.
type Config struct {
	Permits                []Permit
	Fees                   FeeTable
	TaxRate                decimal.Decimal
	MinimumTotalCents      int64
	BookletFeeCents        int64
	UnknownSelectionPolicy UnknownSelectionPolicy
	AutomatedCountries     []string
	// ProductIDs maps a line item id or kind to a Stripe product id.
	ProductIDs map[string]string
}

// DefaultFees is the production fee table in cents.
func DefaultFees() FeeTable {
	return FeeTable{
		enums.ShippingDomestic: {
			enums.ProcessingStandard: 5800,
			enums.ProcessingFast:     7800,
			enums.ProcessingFastest:  9800,
		},
		enums.ShippingInternational: {
			enums.ProcessingStandard: 8800,
			enums.ProcessingFast:     11800,
			enums.ProcessingFastest:  14800,
		},
		enums.ShippingMilitary: {
			enums.ProcessingStandard: 6800,
			enums.ProcessingFast:     8800,
			enums.ProcessingFastest:  10800,
		},
	}
}

// DefaultPermits is the permit catalog.
func DefaultPermits() []Permit {
	return []Permit{
		{ID: PermitIDP1949, Name: "International Driving Permit (1949 Convention)", UnitAmountCents: permitUnitCents},
		{ID: PermitIDP1926, Name: "International Driving Permit (1926 Convention)", UnitAmountCents: permitUnitCents},
	}
}

// DefaultConfig returns the catalog with a 7.75% tax rate and a $0.50 minimum.
func DefaultConfig() Config {
	return Config{
		Permits:                DefaultPermits(),
		Fees:                   DefaultFees(),
		TaxRate:                decimal.RequireFromString("0.0775"),
		MinimumTotalCents:      50,
		UnknownSelectionPolicy: PolicyZeroFee,
		ProductIDs:             map[string]string{},
	}
}

// ConfigFromSettings builds the pricing config from environment settings.
func ConfigFromSettings(settings config.PricingConfig) (Config, error) {
	cfg := DefaultConfig()

	if raw := strings.TrimSpace(settings.TaxRate); raw != "" {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parsing tax rate %q: %w", raw, err)
		}
		cfg.TaxRate = rate
	}
	cfg.MinimumTotalCents = settings.MinimumTotalCents
	cfg.BookletFeeCents = settings.BookletFeeCents

	policy, err := ParseUnknownSelectionPolicy(settings.UnknownSelectionPolicy)
	if err != nil {
		return Config{}, err
	}
	cfg.UnknownSelectionPolicy = policy

	for _, code := range settings.AutomatedCountries {
		if normalized := strings.ToUpper(strings.TrimSpace(code)); normalized != "" {
			cfg.AutomatedCountries = append(cfg.AutomatedCountries, normalized)
		}
	}

	products := map[string]string{
		PermitIDP1949:          settings.ProductPermitIDP1949,
		PermitIDP1926:          settings.ProductPermitIDP1926,
		string(KindProcessing):  settings.ProductProcessing,
		string(KindTax):         settings.ProductTax,
		string(KindBooklet):     settings.ProductBooklet,
	}
	for key, id := range products {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			cfg.ProductIDs[key] = trimmed
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseUnknownSelectionPolicy accepts zero_fee (the default when empty) or reject.
func ParseUnknownSelectionPolicy(raw string) (UnknownSelectionPolicy, error) {
	switch UnknownSelectionPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyZeroFee:
		return PolicyZeroFee, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown selection policy %q (expected %q or %q)", raw, PolicyZeroFee, PolicyReject)
	}
}

// Validate checks the config is internally consistent.
func (c Config) Validate() error {
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax rate must be in [0, 1), got %s", c.TaxRate)
	}
	if c.MinimumTotalCents < 0 {
		return fmt.Errorf("minimum total must not be negative")
	}
	if c.BookletFeeCents < 0 {
		return fmt.Errorf("booklet fee must not be negative")
	}
	seen := map[string]bool{}
	for _, permit := range c.Permits {
		if permit.ID == "" || permit.UnitAmountCents < 0 {
			return fmt.Errorf("invalid permit %+v", permit)
		}
		if seen[permit.ID] {
			return fmt.Errorf("duplicate permit %q", permit.ID)
		}
		seen[permit.ID] = true
	}
	for category, speeds := range c.Fees {
		for speed, cents := range speeds {
			if cents < 0 {
				return fmt.Errorf("negative fee for %s/%s", category, speed)
			}
		}
	}
	return nil
}

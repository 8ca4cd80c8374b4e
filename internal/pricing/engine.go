package pricing

import (
	"fmt"
	"strings"

	"github.com/fastidp/fastidp-backend/pkg/enums"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
	"github.com/fastidp/fastidp-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// LineItemKind groups line items for product mapping and display.
type LineItemKind string

const (
	KindPermit     LineItemKind = "permit"
	KindProcessing LineItemKind = "processing"
	KindTax        LineItemKind = "tax"
	KindBooklet    LineItemKind = "booklet"
)

// Selection is the pricing-relevant subset of an application form.
type Selection struct {
	SelectedPermits  []string
	ProcessingSpeed  enums.ProcessingSpeed
	ShippingCategory enums.ShippingCategory
}

// SelectionFromForm extracts the pricing inputs from stored form data.
func SelectionFromForm(form types.FormData) Selection {
	return Selection{
		SelectedPermits:  form.SelectedPermits,
		ProcessingSpeed:  form.ProcessingSpeed,
		ShippingCategory: form.ShippingCategory,
	}
}

type LineItem struct {
	ID              string       `json:"id"`
	Kind            LineItemKind `json:"kind"`
	Name            string       `json:"name"`
	UnitAmountCents int64        `json:"unit_amount_cents"`
	Quantity        int64        `json:"quantity"`
}

// AmountCents is the extended amount of the line.
func (l LineItem) AmountCents() int64 {
	return l.UnitAmountCents * l.Quantity
}

// PriceQuote is a computed cost breakdown. SubtotalCents is the taxable base;
// TotalCents also includes tax and any untaxed booklet fee.
type PriceQuote struct {
	LineItems     []LineItem `json:"line_items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
}

// Engine computes quotes from a fixed Config. It performs no I/O.
type Engine struct {
	cfg     Config
	permits map[string]Permit
}

// NewEngine validates cfg and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "invalid pricing config")
	}
	permits := make(map[string]Permit, len(cfg.Permits))
	for _, permit := range cfg.Permits {
		permits[permit.ID] = permit
	}
	return &Engine{cfg: cfg, permits: permits}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Compute prices a selection. Unknown permit ids are ignored. A missing or
// unrecognized speed/category is handled per the configured policy.
func (e *Engine) Compute(sel Selection) (PriceQuote, error) {
	quote := PriceQuote{LineItems: []LineItem{}}

	order := []string{}
	counts := map[string]int64{}
	for _, raw := range sel.SelectedPermits {
		id := strings.TrimSpace(raw)
		if _, ok := e.permits[id]; !ok {
			continue
		}
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}
	for _, id := range order {
		permit := e.permits[id]
		item := LineItem{
			ID:              permit.ID,
			Kind:            KindPermit,
			Name:            permit.Name,
			UnitAmountCents: permit.UnitAmountCents,
			Quantity:        counts[id],
		}
		quote.LineItems = append(quote.LineItems, item)
		quote.SubtotalCents += item.AmountCents()
	}

	fee, ok := e.combinedFee(sel.ShippingCategory, sel.ProcessingSpeed)
	switch {
	case ok:
		item := LineItem{
			ID:              processingItemID(sel.ShippingCategory, sel.ProcessingSpeed),
			Kind:            KindProcessing,
			Name:            processingItemName(sel.ShippingCategory, sel.ProcessingSpeed),
			UnitAmountCents: fee,
			Quantity:        1,
		}
		quote.LineItems = append(quote.LineItems, item)
		quote.SubtotalCents += fee
	case e.cfg.UnknownSelectionPolicy == PolicyReject:
		return PriceQuote{}, pkgerrors.New(pkgerrors.CodeValidation, "unsupported processing speed or shipping category").
			WithDetails(map[string]any{
				"processing_speed":  string(sel.ProcessingSpeed),
				"shipping_category": string(sel.ShippingCategory),
			})
	}

	quote.TaxCents = e.tax(quote.SubtotalCents)
	if quote.TaxCents > 0 {
		quote.LineItems = append(quote.LineItems, LineItem{
			ID:              string(KindTax),
			Kind:            KindTax,
			Name:            fmt.Sprintf("Sales Tax (%s%%)", e.cfg.TaxRate.Shift(2).String()),
			UnitAmountCents: quote.TaxCents,
			Quantity:        1,
		})
	}

	quote.TotalCents = quote.SubtotalCents + quote.TaxCents
	if e.cfg.BookletFeeCents > 0 {
		quote.LineItems = append(quote.LineItems, LineItem{
			ID:              string(KindBooklet),
			Kind:            KindBooklet,
			Name:            "Permit Booklet",
			UnitAmountCents: e.cfg.BookletFeeCents,
			Quantity:        1,
		})
		quote.TotalCents += e.cfg.BookletFeeCents
	}

	if quote.TotalCents < e.cfg.MinimumTotalCents {
		return PriceQuote{}, pkgerrors.New(pkgerrors.CodeValidation, "total below minimum charge").
			WithDetails(map[string]any{
				"total_cents":   quote.TotalCents,
				"minimum_cents": e.cfg.MinimumTotalCents,
			})
	}
	return quote, nil
}

// ProductID returns the Stripe product configured for a line item, or "" when
// the item should be sent as ad-hoc product data.
func (e *Engine) ProductID(item LineItem) string {
	if id, ok := e.cfg.ProductIDs[item.ID]; ok {
		return id
	}
	return e.cfg.ProductIDs[string(item.Kind)]
}

func (e *Engine) combinedFee(category enums.ShippingCategory, speed enums.ProcessingSpeed) (int64, bool) {
	speeds, ok := e.cfg.Fees[category]
	if !ok {
		return 0, false
	}
	fee, ok := speeds[speed]
	return fee, ok
}

// tax rounds half away from zero, which is half-up for non-negative subtotals.
func (e *Engine) tax(subtotalCents int64) int64 {
	if subtotalCents <= 0 || e.cfg.TaxRate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(subtotalCents).Mul(e.cfg.TaxRate).Round(0).IntPart()
}

func processingItemID(category enums.ShippingCategory, speed enums.ProcessingSpeed) string {
	return fmt.Sprintf("%s_%s_%s", KindProcessing, category, speed)
}

func processingItemName(category enums.ShippingCategory, speed enums.ProcessingSpeed) string {
	return fmt.Sprintf("%s Processing & %s Shipping", titleCase(string(speed)), titleCase(string(category)))
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

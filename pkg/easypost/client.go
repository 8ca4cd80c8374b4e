package easypost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sdk "github.com/EasyPost/easypost-go/v4"
	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
)

const (
	providerName   = "easypost"
	defaultBaseURL = "https://api.easypost.com/v2"
	defaultTimeout = 20 * time.Second
)

var errAPIKeyRequired = errors.New("easypost api key is required")

// Client adapts the EasyPost SDK to the address verification, rating and
// label purchase calls the shipping service makes.
type Client struct {
	api *sdk.Client
}

type clientOptions struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*clientOptions)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			o.baseURL = trimmed
		}
	}
}

// WithTimeout sets the timeout on the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// NewClient builds an EasyPost client for the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	options := clientOptions{baseURL: defaultBaseURL, timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	// the SDK resolves paths against BaseURL, which needs the trailing slash
	base, err := url.Parse(strings.TrimRight(options.baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse easypost base url: %w", err)
	}

	api := sdk.New(trimmedKey)
	api.BaseURL = base
	api.Client = options.httpClient
	if api.Client == nil {
		api.Client = &http.Client{Timeout: options.timeout}
	}
	return &Client{api: api}, nil
}

// Address is a postal address as the shipping service sees it.
type Address struct {
	ID            string
	Name          string
	Company       string
	Street1       string
	Street2       string
	City          string
	State         string
	Zip           string
	Country       string
	Phone         string
	Email         string
	FederalTaxID  string
	Verifications *Verifications
}

// Verifications carries the outcome of delivery verification.
type Verifications struct {
	Delivery *Verification
}

// Verification is a single verification result.
type Verification struct {
	Success bool
	Errors  []FieldError
}

// FieldError describes a problem EasyPost found with one field.
type FieldError struct {
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Parcel dimensions are in inches and weight in ounces.
type Parcel struct {
	Length float64
	Width  float64
	Height float64
	Weight float64
}

// CustomsItem is one declared item in a customs form.
type CustomsItem struct {
	Description    string
	Quantity       int
	Value          float64
	Weight         float64
	HSTariffNumber string
	OriginCountry  string
}

// CustomsInfo is required for international and military destinations.
type CustomsInfo struct {
	ContentsType      string
	CustomsCertify    bool
	CustomsSigner     string
	EELPFC            string
	NonDeliveryOption string
	RestrictionType   string
	CustomsItems      []CustomsItem
}

// ShipmentRequest describes a shipment to rate. DeliveryInstructions is
// printed on the label.
type ShipmentRequest struct {
	ToAddress            Address
	FromAddress          Address
	Parcel               Parcel
	CustomsInfo          *CustomsInfo
	DeliveryInstructions string
	Reference            string
}

// Rate is a carrier quote attached to a shipment. Rate is a decimal string;
// DeliveryDays is empty when the carrier gives no estimate.
type Rate struct {
	ID           string
	Carrier      string
	Service      string
	Rate         string
	Currency     string
	DeliveryDays string
	DeliveryDate *time.Time
}

// PostageLabel holds the purchased label artifact.
type PostageLabel struct {
	LabelURL string
}

// Shipment is a rated or purchased shipment.
type Shipment struct {
	ID           string
	Rates        []Rate
	TrackingCode string
	PostageLabel *PostageLabel
}

// VerifyAddress creates an address with delivery verification. An address
// EasyPost cannot verify comes back with a failed delivery verification
// rather than an error.
func (c *Client) VerifyAddress(ctx context.Context, addr Address) (*Address, error) {
	if c == nil || c.api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "easypost client not configured")
	}
	if strings.TrimSpace(addr.Street1) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "street1 is required")
	}

	out, err := c.api.CreateAndVerifyAddressWithContext(ctx, toSDKAddress(addr), &sdk.CreateAddressOptions{})
	if err != nil {
		if isInvalidRequest(err) {
			rejected := clientSideError(err)
			failed := addr
			failed.Verifications = &Verifications{Delivery: &Verification{Errors: rejected.fields}}
			if len(rejected.fields) == 0 {
				failed.Verifications.Delivery.Errors = []FieldError{{Code: rejected.code, Message: rejected.message}}
			}
			return &failed, nil
		}
		return nil, classifyError(err)
	}
	verified := fromSDKAddress(out)
	return &verified, nil
}

// CreateShipment creates a shipment and returns it with carrier rates.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error) {
	if c == nil || c.api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "easypost client not configured")
	}
	out, err := c.api.CreateShipmentWithContext(ctx, toSDKShipment(req))
	if err != nil {
		return nil, classifyError(err)
	}
	return fromSDKShipment(out), nil
}

// BuyShipment purchases the given rate for a shipment.
func (c *Client) BuyShipment(ctx context.Context, shipmentID, rateID string) (*Shipment, error) {
	if c == nil || c.api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "easypost client not configured")
	}
	if strings.TrimSpace(shipmentID) == "" || strings.TrimSpace(rateID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id and rate id are required")
	}
	out, err := c.api.BuyShipmentWithContext(ctx, shipmentID, &sdk.Rate{ID: rateID}, "")
	if err != nil {
		return nil, classifyError(err)
	}
	return fromSDKShipment(out), nil
}

type rejection struct {
	code    string
	message string
	fields  []FieldError
}

// clientSideError extracts the request rejections the caller can fix. Auth,
// throttling and server failures return nil.
func clientSideError(err error) *rejection {
	var (
		invalid  *sdk.InvalidRequestError
		bad      *sdk.BadRequestError
		notFound *sdk.NotFoundError
		apiErr   *sdk.APIError
	)
	switch {
	case errors.As(err, &invalid):
		apiErr = &invalid.APIError
	case errors.As(err, &bad):
		apiErr = &bad.APIError
	case errors.As(err, &notFound):
		apiErr = &notFound.APIError
	default:
		return nil
	}

	out := &rejection{code: apiErr.Code, message: apiErr.Message}
	for _, fe := range apiErr.Errors {
		if fe == nil {
			continue
		}
		out.fields = append(out.fields, FieldError{Code: fe.Code, Field: fe.Field, Message: fmt.Sprint(fe.Message)})
	}
	return out
}

func isInvalidRequest(err error) bool {
	var invalid *sdk.InvalidRequestError
	return errors.As(err, &invalid)
}

// classifyError maps an SDK failure onto the error taxonomy.
func classifyError(err error) error {
	rejected := clientSideError(err)
	if rejected == nil {
		return pkgerrors.Provider(providerName, err, false, "shipping provider request failed")
	}

	reason := rejected.message
	if rejected.code != "" {
		reason = rejected.code + ": " + reason
	}
	typed := pkgerrors.Provider(providerName, fmt.Errorf("%s: %w", reason, err), true, "shipping provider rejected the request")
	if len(rejected.fields) > 0 {
		typed = typed.WithDetails(map[string]any{
			"provider": providerName,
			"reason":   reason,
			"fields":   rejected.fields,
		})
	}
	return typed
}

func toSDKAddress(addr Address) *sdk.Address {
	return &sdk.Address{
		Name:         addr.Name,
		Company:      addr.Company,
		Street1:      addr.Street1,
		Street2:      addr.Street2,
		City:         addr.City,
		State:        addr.State,
		Zip:          addr.Zip,
		Country:      addr.Country,
		Phone:        addr.Phone,
		Email:        addr.Email,
		FederalTaxID: addr.FederalTaxID,
	}
}

func fromSDKAddress(addr *sdk.Address) Address {
	if addr == nil {
		return Address{}
	}
	out := Address{
		ID:           addr.ID,
		Name:         addr.Name,
		Company:      addr.Company,
		Street1:      addr.Street1,
		Street2:      addr.Street2,
		City:         addr.City,
		State:        addr.State,
		Zip:          addr.Zip,
		Country:      addr.Country,
		Phone:        addr.Phone,
		Email:        addr.Email,
		FederalTaxID: addr.FederalTaxID,
	}
	if addr.Verifications != nil && addr.Verifications.Delivery != nil {
		delivery := &Verification{Success: addr.Verifications.Delivery.Success}
		for _, fe := range addr.Verifications.Delivery.Errors {
			if fe != nil {
				delivery.Errors = append(delivery.Errors, FieldError{Code: fe.Code, Field: fe.Field, Message: fe.Message})
			}
		}
		out.Verifications = &Verifications{Delivery: delivery}
	}
	return out
}

func toSDKShipment(req ShipmentRequest) *sdk.Shipment {
	shipment := &sdk.Shipment{
		ToAddress:   toSDKAddress(req.ToAddress),
		FromAddress: toSDKAddress(req.FromAddress),
		Parcel: &sdk.Parcel{
			Length: req.Parcel.Length,
			Width:  req.Parcel.Width,
			Height: req.Parcel.Height,
			Weight: req.Parcel.Weight,
		},
		Reference: req.Reference,
	}
	if req.CustomsInfo != nil {
		info := &sdk.CustomsInfo{
			ContentsType:      req.CustomsInfo.ContentsType,
			CustomsCertify:    req.CustomsInfo.CustomsCertify,
			CustomsSigner:     req.CustomsInfo.CustomsSigner,
			EELPFC:            req.CustomsInfo.EELPFC,
			NonDeliveryOption: req.CustomsInfo.NonDeliveryOption,
			RestrictionType:   req.CustomsInfo.RestrictionType,
		}
		for _, item := range req.CustomsInfo.CustomsItems {
			info.CustomsItems = append(info.CustomsItems, &sdk.CustomsItem{
				Description:    item.Description,
				Quantity:       float64(item.Quantity),
				Value:          item.Value,
				Weight:         item.Weight,
				HSTariffNumber: item.HSTariffNumber,
				OriginCountry:  item.OriginCountry,
			})
		}
		shipment.CustomsInfo = info
	}
	if instructions := strings.TrimSpace(req.DeliveryInstructions); instructions != "" {
		shipment.Options = &sdk.ShipmentOptions{PrintCustom1: instructions}
	}
	return shipment
}

func fromSDKShipment(shipment *sdk.Shipment) *Shipment {
	if shipment == nil {
		return &Shipment{}
	}
	out := &Shipment{ID: shipment.ID, TrackingCode: shipment.TrackingCode}
	for _, r := range shipment.Rates {
		if r == nil {
			continue
		}
		rate := Rate{
			ID:       r.ID,
			Carrier:  r.Carrier,
			Service:  r.Service,
			Rate:     r.Rate,
			Currency: r.Currency,
		}
		if r.DeliveryDays > 0 {
			rate.DeliveryDays = strconv.Itoa(r.DeliveryDays)
		}
		if r.DeliveryDate != nil {
			date := time.Time(*r.DeliveryDate).UTC()
			if !date.IsZero() {
				rate.DeliveryDate = &date
			}
		}
		out.Rates = append(out.Rates, rate)
	}
	if shipment.PostageLabel != nil {
		out.PostageLabel = &PostageLabel{LabelURL: shipment.PostageLabel.LabelURL}
	}
	return out
}

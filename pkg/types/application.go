package types

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/fastidp/fastidp-backend/pkg/enums"
)

// FormData is the customer's multi-step form snapshot, stored verbatim on the
// application record.
type FormData struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	MiddleName  string `json:"middle_name,omitempty"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`

	LicenseNumber       string `json:"license_number,omitempty"`
	LicenseState        string `json:"license_state,omitempty"`
	LicenseExpiration   string `json:"license_expiration,omitempty"`
	PermitEffectiveDate string `json:"permit_effective_date,omitempty"`

	SelectedPermits  []string               `json:"selected_permits"`
	ProcessingSpeed  enums.ProcessingSpeed  `json:"processing_speed"`
	ShippingCategory enums.ShippingCategory `json:"shipping_category"`

	ShippingAddress *ShippingAddress `json:"shipping_address,omitempty"`

	ShippingCountry                   string `json:"shipping_country,omitempty"`
	InternationalFullAddress          string `json:"international_full_address,omitempty"`
	InternationalLocalAddress         string `json:"international_local_address,omitempty"`
	InternationalDeliveryInstructions string `json:"international_delivery_instructions,omitempty"`
	PCCCCode                          string `json:"pccc_code,omitempty"`
}

// ShippingAddress is a structured destination for domestic and military
// shipments. Military addresses carry APO/FPO/DPO in City and AA/AE/AP in State.
type ShippingAddress struct {
	Name       string `json:"name,omitempty"`
	Street1    string `json:"street1"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// FullName joins the applicant's name parts.
func (f FormData) FullName() string {
	parts := []string{}
	for _, p := range []string{f.FirstName, f.MiddleName, f.LastName} {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

// Flatten returns a single-level view of the form keyed by snake_case paths,
// e.g. shipping_address_city. Lists are joined with commas.
func (f FormData) Flatten() (map[string]any, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var nested map[string]any
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, err
	}
	flat := map[string]any{}
	flattenInto(flat, "", nested)
	return flat, nil
}

func flattenInto(dst map[string]any, prefix string, src map[string]any) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch v := src[k].(type) {
		case map[string]any:
			flattenInto(dst, key, v)
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					items = append(items, s)
				}
			}
			dst[key] = strings.Join(items, ",")
		default:
			dst[key] = v
		}
	}
}

// FileRef points at one stored identity document.
type FileRef struct {
	Path        string `json:"path"`
	URL         string `json:"url,omitempty"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// FileURLs groups stored documents by category.
type FileURLs map[enums.DocumentCategory][]FileRef

// ShippingLabel is the metadata attached to an application once a carrier
// label has been bought.
type ShippingLabel struct {
	TrackingCode string `json:"tracking_code"`
	LabelURL     string `json:"label_url"`
	Carrier      string `json:"carrier"`
	Service      string `json:"service"`
	RateCents    int64  `json:"rate_cents"`
}

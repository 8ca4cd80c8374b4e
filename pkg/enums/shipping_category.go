package enums

import "fmt"

// ShippingCategory describes the destination class of a permit shipment.
type ShippingCategory string

const (
	ShippingDomestic      ShippingCategory = "domestic"
	ShippingInternational ShippingCategory = "international"
	ShippingMilitary      ShippingCategory = "military"
)

var validShippingCategories = []ShippingCategory{
	ShippingDomestic,
	ShippingInternational,
	ShippingMilitary,
}

// String implements fmt.Stringer.
func (s ShippingCategory) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShippingCategory.
func (s ShippingCategory) IsValid() bool {
	for _, candidate := range validShippingCategories {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShippingCategory converts raw input into a ShippingCategory.
func ParseShippingCategory(value string) (ShippingCategory, error) {
	for _, candidate := range validShippingCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipping category %q", value)
}

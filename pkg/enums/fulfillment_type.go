package enums

import "fmt"

// FulfillmentType decides whether an application ships through the automated
// label pipeline or is handed to staff.
type FulfillmentType string

const (
	FulfillmentAutomated FulfillmentType = "automated"
	FulfillmentManual    FulfillmentType = "manual"
)

var validFulfillmentTypes = []FulfillmentType{
	FulfillmentAutomated,
	FulfillmentManual,
}

func (f FulfillmentType) String() string {
	return string(f)
}

func (f FulfillmentType) IsValid() bool {
	for _, candidate := range validFulfillmentTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

func ParseFulfillmentType(value string) (FulfillmentType, error) {
	for _, candidate := range validFulfillmentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment type %q", value)
}

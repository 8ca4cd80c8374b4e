package enums

import "fmt"

// ProcessingSpeed is the customer-selected turnaround tier.
type ProcessingSpeed string

const (
	ProcessingStandard ProcessingSpeed = "standard"
	ProcessingFast     ProcessingSpeed = "fast"
	ProcessingFastest  ProcessingSpeed = "fastest"
)

var validProcessingSpeeds = []ProcessingSpeed{
	ProcessingStandard,
	ProcessingFast,
	ProcessingFastest,
}

// String implements fmt.Stringer.
func (p ProcessingSpeed) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProcessingSpeed.
func (p ProcessingSpeed) IsValid() bool {
	for _, candidate := range validProcessingSpeeds {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProcessingSpeed converts raw input into a ProcessingSpeed.
func ParseProcessingSpeed(value string) (ProcessingSpeed, error) {
	for _, candidate := range validProcessingSpeeds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid processing speed %q", value)
}

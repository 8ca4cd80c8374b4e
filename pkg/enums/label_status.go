package enums

import "fmt"

// LabelStatus tracks shipping label purchase for automated applications.
type LabelStatus string

const (
	LabelStatusNone       LabelStatus = "none"
	LabelStatusPurchasing LabelStatus = "purchasing"
	LabelStatusPurchased  LabelStatus = "purchased"
	LabelStatusFailed     LabelStatus = "failed"
)

var validLabelStatuses = []LabelStatus{
	LabelStatusNone,
	LabelStatusPurchasing,
	LabelStatusPurchased,
	LabelStatusFailed,
}

// String implements fmt.Stringer.
func (l LabelStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LabelStatus.
func (l LabelStatus) IsValid() bool {
	for _, candidate := range validLabelStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLabelStatus converts raw input into a LabelStatus.
func ParseLabelStatus(value string) (LabelStatus, error) {
	for _, candidate := range validLabelStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid label status %q", value)
}

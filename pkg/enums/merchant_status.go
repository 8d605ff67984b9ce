package enums

import "fmt"

// MerchantStatus tracks whether a merchant account may accept payments.
type MerchantStatus string

const (
	MerchantStatusPending   MerchantStatus = "PENDING"
	MerchantStatusActive    MerchantStatus = "ACTIVE"
	MerchantStatusSuspended MerchantStatus = "SUSPENDED"
	MerchantStatusDeleted   MerchantStatus = "DELETED"
)

var validMerchantStatuses = []MerchantStatus{
	MerchantStatusPending,
	MerchantStatusActive,
	MerchantStatusSuspended,
	MerchantStatusDeleted,
}

// String implements fmt.Stringer.
func (m MerchantStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MerchantStatus.
func (m MerchantStatus) IsValid() bool {
	for _, candidate := range validMerchantStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMerchantStatus converts raw input into a MerchantStatus.
func ParseMerchantStatus(value string) (MerchantStatus, error) {
	for _, candidate := range validMerchantStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid merchant status %q", value)
}

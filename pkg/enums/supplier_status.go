package enums

import "fmt"

// SupplierStatus mirrors the supplier_status enum.
type SupplierStatus string

const (
	SupplierStatusPendingApproval SupplierStatus = "pending_approval"
	SupplierStatusApproved        SupplierStatus = "approved"
	SupplierStatusSuspended       SupplierStatus = "suspended"
)

var validSupplierStatuses = []SupplierStatus{
	SupplierStatusPendingApproval,
	SupplierStatusApproved,
	SupplierStatusSuspended,
}

func (s SupplierStatus) String() string {
	return string(s)
}

func (s SupplierStatus) IsValid() bool {
	for _, candidate := range validSupplierStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseSupplierStatus(value string) (SupplierStatus, error) {
	for _, candidate := range validSupplierStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid supplier status %q", value)
}

package enums

import "fmt"

// LaybyStatus tracks the lifecycle of a layby agreement.
type LaybyStatus string

const (
	LaybyStatusDraft              LaybyStatus = "draft"
	LaybyStatusActive             LaybyStatus = "active"
	LaybyStatusReadyForCollection LaybyStatus = "ready_for_collection"
	LaybyStatusCompleted          LaybyStatus = "completed"
	LaybyStatusCancelled          LaybyStatus = "cancelled"
	LaybyStatusOverdue            LaybyStatus = "overdue"
)

var validLaybyStatuses = []LaybyStatus{
	LaybyStatusDraft,
	LaybyStatusActive,
	LaybyStatusReadyForCollection,
	LaybyStatusCompleted,
	LaybyStatusCancelled,
	LaybyStatusOverdue,
}

// String implements fmt.Stringer.
func (s LaybyStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LaybyStatus.
func (s LaybyStatus) IsValid() bool {
	for _, candidate := range validLaybyStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions may leave the status.
func (s LaybyStatus) IsTerminal() bool {
	return s == LaybyStatusCompleted || s == LaybyStatusCancelled
}

// ParseLaybyStatus converts raw input into a LaybyStatus.
func ParseLaybyStatus(value string) (LaybyStatus, error) {
	for _, candidate := range validLaybyStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid layby status %q", value)
}

package enums

import "fmt"

// LaybyAuditAction names the transition an audit row records.
type LaybyAuditAction string

const (
	AuditActionCreated         LaybyAuditAction = "created"
	AuditActionPaymentRecorded LaybyAuditAction = "payment_recorded"
	AuditActionPaymentRefunded LaybyAuditAction = "payment_refunded"
	AuditActionExtended        LaybyAuditAction = "extended"
	AuditActionCancelled       LaybyAuditAction = "cancelled"
	AuditActionCollected       LaybyAuditAction = "collected"
	AuditActionMarkedOverdue   LaybyAuditAction = "marked_overdue"
)

var validLaybyAuditActions = []LaybyAuditAction{
	AuditActionCreated,
	AuditActionPaymentRecorded,
	AuditActionPaymentRefunded,
	AuditActionExtended,
	AuditActionCancelled,
	AuditActionCollected,
	AuditActionMarkedOverdue,
}

// IsValid reports whether the value is a known LaybyAuditAction.
func (a LaybyAuditAction) IsValid() bool {
	for _, candidate := range validLaybyAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseLaybyAuditAction converts raw input into a LaybyAuditAction.
func ParseLaybyAuditAction(value string) (LaybyAuditAction, error) {
	for _, candidate := range validLaybyAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}

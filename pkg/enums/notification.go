package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypePaymentReminder    NotificationType = "payment_reminder"
	NotificationTypePaymentOverdue     NotificationType = "payment_overdue"
	NotificationTypeReadyForCollection NotificationType = "ready_for_collection"
	NotificationTypeLaybyCancelled     NotificationType = "layby_cancelled"
	NotificationTypeLaybyCollected     NotificationType = "layby_collected"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePaymentReminder,
	NotificationTypePaymentOverdue,
	NotificationTypeReadyForCollection,
	NotificationTypeLaybyCancelled,
	NotificationTypeLaybyCollected,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

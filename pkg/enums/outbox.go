package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateLayby        OutboxAggregateType = "layby"
	AggregateLaybyPayment OutboxAggregateType = "layby_payment"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateLayby,
	AggregateLaybyPayment,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventLaybyCreated            OutboxEventType = "layby_created"
	EventLaybyPaymentRecorded    OutboxEventType = "layby_payment_recorded"
	EventLaybyPaymentRefunded    OutboxEventType = "layby_payment_refunded"
	EventLaybyReadyForCollection OutboxEventType = "layby_ready_for_collection"
	EventLaybyExtended           OutboxEventType = "layby_extended"
	EventLaybyCancelled          OutboxEventType = "layby_cancelled"
	EventLaybyCollected          OutboxEventType = "layby_collected"
	EventLaybyOverdue            OutboxEventType = "layby_overdue"
	EventLaybyReminderDue        OutboxEventType = "layby_reminder_due"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLaybyCreated,
	EventLaybyPaymentRecorded,
	EventLaybyPaymentRefunded,
	EventLaybyReadyForCollection,
	EventLaybyExtended,
	EventLaybyCancelled,
	EventLaybyCollected,
	EventLaybyOverdue,
	EventLaybyReminderDue,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxStatus tracks publishing progress for an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusPublished,
	OutboxStatusFailed,
}

// IsValid reports whether the value is a known OutboxStatus.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

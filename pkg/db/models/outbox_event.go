package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// OutboxEvent is one pending or published domain event. Rows are
// written inside the emitting transaction and only ever updated by the
// publisher.
type OutboxEvent struct {
	ID uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`

	// What happened and to which aggregate.
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`

	// Delivery bookkeeping, owned by the publisher.
	PublishedAt  *time.Time `gorm:"column:published_at"`
	AttemptCount int        `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string    `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Published reports whether the event already reached the broker.
func (e *OutboxEvent) Published() bool {
	return e != nil && e.PublishedAt != nil
}

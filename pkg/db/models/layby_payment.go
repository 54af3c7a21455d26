package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// LaybyPayment is an append-only payment event. amount is what the customer
// tendered; applied_amount is the portion allocated to the layby balance
// (they differ only for overpayments). Rows are never mutated after creation
// except to attach refund metadata.
type LaybyPayment struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LaybyID       uuid.UUID                `gorm:"column:layby_id;type:uuid;not null;index"`
	ScheduleID    *uuid.UUID               `gorm:"column:schedule_id;type:uuid"`
	Amount        decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null"`
	AppliedAmount decimal.Decimal          `gorm:"column:applied_amount;type:numeric(12,2);not null"`
	Method        enums.PaymentMethod      `gorm:"column:method;type:text;not null"`
	Type          enums.LaybyPaymentType   `gorm:"column:type;type:text;not null"`
	Status        enums.LaybyPaymentStatus `gorm:"column:status;type:text;not null;default:'completed'"`
	Reference     *string                  `gorm:"column:reference"`
	Notes         *string                  `gorm:"column:notes"`

	RefundedAmount *decimal.Decimal `gorm:"column:refunded_amount;type:numeric(12,2)"`
	RefundReason   *string          `gorm:"column:refund_reason"`
	RefundedAt     *time.Time       `gorm:"column:refunded_at"`
	RefundedBy     *uuid.UUID       `gorm:"column:refunded_by;type:uuid"`

	RecordedBy uuid.UUID `gorm:"column:recorded_by;type:uuid;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// LaybySchedule is one expected installment. The sum of amount_due across a
// layby's schedule equals total - deposit exactly; the last installment
// carries any rounding remainder.
type LaybySchedule struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LaybyID           uuid.UUID               `gorm:"column:layby_id;type:uuid;not null;uniqueIndex:ux_layby_schedules_layby_installment"`
	InstallmentNumber int                     `gorm:"column:installment_number;not null;uniqueIndex:ux_layby_schedules_layby_installment"`
	DueDate           time.Time               `gorm:"column:due_date;not null"`
	AmountDue         decimal.Decimal         `gorm:"column:amount_due;type:numeric(12,2);not null"`
	AmountPaid        decimal.Decimal         `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	Status            enums.InstallmentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	PaidAt            *time.Time              `gorm:"column:paid_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// Layby is one installment-sale agreement. balance_due must equal
// total - amount_paid after every mutation.
type Layby struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Reference  string    `gorm:"column:reference;not null;uniqueIndex"`
	BusinessID uuid.UUID `gorm:"column:business_id;type:uuid;not null;index"`
	LocationID uuid.UUID `gorm:"column:location_id;type:uuid;not null"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`

	Subtotal   decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax        decimal.Decimal `gorm:"column:tax;type:numeric(12,2);not null"`
	Total      decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	Deposit    decimal.Decimal `gorm:"column:deposit;type:numeric(12,2);not null"`
	AmountPaid decimal.Decimal `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	BalanceDue decimal.Decimal `gorm:"column:balance_due;type:numeric(12,2);not null"`

	Frequency         enums.PaymentFrequency `gorm:"column:frequency;type:text;not null"`
	StartDate         time.Time              `gorm:"column:start_date;not null"`
	EndDate           time.Time              `gorm:"column:end_date;not null"`
	OriginalEndDate   *time.Time             `gorm:"column:original_end_date"`
	NextPaymentDate   *time.Time             `gorm:"column:next_payment_date"`
	NextPaymentAmount *decimal.Decimal       `gorm:"column:next_payment_amount;type:numeric(12,2)"`
	ExtensionCount    int                    `gorm:"column:extension_count;not null;default:0"`

	Status enums.LaybyStatus `gorm:"column:status;type:text;not null;default:'active'"`
	Notes  *string           `gorm:"column:notes"`

	CancellationFee  *decimal.Decimal `gorm:"column:cancellation_fee;type:numeric(12,2)"`
	CancelledAt      *time.Time       `gorm:"column:cancelled_at"`
	CancelledBy      *uuid.UUID       `gorm:"column:cancelled_by;type:uuid"`
	CancellationNote *string          `gorm:"column:cancellation_note"`
	CollectedAt      *time.Time       `gorm:"column:collected_at"`
	CollectedBy      *uuid.UUID       `gorm:"column:collected_by;type:uuid"`

	Items        []LaybyItem        `gorm:"foreignKey:LaybyID;constraint:OnDelete:CASCADE"`
	Schedules    []LaybySchedule    `gorm:"foreignKey:LaybyID;constraint:OnDelete:CASCADE"`
	Payments     []LaybyPayment     `gorm:"foreignKey:LaybyID;constraint:OnDelete:CASCADE"`
	Reservations []StockReservation `gorm:"foreignKey:LaybyID;constraint:OnDelete:CASCADE"`

	DeletedAt *time.Time `gorm:"column:deleted_at;index"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LaybyConfig is the policy row the state machine reads. A row with a
// location_id overrides the business-wide row for that location.
type LaybyConfig struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessID uuid.UUID  `gorm:"column:business_id;type:uuid;not null;index"`
	LocationID *uuid.UUID `gorm:"column:location_id;type:uuid"`
	Enabled    bool       `gorm:"column:enabled;not null;default:true"`

	MinDepositPercent   decimal.Decimal `gorm:"column:min_deposit_percent;type:numeric(5,2);not null"`
	MaxDurationDays     int             `gorm:"column:max_duration_days;not null"`
	MaxExtensions       int             `gorm:"column:max_extensions;not null"`
	ExtensionFee        decimal.Decimal `gorm:"column:extension_fee;type:numeric(12,2);not null"`
	CancellationFeePct  decimal.Decimal `gorm:"column:cancellation_fee_percent;type:numeric(5,2);not null"`
	CancellationFeeMin  decimal.Decimal `gorm:"column:cancellation_fee_minimum;type:numeric(12,2);not null"`
	RestockingFee       decimal.Decimal `gorm:"column:restocking_fee;type:numeric(12,2);not null"`
	ReminderLeadDays    int             `gorm:"column:reminder_lead_days;not null"`
	CollectionGraceDays int             `gorm:"column:collection_grace_days;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

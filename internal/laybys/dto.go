package laybys

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// ItemInput is one product line captured at sale time.
type ItemInput struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
}

// CreateInput opens a new layby agreement.
type CreateInput struct {
	BusinessID    uuid.UUID              `json:"business_id"`
	LocationID    uuid.UUID              `json:"location_id"`
	CustomerID    uuid.UUID              `json:"customer_id"`
	Items         []ItemInput            `json:"items"`
	Deposit       decimal.Decimal        `json:"deposit"`
	DepositMethod enums.PaymentMethod    `json:"deposit_method"`
	Frequency     enums.PaymentFrequency `json:"frequency"`
	DurationDays  int                    `json:"duration_days"`
	Notes         *string                `json:"notes,omitempty"`
	ActorUserID   uuid.UUID              `json:"actor_user_id"`
}

// PaymentInput records one tendered payment against a layby.
type PaymentInput struct {
	Amount      decimal.Decimal     `json:"amount"`
	Method      enums.PaymentMethod `json:"method"`
	Reference   *string             `json:"reference,omitempty"`
	Notes       *string             `json:"notes,omitempty"`
	ActorUserID uuid.UUID           `json:"actor_user_id"`
}

// PaymentResult reports the outcome of a recorded payment.
type PaymentResult struct {
	Layby         *models.Layby        `json:"layby"`
	Payment       *models.LaybyPayment `json:"payment"`
	AppliedAmount decimal.Decimal      `json:"applied_amount"`
	Excess        decimal.Decimal      `json:"excess"`
	BalanceDue    decimal.Decimal      `json:"balance_due"`
}

// RefundInput reverses part or all of one payment.
type RefundInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	ActorUserID uuid.UUID       `json:"actor_user_id"`
}

// ExtendInput pushes the agreement end date out.
type ExtendInput struct {
	AdditionalDays int       `json:"additional_days"`
	Reason         string    `json:"reason"`
	ActorUserID    uuid.UUID `json:"actor_user_id"`
}

// CancelInput closes the agreement before completion.
type CancelInput struct {
	Reason      string    `json:"reason"`
	ActorUserID uuid.UUID `json:"actor_user_id"`
}

// CollectInput hands the goods over once the balance is settled.
type CollectInput struct {
	ActorUserID uuid.UUID `json:"actor_user_id"`
}

// LaybyDetail is the fully loaded aggregate returned by engine operations.
type LaybyDetail struct {
	*models.Layby
}

// ListFilter narrows List results. BusinessID is required.
type ListFilter struct {
	BusinessID uuid.UUID
	LocationID uuid.UUID
	CustomerID uuid.UUID
	Status     enums.LaybyStatus
}

// LaybyList is one page of laybys.
type LaybyList struct {
	Laybys     []models.Layby `json:"laybys"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ReminderRow pairs an upcoming installment with its layby for the
// reminder sweep.
type ReminderRow struct {
	Layby    models.Layby
	Schedule models.LaybySchedule
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// StockReservation holds quantity aside for a layby at one location.
type StockReservation struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LaybyID    uuid.UUID               `gorm:"column:layby_id;type:uuid;not null;uniqueIndex:ux_stock_reservations_layby_product_location"`
	ProductID  uuid.UUID               `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_stock_reservations_layby_product_location"`
	LocationID uuid.UUID               `gorm:"column:location_id;type:uuid;not null;uniqueIndex:ux_stock_reservations_layby_product_location"`
	Qty        int                     `gorm:"column:qty;not null"`
	Status     enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'reserved'"`
	ReservedAt time.Time               `gorm:"column:reserved_at;not null"`
	ReleasedAt *time.Time              `gorm:"column:released_at"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// InventoryLevel tracks on-hand and reserved counts per product and location.
// Reservation checks are guarded single-statement updates against this row.
type InventoryLevel struct {
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	LocationID  uuid.UUID `gorm:"column:location_id;type:uuid;primaryKey"`
	OnHandQty   int       `gorm:"column:on_hand_qty;not null;default:0"`
	ReservedQty int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

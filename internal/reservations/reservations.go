// Package reservations holds stock aside for laybys. Quantity checks run as
// guarded single-statement updates against inventory_levels so concurrent
// reservations or point-of-sale decrements cannot oversell stock.
package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
)

// Request asks to hold qty units of a product at a location for one layby.
type Request struct {
	LaybyID    uuid.UUID
	ProductID  uuid.UUID
	LocationID uuid.UUID
	Qty        int
}

// Reserve holds stock for every request or none of them. Each line runs a
// guarded update; the first line that cannot be covered fails the whole call
// with CodeInsufficientStock and the caller's transaction rolls back.
func Reserve(ctx context.Context, tx *gorm.DB, requests []Request) ([]models.StockReservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one reservation request is required")
	}

	for _, req := range requests {
		if req.LaybyID == uuid.Nil || req.ProductID == uuid.Nil || req.LocationID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "layby, product and location ids are required")
		}
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reservation qty %d for product %s", req.Qty, req.ProductID))
		}
	}

	merged := mergeRequests(requests)
	now := time.Now().UTC()
	reservations := make([]models.StockReservation, 0, len(merged))

	for _, req := range merged {
		res := tx.WithContext(ctx).Exec(`
			UPDATE inventory_levels
			SET reserved_qty = reserved_qty + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE product_id = ? AND location_id = ? AND on_hand_qty - reserved_qty >= ?
		`, req.Qty, req.ProductID, req.LocationID, req.Qty)
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
		}
		if res.RowsAffected == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for product %s at location %s", req.ProductID, req.LocationID)).
				WithDetails(map[string]any{
					"product_id":  req.ProductID.String(),
					"location_id": req.LocationID.String(),
					"qty":         req.Qty,
				})
		}

		row := models.StockReservation{
			ID:         uuid.New(),
			LaybyID:    req.LaybyID,
			ProductID:  req.ProductID,
			LocationID: req.LocationID,
			Qty:        req.Qty,
			Status:     enums.ReservationStatusReserved,
			ReservedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation row")
		}
		reservations = append(reservations, row)
	}

	return reservations, nil
}

// mergeRequests folds duplicate item lines into a single request per
// (layby, product, location), matching the one-reservation-row-per-pair
// shape the schema's unique index enforces. First-seen order is kept.
func mergeRequests(requests []Request) []Request {
	type holdKey struct {
		layby    uuid.UUID
		product  uuid.UUID
		location uuid.UUID
	}
	index := make(map[holdKey]int, len(requests))
	merged := make([]Request, 0, len(requests))
	for _, req := range requests {
		k := holdKey{layby: req.LaybyID, product: req.ProductID, location: req.LocationID}
		if i, ok := index[k]; ok {
			merged[i].Qty += req.Qty
			continue
		}
		index[k] = len(merged)
		merged = append(merged, req)
	}
	return merged
}

// Release returns a layby's held stock to the pool. Calling it again after
// every row has been released is a no-op.
func Release(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock release")
	}
	if laybyID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "layby id is required")
	}

	rows, err := heldRows(ctx, tx, laybyID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, row := range rows {
		res := tx.WithContext(ctx).Exec(`
			UPDATE inventory_levels
			SET reserved_qty = reserved_qty - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE product_id = ? AND location_id = ? AND reserved_qty >= ?
		`, row.Qty, row.ProductID, row.LocationID, row.Qty)
		if res.Error != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release stock")
		}
		if res.RowsAffected == 0 {
			return 0, pkgerrors.New(pkgerrors.CodeConsistency,
				fmt.Sprintf("reserved_qty underflow for product %s at location %s", row.ProductID, row.LocationID))
		}

		if err := flipReservation(ctx, tx, row.ID, enums.ReservationStatusReleased, now); err != nil {
			return 0, err
		}
	}

	return len(rows), nil
}

// Collect consumes a layby's held stock permanently: both on-hand and
// reserved counts drop by the held quantity.
func Collect(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock collection")
	}
	if laybyID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "layby id is required")
	}

	rows, err := heldRows(ctx, tx, laybyID)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, row := range rows {
		res := tx.WithContext(ctx).Exec(`
			UPDATE inventory_levels
			SET on_hand_qty = on_hand_qty - ?,
				reserved_qty = reserved_qty - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE product_id = ? AND location_id = ? AND reserved_qty >= ? AND on_hand_qty >= ?
		`, row.Qty, row.Qty, row.ProductID, row.LocationID, row.Qty, row.Qty)
		if res.Error != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "collect stock")
		}
		if res.RowsAffected == 0 {
			return 0, pkgerrors.New(pkgerrors.CodeConsistency,
				fmt.Sprintf("inventory underflow collecting product %s at location %s", row.ProductID, row.LocationID))
		}

		if err := flipReservation(ctx, tx, row.ID, enums.ReservationStatusCollected, now); err != nil {
			return 0, err
		}
	}

	return len(rows), nil
}

func heldRows(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	if err := tx.WithContext(ctx).
		Where("layby_id = ? AND status = ?", laybyID, enums.ReservationStatusReserved).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservations")
	}
	return rows, nil
}

func flipReservation(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.ReservationStatus, at time.Time) error {
	res := tx.WithContext(ctx).Model(&models.StockReservation{}).
		Where("id = ? AND status = ?", id, enums.ReservationStatusReserved).
		Updates(map[string]any{
			"status":      status,
			"released_at": at,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update reservation status")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConsistency, fmt.Sprintf("reservation %s already transitioned", id))
	}
	return nil
}

package reservations

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
)

func TestReserveAllOrNothing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	laybyID := uuid.New()
	locationID := uuid.New()
	productA := uuid.New()
	productB := uuid.New()

	seedLevel(t, db, productA, locationID, 5, 0)
	seedLevel(t, db, productB, locationID, 1, 0)

	requests := []Request{
		{LaybyID: laybyID, ProductID: productA, LocationID: locationID, Qty: 3},
		{LaybyID: laybyID, ProductID: productB, LocationID: locationID, Qty: 2},
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := Reserve(ctx, tx, requests)
		return terr
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	// rollback must leave both levels untouched
	if lvl := loadLevel(t, db, productA, locationID); lvl.ReservedQty != 0 {
		t.Fatalf("expected rollback to clear reservation, got %+v", lvl)
	}

	var count int64
	if err := db.Model(&models.StockReservation{}).Count(&count).Error; err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero reservation rows, got %d", count)
	}
}

func TestReserveSucceedsAndHoldsStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	laybyID := uuid.New()
	locationID := uuid.New()
	product := uuid.New()

	seedLevel(t, db, product, locationID, 5, 0)

	var rows []models.StockReservation
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		rows, terr = Reserve(ctx, tx, []Request{
			{LaybyID: laybyID, ProductID: product, LocationID: locationID, Qty: 5},
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != enums.ReservationStatusReserved {
		t.Fatalf("unexpected reservation rows: %+v", rows)
	}

	if lvl := loadLevel(t, db, product, locationID); lvl.ReservedQty != 5 || lvl.OnHandQty != 5 {
		t.Fatalf("unexpected level after reserve: %+v", lvl)
	}

	// nothing left for a second hold
	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := Reserve(ctx, tx, []Request{
			{LaybyID: uuid.New(), ProductID: product, LocationID: locationID, Qty: 1},
		})
		return terr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock for second hold, got %v", err)
	}
}

func TestReserveMergesDuplicateProductLines(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	laybyID := uuid.New()
	locationID := uuid.New()
	product := uuid.New()

	seedLevel(t, db, product, locationID, 10, 0)

	// two item lines for the same product, e.g. one discounted
	var rows []models.StockReservation
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		rows, terr = Reserve(ctx, tx, []Request{
			{LaybyID: laybyID, ProductID: product, LocationID: locationID, Qty: 2},
			{LaybyID: laybyID, ProductID: product, LocationID: locationID, Qty: 3},
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one merged reservation row, got %d", len(rows))
	}
	if rows[0].Qty != 5 {
		t.Fatalf("expected merged qty 5, got %d", rows[0].Qty)
	}
	if lvl := loadLevel(t, db, product, locationID); lvl.ReservedQty != 5 {
		t.Fatalf("expected 5 units held, got %+v", lvl)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	laybyID := uuid.New()
	locationID := uuid.New()
	product := uuid.New()

	seedLevel(t, db, product, locationID, 10, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := Reserve(ctx, tx, []Request{
			{LaybyID: laybyID, ProductID: product, LocationID: locationID, Qty: 4},
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}

	var released int
	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		released, terr = Release(ctx, tx, laybyID)
		return terr
	})
	if err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released row, got %d", released)
	}
	if lvl := loadLevel(t, db, product, locationID); lvl.ReservedQty != 0 || lvl.OnHandQty != 10 {
		t.Fatalf("unexpected level after release: %+v", lvl)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		released, terr = Release(ctx, tx, laybyID)
		return terr
	})
	if err != nil {
		t.Fatalf("repeat Release error: %v", err)
	}
	if released != 0 {
		t.Fatalf("repeat release should be a no-op, got %d", released)
	}
}

func TestCollectConsumesStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	laybyID := uuid.New()
	locationID := uuid.New()
	product := uuid.New()

	seedLevel(t, db, product, locationID, 8, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := Reserve(ctx, tx, []Request{
			{LaybyID: laybyID, ProductID: product, LocationID: locationID, Qty: 3},
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := Collect(ctx, tx, laybyID)
		return terr
	})
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}

	if lvl := loadLevel(t, db, product, locationID); lvl.OnHandQty != 5 || lvl.ReservedQty != 0 {
		t.Fatalf("unexpected level after collect: %+v", lvl)
	}

	var row models.StockReservation
	if err := db.First(&row, "layby_id = ?", laybyID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if row.Status != enums.ReservationStatusCollected || row.ReleasedAt == nil {
		t.Fatalf("unexpected reservation state: %+v", row)
	}
}

func TestReserveInvalidQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	_, err := Reserve(context.Background(), db, []Request{
		{LaybyID: uuid.New(), ProductID: uuid.New(), LocationID: uuid.New(), Qty: 0},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func seedLevel(t *testing.T, db *gorm.DB, productID uuid.UUID, locationID uuid.UUID, onHand int, reserved int) {
	t.Helper()
	if err := db.Create(&models.InventoryLevel{
		ProductID:   productID,
		LocationID:  locationID,
		OnHandQty:   onHand,
		ReservedQty: reserved,
	}).Error; err != nil {
		t.Fatalf("seed inventory level: %v", err)
	}
}

func loadLevel(t *testing.T, db *gorm.DB, productID uuid.UUID, locationID uuid.UUID) models.InventoryLevel {
	t.Helper()
	var lvl models.InventoryLevel
	if err := db.First(&lvl, "product_id = ? AND location_id = ?", productID, locationID).Error; err != nil {
		t.Fatalf("load inventory level: %v", err)
	}
	return lvl
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryLevel{}); err != nil {
		t.Fatalf("migrate inventory levels: %v", err)
	}
	// stock_reservations carries a postgres uuid default, create it by hand
	if err := db.Exec(`
		CREATE TABLE stock_reservations (
			id TEXT PRIMARY KEY,
			layby_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			location_id TEXT NOT NULL,
			qty INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'reserved',
			reserved_at DATETIME NOT NULL,
			released_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		t.Fatalf("create stock_reservations: %v", err)
	}
	if err := db.Exec(`
		CREATE UNIQUE INDEX ux_stock_reservations_layby_product_location
			ON stock_reservations (layby_id, product_id, location_id)
	`).Error; err != nil {
		t.Fatalf("create reservation unique index: %v", err)
	}
	return db
}

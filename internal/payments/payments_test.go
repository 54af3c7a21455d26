package payments

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
)

func TestApplyAllocatesOldestFirst(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	layby := seedLayby(t, db, "1000.00", "200.00", "200.00")
	seedSchedule(t, db, layby.ID, 1, "266.67", daysFromNow(30))
	seedSchedule(t, db, layby.ID, 2, "266.67", daysFromNow(60))
	seedSchedule(t, db, layby.ID, 3, "266.66", daysFromNow(90))

	var result *Applied
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		result, terr = Apply(ctx, tx, layby, Input{
			Amount:     decimal.RequireFromString("266.67"),
			Method:     enums.PaymentMethodCash,
			RecordedBy: uuid.New(),
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if result.Payment.Type != enums.PaymentTypeInstallment {
		t.Fatalf("unexpected payment type: %s", result.Payment.Type)
	}
	if layby.AmountPaid.StringFixed(2) != "466.67" || layby.BalanceDue.StringFixed(2) != "533.33" {
		t.Fatalf("unexpected balances: paid=%s due=%s", layby.AmountPaid, layby.BalanceDue)
	}

	var first models.LaybySchedule
	if err := db.First(&first, "layby_id = ? AND installment_number = 1", layby.ID).Error; err != nil {
		t.Fatalf("load installment 1: %v", err)
	}
	if first.Status != enums.InstallmentStatusPaid || first.PaidAt == nil {
		t.Fatalf("installment 1 should be paid: %+v", first)
	}
	if result.Payment.ScheduleID == nil || *result.Payment.ScheduleID != first.ID {
		t.Fatalf("payment should link the touched installment")
	}
	if result.NextDue == nil || result.NextDue.InstallmentNumber != 2 {
		t.Fatalf("unexpected next due: %+v", result.NextDue)
	}
	if layby.NextPaymentAmount == nil || layby.NextPaymentAmount.StringFixed(2) != "266.67" {
		t.Fatalf("unexpected next payment amount: %v", layby.NextPaymentAmount)
	}
}

func TestApplySpansMultipleInstallments(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	layby := seedLayby(t, db, "1000.00", "200.00", "200.00")
	seedSchedule(t, db, layby.ID, 1, "266.67", daysFromNow(30))
	seedSchedule(t, db, layby.ID, 2, "266.67", daysFromNow(60))
	seedSchedule(t, db, layby.ID, 3, "266.66", daysFromNow(90))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := Apply(ctx, tx, layby, Input{
			Amount:     decimal.RequireFromString("400.00"),
			Method:     enums.PaymentMethodCard,
			RecordedBy: uuid.New(),
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	var rows []models.LaybySchedule
	if err := db.Order("installment_number").Find(&rows, "layby_id = ?", layby.ID).Error; err != nil {
		t.Fatalf("load schedule: %v", err)
	}
	if rows[0].Status != enums.InstallmentStatusPaid {
		t.Fatalf("installment 1 should be paid: %+v", rows[0])
	}
	if rows[1].Status != enums.InstallmentStatusPartial || rows[1].AmountPaid.StringFixed(2) != "133.33" {
		t.Fatalf("installment 2 should be partial 133.33: %+v", rows[1])
	}
	if rows[2].Status != enums.InstallmentStatusPending {
		t.Fatalf("installment 3 should be untouched: %+v", rows[2])
	}
}

func TestApplyOverpaymentCapsAllocation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	layby := seedLayby(t, db, "1000.00", "200.00", "900.00")
	seedSchedulePaid(t, db, layby.ID, 1, "266.67", daysFromNow(-30))
	seedSchedulePaid(t, db, layby.ID, 2, "266.67", daysFromNow(-1))
	row3 := seedSchedule(t, db, layby.ID, 3, "266.66", daysFromNow(30))
	mustUpdateSchedule(t, db, row3.ID, "166.66", enums.InstallmentStatusPartial)

	var result *Applied
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		result, terr = Apply(ctx, tx, layby, Input{
			Amount:     decimal.RequireFromString("150.00"),
			Method:     enums.PaymentMethodCash,
			RecordedBy: uuid.New(),
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if result.Payment.Type != enums.PaymentTypeOverpayment {
		t.Fatalf("unexpected payment type: %s", result.Payment.Type)
	}
	if result.AppliedAmount.StringFixed(2) != "100.00" || result.Excess.StringFixed(2) != "50.00" {
		t.Fatalf("unexpected allocation: applied=%s excess=%s", result.AppliedAmount, result.Excess)
	}
	if !layby.BalanceDue.IsZero() || layby.AmountPaid.StringFixed(2) != "1000.00" {
		t.Fatalf("unexpected balances: paid=%s due=%s", layby.AmountPaid, layby.BalanceDue)
	}
	if result.Payment.Notes == nil || !strings.Contains(*result.Payment.Notes, "50.00 excess") {
		t.Fatalf("excess should be tracked in notes: %v", result.Payment.Notes)
	}
	if layby.NextPaymentDate != nil {
		t.Fatal("no next payment expected once balance is zero")
	}
}

func TestApplyInfersDepositAndFinal(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	// first payment matching the deposit is a deposit and skips the schedule
	layby := seedLayby(t, db, "1000.00", "200.00", "0.00")
	seedSchedule(t, db, layby.ID, 1, "800.00", daysFromNow(30))

	var result *Applied
	err := db.Transaction(func(tx *gorm.DB) error {
		var terr error
		result, terr = Apply(ctx, tx, layby, Input{
			Amount:     decimal.RequireFromString("200.00"),
			Method:     enums.PaymentMethodCash,
			RecordedBy: uuid.New(),
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if result.Payment.Type != enums.PaymentTypeDeposit {
		t.Fatalf("expected deposit, got %s", result.Payment.Type)
	}
	if result.Payment.ScheduleID != nil {
		t.Fatal("deposit must not consume schedule rows")
	}

	var row models.LaybySchedule
	if err := db.First(&row, "layby_id = ?", layby.ID).Error; err != nil {
		t.Fatalf("load installment: %v", err)
	}
	if !row.AmountPaid.IsZero() {
		t.Fatalf("schedule row should be untouched: %+v", row)
	}

	// settling the rest is a final payment
	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		result, terr = Apply(ctx, tx, layby, Input{
			Amount:     decimal.RequireFromString("800.00"),
			Method:     enums.PaymentMethodEFT,
			RecordedBy: uuid.New(),
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if result.Payment.Type != enums.PaymentTypeFinal {
		t.Fatalf("expected final, got %s", result.Payment.Type)
	}
	if !result.NewBalance.IsZero() {
		t.Fatalf("expected settled balance, got %s", result.NewBalance)
	}
}

func TestApplyValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	layby := seedLayby(t, db, "100.00", "10.00", "10.00")

	tests := []struct {
		name  string
		input Input
	}{
		{
			name:  "zero amount",
			input: Input{Amount: decimal.Zero, Method: enums.PaymentMethodCash, RecordedBy: uuid.New()},
		},
		{
			name:  "negative amount",
			input: Input{Amount: decimal.NewFromInt(-5), Method: enums.PaymentMethodCash, RecordedBy: uuid.New()},
		},
		{
			name:  "bad method",
			input: Input{Amount: decimal.NewFromInt(5), Method: enums.PaymentMethod("barter"), RecordedBy: uuid.New()},
		},
		{
			name:  "missing recorder",
			input: Input{Amount: decimal.NewFromInt(5), Method: enums.PaymentMethodCash},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := db.Transaction(func(tx *gorm.DB) error {
				_, terr := Apply(context.Background(), tx, layby, tc.input)
				return terr
			})
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRefundPartialAndFull(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	layby := seedLayby(t, db, "1000.00", "200.00", "500.00")
	payment := seedPayment(t, db, layby.ID, "300.00")

	actor := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := Refund(ctx, tx, layby, payment, RefundInput{
			Amount:     decimal.RequireFromString("100.00"),
			Reason:     "damaged item",
			RefundedBy: actor,
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Refund error: %v", err)
	}
	if payment.Status != enums.LaybyPaymentStatusCompleted {
		t.Fatalf("partial refund must not flip status: %s", payment.Status)
	}
	if layby.AmountPaid.StringFixed(2) != "400.00" || layby.BalanceDue.StringFixed(2) != "600.00" {
		t.Fatalf("unexpected balances: paid=%s due=%s", layby.AmountPaid, layby.BalanceDue)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := Refund(ctx, tx, layby, payment, RefundInput{
			Amount:     decimal.RequireFromString("200.00"),
			Reason:     "customer cancelled",
			RefundedBy: actor,
		})
		return terr
	})
	if err != nil {
		t.Fatalf("full Refund error: %v", err)
	}
	if payment.Status != enums.LaybyPaymentStatusRefunded {
		t.Fatalf("full refund should flip status: %s", payment.Status)
	}
	if payment.RefundedAmount == nil || payment.RefundedAmount.StringFixed(2) != "300.00" {
		t.Fatalf("unexpected refunded amount: %v", payment.RefundedAmount)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := Refund(ctx, tx, layby, payment, RefundInput{
			Amount:     decimal.RequireFromString("0.01"),
			Reason:     "again",
			RefundedBy: actor,
		})
		return terr
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("refund past refundable should fail: %v", err)
	}
}

func TestRefundFloorsAmountPaidAtZero(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	layby := seedLayby(t, db, "1000.00", "200.00", "50.00")
	payment := seedPayment(t, db, layby.ID, "100.00")

	err := db.Transaction(func(tx *gorm.DB) error {
		_, terr := Refund(ctx, tx, layby, payment, RefundInput{
			Amount:     decimal.RequireFromString("100.00"),
			Reason:     "void",
			RefundedBy: uuid.New(),
		})
		return terr
	})
	if err != nil {
		t.Fatalf("Refund error: %v", err)
	}
	if !layby.AmountPaid.IsZero() {
		t.Fatalf("amount_paid should floor at zero, got %s", layby.AmountPaid)
	}
	if layby.BalanceDue.StringFixed(2) != "1000.00" {
		t.Fatalf("unexpected balance: %s", layby.BalanceDue)
	}
}

func daysFromNow(days int) time.Time {
	return time.Now().UTC().AddDate(0, 0, days)
}

func seedLayby(t *testing.T, db *gorm.DB, total string, deposit string, paid string) *models.Layby {
	t.Helper()

	totalD := decimal.RequireFromString(total)
	paidD := decimal.RequireFromString(paid)
	layby := &models.Layby{
		ID:         uuid.New(),
		Reference:  "LBY-TEST-" + uuid.NewString()[:8],
		BusinessID: uuid.New(),
		LocationID: uuid.New(),
		CustomerID: uuid.New(),
		Subtotal:   totalD,
		Tax:        decimal.Zero,
		Total:      totalD,
		Deposit:    decimal.RequireFromString(deposit),
		AmountPaid: paidD,
		BalanceDue: totalD.Sub(paidD),
		Frequency:  enums.FrequencyMonthly,
		StartDate:  time.Now().UTC(),
		EndDate:    time.Now().UTC().AddDate(0, 3, 0),
		Status:     enums.LaybyStatusActive,
	}
	if err := db.Create(layby).Error; err != nil {
		t.Fatalf("seed layby: %v", err)
	}
	return layby
}

func seedSchedule(t *testing.T, db *gorm.DB, laybyID uuid.UUID, number int, due string, dueDate time.Time) *models.LaybySchedule {
	t.Helper()
	row := &models.LaybySchedule{
		ID:                uuid.New(),
		LaybyID:           laybyID,
		InstallmentNumber: number,
		DueDate:           dueDate,
		AmountDue:         decimal.RequireFromString(due),
		AmountPaid:        decimal.Zero,
		Status:            enums.InstallmentStatusPending,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed schedule row: %v", err)
	}
	return row
}

func seedSchedulePaid(t *testing.T, db *gorm.DB, laybyID uuid.UUID, number int, due string, dueDate time.Time) {
	t.Helper()
	now := time.Now().UTC()
	row := &models.LaybySchedule{
		ID:                uuid.New(),
		LaybyID:           laybyID,
		InstallmentNumber: number,
		DueDate:           dueDate,
		AmountDue:         decimal.RequireFromString(due),
		AmountPaid:        decimal.RequireFromString(due),
		Status:            enums.InstallmentStatusPaid,
		PaidAt:            &now,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed paid schedule row: %v", err)
	}
}

func mustUpdateSchedule(t *testing.T, db *gorm.DB, id uuid.UUID, paid string, status enums.InstallmentStatus) {
	t.Helper()
	if err := db.Model(&models.LaybySchedule{}).Where("id = ?", id).Updates(map[string]any{
		"amount_paid": decimal.RequireFromString(paid),
		"status":      status,
	}).Error; err != nil {
		t.Fatalf("update schedule row: %v", err)
	}
}

func seedPayment(t *testing.T, db *gorm.DB, laybyID uuid.UUID, amount string) *models.LaybyPayment {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	payment := &models.LaybyPayment{
		ID:            uuid.New(),
		LaybyID:       laybyID,
		Amount:        amt,
		AppliedAmount: amt,
		Method:        enums.PaymentMethodCash,
		Type:          enums.PaymentTypeInstallment,
		Status:        enums.LaybyPaymentStatusCompleted,
		RecordedBy:    uuid.New(),
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// postgres uuid defaults keep these out of AutoMigrate, create by hand
	stmts := []string{
		`CREATE TABLE laybys (
			id TEXT PRIMARY KEY,
			reference TEXT NOT NULL,
			business_id TEXT NOT NULL,
			location_id TEXT NOT NULL,
			customer_id TEXT NOT NULL,
			subtotal NUMERIC NOT NULL,
			tax NUMERIC NOT NULL,
			total NUMERIC NOT NULL,
			deposit NUMERIC NOT NULL,
			amount_paid NUMERIC NOT NULL,
			balance_due NUMERIC NOT NULL,
			frequency TEXT NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			original_end_date DATETIME,
			next_payment_date DATETIME,
			next_payment_amount NUMERIC,
			extension_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			notes TEXT,
			cancellation_fee NUMERIC,
			cancelled_at DATETIME,
			cancelled_by TEXT,
			cancellation_note TEXT,
			collected_at DATETIME,
			collected_by TEXT,
			deleted_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE layby_schedules (
			id TEXT PRIMARY KEY,
			layby_id TEXT NOT NULL,
			installment_number INTEGER NOT NULL,
			due_date DATETIME NOT NULL,
			amount_due NUMERIC NOT NULL,
			amount_paid NUMERIC NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			paid_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE layby_payments (
			id TEXT PRIMARY KEY,
			layby_id TEXT NOT NULL,
			schedule_id TEXT,
			amount NUMERIC NOT NULL,
			applied_amount NUMERIC NOT NULL,
			method TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'completed',
			reference TEXT,
			notes TEXT,
			refunded_amount NUMERIC,
			refund_reason TEXT,
			refunded_at DATETIME,
			refunded_by TEXT,
			recorded_by TEXT NOT NULL,
			created_at DATETIME
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

// Package payments applies and refunds layby payments. Both operations run
// inside the caller's transaction so the payment row, the touched schedule
// rows and the layby balance always move together.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
)

// Input describes one tendered payment.
type Input struct {
	Amount     decimal.Decimal
	Method     enums.PaymentMethod
	Reference  *string
	Notes      *string
	RecordedBy uuid.UUID
}

// Applied reports what a payment did to the layby.
type Applied struct {
	Payment       *models.LaybyPayment
	AppliedAmount decimal.Decimal
	Excess        decimal.Decimal
	NewBalance    decimal.Decimal
	NextDue       *models.LaybySchedule
}

// RefundInput describes a partial or full refund of one payment.
type RefundInput struct {
	Amount     decimal.Decimal
	Reason     string
	RefundedBy uuid.UUID
}

var centTolerance = decimal.New(1, -2)

// Apply records a payment against the layby, allocating the tendered amount
// oldest-due-first across schedule rows and updating the running balance.
// Anything above the remaining balance is recorded but not applied; the
// excess stays visible on the payment row for the refund path.
func Apply(ctx context.Context, tx *gorm.DB, layby *models.Layby, input Input) (*Applied, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for payment")
	}
	if layby == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "layby is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method "+string(input.Method))
	}
	if input.RecordedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recorded_by is required")
	}
	if layby.BalanceDue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeConsistency, "balance_due is negative before payment")
	}

	applied := decimal.Min(input.Amount, layby.BalanceDue)
	excess := input.Amount.Sub(applied)

	priorPayments, err := countPayments(ctx, tx, layby.ID)
	if err != nil {
		return nil, err
	}
	paymentType := inferType(layby, input.Amount, applied, excess, priorPayments)

	notes := input.Notes
	if excess.IsPositive() {
		note := fmt.Sprintf("overpayment: %s tendered, %s applied, %s excess", input.Amount.StringFixed(2), applied.StringFixed(2), excess.StringFixed(2))
		if notes != nil && *notes != "" {
			note = *notes + "; " + note
		}
		notes = &note
	}

	var scheduleID *uuid.UUID
	if paymentType != enums.PaymentTypeDeposit && applied.IsPositive() {
		scheduleID, err = allocate(ctx, tx, layby.ID, applied)
		if err != nil {
			return nil, err
		}
	}

	payment := &models.LaybyPayment{
		ID:            uuid.New(),
		LaybyID:       layby.ID,
		ScheduleID:    scheduleID,
		Amount:        input.Amount,
		AppliedAmount: applied,
		Method:        input.Method,
		Type:          paymentType,
		Status:        enums.LaybyPaymentStatusCompleted,
		Reference:     input.Reference,
		Notes:         notes,
		RecordedBy:    input.RecordedBy,
	}
	if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment row")
	}

	layby.AmountPaid = layby.AmountPaid.Add(applied)
	layby.BalanceDue = layby.Total.Sub(layby.AmountPaid)
	if layby.BalanceDue.LessThan(centTolerance.Neg()) {
		return nil, pkgerrors.New(pkgerrors.CodeConsistency, "balance_due went negative after payment")
	}

	nextDue, err := earliestUnpaid(ctx, tx, layby.ID)
	if err != nil {
		return nil, err
	}
	if nextDue != nil {
		outstanding := nextDue.AmountDue.Sub(nextDue.AmountPaid)
		layby.NextPaymentDate = &nextDue.DueDate
		layby.NextPaymentAmount = &outstanding
	} else {
		layby.NextPaymentDate = nil
		layby.NextPaymentAmount = nil
	}

	if err := persistBalance(ctx, tx, layby); err != nil {
		return nil, err
	}

	return &Applied{
		Payment:       payment,
		AppliedAmount: applied,
		Excess:        excess,
		NewBalance:    layby.BalanceDue,
		NextDue:       nextDue,
	}, nil
}

// Refund attaches refund metadata to the original payment row and lowers the
// layby's amount_paid, floored at zero. Schedule rows are left alone; the
// operator reconciles installment status by hand.
func Refund(ctx context.Context, tx *gorm.DB, layby *models.Layby, payment *models.LaybyPayment, input RefundInput) (*models.LaybyPayment, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for refund")
	}
	if layby == nil || payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "layby and payment are required")
	}
	if payment.LaybyID != layby.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to layby")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund reason is required")
	}
	if input.RefundedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refunded_by is required")
	}
	if payment.Status == enums.LaybyPaymentStatusFailed || payment.Status == enums.LaybyPaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed payments can be refunded")
	}

	alreadyRefunded := decimal.Zero
	if payment.RefundedAmount != nil {
		alreadyRefunded = *payment.RefundedAmount
	}
	refundable := payment.Amount.Sub(alreadyRefunded)
	if input.Amount.GreaterThan(refundable) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("refund %s exceeds refundable %s", input.Amount.StringFixed(2), refundable.StringFixed(2)))
	}

	now := time.Now().UTC()
	totalRefunded := alreadyRefunded.Add(input.Amount)
	payment.RefundedAmount = &totalRefunded
	payment.RefundReason = &input.Reason
	payment.RefundedAt = &now
	payment.RefundedBy = &input.RefundedBy
	if totalRefunded.GreaterThanOrEqual(payment.Amount) {
		payment.Status = enums.LaybyPaymentStatusRefunded
	}

	updates := map[string]any{
		"refunded_amount": totalRefunded,
		"refund_reason":   input.Reason,
		"refunded_at":     now,
		"refunded_by":     input.RefundedBy,
		"status":          payment.Status,
	}
	if err := tx.WithContext(ctx).Model(&models.LaybyPayment{}).
		Where("id = ?", payment.ID).
		Updates(updates).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment row")
	}

	layby.AmountPaid = decimal.Max(decimal.Zero, layby.AmountPaid.Sub(input.Amount))
	layby.BalanceDue = layby.Total.Sub(layby.AmountPaid)
	if err := persistBalance(ctx, tx, layby); err != nil {
		return nil, err
	}

	return payment, nil
}

func inferType(layby *models.Layby, amount, applied, excess decimal.Decimal, priorPayments int64) enums.LaybyPaymentType {
	switch {
	case excess.IsPositive():
		return enums.PaymentTypeOverpayment
	case layby.AmountPaid.Add(applied).GreaterThanOrEqual(layby.Total):
		return enums.PaymentTypeFinal
	case priorPayments == 0 && amount.Sub(layby.Deposit).Abs().LessThanOrEqual(centTolerance):
		return enums.PaymentTypeDeposit
	default:
		return enums.PaymentTypeInstallment
	}
}

// allocate spreads the applied amount oldest-due-first across unpaid rows and
// returns the first touched schedule id.
func allocate(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID, applied decimal.Decimal) (*uuid.UUID, error) {
	var rows []models.LaybySchedule
	if err := tx.WithContext(ctx).
		Where("layby_id = ? AND status IN ?", laybyID, []enums.InstallmentStatus{
			enums.InstallmentStatusPending,
			enums.InstallmentStatusPartial,
			enums.InstallmentStatusOverdue,
		}).
		Order("due_date ASC, installment_number ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load schedule rows")
	}

	left := applied
	now := time.Now().UTC()
	var firstTouched *uuid.UUID

	for i := range rows {
		if !left.IsPositive() {
			break
		}
		row := &rows[i]
		outstanding := row.AmountDue.Sub(row.AmountPaid)
		if !outstanding.IsPositive() {
			continue
		}

		take := decimal.Min(outstanding, left)
		left = left.Sub(take)
		row.AmountPaid = row.AmountPaid.Add(take)

		updates := map[string]any{"amount_paid": row.AmountPaid}
		if row.AmountPaid.GreaterThanOrEqual(row.AmountDue) {
			row.Status = enums.InstallmentStatusPaid
			updates["status"] = enums.InstallmentStatusPaid
			updates["paid_at"] = now
		} else {
			row.Status = enums.InstallmentStatusPartial
			updates["status"] = enums.InstallmentStatusPartial
		}

		if err := tx.WithContext(ctx).Model(&models.LaybySchedule{}).
			Where("id = ?", row.ID).
			Updates(updates).Error; err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update schedule row")
		}

		if firstTouched == nil {
			id := row.ID
			firstTouched = &id
		}
	}

	return firstTouched, nil
}

func earliestUnpaid(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) (*models.LaybySchedule, error) {
	var row models.LaybySchedule
	err := tx.WithContext(ctx).
		Where("layby_id = ? AND status IN ?", laybyID, []enums.InstallmentStatus{
			enums.InstallmentStatusPending,
			enums.InstallmentStatusPartial,
			enums.InstallmentStatusOverdue,
		}).
		Order("due_date ASC, installment_number ASC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load next schedule row")
	}
	return &row, nil
}

func countPayments(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) (int64, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.LaybyPayment{}).
		Where("layby_id = ? AND status <> ?", laybyID, enums.LaybyPaymentStatusFailed).
		Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payments")
	}
	return count, nil
}

func persistBalance(ctx context.Context, tx *gorm.DB, layby *models.Layby) error {
	updates := map[string]any{
		"amount_paid":         layby.AmountPaid,
		"balance_due":         layby.BalanceDue,
		"next_payment_date":   layby.NextPaymentDate,
		"next_payment_amount": layby.NextPaymentAmount,
	}
	if err := tx.WithContext(ctx).Model(&models.Layby{}).
		Where("id = ?", layby.ID).
		Updates(updates).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update layby balance")
	}
	return nil
}

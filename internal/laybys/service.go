package laybys

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/internal/audit"
	"github.com/BrightonDube/bizpilot-backend/internal/laybyconfig"
	"github.com/BrightonDube/bizpilot-backend/internal/laybys/schedule"
	"github.com/BrightonDube/bizpilot-backend/internal/notifications"
	"github.com/BrightonDube/bizpilot-backend/internal/payments"
	"github.com/BrightonDube/bizpilot-backend/internal/reservations"
	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
	"github.com/BrightonDube/bizpilot-backend/pkg/outbox"
	"github.com/BrightonDube/bizpilot-backend/pkg/pagination"
)

// SystemActor attributes sweeps and other unattended transitions in the
// audit trail.
var SystemActor = uuid.MustParse("00000000-0000-0000-0000-000000000001")

var oneHundred = decimal.NewFromInt(100)

type stockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []reservations.Request) ([]models.StockReservation, error)
	Release(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) (int, error)
	Collect(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) (int, error)
}

type stockLedgerImpl struct{}

func (stockLedgerImpl) Reserve(ctx context.Context, tx *gorm.DB, requests []reservations.Request) ([]models.StockReservation, error) {
	return reservations.Reserve(ctx, tx, requests)
}

func (stockLedgerImpl) Release(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) (int, error) {
	return reservations.Release(ctx, tx, laybyID)
}

func (stockLedgerImpl) Collect(ctx context.Context, tx *gorm.DB, laybyID uuid.UUID) (int, error) {
	return reservations.Collect(ctx, tx, laybyID)
}

type paymentRecorder interface {
	Apply(ctx context.Context, tx *gorm.DB, layby *models.Layby, input payments.Input) (*payments.Applied, error)
	Refund(ctx context.Context, tx *gorm.DB, layby *models.Layby, payment *models.LaybyPayment, input payments.RefundInput) (*models.LaybyPayment, error)
}

type paymentRecorderImpl struct{}

func (paymentRecorderImpl) Apply(ctx context.Context, tx *gorm.DB, layby *models.Layby, input payments.Input) (*payments.Applied, error) {
	return payments.Apply(ctx, tx, layby, input)
}

func (paymentRecorderImpl) Refund(ctx context.Context, tx *gorm.DB, layby *models.Layby, payment *models.LaybyPayment, input payments.RefundInput) (*models.LaybyPayment, error) {
	return payments.Refund(ctx, tx, layby, payment, input)
}

type service struct {
	tx        txRunner
	repo      Repository
	policy    laybyconfig.Service
	audit     audit.Service
	outbox    outboxPublisher
	notify    notifier
	stock     stockLedger
	recorder  paymentRecorder
	logg      *logger.Logger
	refPrefix string
}

// NewService builds the layby engine. Stock and recorder default to the
// real implementations when nil; tests inject stubs.
func NewService(
	tx txRunner,
	repo Repository,
	policy laybyconfig.Service,
	auditSvc audit.Service,
	publisher outboxPublisher,
	notify notifier,
	stock stockLedger,
	recorder paymentRecorder,
	logg *logger.Logger,
	refPrefix string,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("laybys repository required")
	}
	if policy == nil {
		return nil, fmt.Errorf("layby policy service required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if notify == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if stock == nil {
		stock = stockLedgerImpl{}
	}
	if recorder == nil {
		recorder = paymentRecorderImpl{}
	}
	if refPrefix == "" {
		refPrefix = "LBY"
	}
	return &service{
		tx:        tx,
		repo:      repo,
		policy:    policy,
		audit:     auditSvc,
		outbox:    publisher,
		notify:    notify,
		stock:     stock,
		recorder:  recorder,
		logg:      logg,
		refPrefix: refPrefix,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*LaybyDetail, error) {
	if input.BusinessID == uuid.Nil || input.LocationID == uuid.Nil || input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business, location and customer ids are required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a layby needs at least one item")
	}
	if !input.Frequency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment frequency "+string(input.Frequency))
	}
	if input.Deposit.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit cannot be negative")
	}
	if !input.DepositMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid deposit payment method "+string(input.DepositMethod))
	}

	policy, err := s.policy.Resolve(ctx, input.BusinessID, input.LocationID)
	if err != nil {
		return nil, err
	}
	if !policy.Enabled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "layby sales are disabled for this business")
	}

	subtotal, tax, total, items, err := buildItems(input.Items)
	if err != nil {
		return nil, err
	}

	minDeposit := total.Mul(policy.MinDepositPercent).Div(oneHundred).Round(2)
	if input.Deposit.LessThan(minDeposit) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("deposit %s is below the minimum %s", input.Deposit.StringFixed(2), minDeposit.StringFixed(2))).
			WithDetails(map[string]any{"minimum_deposit": minDeposit.StringFixed(2)})
	}
	if input.Deposit.GreaterThan(total) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit cannot exceed the layby total")
	}

	durationDays := input.DurationDays
	if durationDays <= 0 || durationDays > policy.MaxDurationDays {
		durationDays = policy.MaxDurationDays
	}

	now := time.Now().UTC()
	endDate := now.AddDate(0, 0, durationDays)

	plan, err := schedule.Build(schedule.Params{
		Remaining: total.Sub(input.Deposit),
		Frequency: input.Frequency,
		StartDate: now,
		EndDate:   endDate,
	})
	if err != nil {
		return nil, err
	}

	laybyID := uuid.New()
	var detail *models.Layby

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		requests := make([]reservations.Request, 0, len(input.Items))
		for _, item := range input.Items {
			requests = append(requests, reservations.Request{
				LaybyID:    laybyID,
				ProductID:  item.ProductID,
				LocationID: input.LocationID,
				Qty:        item.Qty,
			})
		}
		if _, err := s.stock.Reserve(ctx, tx, requests); err != nil {
			return err
		}

		layby := &models.Layby{
			ID:         laybyID,
			Reference:  s.newReference(now),
			BusinessID: input.BusinessID,
			LocationID: input.LocationID,
			CustomerID: input.CustomerID,
			Subtotal:   subtotal,
			Tax:        tax,
			Total:      total,
			Deposit:    input.Deposit,
			AmountPaid: decimal.Zero,
			BalanceDue: total,
			Frequency:  input.Frequency,
			StartDate:  now,
			EndDate:    endDate,
			Status:     enums.LaybyStatusActive,
			Notes:      input.Notes,
		}
		// seed the next-payment fields from the plan up front so a
		// zero-deposit layby is still visible to the overdue sweep;
		// recording the deposit recomputes them from the live rows
		if len(plan) > 0 {
			first := plan[0]
			outstanding := first.AmountDue
			layby.NextPaymentDate = &first.DueDate
			layby.NextPaymentAmount = &outstanding
		}
		for i := range items {
			items[i].LaybyID = laybyID
		}
		layby.Items = items
		layby.Schedules = scheduleRows(laybyID, plan)

		if err := repo.Create(ctx, layby); err != nil {
			return err
		}

		if input.Deposit.IsPositive() {
			if _, err := s.recorder.Apply(ctx, tx, layby, payments.Input{
				Amount:     input.Deposit,
				Method:     input.DepositMethod,
				RecordedBy: input.ActorUserID,
			}); err != nil {
				return err
			}
		}

		if layby.BalanceDue.IsZero() {
			if err := s.transition(ctx, repo, layby, []enums.LaybyStatus{enums.LaybyStatusActive},
				enums.LaybyStatusReadyForCollection, nil); err != nil {
				return err
			}
			if err := s.notifyReady(ctx, tx, layby, policy.CollectionGraceDays); err != nil {
				return err
			}
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			LaybyID:     laybyID,
			Action:      enums.AuditActionCreated,
			NewState:    snapshot(layby),
			ActorUserID: input.ActorUserID,
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLaybyCreated,
			AggregateType: enums.AggregateLayby,
			AggregateID:   laybyID,
			Actor:         actorRef(input.ActorUserID, input.BusinessID),
			Data: map[string]any{
				"layby_id":  laybyID.String(),
				"reference": layby.Reference,
				"total":     layby.Total.StringFixed(2),
				"deposit":   layby.Deposit.StringFixed(2),
				"status":    layby.Status,
			},
		}); err != nil {
			return err
		}

		detail, err = repo.FindByID(ctx, laybyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithLaybyID(ctx, laybyID.String()), "layby created")
	}
	return &LaybyDetail{Layby: detail}, nil
}

func (s *service) RecordPayment(ctx context.Context, laybyID uuid.UUID, input PaymentInput) (*PaymentResult, error) {
	if laybyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "layby id is required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}

	var result *PaymentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		layby, err := repo.FindByID(ctx, laybyID)
		if err != nil {
			return err
		}
		switch layby.Status {
		case enums.LaybyStatusActive, enums.LaybyStatusOverdue:
		case enums.LaybyStatusReadyForCollection:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "layby is fully paid and awaiting collection")
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot record a payment against a %s layby", layby.Status))
		}

		old := snapshot(layby)
		wasOverdue := layby.Status == enums.LaybyStatusOverdue

		applied, err := s.recorder.Apply(ctx, tx, layby, payments.Input{
			Amount:     input.Amount,
			Method:     input.Method,
			Reference:  input.Reference,
			Notes:      input.Notes,
			RecordedBy: input.ActorUserID,
		})
		if err != nil {
			return err
		}

		if applied.NewBalance.IsZero() {
			if err := s.transition(ctx, repo, layby,
				[]enums.LaybyStatus{enums.LaybyStatusActive, enums.LaybyStatusOverdue},
				enums.LaybyStatusReadyForCollection, nil); err != nil {
				return err
			}
			policy, err := s.policy.Resolve(ctx, layby.BusinessID, layby.LocationID)
			if err != nil {
				return err
			}
			if err := s.notifyReady(ctx, tx, layby, policy.CollectionGraceDays); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLaybyReadyForCollection,
				AggregateType: enums.AggregateLayby,
				AggregateID:   layby.ID,
				Actor:         actorRef(input.ActorUserID, layby.BusinessID),
				Data:          map[string]any{"layby_id": layby.ID.String(), "reference": layby.Reference},
			}); err != nil {
				return err
			}
		} else if wasOverdue {
			remaining, err := repo.CountUnpaidOverdueSchedules(ctx, layby.ID, time.Now().UTC())
			if err != nil {
				return err
			}
			if remaining == 0 {
				if err := s.transition(ctx, repo, layby,
					[]enums.LaybyStatus{enums.LaybyStatusOverdue}, enums.LaybyStatusActive, nil); err != nil {
					return err
				}
			}
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			LaybyID:     layby.ID,
			Action:      enums.AuditActionPaymentRecorded,
			OldState:    old,
			NewState:    snapshot(layby),
			ActorUserID: input.ActorUserID,
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLaybyPaymentRecorded,
			AggregateType: enums.AggregateLaybyPayment,
			AggregateID:   applied.Payment.ID,
			Actor:         actorRef(input.ActorUserID, layby.BusinessID),
			Data: map[string]any{
				"layby_id":    layby.ID.String(),
				"payment_id":  applied.Payment.ID.String(),
				"amount":      applied.Payment.Amount.StringFixed(2),
				"applied":     applied.AppliedAmount.StringFixed(2),
				"balance_due": applied.NewBalance.StringFixed(2),
				"type":        applied.Payment.Type,
			},
		}); err != nil {
			return err
		}

		// re-fetch so the returned layby carries the post-payment
		// schedule and payment rows, not the preloads from before Apply
		fresh, err := repo.FindByID(ctx, laybyID)
		if err != nil {
			return err
		}
		result = &PaymentResult{
			Layby:         fresh,
			Payment:       applied.Payment,
			AppliedAmount: applied.AppliedAmount,
			Excess:        applied.Excess,
			BalanceDue:    applied.NewBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RefundPayment(ctx context.Context, paymentID uuid.UUID, input RefundInput) (*models.LaybyPayment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}

	var refunded *models.LaybyPayment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payment, err := repo.FindPaymentByID(ctx, paymentID)
		if err != nil {
			return err
		}
		layby, err := repo.FindByID(ctx, payment.LaybyID)
		if err != nil {
			return err
		}
		if layby.Status == enums.LaybyStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "collected laybys cannot be refunded")
		}

		old := snapshot(layby)
		refunded, err = s.recorder.Refund(ctx, tx, layby, payment, payments.RefundInput{
			Amount:     input.Amount,
			Reason:     input.Reason,
			RefundedBy: input.ActorUserID,
		})
		if err != nil {
			return err
		}

		// a refund can re-open a fully paid layby
		if layby.BalanceDue.IsPositive() && layby.Status == enums.LaybyStatusReadyForCollection {
			if err := s.transition(ctx, repo, layby,
				[]enums.LaybyStatus{enums.LaybyStatusReadyForCollection}, enums.LaybyStatusActive, nil); err != nil {
				return err
			}
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			LaybyID:     layby.ID,
			Action:      enums.AuditActionPaymentRefunded,
			OldState:    old,
			NewState:    snapshot(layby),
			ActorUserID: input.ActorUserID,
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLaybyPaymentRefunded,
			AggregateType: enums.AggregateLaybyPayment,
			AggregateID:   payment.ID,
			Actor:         actorRef(input.ActorUserID, layby.BusinessID),
			Data: map[string]any{
				"layby_id":   layby.ID.String(),
				"payment_id": payment.ID.String(),
				"amount":     input.Amount.StringFixed(2),
				"reason":     input.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return refunded, nil
}

func (s *service) Extend(ctx context.Context, laybyID uuid.UUID, input ExtendInput) (*LaybyDetail, error) {
	if laybyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "layby id is required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}
	if input.AdditionalDays <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "additional days must be positive")
	}

	var detail *models.Layby
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		layby, err := repo.FindByID(ctx, laybyID)
		if err != nil {
			return err
		}
		if layby.Status != enums.LaybyStatusActive && layby.Status != enums.LaybyStatusOverdue {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot extend a %s layby", layby.Status))
		}

		policy, err := s.policy.Resolve(ctx, layby.BusinessID, layby.LocationID)
		if err != nil {
			return err
		}
		if layby.ExtensionCount >= policy.MaxExtensions {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("extension limit of %d reached", policy.MaxExtensions))
		}

		newEnd := layby.EndDate.AddDate(0, 0, input.AdditionalDays)
		maxEnd := layby.StartDate.AddDate(0, 0, policy.MaxDurationDays)
		if newEnd.After(maxEnd) {
			newEnd = maxEnd
		}
		if !newEnd.After(layby.EndDate) {
			return pkgerrors.New(pkgerrors.CodeValidation, "layby is already at its maximum duration")
		}

		old := snapshot(layby)

		// rows a payment has touched stay; the rest regenerate over the
		// new end date, with the extension fee folded into the plan
		keptDue := decimal.Zero
		maxNumber := 0
		var keptUnpaid []models.LaybySchedule
		for _, row := range layby.Schedules {
			if row.InstallmentNumber > maxNumber {
				maxNumber = row.InstallmentNumber
			}
			if row.AmountPaid.IsPositive() {
				keptDue = keptDue.Add(row.AmountDue)
				if row.AmountPaid.LessThan(row.AmountDue) {
					keptUnpaid = append(keptUnpaid, row)
				}
			}
		}

		newTotal := layby.Total.Add(policy.ExtensionFee)
		newRemaining := newTotal.Sub(layby.Deposit).Sub(keptDue)
		if newRemaining.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeConsistency, "schedule exceeds layby total")
		}

		if err := repo.DeleteUntouchedSchedules(ctx, layby.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		var newRows []models.LaybySchedule
		if newRemaining.IsPositive() {
			plan, err := schedule.Build(schedule.Params{
				Remaining: newRemaining,
				Frequency: layby.Frequency,
				StartDate: now,
				EndDate:   newEnd,
			})
			if err != nil {
				return err
			}
			newRows = make([]models.LaybySchedule, 0, len(plan))
			for _, inst := range plan {
				newRows = append(newRows, models.LaybySchedule{
					ID:                uuid.New(),
					LaybyID:           layby.ID,
					InstallmentNumber: maxNumber + inst.Number,
					DueDate:           inst.DueDate,
					AmountDue:         inst.AmountDue,
					AmountPaid:        decimal.Zero,
					Status:            enums.InstallmentStatusPending,
				})
			}
			if err := repo.CreateSchedules(ctx, newRows); err != nil {
				return err
			}
		}

		nextDate, nextAmount := nextPayment(keptUnpaid, newRows)

		updates := map[string]any{
			"end_date":            newEnd,
			"extension_count":     layby.ExtensionCount + 1,
			"total":               newTotal,
			"balance_due":         newTotal.Sub(layby.AmountPaid),
			"next_payment_date":   nextDate,
			"next_payment_amount": nextAmount,
		}
		if layby.OriginalEndDate == nil {
			updates["original_end_date"] = layby.EndDate
		}
		if err := s.transition(ctx, repo, layby,
			[]enums.LaybyStatus{enums.LaybyStatusActive, enums.LaybyStatusOverdue},
			enums.LaybyStatusActive, updates); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			LaybyID:     layby.ID,
			Action:      enums.AuditActionExtended,
			OldState:    old,
			NewState:    map[string]any{"end_date": newEnd, "extension_count": layby.ExtensionCount + 1, "reason": input.Reason},
			ActorUserID: input.ActorUserID,
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLaybyExtended,
			AggregateType: enums.AggregateLayby,
			AggregateID:   layby.ID,
			Actor:         actorRef(input.ActorUserID, layby.BusinessID),
			Data: map[string]any{
				"layby_id":        layby.ID.String(),
				"new_end_date":    newEnd,
				"additional_days": input.AdditionalDays,
				"extension_fee":   policy.ExtensionFee.StringFixed(2),
			},
		}); err != nil {
			return err
		}

		detail, err = repo.FindByID(ctx, layby.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &LaybyDetail{Layby: detail}, nil
}

func (s *service) Cancel(ctx context.Context, laybyID uuid.UUID, input CancelInput) (*LaybyDetail, error) {
	if laybyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "layby id is required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}

	cancellable := []enums.LaybyStatus{
		enums.LaybyStatusDraft,
		enums.LaybyStatusActive,
		enums.LaybyStatusReadyForCollection,
		enums.LaybyStatusOverdue,
	}

	var detail *models.Layby
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		layby, err := repo.FindByID(ctx, laybyID)
		if err != nil {
			return err
		}
		if layby.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot cancel a %s layby", layby.Status))
		}

		policy, err := s.policy.Resolve(ctx, layby.BusinessID, layby.LocationID)
		if err != nil {
			return err
		}

		old := snapshot(layby)

		units := 0
		for _, item := range layby.Items {
			units += item.Qty
		}
		fee := decimal.Max(
			policy.CancellationFeeMin,
			layby.AmountPaid.Mul(policy.CancellationFeePct).Div(oneHundred).Round(2),
		).Add(policy.RestockingFee.Mul(decimal.NewFromInt(int64(units))))

		if _, err := s.stock.Release(ctx, tx, layby.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		note := input.Reason
		if err := s.transition(ctx, repo, layby, cancellable, enums.LaybyStatusCancelled, map[string]any{
			"cancellation_fee":    fee,
			"cancelled_at":        now,
			"cancelled_by":        input.ActorUserID,
			"cancellation_note":   note,
			"next_payment_date":   nil,
			"next_payment_amount": nil,
		}); err != nil {
			return err
		}

		if _, err := s.notify.Record(ctx, tx, notifications.Input{
			LaybyID:    layby.ID,
			CustomerID: layby.CustomerID,
			Type:       enums.NotificationTypeLaybyCancelled,
			Title:      "Layby cancelled",
			Message:    fmt.Sprintf("Layby %s was cancelled. A fee of %s applies.", layby.Reference, fee.StringFixed(2)),
		}); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			LaybyID:     layby.ID,
			Action:      enums.AuditActionCancelled,
			OldState:    old,
			NewState:    snapshot(layby),
			ActorUserID: input.ActorUserID,
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLaybyCancelled,
			AggregateType: enums.AggregateLayby,
			AggregateID:   layby.ID,
			Actor:         actorRef(input.ActorUserID, layby.BusinessID),
			Data: map[string]any{
				"layby_id":         layby.ID.String(),
				"reference":        layby.Reference,
				"cancellation_fee": fee.StringFixed(2),
				"reason":           input.Reason,
			},
		}); err != nil {
			return err
		}

		detail, err = repo.FindByID(ctx, layby.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &LaybyDetail{Layby: detail}, nil
}

func (s *service) Collect(ctx context.Context, laybyID uuid.UUID, input CollectInput) (*LaybyDetail, error) {
	if laybyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "layby id is required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor user id is required")
	}

	var detail *models.Layby
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		layby, err := repo.FindByID(ctx, laybyID)
		if err != nil {
			return err
		}
		if layby.Status != enums.LaybyStatusReadyForCollection {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot collect a %s layby", layby.Status))
		}
		if layby.BalanceDue.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeConsistency, "layby marked ready with an outstanding balance")
		}

		old := snapshot(layby)

		if _, err := s.stock.Collect(ctx, tx, layby.ID); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := s.transition(ctx, repo, layby,
			[]enums.LaybyStatus{enums.LaybyStatusReadyForCollection},
			enums.LaybyStatusCompleted, map[string]any{
				"collected_at": now,
				"collected_by": input.ActorUserID,
			}); err != nil {
			return err
		}

		if _, err := s.notify.Record(ctx, tx, notifications.Input{
			LaybyID:    layby.ID,
			CustomerID: layby.CustomerID,
			Type:       enums.NotificationTypeLaybyCollected,
			Title:      "Layby collected",
			Message:    fmt.Sprintf("Layby %s has been collected. Thank you!", layby.Reference),
		}); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			LaybyID:     layby.ID,
			Action:      enums.AuditActionCollected,
			OldState:    old,
			NewState:    snapshot(layby),
			ActorUserID: input.ActorUserID,
		}); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLaybyCollected,
			AggregateType: enums.AggregateLayby,
			AggregateID:   layby.ID,
			Actor:         actorRef(input.ActorUserID, layby.BusinessID),
			Data:          map[string]any{"layby_id": layby.ID.String(), "reference": layby.Reference},
		}); err != nil {
			return err
		}

		detail, err = repo.FindByID(ctx, layby.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &LaybyDetail{Layby: detail}, nil
}

func (s *service) Get(ctx context.Context, laybyID uuid.UUID) (*LaybyDetail, error) {
	if laybyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "layby id is required")
	}
	layby, err := s.repo.FindByID(ctx, laybyID)
	if err != nil {
		return nil, err
	}
	return &LaybyDetail{Layby: layby}, nil
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (*LaybyList, error) {
	if filter.BusinessID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "business id is required")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid layby status "+string(filter.Status))
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.List(ctx, filter, params.Limit, cursor)
	if err != nil {
		return nil, err
	}

	list := &LaybyList{Laybys: rows}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

func (s *service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	flipped := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.MarkSchedulesOverdue(ctx, asOf); err != nil {
			return err
		}

		candidates, err := repo.ListOverdueCandidates(ctx, asOf)
		if err != nil {
			return err
		}

		for i := range candidates {
			layby := &candidates[i]
			ok, err := repo.UpdateStatusIf(ctx, layby.ID,
				[]enums.LaybyStatus{enums.LaybyStatusActive},
				map[string]any{"status": enums.LaybyStatusOverdue})
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			old := snapshot(layby)
			layby.Status = enums.LaybyStatusOverdue

			if _, err := s.notify.Record(ctx, tx, notifications.Input{
				LaybyID:    layby.ID,
				CustomerID: layby.CustomerID,
				Type:       enums.NotificationTypePaymentOverdue,
				Title:      "Layby payment overdue",
				Message:    fmt.Sprintf("Layby %s has a missed installment. Please make a payment to keep it active.", layby.Reference),
			}); err != nil {
				return err
			}
			if err := s.audit.Record(ctx, tx, audit.Entry{
				LaybyID:     layby.ID,
				Action:      enums.AuditActionMarkedOverdue,
				OldState:    old,
				NewState:    snapshot(layby),
				ActorUserID: SystemActor,
			}); err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventLaybyOverdue,
				AggregateType: enums.AggregateLayby,
				AggregateID:   layby.ID,
				Actor:         actorRef(SystemActor, layby.BusinessID),
				Data:          map[string]any{"layby_id": layby.ID.String(), "reference": layby.Reference},
			}); err != nil {
				return err
			}
			flipped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return flipped, nil
}

// transition flips the layby status with a guarded update and mirrors the
// change on the in-memory struct.
func (s *service) transition(ctx context.Context, repo Repository, layby *models.Layby, from []enums.LaybyStatus, to enums.LaybyStatus, extra map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	ok, err := repo.UpdateStatusIf(ctx, layby.ID, from, updates)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("layby changed state concurrently, expected one of %v", from))
	}
	layby.Status = to
	return nil
}

func (s *service) notifyReady(ctx context.Context, tx *gorm.DB, layby *models.Layby, graceDays int) error {
	message := fmt.Sprintf("Layby %s is fully paid and ready for collection.", layby.Reference)
	if graceDays > 0 {
		message += fmt.Sprintf(" Please collect within %d days.", graceDays)
	}
	_, err := s.notify.Record(ctx, tx, notifications.Input{
		LaybyID:    layby.ID,
		CustomerID: layby.CustomerID,
		Type:       enums.NotificationTypeReadyForCollection,
		Title:      "Layby ready for collection",
		Message:    message,
	})
	return err
}

func (s *service) newReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", s.refPrefix, now.Format("20060102"), suffix)
}

func buildItems(inputs []ItemInput) (subtotal, tax, total decimal.Decimal, items []models.LaybyItem, err error) {
	subtotal, tax = decimal.Zero, decimal.Zero
	items = make([]models.LaybyItem, 0, len(inputs))

	for i, item := range inputs {
		if item.ProductID == uuid.Nil {
			return subtotal, tax, total, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: product id is required", i))
		}
		if item.Name == "" || item.SKU == "" {
			return subtotal, tax, total, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: name and sku are required", i))
		}
		if item.Qty <= 0 {
			return subtotal, tax, total, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: qty must be positive", i))
		}
		if item.UnitPrice.IsNegative() || item.Discount.IsNegative() || item.Tax.IsNegative() {
			return subtotal, tax, total, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: money fields cannot be negative", i))
		}

		gross := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
		lineNet := gross.Sub(item.Discount)
		if lineNet.IsNegative() {
			return subtotal, tax, total, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d: discount exceeds line amount", i))
		}
		lineTotal := lineNet.Add(item.Tax)

		subtotal = subtotal.Add(lineNet)
		tax = tax.Add(item.Tax)

		items = append(items, models.LaybyItem{
			ID:        uuid.New(),
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			Tax:       item.Tax,
			Total:     lineTotal,
		})
	}

	total = subtotal.Add(tax)
	return subtotal, tax, total, items, nil
}

func scheduleRows(laybyID uuid.UUID, plan []schedule.Installment) []models.LaybySchedule {
	rows := make([]models.LaybySchedule, 0, len(plan))
	for _, inst := range plan {
		rows = append(rows, models.LaybySchedule{
			ID:                uuid.New(),
			LaybyID:           laybyID,
			InstallmentNumber: inst.Number,
			DueDate:           inst.DueDate,
			AmountDue:         inst.AmountDue,
			AmountPaid:        decimal.Zero,
			Status:            enums.InstallmentStatusPending,
		})
	}
	return rows
}

// nextPayment picks the earliest unpaid installment across the kept partial
// rows and the regenerated plan.
func nextPayment(keptUnpaid []models.LaybySchedule, newRows []models.LaybySchedule) (*time.Time, *decimal.Decimal) {
	var bestDate *time.Time
	var bestAmount *decimal.Decimal

	consider := func(due time.Time, outstanding decimal.Decimal) {
		if !outstanding.IsPositive() {
			return
		}
		if bestDate == nil || due.Before(*bestDate) {
			d, a := due, outstanding
			bestDate, bestAmount = &d, &a
		}
	}

	for _, row := range keptUnpaid {
		consider(row.DueDate, row.AmountDue.Sub(row.AmountPaid))
	}
	for _, row := range newRows {
		consider(row.DueDate, row.AmountDue)
	}
	return bestDate, bestAmount
}

func snapshot(layby *models.Layby) map[string]any {
	return map[string]any{
		"status":          layby.Status,
		"total":           layby.Total.StringFixed(2),
		"amount_paid":     layby.AmountPaid.StringFixed(2),
		"balance_due":     layby.BalanceDue.StringFixed(2),
		"extension_count": layby.ExtensionCount,
		"end_date":        layby.EndDate,
	}
}

func actorRef(userID uuid.UUID, businessID uuid.UUID) *outbox.ActorRef {
	ref := &outbox.ActorRef{UserID: userID}
	if businessID != uuid.Nil {
		ref.BusinessID = &businessID
	}
	return ref
}

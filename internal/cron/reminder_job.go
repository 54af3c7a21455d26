package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/internal/laybyconfig"
	"github.com/BrightonDube/bizpilot-backend/internal/laybys"
	"github.com/BrightonDube/bizpilot-backend/internal/notifications"
	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
	"github.com/BrightonDube/bizpilot-backend/pkg/outbox"
)

const defaultReminderLeadDays = 3

// maxReminderWindowDays caps the listing window when per-business lead
// days are in play. Policies resolving beyond it are clamped down.
const maxReminderWindowDays = 30

type PaymentReminderJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Laybys   reminderSource
	Notifier reminderNotifier
	Outbox   reminderPublisher
	Deduper  reminderDeduper
	Policies reminderPolicySource
	LeadDays int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reminderSource interface {
	ListUpcomingInstallments(ctx context.Context, from time.Time, to time.Time) ([]laybys.ReminderRow, error)
}

type reminderNotifier interface {
	Record(ctx context.Context, tx *gorm.DB, input notifications.Input) (*models.LaybyNotification, error)
}

type reminderPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reminderDeduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

type reminderPolicySource interface {
	Resolve(ctx context.Context, businessID uuid.UUID, locationID uuid.UUID) (*laybyconfig.Policy, error)
}

// NewPaymentReminderJob records a reminder for every installment falling
// due within the lead window. A SETNX key per installment keeps repeated
// cycles from sending the same reminder twice.
func NewPaymentReminderJob(params PaymentReminderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Laybys == nil {
		return nil, fmt.Errorf("layby repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	leadDays := params.LeadDays
	if leadDays <= 0 {
		leadDays = defaultReminderLeadDays
	}
	return &paymentReminderJob{
		logg:     params.Logger,
		db:       params.DB,
		laybys:   params.Laybys,
		notifier: params.Notifier,
		outbox:   params.Outbox,
		deduper:  params.Deduper,
		policies: params.Policies,
		leadDays: leadDays,
		now:      time.Now,
	}, nil
}

type paymentReminderJob struct {
	logg     *logger.Logger
	db       txRunner
	laybys   reminderSource
	notifier reminderNotifier
	outbox   reminderPublisher
	deduper  reminderDeduper
	policies reminderPolicySource
	leadDays int
	now      func() time.Time
}

func (j *paymentReminderJob) Name() string { return "layby-payment-reminder" }

func (j *paymentReminderJob) Run(ctx context.Context) error {
	from := j.now().UTC()
	// with a policy source the listing window is widened to the cap and
	// each row is filtered by its business's own lead days below
	windowDays := j.leadDays
	if j.policies != nil {
		windowDays = maxReminderWindowDays
	}
	to := from.AddDate(0, 0, windowDays)

	rows, err := j.laybys.ListUpcomingInstallments(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list upcoming installments: %w", err)
	}

	// one bad row must not starve the rest of the window
	var errs []error
	leads := map[string]int{}
	sent := 0
	for _, row := range rows {
		lead := j.leadDaysFor(ctx, row.Layby, leads)
		if row.Schedule.DueDate.After(from.AddDate(0, 0, lead)) {
			continue
		}
		fresh, err := j.claim(ctx, row.Schedule.ID.String(), lead)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !fresh {
			continue
		}
		if err := j.remind(ctx, row); err != nil {
			errs = append(errs, fmt.Errorf("remind layby %s: %w", row.Layby.ID, err))
			continue
		}
		sent++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"window_from":    from,
		"window_to":      to,
		"candidates":     len(rows),
		"reminders_sent": sent,
		"failures":       len(errs),
	})
	j.logg.Info(logCtx, "payment reminder sweep complete")
	return multierr.Combine(errs...)
}

// leadDaysFor resolves the business's configured reminder lead days,
// memoised per run. Resolution failures fall back to the global default
// so one misconfigured business does not silence its reminders.
func (j *paymentReminderJob) leadDaysFor(ctx context.Context, layby models.Layby, cache map[string]int) int {
	if j.policies == nil {
		return j.leadDays
	}
	key := layby.BusinessID.String() + "/" + layby.LocationID.String()
	if lead, ok := cache[key]; ok {
		return lead
	}
	lead := j.leadDays
	policy, err := j.policies.Resolve(ctx, layby.BusinessID, layby.LocationID)
	if err != nil {
		j.logg.Error(j.logg.WithBusinessID(ctx, layby.BusinessID.String()),
			"resolve layby policy for reminders", err)
	} else if policy.ReminderLeadDays > 0 {
		lead = policy.ReminderLeadDays
		if lead > maxReminderWindowDays {
			lead = maxReminderWindowDays
		}
	}
	cache[key] = lead
	return lead
}

// claim marks the installment as reminded for the length of the lead
// window. Without a deduper every cycle reminds again.
func (j *paymentReminderJob) claim(ctx context.Context, scheduleID string, leadDays int) (bool, error) {
	if j.deduper == nil {
		return true, nil
	}
	key := "bizpilot:layby:reminder:" + scheduleID
	ttl := time.Duration(leadDays) * 24 * time.Hour
	ok, err := j.deduper.SetNX(ctx, key, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("claim reminder %s: %w", scheduleID, err)
	}
	return ok, nil
}

func (j *paymentReminderJob) remind(ctx context.Context, row laybys.ReminderRow) error {
	outstanding := row.Schedule.AmountDue.Sub(row.Schedule.AmountPaid)
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := j.notifier.Record(ctx, tx, notifications.Input{
			LaybyID:    row.Layby.ID,
			CustomerID: row.Layby.CustomerID,
			Type:       enums.NotificationTypePaymentReminder,
			Title:      "Layby payment due soon",
			Message: fmt.Sprintf("Installment %d of %s (%s) is due on %s.",
				row.Schedule.InstallmentNumber, row.Layby.Reference,
				outstanding.StringFixed(2), row.Schedule.DueDate.Format("2 January 2006")),
		}); err != nil {
			return err
		}
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLaybyReminderDue,
			AggregateType: enums.AggregateLayby,
			AggregateID:   row.Layby.ID,
			Data: map[string]any{
				"layby_id":           row.Layby.ID.String(),
				"reference":          row.Layby.Reference,
				"installment_number": row.Schedule.InstallmentNumber,
				"due_date":           row.Schedule.DueDate,
				"amount_due":         outstanding.StringFixed(2),
			},
		})
	})
}

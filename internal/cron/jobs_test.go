package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/internal/laybyconfig"
	"github.com/BrightonDube/bizpilot-backend/internal/laybys"
	"github.com/BrightonDube/bizpilot-backend/internal/notifications"
	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
	"github.com/BrightonDube/bizpilot-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}

type jobTxRunner struct{}

func (jobTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeMarker struct {
	asOf    time.Time
	flipped int
	err     error
}

func (f *fakeMarker) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	f.asOf = asOf
	return f.flipped, f.err
}

func TestOverdueSweepJob(t *testing.T) {
	now := time.Date(2026, 3, 15, 6, 0, 0, 0, time.UTC)
	marker := &fakeMarker{flipped: 3}

	jobIface, err := NewOverdueSweepJob(OverdueSweepJobParams{Logger: testLogger(), Laybys: marker})
	if err != nil {
		t.Fatalf("NewOverdueSweepJob: %v", err)
	}
	job := jobIface.(*overdueSweepJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !marker.asOf.Equal(now) {
		t.Fatalf("expected sweep as of %s, got %s", now, marker.asOf)
	}
}

func TestOverdueSweepJobPropagatesErrors(t *testing.T) {
	marker := &fakeMarker{err: errors.New("boom")}
	jobIface, err := NewOverdueSweepJob(OverdueSweepJobParams{Logger: testLogger(), Laybys: marker})
	if err != nil {
		t.Fatalf("NewOverdueSweepJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeReminderSource struct {
	rows []laybys.ReminderRow
}

func (f *fakeReminderSource) ListUpcomingInstallments(ctx context.Context, from time.Time, to time.Time) ([]laybys.ReminderRow, error) {
	return f.rows, nil
}

type fakeReminderNotifier struct {
	inputs []notifications.Input
}

func (f *fakeReminderNotifier) Record(ctx context.Context, tx *gorm.DB, input notifications.Input) (*models.LaybyNotification, error) {
	f.inputs = append(f.inputs, input)
	return &models.LaybyNotification{ID: uuid.New()}, nil
}

type fakeReminderPublisher struct {
	events []outbox.DomainEvent
}

func (f *fakeReminderPublisher) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeDeduper struct {
	claimed map[string]bool
	ttls    map[string]time.Duration
}

func (f *fakeDeduper) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.claimed == nil {
		f.claimed = map[string]bool{}
		f.ttls = map[string]time.Duration{}
	}
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	f.ttls[key] = ttl
	return true, nil
}

type fakePolicySource struct {
	policies map[uuid.UUID]*laybyconfig.Policy
	resolved int
}

func (f *fakePolicySource) Resolve(ctx context.Context, businessID uuid.UUID, locationID uuid.UUID) (*laybyconfig.Policy, error) {
	f.resolved++
	if policy, ok := f.policies[businessID]; ok {
		return policy, nil
	}
	return &laybyconfig.Policy{}, nil
}

func reminderRow() laybys.ReminderRow {
	laybyID := uuid.New()
	return laybys.ReminderRow{
		Layby: models.Layby{
			ID:         laybyID,
			Reference:  "LBY-20260301-AAAA1111",
			CustomerID: uuid.New(),
		},
		Schedule: models.LaybySchedule{
			ID:                uuid.New(),
			LaybyID:           laybyID,
			InstallmentNumber: 2,
			DueDate:           time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC),
			AmountDue:         decimal.NewFromInt(100),
			AmountPaid:        decimal.NewFromInt(40),
			Status:            enums.InstallmentStatusPartial,
		},
	}
}

func TestPaymentReminderJob(t *testing.T) {
	source := &fakeReminderSource{rows: []laybys.ReminderRow{reminderRow()}}
	notifier := &fakeReminderNotifier{}
	publisher := &fakeReminderPublisher{}
	deduper := &fakeDeduper{}

	jobIface, err := NewPaymentReminderJob(PaymentReminderJobParams{
		Logger:   testLogger(),
		DB:       jobTxRunner{},
		Laybys:   source,
		Notifier: notifier,
		Outbox:   publisher,
		Deduper:  deduper,
		LeadDays: 3,
	})
	if err != nil {
		t.Fatalf("NewPaymentReminderJob: %v", err)
	}

	if err := jobIface.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notifier.inputs) != 1 {
		t.Fatalf("expected one reminder, got %d", len(notifier.inputs))
	}
	if notifier.inputs[0].Type != enums.NotificationTypePaymentReminder {
		t.Fatalf("expected payment_reminder, got %s", notifier.inputs[0].Type)
	}
	if len(publisher.events) != 1 || publisher.events[0].EventType != enums.EventLaybyReminderDue {
		t.Fatalf("expected a reminder event, got %+v", publisher.events)
	}

	// a second cycle inside the window stays quiet
	if err := jobIface.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(notifier.inputs) != 1 {
		t.Fatalf("expected the dedupe key to suppress repeats, got %d reminders", len(notifier.inputs))
	}
}

func TestPaymentReminderJobHonoursBusinessLeadDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	shortID := uuid.New()
	longID := uuid.New()

	row := func(businessID uuid.UUID, due time.Time) laybys.ReminderRow {
		laybyID := uuid.New()
		return laybys.ReminderRow{
			Layby: models.Layby{
				ID:         laybyID,
				Reference:  "LBY-20260301-BBBB2222",
				BusinessID: businessID,
				LocationID: uuid.New(),
				CustomerID: uuid.New(),
			},
			Schedule: models.LaybySchedule{
				ID:        uuid.New(),
				LaybyID:   laybyID,
				DueDate:   due,
				AmountDue: decimal.NewFromInt(100),
				Status:    enums.InstallmentStatusPending,
			},
		}
	}

	due := now.AddDate(0, 0, 5)
	source := &fakeReminderSource{rows: []laybys.ReminderRow{
		row(shortID, due),
		row(longID, due),
	}}
	notifier := &fakeReminderNotifier{}
	publisher := &fakeReminderPublisher{}
	deduper := &fakeDeduper{}
	policies := &fakePolicySource{policies: map[uuid.UUID]*laybyconfig.Policy{
		shortID: {ReminderLeadDays: 2},
		longID:  {ReminderLeadDays: 7},
	}}

	jobIface, err := NewPaymentReminderJob(PaymentReminderJobParams{
		Logger:   testLogger(),
		DB:       jobTxRunner{},
		Laybys:   source,
		Notifier: notifier,
		Outbox:   publisher,
		Deduper:  deduper,
		Policies: policies,
		LeadDays: 3,
	})
	if err != nil {
		t.Fatalf("NewPaymentReminderJob: %v", err)
	}
	job := jobIface.(*paymentReminderJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// five days out is inside the 7-day lead but outside the 2-day one
	if len(notifier.inputs) != 1 {
		t.Fatalf("expected one reminder, got %d", len(notifier.inputs))
	}
	key := "bizpilot:layby:reminder:" + source.rows[1].Schedule.ID.String()
	if !deduper.claimed[key] {
		t.Fatal("expected the long-lead installment claimed")
	}
	if got := deduper.ttls[key]; got != 7*24*time.Hour {
		t.Fatalf("expected the claim to live for the policy lead window, got %s", got)
	}
}

type failFirstNotifier struct {
	fakeReminderNotifier
	calls int
}

func (f *failFirstNotifier) Record(ctx context.Context, tx *gorm.DB, input notifications.Input) (*models.LaybyNotification, error) {
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("smtp relay down")
	}
	return f.fakeReminderNotifier.Record(ctx, tx, input)
}

func TestPaymentReminderJobContinuesAfterFailure(t *testing.T) {
	source := &fakeReminderSource{rows: []laybys.ReminderRow{reminderRow(), reminderRow()}}
	notifier := &failFirstNotifier{}
	publisher := &fakeReminderPublisher{}

	jobIface, err := NewPaymentReminderJob(PaymentReminderJobParams{
		Logger:   testLogger(),
		DB:       jobTxRunner{},
		Laybys:   source,
		Notifier: notifier,
		Outbox:   publisher,
		LeadDays: 3,
	})
	if err != nil {
		t.Fatalf("NewPaymentReminderJob: %v", err)
	}

	err = jobIface.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "smtp relay down") {
		t.Fatalf("expected the first failure surfaced, got %v", err)
	}
	// the second row still went out
	if len(notifier.inputs) != 1 {
		t.Fatalf("expected one delivered reminder, got %d", len(notifier.inputs))
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.events))
	}
}

func TestOutboxRetentionJob(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{deletedRows: 7}

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         jobTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
}

type fakeOutboxRetentionRepo struct {
	lastCutoff  time.Time
	deletedRows int64
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	return f.deletedRows, nil
}

func TestNotificationCleanupJob(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	repo := &fakeCleanupRepo{deletedRows: 42}

	jobIface, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     testLogger(),
		DB:         jobTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewNotificationCleanupJob: %v", err)
	}
	job := jobIface.(*notificationCleanupJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-notificationRetentionDays * 24 * time.Hour)
	if !repo.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, repo.lastCutoff)
	}
}

type fakeCleanupRepo struct {
	lastCutoff  time.Time
	deletedRows int64
	err         error
}

func (f *fakeCleanupRepo) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return f.deletedRows, nil
}

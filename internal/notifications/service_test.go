package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	"github.com/BrightonDube/bizpilot-backend/pkg/pagination"
)

type fakeRepository struct {
	createFn func(ctx context.Context, row *models.LaybyNotification) error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, row *models.LaybyNotification) error {
	if f.createFn != nil {
		return f.createFn(ctx, row)
	}
	return nil
}

func (f *fakeRepository) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) ListByLaybyID(ctx context.Context, laybyID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LaybyNotification, *pagination.Cursor, error) {
	return nil, nil, nil
}

func TestService_Record(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	var created *models.LaybyNotification
	repo.createFn = func(ctx context.Context, row *models.LaybyNotification) error {
		created = row
		return nil
	}

	input := Input{
		LaybyID:    uuid.New(),
		CustomerID: uuid.New(),
		Type:       enums.NotificationTypePaymentReminder,
		Title:      "Payment due soon",
		Message:    "Installment of 266.67 is due on 2026-09-03.",
	}
	row, err := svc.Record(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if created == nil || row != created {
		t.Fatal("expected notification row to be created and returned")
	}
	if created.LaybyID != input.LaybyID || created.Type != input.Type {
		t.Fatalf("unexpected notification data: %+v", created)
	}
	if created.SentAt != nil {
		t.Fatal("new notifications must not be marked sent")
	}
}

func TestService_RecordValidation(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := NewService(repo)

	tests := []struct {
		name  string
		input Input
	}{
		{
			name: "missing layby",
			input: Input{
				CustomerID: uuid.New(),
				Type:       enums.NotificationTypePaymentOverdue,
				Title:      "t",
				Message:    "m",
			},
		},
		{
			name: "missing customer",
			input: Input{
				LaybyID: uuid.New(),
				Type:    enums.NotificationTypePaymentOverdue,
				Title:   "t",
				Message: "m",
			},
		},
		{
			name: "bad type",
			input: Input{
				LaybyID:    uuid.New(),
				CustomerID: uuid.New(),
				Type:       enums.NotificationType("carrier_pigeon"),
				Title:      "t",
				Message:    "m",
			},
		},
		{
			name: "empty message",
			input: Input{
				LaybyID:    uuid.New(),
				CustomerID: uuid.New(),
				Type:       enums.NotificationTypePaymentOverdue,
				Title:      "t",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Record(context.Background(), nil, tc.input); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

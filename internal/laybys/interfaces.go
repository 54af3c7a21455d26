package laybys

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/internal/notifications"
	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	"github.com/BrightonDube/bizpilot-backend/pkg/outbox"
	"github.com/BrightonDube/bizpilot-backend/pkg/pagination"
)

// Service is the layby lifecycle engine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*LaybyDetail, error)
	RecordPayment(ctx context.Context, laybyID uuid.UUID, input PaymentInput) (*PaymentResult, error)
	RefundPayment(ctx context.Context, paymentID uuid.UUID, input RefundInput) (*models.LaybyPayment, error)
	Extend(ctx context.Context, laybyID uuid.UUID, input ExtendInput) (*LaybyDetail, error)
	Cancel(ctx context.Context, laybyID uuid.UUID, input CancelInput) (*LaybyDetail, error)
	Collect(ctx context.Context, laybyID uuid.UUID, input CollectInput) (*LaybyDetail, error)
	Get(ctx context.Context, laybyID uuid.UUID) (*LaybyDetail, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*LaybyList, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// Repository manages persistence for laybys and their owned rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, layby *models.Layby) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Layby, error)
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.LaybyPayment, error)
	List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Layby, *pagination.Cursor, error)

	// UpdateStatusIf flips status only when the current status is in from,
	// reporting whether a row changed.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from []enums.LaybyStatus, updates map[string]any) (bool, error)

	DeleteUntouchedSchedules(ctx context.Context, laybyID uuid.UUID) error
	CreateSchedules(ctx context.Context, rows []models.LaybySchedule) error
	CountUnpaidOverdueSchedules(ctx context.Context, laybyID uuid.UUID, asOf time.Time) (int64, error)

	MarkSchedulesOverdue(ctx context.Context, asOf time.Time) (int64, error)
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]models.Layby, error)
	ListUpcomingInstallments(ctx context.Context, from time.Time, to time.Time) ([]ReminderRow, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Record(ctx context.Context, tx *gorm.DB, input notifications.Input) (*models.LaybyNotification, error)
}

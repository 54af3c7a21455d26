package laybys

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db"
	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
	"github.com/BrightonDube/bizpilot-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a laybys repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, layby *models.Layby) error {
	if err := r.db.WithContext(ctx).Create(layby).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_laybys_reference") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "layby reference already exists")
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Layby, error) {
	var layby models.Layby
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Schedules", func(db *gorm.DB) *gorm.DB {
			return db.Order("installment_number ASC")
		}).
		Preload("Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Reservations").
		Where("id = ? AND deleted_at IS NULL", id).
		First(&layby).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "layby not found")
		}
		return nil, err
	}
	return &layby, nil
}

func (r *repository) FindPaymentByID(ctx context.Context, id uuid.UUID) (*models.LaybyPayment, error) {
	var payment models.LaybyPayment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Layby, *pagination.Cursor, error) {
	buffered := pagination.LimitWithBuffer(limit)
	normalized := pagination.NormalizeLimit(limit)

	query := r.db.WithContext(ctx).Model(&models.Layby{}).
		Where("business_id = ? AND deleted_at IS NULL", filter.BusinessID)
	if filter.LocationID != uuid.Nil {
		query = query.Where("location_id = ?", filter.LocationID)
	}
	if filter.CustomerID != uuid.Nil {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Layby
	if err := query.Order("created_at DESC, id DESC").Limit(buffered).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	if len(rows) > normalized {
		next := rows[normalized]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return rows, nil, nil
}

func (r *repository) UpdateStatusIf(ctx context.Context, id uuid.UUID, from []enums.LaybyStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Layby{}).
		Where("id = ? AND status IN ? AND deleted_at IS NULL", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteUntouchedSchedules removes schedule rows no payment has touched.
// Rows with any amount_paid stay so the schedule sum stays reconcilable.
func (r *repository) DeleteUntouchedSchedules(ctx context.Context, laybyID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("layby_id = ? AND amount_paid = 0 AND status IN ?", laybyID, []enums.InstallmentStatus{
			enums.InstallmentStatusPending,
			enums.InstallmentStatusOverdue,
		}).
		Delete(&models.LaybySchedule{}).Error
}

func (r *repository) CreateSchedules(ctx context.Context, rows []models.LaybySchedule) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// CountUnpaidOverdueSchedules counts past-due installments that still carry
// an outstanding balance. It goes by due date and amount rather than the
// status tag so a partial payment against an overdue row does not make the
// layby look caught up.
func (r *repository) CountUnpaidOverdueSchedules(ctx context.Context, laybyID uuid.UUID, asOf time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.LaybySchedule{}).
		Where("layby_id = ? AND due_date < ? AND amount_paid < amount_due AND status IN ?",
			laybyID, asOf, []enums.InstallmentStatus{
				enums.InstallmentStatusPending,
				enums.InstallmentStatusPartial,
				enums.InstallmentStatusOverdue,
			}).
		Count(&count).Error
	return count, err
}

func (r *repository) MarkSchedulesOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.LaybySchedule{}).
		Where("status IN ? AND due_date < ?", []enums.InstallmentStatus{
			enums.InstallmentStatusPending,
			enums.InstallmentStatusPartial,
		}, asOf).
		Update("status", enums.InstallmentStatusOverdue)
	return res.RowsAffected, res.Error
}

func (r *repository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]models.Layby, error) {
	var rows []models.Layby
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_payment_date IS NOT NULL AND next_payment_date < ? AND deleted_at IS NULL",
			enums.LaybyStatusActive, asOf).
		Order("next_payment_date ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListUpcomingInstallments(ctx context.Context, from time.Time, to time.Time) ([]ReminderRow, error) {
	var schedules []models.LaybySchedule
	err := r.db.WithContext(ctx).
		Where("status IN ? AND due_date >= ? AND due_date < ?", []enums.InstallmentStatus{
			enums.InstallmentStatusPending,
			enums.InstallmentStatusPartial,
		}, from, to).
		Order("due_date ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, nil
	}

	laybyIDs := make([]uuid.UUID, 0, len(schedules))
	for _, s := range schedules {
		laybyIDs = append(laybyIDs, s.LaybyID)
	}

	var laybys []models.Layby
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND status IN ? AND deleted_at IS NULL", laybyIDs, []enums.LaybyStatus{
			enums.LaybyStatusActive,
			enums.LaybyStatusOverdue,
		}).
		Find(&laybys).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.Layby, len(laybys))
	for _, l := range laybys {
		byID[l.ID] = l
	}

	rows := make([]ReminderRow, 0, len(schedules))
	for _, s := range schedules {
		layby, ok := byID[s.LaybyID]
		if !ok {
			continue
		}
		rows = append(rows, ReminderRow{Layby: layby, Schedule: s})
	}
	return rows, nil
}

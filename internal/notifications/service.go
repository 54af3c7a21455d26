package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	"github.com/BrightonDube/bizpilot-backend/pkg/pagination"
)

// Service records layby notification decisions. Delivery channels pick the
// rows up out of band.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input Input) (*models.LaybyNotification, error)
	ListByLaybyID(ctx context.Context, laybyID uuid.UUID, params pagination.Params) (*List, error)
}

// Input describes one notification decision.
type Input struct {
	LaybyID    uuid.UUID
	CustomerID uuid.UUID
	Type       enums.NotificationType
	Title      string
	Message    string
}

// List is one page of notification rows.
type List struct {
	Notifications []models.LaybyNotification `json:"notifications"`
	NextCursor    string                     `json:"next_cursor,omitempty"`
}

type service struct {
	repo Repository
}

// NewService wires a notifications service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input Input) (*models.LaybyNotification, error) {
	if input.LaybyID == uuid.Nil {
		return nil, fmt.Errorf("layby id is required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("customer id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid notification type %q", input.Type)
	}
	if input.Title == "" || input.Message == "" {
		return nil, fmt.Errorf("title and message are required")
	}

	row := &models.LaybyNotification{
		ID:         uuid.New(),
		LaybyID:    input.LaybyID,
		CustomerID: input.CustomerID,
		Type:       input.Type,
		Title:      input.Title,
		Message:    input.Message,
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if err := repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *service) ListByLaybyID(ctx context.Context, laybyID uuid.UUID, params pagination.Params) (*List, error) {
	if laybyID == uuid.Nil {
		return nil, fmt.Errorf("layby id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	rows, next, err := s.repo.ListByLaybyID(ctx, laybyID, params.Limit, cursor)
	if err != nil {
		return nil, err
	}

	list := &List{Notifications: rows}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

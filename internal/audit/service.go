package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BrightonDube/bizpilot-backend/pkg/db/models"
	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// Service records append-only layby audit rows.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	ListByLaybyID(ctx context.Context, laybyID uuid.UUID) ([]models.LaybyAudit, error)
}

type service struct {
	repo Repository
}

// Entry captures one layby transition for the audit trail. OldState and
// NewState are marshalled to JSON snapshots; nil is allowed for creation.
type Entry struct {
	LaybyID     uuid.UUID
	Action      enums.LaybyAuditAction
	OldState    any
	NewState    any
	ActorUserID uuid.UUID
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if entry.LaybyID == uuid.Nil {
		return fmt.Errorf("layby id is required")
	}
	if entry.ActorUserID == uuid.Nil {
		return fmt.Errorf("actor user id is required")
	}
	if !entry.Action.IsValid() {
		return fmt.Errorf("invalid audit action %q", entry.Action)
	}

	oldState, err := marshalSnapshot(entry.OldState)
	if err != nil {
		return fmt.Errorf("marshal old state: %w", err)
	}
	newState, err := marshalSnapshot(entry.NewState)
	if err != nil {
		return fmt.Errorf("marshal new state: %w", err)
	}

	row := &models.LaybyAudit{
		LaybyID:     entry.LaybyID,
		Action:      entry.Action,
		OldState:    oldState,
		NewState:    newState,
		ActorUserID: entry.ActorUserID,
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	return repo.Create(ctx, row)
}

func (s *service) ListByLaybyID(ctx context.Context, laybyID uuid.UUID) ([]models.LaybyAudit, error) {
	if laybyID == uuid.Nil {
		return nil, fmt.Errorf("layby id is required")
	}
	return s.repo.ListByLaybyID(ctx, laybyID)
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

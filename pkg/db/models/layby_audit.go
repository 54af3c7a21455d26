package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// LaybyAudit records an immutable before/after snapshot for every layby
// transition. Rows are append-only.
type LaybyAudit struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LaybyID     uuid.UUID              `gorm:"column:layby_id;type:uuid;not null;index"`
	Action      enums.LaybyAuditAction `gorm:"column:action;type:text;not null"`
	OldState    json.RawMessage        `gorm:"column:old_state;type:jsonb"`
	NewState    json.RawMessage        `gorm:"column:new_state;type:jsonb"`
	ActorUserID uuid.UUID              `gorm:"column:actor_user_id;type:uuid;not null"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

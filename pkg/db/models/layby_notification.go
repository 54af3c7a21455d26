package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
)

// LaybyNotification stores a notification decision made by the engine.
// Delivery (SMS/email/push) is an external collaborator's concern.
type LaybyNotification struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LaybyID    uuid.UUID              `gorm:"column:layby_id;type:uuid;not null;index"`
	CustomerID uuid.UUID              `gorm:"column:customer_id;type:uuid;not null"`
	Type       enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title      string                 `gorm:"column:title;type:text;not null"`
	Message    string                 `gorm:"column:message;type:text;not null"`
	SentAt     *time.Time             `gorm:"column:sent_at"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
}

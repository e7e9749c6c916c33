package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/pkg/enums"
)

// OutboxEntry is one durable side-effect awaiting delivery. Rows are created
// pending by producers and mutated exclusively by worker loops; terminal rows
// are retained for audit.
type OutboxEntry struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType `gorm:"column:event_type;type:event_type_enum;not null"`
	Payload       json.RawMessage       `gorm:"column:payload;type:jsonb;not null"`
	Status        enums.OutboxStatus    `gorm:"column:status;type:outbox_status_enum;not null;default:'pending'"`
	Attempts      int                   `gorm:"column:attempts;not null;default:0"`
	NextAttemptAt time.Time             `gorm:"column:next_attempt_at;not null"`
	LastError     *string               `gorm:"column:last_error"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	CompletedAt   *time.Time            `gorm:"column:completed_at"`
}

// TableName keeps the historical table name.
func (OutboxEntry) TableName() string {
	return "outbox_entries"
}

// BeforeCreate assigns an ID when the database default is unavailable.
func (e *OutboxEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/pkg/enums"
)

// PaymentMatchLog records every matching decision for later reconciliation:
// which notification arrived, which tier decided, and what the outcome was.
type PaymentMatchLog struct {
	ID         uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID  *uuid.UUID                 `gorm:"column:payment_id;type:uuid"`
	Provider   enums.NotificationProvider `gorm:"column:provider;not null"`
	Amount     decimal.Decimal            `gorm:"column:amount;type:numeric(10,2);not null"`
	ReceivedAt time.Time                  `gorm:"column:received_at;not null"`
	Outcome    string                     `gorm:"column:outcome;not null"`
	Tier       string                     `gorm:"column:tier"`
	Score      int                        `gorm:"column:score;default:0"`
	Reason     *string                    `gorm:"column:reason"`
	SenderInfo json.RawMessage            `gorm:"column:sender_info;type:jsonb"`
	CreatedAt  time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the historical table name.
func (PaymentMatchLog) TableName() string {
	return "payment_match_logs"
}

// BeforeCreate assigns an ID when the database default is unavailable.
func (l *PaymentMatchLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

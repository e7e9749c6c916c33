package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/myhibachi/hibachi-backend/pkg/enums"
)

// Payment is a ledger entry: a pending expectation of money tied to a booking.
// At most one completed transition is permitted per row.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID        uuid.UUID           `gorm:"column:booking_id;type:uuid;not null"`
	Booking          *Booking            `gorm:"foreignKey:BookingID"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(10,2);not null"`
	AmountPaid       decimal.Decimal     `gorm:"column:amount_paid;type:numeric(10,2);not null;default:0"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:payment_method_enum;not null"`
	Status           enums.PaymentStatus `gorm:"column:status;type:payment_status_enum;not null;default:'pending'"`
	Provider         *string             `gorm:"column:provider"`
	ExternalTxnID    *string             `gorm:"column:external_txn_id"`
	ConfirmationMeta json.RawMessage     `gorm:"column:confirmation_meta;type:jsonb"`
	ConfirmedAt      *time.Time          `gorm:"column:confirmed_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the historical table name.
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate assigns an ID when the database default is unavailable.
func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// RemainingBalance reports how much of the total is still owed.
func (p Payment) RemainingBalance() decimal.Decimal {
	return p.TotalAmount.Sub(p.AmountPaid)
}

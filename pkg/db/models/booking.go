package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Booking carries the customer identity the payment matcher scores against.
// Metadata may hold an alternative_payer sub-record for friend/family payments.
type Booking struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerName  string          `gorm:"column:customer_name;not null"`
	CustomerPhone string          `gorm:"column:customer_phone"`
	CustomerEmail string          `gorm:"column:customer_email"`
	EventDate     time.Time       `gorm:"column:event_date"`
	GuestCount    int             `gorm:"column:guest_count;default:0"`
	DietaryNotes  pq.StringArray  `gorm:"column:dietary_notes;type:text[]"`
	PaymentStatus string          `gorm:"column:payment_status;not null;default:'unpaid'"`
	Metadata      json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns an ID when the database default is unavailable.
func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Booking payment status values. Deposit-met transitions are driven by the
// payment matcher, never by request handlers.
const (
	BookingPaymentUnpaid      = "unpaid"
	BookingPaymentDepositPaid = "deposit_paid"
	BookingPaymentPaidInFull  = "paid_in_full"
)

// AlternativePayer is the optional friend/family payer stored in booking metadata.
type AlternativePayer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// BookingMetadata is the decoded shape of the metadata column.
type BookingMetadata struct {
	AlternativePayer *AlternativePayer `json:"alternative_payer,omitempty"`
	VenmoUsername    string            `json:"venmo_username,omitempty"`
}

package outbox

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/myhibachi/hibachi-backend/pkg/enums"
)

// SMSPayload is the decoded body for sms_send / sms_reminder entries. Phone
// may arrive field-encrypted and is decrypted by the adapter, never logged.
type SMSPayload struct {
	Phone     string     `json:"phone" validate:"required"`
	Body      string     `json:"body" validate:"required"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
}

// EmailPayload is the decoded body for the email_* entries.
type EmailPayload struct {
	To       string         `json:"to" validate:"required"`
	Subject  string         `json:"subject" validate:"required"`
	Template string         `json:"template,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	ReplyTo  string         `json:"reply_to,omitempty"`
}

// Stripe sub-operations selected by stripe_* event types.
const (
	StripeOpPaymentIntent = "payment_intent"
	StripeOpRefund        = "refund"
	StripeOpCustomer      = "customer"
)

// StripePayload is the decoded body for the stripe_* entries.
type StripePayload struct {
	Operation     string          `json:"operation" validate:"required,oneof=payment_intent refund customer"`
	CustomerEmail string          `json:"customer_email" validate:"required,email"`
	CustomerName  string          `json:"customer_name,omitempty"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	Description   string          `json:"description,omitempty"`
	PaymentIntent string          `json:"payment_intent,omitempty"`
	BookingID     *uuid.UUID      `json:"booking_id,omitempty"`
}

// RelayPayload is the decoded body for the *_relay entries forwarded to the
// platform event topic.
type RelayPayload struct {
	Kind       string         `json:"kind" validate:"required"`
	BookingID  *uuid.UUID     `json:"booking_id,omitempty"`
	PaymentID  *uuid.UUID     `json:"payment_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// ChannelFor maps an event type onto the channel that owns it.
func ChannelFor(eventType enums.OutboxEventType) string {
	switch eventType {
	case enums.EventSMSSend, enums.EventSMSReminder:
		return "sms"
	case enums.EventEmailConfirmation, enums.EventEmailPaymentReceived, enums.EventEmailAdminAlert:
		return "email"
	case enums.EventStripePaymentIntent, enums.EventStripeRefund, enums.EventStripeCustomer:
		return "stripe"
	case enums.EventPaymentSettledRelay, enums.EventBookingActivityRelay:
		return "relay"
	default:
		return "unknown"
	}
}

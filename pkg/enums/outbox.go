package enums

import "fmt"

// OutboxStatus maps to the outbox_status enum in Postgres.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusProcessing,
	OutboxStatusCompleted,
	OutboxStatusFailed,
}

// String implements fmt.Stringer.
func (s OutboxStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical outbox_status enum.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further mutation.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusCompleted || s == OutboxStatusFailed
}

// ParseOutboxStatus converts raw input into an OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	for _, candidate := range validOutboxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres. Each type is
// handled by exactly one channel adapter.
type OutboxEventType string

const (
	EventSMSSend              OutboxEventType = "sms_send"
	EventSMSReminder          OutboxEventType = "sms_reminder"
	EventEmailConfirmation    OutboxEventType = "email_confirmation"
	EventEmailPaymentReceived OutboxEventType = "email_payment_received"
	EventEmailAdminAlert      OutboxEventType = "email_admin_alert"
	EventStripePaymentIntent  OutboxEventType = "stripe_payment_intent"
	EventStripeRefund         OutboxEventType = "stripe_refund"
	EventStripeCustomer       OutboxEventType = "stripe_customer"
	EventPaymentSettledRelay  OutboxEventType = "payment_settled_relay"
	EventBookingActivityRelay OutboxEventType = "booking_activity_relay"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSMSSend,
	EventSMSReminder,
	EventEmailConfirmation,
	EventEmailPaymentReceived,
	EventEmailAdminAlert,
	EventStripePaymentIntent,
	EventStripeRefund,
	EventStripeCustomer,
	EventPaymentSettledRelay,
	EventBookingActivityRelay,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

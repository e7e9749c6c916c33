package outbox

import (
	"testing"

	"github.com/myhibachi/hibachi-backend/pkg/enums"
	"github.com/myhibachi/hibachi-backend/pkg/errors"
)

func TestDecodePayloadSMS(t *testing.T) {
	t.Parallel()

	decoded, err := DecodePayload(enums.EventSMSSend, []byte(`{"phone":"+19165551234","body":"hi"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	payload, ok := decoded.(*SMSPayload)
	if !ok {
		t.Fatalf("decoded type = %T, want *SMSPayload", decoded)
	}
	if payload.Phone != "+19165551234" || payload.Body != "hi" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestDecodePayloadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := DecodePayload(enums.EventSMSSend, []byte(`{"phone":"+19165551234","body":"hi","extra":true}`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if errors.IsRetryable(err) {
		t.Fatal("malformed payload must not be retryable")
	}
}

func TestDecodePayloadRejectsMissingRequired(t *testing.T) {
	t.Parallel()

	_, err := DecodePayload(enums.EventEmailConfirmation, []byte(`{"to":"guest@example.com"}`))
	if err == nil {
		t.Fatal("expected error for missing subject")
	}
	if errors.IsRetryable(err) {
		t.Fatal("invalid payload must not be retryable")
	}
}

func TestDecodePayloadStripeOperation(t *testing.T) {
	t.Parallel()

	_, err := DecodePayload(enums.EventStripeRefund, []byte(`{"operation":"refund","customer_email":"guest@example.com","payment_intent":"pi_123"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	_, err = DecodePayload(enums.EventStripeRefund, []byte(`{"operation":"transfer","customer_email":"guest@example.com"}`))
	if err == nil {
		t.Fatal("expected error for unsupported stripe operation")
	}
}

func TestChannelForCoversEveryEventType(t *testing.T) {
	t.Parallel()

	types := []enums.OutboxEventType{
		enums.EventSMSSend,
		enums.EventSMSReminder,
		enums.EventEmailConfirmation,
		enums.EventEmailPaymentReceived,
		enums.EventEmailAdminAlert,
		enums.EventStripePaymentIntent,
		enums.EventStripeRefund,
		enums.EventStripeCustomer,
		enums.EventPaymentSettledRelay,
		enums.EventBookingActivityRelay,
	}
	for _, eventType := range types {
		if ChannelFor(eventType) == "unknown" {
			t.Fatalf("event type %s has no owning channel", eventType)
		}
	}
}

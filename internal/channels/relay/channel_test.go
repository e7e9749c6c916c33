package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

type fakePublisher struct {
	data       []byte
	attributes map[string]string
	err        error
	calls      int
}

func (f *fakePublisher) Publish(_ context.Context, data []byte, attributes map[string]string) (string, error) {
	f.calls++
	f.data = data
	f.attributes = attributes
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func TestChannelPublishesEnvelopeWithDedupeAttributes(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	channel, err := NewChannel(ChannelParams{Publisher: publisher})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	bookingID := uuid.New()
	paymentID := uuid.New()
	entry := &models.OutboxEntry{ID: uuid.New(), EventType: enums.EventPaymentSettledRelay}

	err = channel.Deliver(context.Background(), entry, &outbox.RelayPayload{
		Kind:       "payment.settled",
		BookingID:  &bookingID,
		PaymentID:  &paymentID,
		OccurredAt: time.Now().UTC(),
		Data:       map[string]any{"amount": "250.00"},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if publisher.attributes["entry_id"] != entry.ID.String() {
		t.Fatalf("entry_id attribute = %q", publisher.attributes["entry_id"])
	}
	if publisher.attributes["kind"] != "payment.settled" {
		t.Fatalf("kind attribute = %q", publisher.attributes["kind"])
	}

	var envelope relayEnvelope
	if err := json.Unmarshal(publisher.data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.BookingID != bookingID.String() || envelope.PaymentID != paymentID.String() {
		t.Fatalf("envelope ids: booking=%q payment=%q", envelope.BookingID, envelope.PaymentID)
	}
}

func TestChannelClassifiesPublishFailureAsRetryable(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{err: errors.New("deadline exceeded")}
	channel, err := NewChannel(ChannelParams{Publisher: publisher})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	entry := &models.OutboxEntry{ID: uuid.New(), EventType: enums.EventBookingActivityRelay}
	err = channel.Deliver(context.Background(), entry, &outbox.RelayPayload{Kind: "booking.created"})
	if err == nil {
		t.Fatal("expected publish error")
	}
	if !pkgerrors.IsRetryable(err) {
		t.Fatal("publish failures must be retryable")
	}
}

func TestChannelRejectsWrongPayloadType(t *testing.T) {
	t.Parallel()

	channel, err := NewChannel(ChannelParams{Publisher: &fakePublisher{}})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	err = channel.Deliver(context.Background(), nil, &outbox.SMSPayload{Phone: "+1", Body: "x"})
	if err == nil {
		t.Fatal("expected error for wrong payload type")
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("wrong payload type must not be retryable")
	}
}

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

// Publisher abstracts the Pub/Sub publisher for tests.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// PubSubPublisher wraps a v2 Publisher handle behind the test seam.
type PubSubPublisher struct {
	publisher *pubsub.Publisher
}

// NewPubSubPublisher wraps the provided publisher handle.
func NewPubSubPublisher(publisher *pubsub.Publisher) *PubSubPublisher {
	if publisher == nil {
		return nil
	}
	return &PubSubPublisher{publisher: publisher}
}

// Publish sends one message and blocks for the server-assigned ID.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	if p == nil || p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher not configured")
	}
	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	return result.Get(ctx)
}

// Channel forwards the *_relay entries onto the platform event topic so
// downstream consumers (CRM sync, analytics) see settled payments and booking
// activity without polling the database.
type Channel struct {
	publisher Publisher
}

// ChannelParams carries Channel dependencies.
type ChannelParams struct {
	Publisher Publisher
}

// NewChannel builds the relay channel adapter.
func NewChannel(params ChannelParams) (*Channel, error) {
	if params.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	return &Channel{publisher: params.Publisher}, nil
}

// Name implements outbox.Channel.
func (c *Channel) Name() string {
	return "relay"
}

// EventTypes implements outbox.Channel.
func (c *Channel) EventTypes() []enums.OutboxEventType {
	return []enums.OutboxEventType{
		enums.EventPaymentSettledRelay,
		enums.EventBookingActivityRelay,
	}
}

type relayEnvelope struct {
	Kind       string         `json:"kind"`
	BookingID  string         `json:"booking_id,omitempty"`
	PaymentID  string         `json:"payment_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Deliver implements outbox.Channel.
func (c *Channel) Deliver(ctx context.Context, entry *models.OutboxEntry, payload any) error {
	relayPayload, ok := payload.(*outbox.RelayPayload)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNonRetryable, fmt.Sprintf("unexpected payload type %T for relay channel", payload))
	}

	envelope := relayEnvelope{
		Kind:       relayPayload.Kind,
		OccurredAt: relayPayload.OccurredAt,
		Data:       relayPayload.Data,
	}
	if relayPayload.BookingID != nil {
		envelope.BookingID = relayPayload.BookingID.String()
	}
	if relayPayload.PaymentID != nil {
		envelope.PaymentID = relayPayload.PaymentID.String()
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNonRetryable, err, "encode relay envelope")
	}

	attributes := map[string]string{"kind": relayPayload.Kind}
	if entry != nil {
		// Consumers dedupe on the entry ID; redelivery keeps the same value.
		attributes["entry_id"] = entry.ID.String()
		attributes["event_type"] = string(entry.EventType)
	}

	if _, err := c.publisher.Publish(ctx, data, attributes); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish relay event")
	}
	return nil
}

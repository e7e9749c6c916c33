package sms

import (
	"context"
	"fmt"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
	"github.com/myhibachi/hibachi-backend/pkg/security"
)

// Sender abstracts the gateway for tests.
type Sender interface {
	SendMessage(ctx context.Context, to, body string) error
}

// Channel delivers sms_send and sms_reminder entries. Phone numbers in
// payloads may be field-encrypted; decryption happens here and decrypted
// values are never logged or stored.
type Channel struct {
	sender Sender
	cipher *security.FieldCipher
}

// ChannelParams carries Channel dependencies. Cipher is optional; without it
// only plaintext phone numbers are deliverable.
type ChannelParams struct {
	Sender Sender
	Cipher *security.FieldCipher
}

// NewChannel builds the SMS channel adapter.
func NewChannel(params ChannelParams) (*Channel, error) {
	if params.Sender == nil {
		return nil, fmt.Errorf("sms sender is required")
	}
	return &Channel{sender: params.Sender, cipher: params.Cipher}, nil
}

// Name implements outbox.Channel.
func (c *Channel) Name() string {
	return "sms"
}

// EventTypes implements outbox.Channel.
func (c *Channel) EventTypes() []enums.OutboxEventType {
	return []enums.OutboxEventType{enums.EventSMSSend, enums.EventSMSReminder}
}

// Deliver implements outbox.Channel.
func (c *Channel) Deliver(ctx context.Context, _ *models.OutboxEntry, payload any) error {
	smsPayload, ok := payload.(*outbox.SMSPayload)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNonRetryable, fmt.Sprintf("unexpected payload type %T for sms channel", payload))
	}

	phone := smsPayload.Phone
	if security.IsEncrypted(phone) {
		if c.cipher == nil {
			return pkgerrors.New(pkgerrors.CodeNonRetryable, "encrypted phone but no field cipher configured")
		}
		decrypted, err := c.cipher.Decrypt(phone)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNonRetryable, err, "decrypt recipient phone")
		}
		phone = decrypted
	}

	return c.sender.SendMessage(ctx, phone, smsPayload.Body)
}

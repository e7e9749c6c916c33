package sms

import (
	"context"
	"testing"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
	"github.com/myhibachi/hibachi-backend/pkg/security"
)

type fakeSender struct {
	to   string
	body string
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, to, body string) error {
	f.to = to
	f.body = body
	return f.err
}

func TestChannelDeliversPlaintextPhone(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	channel, err := NewChannel(ChannelParams{Sender: sender})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	err = channel.Deliver(context.Background(), nil, &outbox.SMSPayload{
		Phone: "+19165551234",
		Body:  "Reminder: hibachi at 6pm",
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if sender.to != "+19165551234" || sender.body != "Reminder: hibachi at 6pm" {
		t.Fatalf("sender got to=%q body=%q", sender.to, sender.body)
	}
}

func TestChannelDecryptsEncryptedPhone(t *testing.T) {
	t.Parallel()

	cipher, err := security.NewFieldCipher("test-secret")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	encrypted, err := cipher.Encrypt("+19165551234")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	sender := &fakeSender{}
	channel, err := NewChannel(ChannelParams{Sender: sender, Cipher: cipher})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	err = channel.Deliver(context.Background(), nil, &outbox.SMSPayload{Phone: encrypted, Body: "hi"})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if sender.to != "+19165551234" {
		t.Fatalf("sender got to=%q, want decrypted phone", sender.to)
	}
}

func TestChannelRejectsEncryptedPhoneWithoutCipher(t *testing.T) {
	t.Parallel()

	cipher, err := security.NewFieldCipher("test-secret")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	encrypted, err := cipher.Encrypt("+19165551234")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	channel, err := NewChannel(ChannelParams{Sender: &fakeSender{}})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	err = channel.Deliver(context.Background(), nil, &outbox.SMSPayload{Phone: encrypted, Body: "hi"})
	if err == nil {
		t.Fatal("expected error without cipher")
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("missing cipher must not be retryable")
	}
}

func TestChannelRejectsWrongPayloadType(t *testing.T) {
	t.Parallel()

	channel, err := NewChannel(ChannelParams{Sender: &fakeSender{}})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	err = channel.Deliver(context.Background(), nil, &outbox.EmailPayload{To: "a@b.com", Subject: "x"})
	if err == nil {
		t.Fatal("expected error for wrong payload type")
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("wrong payload type must not be retryable")
	}
}

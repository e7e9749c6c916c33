package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/myhibachi/hibachi-backend/pkg/enums"
	"github.com/myhibachi/hibachi-backend/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodePayload unmarshals and validates an entry payload into the typed
// struct for its event type. Failures return CodeNonRetryable so the worker
// fails the entry immediately instead of burning retries on a payload that
// can never deliver.
func DecodePayload(eventType enums.OutboxEventType, raw json.RawMessage) (any, error) {
	var target any
	switch ChannelFor(eventType) {
	case "sms":
		target = &SMSPayload{}
	case "email":
		target = &EmailPayload{}
	case "stripe":
		target = &StripePayload{}
	case "relay":
		target = &RelayPayload{}
	default:
		return nil, errors.New(errors.CodeNonRetryable, fmt.Sprintf("no payload schema for event type %q", eventType))
	}
	if err := strictUnmarshal(raw, target); err != nil {
		return nil, errors.Wrap(errors.CodeNonRetryable, err, fmt.Sprintf("malformed %s payload", eventType))
	}
	if err := validate.Struct(target); err != nil {
		return nil, errors.Wrap(errors.CodeNonRetryable, err, fmt.Sprintf("invalid %s payload", eventType))
	}
	return target, nil
}

func strictUnmarshal(raw json.RawMessage, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

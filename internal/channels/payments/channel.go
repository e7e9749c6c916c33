package payments

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	"github.com/myhibachi/hibachi-backend/pkg/enums"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

const defaultCurrency = "usd"

// Channel delivers the stripe_* entries. Every mutating call carries an
// idempotency key derived from the outbox entry ID, so a redelivered entry
// replays the original Stripe response instead of duplicating the charge.
type Channel struct {
	api StripeAPI
}

// ChannelParams carries Channel dependencies.
type ChannelParams struct {
	API StripeAPI
}

// NewChannel builds the Stripe channel adapter.
func NewChannel(params ChannelParams) (*Channel, error) {
	if params.API == nil {
		return nil, fmt.Errorf("stripe api is required")
	}
	return &Channel{api: params.API}, nil
}

// Name implements outbox.Channel.
func (c *Channel) Name() string {
	return "stripe"
}

// EventTypes implements outbox.Channel.
func (c *Channel) EventTypes() []enums.OutboxEventType {
	return []enums.OutboxEventType{
		enums.EventStripePaymentIntent,
		enums.EventStripeRefund,
		enums.EventStripeCustomer,
	}
}

// Deliver implements outbox.Channel.
func (c *Channel) Deliver(ctx context.Context, entry *models.OutboxEntry, payload any) error {
	stripePayload, ok := payload.(*outbox.StripePayload)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNonRetryable, fmt.Sprintf("unexpected payload type %T for stripe channel", payload))
	}

	idempotencyKey := ""
	if entry != nil {
		idempotencyKey = entry.ID.String()
	}

	switch stripePayload.Operation {
	case outbox.StripeOpCustomer:
		_, err := c.ensureCustomer(ctx, stripePayload, idempotencyKey)
		return classifyStripeError(err)
	case outbox.StripeOpPaymentIntent:
		return classifyStripeError(c.createPaymentIntent(ctx, stripePayload, idempotencyKey))
	case outbox.StripeOpRefund:
		return classifyStripeError(c.createRefund(ctx, stripePayload, idempotencyKey))
	default:
		return pkgerrors.New(pkgerrors.CodeNonRetryable, fmt.Sprintf("unsupported stripe operation %q", stripePayload.Operation))
	}
}

// ensureCustomer finds the customer by email or creates one.
func (c *Channel) ensureCustomer(ctx context.Context, payload *outbox.StripePayload, idempotencyKey string) (*stripe.Customer, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("email:%q", payload.CustomerEmail),
		},
	}
	existing, err := c.api.SearchCustomers(ctx, searchParams)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	createParams := &stripe.CustomerParams{
		Email: stripe.String(payload.CustomerEmail),
	}
	if payload.CustomerName != "" {
		createParams.Name = stripe.String(payload.CustomerName)
	}
	if idempotencyKey != "" {
		createParams.SetIdempotencyKey(idempotencyKey + ":customer")
	}
	return c.api.CreateCustomer(ctx, createParams)
}

func (c *Channel) createPaymentIntent(ctx context.Context, payload *outbox.StripePayload, idempotencyKey string) error {
	if payload.Amount.LessThanOrEqual(decimal.Zero) {
		return pkgerrors.New(pkgerrors.CodeNonRetryable, "payment intent amount must be positive")
	}

	cust, err := c.ensureCustomer(ctx, payload, idempotencyKey)
	if err != nil {
		return err
	}

	currency := strings.ToLower(strings.TrimSpace(payload.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountToCents(payload.Amount)),
		Currency: stripe.String(currency),
		Customer: stripe.String(cust.ID),
	}
	if payload.Description != "" {
		params.Description = stripe.String(payload.Description)
	}
	if payload.BookingID != nil {
		params.Metadata = map[string]string{"booking_id": payload.BookingID.String()}
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	_, err = c.api.CreatePaymentIntent(ctx, params)
	return err
}

func (c *Channel) createRefund(ctx context.Context, payload *outbox.StripePayload, idempotencyKey string) error {
	if payload.PaymentIntent == "" {
		return pkgerrors.New(pkgerrors.CodeNonRetryable, "refund requires a payment intent id")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(payload.PaymentIntent),
	}
	// A zero amount refunds the full charge.
	if payload.Amount.GreaterThan(decimal.Zero) {
		params.Amount = stripe.Int64(amountToCents(payload.Amount))
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	_, err := c.api.CreateRefund(ctx, params)
	return err
}

func amountToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// classifyStripeError maps Stripe's error taxonomy onto retry behavior: bad
// requests and card errors never heal on retry, everything else might.
func classifyStripeError(err error) error {
	if err == nil {
		return nil
	}
	// Errors we coded ourselves already carry their retry class.
	if pkgerrors.As(err) != nil {
		return err
	}
	var stripeErr *stripe.Error
	if stderrors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeCard:
			return pkgerrors.Wrap(pkgerrors.CodeNonRetryable, err, "stripe rejected request")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe call failed")
}

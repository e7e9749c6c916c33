package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/myhibachi/hibachi-backend/internal/outbox"
	"github.com/myhibachi/hibachi-backend/pkg/db/models"
	pkgerrors "github.com/myhibachi/hibachi-backend/pkg/errors"
)

type fakeStripeAPI struct {
	customers      []*stripe.Customer
	createdCust    *stripe.CustomerParams
	intentParams   *stripe.PaymentIntentParams
	refundParams   *stripe.RefundParams
	searchErr      error
	createErr      error
	intentErr      error
	refundErr      error
	searchQueries  []string
	createdIntents int
}

func (f *fakeStripeAPI) CreateCustomer(_ context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	f.createdCust = params
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &stripe.Customer{ID: "cus_new"}, nil
}

func (f *fakeStripeAPI) SearchCustomers(_ context.Context, params *stripe.CustomerSearchParams) ([]*stripe.Customer, error) {
	f.searchQueries = append(f.searchQueries, params.Query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.customers, nil
}

func (f *fakeStripeAPI) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.intentParams = params
	f.createdIntents++
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	return &stripe.PaymentIntent{ID: "pi_123"}, nil
}

func (f *fakeStripeAPI) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	f.refundParams = params
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &stripe.Refund{ID: "re_123"}, nil
}

func newTestEntry() *models.OutboxEntry {
	return &models.OutboxEntry{ID: uuid.New()}
}

func TestDeliverPaymentIntentCreatesCustomerAndIntent(t *testing.T) {
	t.Parallel()

	api := &fakeStripeAPI{}
	channel, err := NewChannel(ChannelParams{API: api})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	entry := newTestEntry()
	err = channel.Deliver(context.Background(), entry, &outbox.StripePayload{
		Operation:     outbox.StripeOpPaymentIntent,
		CustomerEmail: "guest@example.com",
		CustomerName:  "Sarah Johnson",
		Amount:        decimal.RequireFromString("250.00"),
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if api.createdCust == nil {
		t.Fatal("expected customer creation for unknown email")
	}
	if api.intentParams == nil {
		t.Fatal("expected payment intent creation")
	}
	if got := *api.intentParams.Amount; got != 25000 {
		t.Fatalf("amount = %d cents, want 25000", got)
	}
	if got := *api.intentParams.Currency; got != "usd" {
		t.Fatalf("currency = %q, want usd", got)
	}
	if key := api.intentParams.IdempotencyKey; key == nil || *key != entry.ID.String() {
		t.Fatalf("idempotency key = %v, want entry id", key)
	}
}

func TestDeliverPaymentIntentReusesExistingCustomer(t *testing.T) {
	t.Parallel()

	api := &fakeStripeAPI{customers: []*stripe.Customer{{ID: "cus_existing"}}}
	channel, err := NewChannel(ChannelParams{API: api})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	err = channel.Deliver(context.Background(), newTestEntry(), &outbox.StripePayload{
		Operation:     outbox.StripeOpPaymentIntent,
		CustomerEmail: "guest@example.com",
		Amount:        decimal.RequireFromString("100.00"),
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if api.createdCust != nil {
		t.Fatal("must not create a customer when one exists")
	}
	if got := *api.intentParams.Customer; got != "cus_existing" {
		t.Fatalf("customer = %q, want cus_existing", got)
	}
}

func TestDeliverRefund(t *testing.T) {
	t.Parallel()

	api := &fakeStripeAPI{}
	channel, err := NewChannel(ChannelParams{API: api})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	entry := newTestEntry()
	err = channel.Deliver(context.Background(), entry, &outbox.StripePayload{
		Operation:     outbox.StripeOpRefund,
		CustomerEmail: "guest@example.com",
		PaymentIntent: "pi_999",
		Amount:        decimal.RequireFromString("50.00"),
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if got := *api.refundParams.PaymentIntent; got != "pi_999" {
		t.Fatalf("payment intent = %q", got)
	}
	if got := *api.refundParams.Amount; got != 5000 {
		t.Fatalf("refund amount = %d cents, want 5000", got)
	}
}

func TestDeliverRefundRequiresPaymentIntent(t *testing.T) {
	t.Parallel()

	channel, err := NewChannel(ChannelParams{API: &fakeStripeAPI{}})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	err = channel.Deliver(context.Background(), newTestEntry(), &outbox.StripePayload{
		Operation:     outbox.StripeOpRefund,
		CustomerEmail: "guest@example.com",
	})
	if err == nil {
		t.Fatal("expected error without payment intent id")
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("missing payment intent must not be retryable")
	}
}

func TestDeliverRejectsNonPositiveIntentAmount(t *testing.T) {
	t.Parallel()

	channel, err := NewChannel(ChannelParams{API: &fakeStripeAPI{}})
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}

	err = channel.Deliver(context.Background(), newTestEntry(), &outbox.StripePayload{
		Operation:     outbox.StripeOpPaymentIntent,
		CustomerEmail: "guest@example.com",
		Amount:        decimal.Zero,
	})
	if err == nil {
		t.Fatal("expected error for zero amount")
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("zero amount must not be retryable")
	}
}

func TestClassifyStripeError(t *testing.T) {
	t.Parallel()

	invalid := &stripe.Error{Type: stripe.ErrorTypeInvalidRequest}
	if pkgerrors.IsRetryable(classifyStripeError(invalid)) {
		t.Fatal("invalid request must not be retryable")
	}

	apiErr := &stripe.Error{Type: stripe.ErrorTypeAPI}
	if !pkgerrors.IsRetryable(classifyStripeError(apiErr)) {
		t.Fatal("api errors must be retryable")
	}

	if classifyStripeError(nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}

package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	pkgstripe "github.com/myhibachi/hibachi-backend/pkg/stripe"
)

// StripeAPI exposes the subset of Stripe operations required by the payments
// channel.
type StripeAPI interface {
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	SearchCustomers(ctx context.Context, params *stripe.CustomerSearchParams) ([]*stripe.Customer, error)
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeAPIWrapper struct{}

// NewStripeAPI wraps the provided Stripe client so the channel can be tested.
func NewStripeAPI(api *pkgstripe.Client) StripeAPI {
	if api == nil {
		return nil
	}
	return &stripeAPIWrapper{}
}

func (w *stripeAPIWrapper) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	if params != nil {
		params.Context = ctx
	}
	return customer.New(params)
}

func (w *stripeAPIWrapper) SearchCustomers(ctx context.Context, params *stripe.CustomerSearchParams) ([]*stripe.Customer, error) {
	if params != nil {
		params.Context = ctx
	}
	iter := customer.Search(params)
	var customers []*stripe.Customer
	for iter.Next() {
		customers = append(customers, iter.Customer())
	}
	return customers, iter.Err()
}

func (w *stripeAPIWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (w *stripeAPIWrapper) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if params != nil {
		params.Context = ctx
	}
	return refund.New(params)
}

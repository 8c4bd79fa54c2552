// Package checkout completes payment orders created by the backend. The
// backend owns order creation and amounts; this package only confirms the
// payment with the provider and reports the outcome. It never touches the
// conversation state.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/smartchat-ai/smartchat/internal/api"
)

// Result is the outcome of a purchase attempt.
type Result int

const (
	// ResultCompleted means the payment settled.
	ResultCompleted Result = iota
	// ResultDismissed means the payment was abandoned before settling.
	ResultDismissed
	// ResultFailed means the provider rejected the payment.
	ResultFailed
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultDismissed:
		return "dismissed"
	case ResultFailed:
		return "failed"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// ErrIncompleteOrder is returned when the backend order is missing the fields
// needed to run a payment.
var ErrIncompleteOrder = errors.New("checkout: order is missing required fields")

// Service completes a backend-created order with the payment provider.
type Service interface {
	// Purchase confirms the payment for the given order. The order's
	// ProviderKey selects the provider account; the amount and currency are
	// the backend's and are passed through unmodified.
	Purchase(ctx context.Context, order api.Order) (Result, error)
}

// paymentIntents is the slice of the Stripe client the service uses,
// extracted for testing.
type paymentIntents interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

// StripeOption configures a StripeService.
type StripeOption func(*StripeService)

// WithPaymentMethod sets the saved payment method used to confirm intents.
func WithPaymentMethod(id string) StripeOption {
	return func(s *StripeService) { s.paymentMethod = id }
}

// withIntentsFactory overrides client construction, for tests.
func withIntentsFactory(fn func(key string) paymentIntents) StripeOption {
	return func(s *StripeService) { s.intentsFor = fn }
}

// StripeService implements Service on Stripe payment intents.
type StripeService struct {
	paymentMethod string
	intentsFor    func(key string) paymentIntents
}

var _ Service = (*StripeService)(nil)

// NewStripeService creates a Stripe-backed checkout service.
func NewStripeService(opts ...StripeOption) *StripeService {
	s := &StripeService{
		intentsFor: func(key string) paymentIntents {
			return stripe.NewClient(key).V1PaymentIntents
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Purchase creates a payment intent for the order and confirms it. The
// backend order id travels in the intent metadata so the two sides can be
// joined during reconciliation.
func (s *StripeService) Purchase(ctx context.Context, order api.Order) (Result, error) {
	if order.OrderID == "" || order.ProviderKey == "" || order.Amount <= 0 || order.Currency == "" {
		return ResultFailed, fmt.Errorf("%w: %+v", ErrIncompleteOrder, order)
	}

	intents := s.intentsFor(order.ProviderKey)

	createParams := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(order.Amount),
		Currency: stripe.String(strings.ToLower(order.Currency)),
		Metadata: map[string]string{"order_id": order.OrderID},
	}
	if s.paymentMethod != "" {
		createParams.PaymentMethod = stripe.String(s.paymentMethod)
	}

	intent, err := intents.Create(ctx, createParams)
	if err != nil {
		return ResultFailed, fmt.Errorf("checkout: create payment intent: %w", err)
	}

	confirmed, err := intents.Confirm(ctx, intent.ID, &stripe.PaymentIntentConfirmParams{})
	if err != nil {
		return ResultFailed, fmt.Errorf("checkout: confirm payment intent: %w", err)
	}

	result := resultForStatus(confirmed.Status)
	slog.Info("checkout: purchase settled",
		"order_id", order.OrderID,
		"intent_id", confirmed.ID,
		"status", string(confirmed.Status),
		"result", result.String(),
	)
	return result, nil
}

// resultForStatus maps a Stripe intent status to a purchase Result.
func resultForStatus(status stripe.PaymentIntentStatus) Result {
	switch status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return ResultCompleted
	case stripe.PaymentIntentStatusCanceled:
		return ResultDismissed
	default:
		return ResultFailed
	}
}

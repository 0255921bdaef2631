// Package payments wraps the card payment processor: customers, checkout and
// portal sessions, billing history and webhook verification.
package payments

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/devportal/devportal/internal/model"
)

var (
	// ErrCustomerNotFound indicates no processor customer is linked to the user.
	ErrCustomerNotFound = errors.New("payment customer not found")
	// ErrInvalidSignature indicates a webhook payload failed verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMissingSignature indicates a webhook without signature or configured secret.
	ErrMissingSignature = errors.New("missing signature or webhook secret")
)

// CheckoutParams describes a one-off credits purchase.
type CheckoutParams struct {
	UserID     string
	CustomerID string
	Amount     decimal.Decimal
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is a created hosted checkout page.
type CheckoutSession struct {
	ID  string
	URL string
}

// Processor is the payment processor surface used by the billing service.
type Processor interface {
	// FindCustomer returns the customer whose metadata names userID,
	// or ErrCustomerNotFound.
	FindCustomer(ctx context.Context, userID string) (*model.Customer, error)
	// FindOrCreateCustomer resolves a customer by metadata, then by email,
	// and creates one when neither matches.
	FindOrCreateCustomer(ctx context.Context, userID, email string) (*model.Customer, error)
	// LinkCustomer stamps userID on the customer's metadata.
	LinkCustomer(ctx context.Context, customerID, userID string) error
	// HasPaymentHistory reports whether the customer ever paid.
	HasPaymentHistory(ctx context.Context, customerID string) (bool, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	// ListTransactions returns paid history rows, newest first.
	ListTransactions(ctx context.Context, customerID string) ([]model.Transaction, error)
	// ConstructEvent verifies a webhook payload and normalizes it.
	ConstructEvent(payload []byte, signature string) (*model.PaymentEvent, error)
}

// ToCents converts a dollar amount to integer cents, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromCents converts integer cents to dollars.
func FromCents(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

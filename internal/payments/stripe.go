package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/devportal/devportal/internal/model"
)

const (
	productName = "Credits Top-up"
	currencyUSD = "usd"
	// listLimit caps each history listing to a single page.
	listLimit = 100
)

// StripeConfig configures the Stripe processor.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// Backends overrides the API endpoints, e.g. for tests. Nil uses Stripe.
	Backends *stripe.Backends
}

// Stripe implements Processor with the Stripe API.
// The API client is built on first use and shared by all requests.
type Stripe struct {
	cfg StripeConfig

	once sync.Once
	api  *client.API
}

// NewStripe creates a Stripe processor.
func NewStripe(cfg StripeConfig) *Stripe {
	return &Stripe{cfg: cfg}
}

func (s *Stripe) client() *client.API {
	s.once.Do(func() {
		s.api = client.New(s.cfg.SecretKey, s.cfg.Backends)
	})
	return s.api
}

// FindCustomer searches customers by their user_id metadata.
func (s *Stripe) FindCustomer(ctx context.Context, userID string) (*model.Customer, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   customerQuery(userID),
			Limit:   stripe.Int64(1),
			Single:  true,
			Context: ctx,
		},
	}

	iter := s.client().Customers.Search(params)
	if iter.Next() {
		return toCustomer(iter.Customer()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("search customer: %w", err)
	}

	return nil, ErrCustomerNotFound
}

// FindOrCreateCustomer resolves the customer for a checkout. A failed search
// is treated as a miss.
func (s *Stripe) FindOrCreateCustomer(ctx context.Context, userID, email string) (*model.Customer, error) {
	if c, err := s.FindCustomer(ctx, userID); err == nil {
		return c, nil
	}

	if email != "" {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		params.Limit = stripe.Int64(1)
		params.Single = true
		params.Context = ctx

		iter := s.client().Customers.List(params)
		if iter.Next() {
			c := toCustomer(iter.Customer())
			if err := s.LinkCustomer(ctx, c.ID, userID); err != nil {
				return nil, err
			}
			if c.Metadata == nil {
				c.Metadata = map[string]string{}
			}
			c.Metadata[model.MetadataUserID] = userID
			return c, nil
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("list customers by email: %w", err)
		}
	}

	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(model.MetadataUserID, userID)
	params.Context = ctx

	created, err := s.client().Customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	return toCustomer(created), nil
}

// LinkCustomer stamps userID on the customer's metadata.
func (s *Stripe) LinkCustomer(ctx context.Context, customerID, userID string) error {
	params := &stripe.CustomerParams{}
	params.AddMetadata(model.MetadataUserID, userID)
	params.Context = ctx

	if _, err := s.client().Customers.Update(customerID, params); err != nil {
		return fmt.Errorf("update customer metadata: %w", err)
	}
	return nil
}

// HasPaymentHistory looks for a paid invoice, then a succeeded payment intent.
func (s *Stripe) HasPaymentHistory(ctx context.Context, customerID string) (bool, error) {
	invParams := &stripe.InvoiceListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.InvoiceStatusPaid)),
	}
	invParams.Limit = stripe.Int64(1)
	invParams.Single = true
	invParams.Context = ctx

	invoices := s.client().Invoices.List(invParams)
	if invoices.Next() {
		return true, nil
	}
	if err := invoices.Err(); err != nil {
		return false, fmt.Errorf("list invoices: %w", err)
	}

	piParams := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	piParams.Limit = stripe.Int64(listLimit)
	piParams.Single = true
	piParams.Context = ctx

	intents := s.client().PaymentIntents.List(piParams)
	for intents.Next() {
		if intents.PaymentIntent().Status == stripe.PaymentIntentStatusSucceeded {
			return true, nil
		}
	}
	if err := intents.Err(); err != nil {
		return false, fmt.Errorf("list payment intents: %w", err)
	}

	return false, nil
}

// CreateCheckoutSession creates a hosted payment page for a credits top-up.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currencyUSD),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(productName),
						Description: stripe.String(fmt.Sprintf("Add $%s in credits to your account", p.Amount.StringFixed(2))),
					},
					UnitAmount: stripe.Int64(ToCents(p.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{
			Enabled: stripe.Bool(true),
		},
		InvoiceCreation: &stripe.CheckoutSessionInvoiceCreationParams{
			Enabled: stripe.Bool(true),
		},
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		SuccessURL:               stripe.String(p.SuccessURL),
		CancelURL:                stripe.String(p.CancelURL),
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
		params.CustomerUpdate = &stripe.CheckoutSessionCustomerUpdateParams{
			Address: stripe.String("auto"),
		}
	}
	params.AddMetadata(model.MetadataUserID, p.UserID)
	params.AddMetadata(model.MetadataAmount, p.Amount.String())
	params.Context = ctx

	session, err := s.client().CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// CreatePortalSession returns a billing portal URL for the customer.
func (s *Stripe) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	session, err := s.client().BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return session.URL, nil
}

// ListTransactions merges the customer's invoices and checkout sessions.
func (s *Stripe) ListTransactions(ctx context.Context, customerID string) ([]model.Transaction, error) {
	csParams := &stripe.CheckoutSessionListParams{Customer: stripe.String(customerID)}
	csParams.Limit = stripe.Int64(listLimit)
	csParams.Single = true
	csParams.Context = ctx

	var sessions []*stripe.CheckoutSession
	csIter := s.client().CheckoutSessions.List(csParams)
	for csIter.Next() {
		sessions = append(sessions, csIter.CheckoutSession())
	}
	if err := csIter.Err(); err != nil {
		return nil, fmt.Errorf("list checkout sessions: %w", err)
	}

	invParams := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	invParams.Limit = stripe.Int64(listLimit)
	invParams.Single = true
	invParams.Context = ctx

	var invoices []*stripe.Invoice
	invIter := s.client().Invoices.List(invParams)
	for invIter.Next() {
		invoices = append(invoices, invIter.Invoice())
	}
	if err := invIter.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	return mergeTransactions(invoices, sessions), nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
func (s *Stripe) ConstructEvent(payload []byte, signature string) (*model.PaymentEvent, error) {
	if signature == "" || s.cfg.WebhookSecret == "" {
		return nil, ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &model.PaymentEvent{ID: event.ID, Type: string(event.Type)}

	if out.Type == model.EventCheckoutSessionCompleted {
		if event.Data == nil {
			return nil, errors.New("checkout event without data")
		}

		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}

		completion := &model.CheckoutCompletion{
			SessionID:     session.ID,
			PaymentStatus: string(session.PaymentStatus),
			Metadata:      session.Metadata,
		}
		if session.Customer != nil {
			completion.CustomerID = session.Customer.ID
		}
		out.Checkout = completion
	}

	return out, nil
}

func customerQuery(userID string) string {
	escaped := strings.ReplaceAll(userID, `'`, `\'`)
	return fmt.Sprintf("metadata['%s']:'%s'", model.MetadataUserID, escaped)
}

func toCustomer(c *stripe.Customer) *model.Customer {
	return &model.Customer{ID: c.ID, Email: c.Email, Metadata: c.Metadata}
}

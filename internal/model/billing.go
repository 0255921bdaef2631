package model

// Transaction types shown in billing history.
const (
	TransactionInvoice  = "invoice"
	TransactionCheckout = "checkout"
)

// Payment status reported by Stripe for a completed checkout session.
const PaymentStatusPaid = "paid"

// Payment event types handled by the webhook receiver.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
)

// Metadata keys stamped on Stripe customers and checkout sessions.
const (
	MetadataUserID = "user_id"
	MetadataAmount = "amount"
)

// CheckoutRequest is the body accepted by POST /api/stripe/create-checkout.
type CheckoutRequest struct {
	UserID        string   `json:"user_id"`
	Amount        *float64 `json:"amount"`
	CustomerEmail string   `json:"customer_email,omitempty"`
}

// CheckoutResponse carries the hosted checkout page for the browser.
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// PortalRequest is the body accepted by POST /api/stripe/create-portal-session.
type PortalRequest struct {
	UserID string `json:"user_id"`
}

// PortalResponse carries the hosted billing portal URL.
type PortalResponse struct {
	URL string `json:"url"`
}

// Transaction is one row of a user's billing history.
type Transaction struct {
	ID               string  `json:"id"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	Status           string  `json:"status"`
	Created          int64   `json:"created"`
	InvoicePDF       *string `json:"invoice_pdf"`
	HostedInvoiceURL *string `json:"hosted_invoice_url"`
	Description      string  `json:"description"`
	Type             string  `json:"type"`
}

// TransactionList is the response of GET /api/stripe/invoices.
type TransactionList struct {
	Transactions []Transaction `json:"transactions"`
}

// Customer is the subset of a payment-processor customer the app needs.
type Customer struct {
	ID       string
	Email    string
	Metadata map[string]string
}

// PaymentEvent is a verified, normalized webhook event.
type PaymentEvent struct {
	ID       string
	Type     string
	Checkout *CheckoutCompletion
}

// CheckoutCompletion is the checkout session carried by a completion event.
type CheckoutCompletion struct {
	SessionID     string
	PaymentStatus string
	CustomerID    string
	Metadata      map[string]string
}

package testutil

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/devportal/devportal/internal/auth"
	"github.com/devportal/devportal/internal/ledger"
	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/payments"
)

// ============================================================================
// Identity
// ============================================================================

// FakeVerifier accepts a fixed set of tokens.
type FakeVerifier struct {
	mu     sync.Mutex
	tokens map[string]*model.Claims
	calls  int
}

// NewFakeVerifier returns a verifier that knows no tokens.
func NewFakeVerifier() *FakeVerifier {
	return &FakeVerifier{tokens: make(map[string]*model.Claims)}
}

// Issue registers token as belonging to userID and returns it.
func (f *FakeVerifier) Issue(token, userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = &model.Claims{
		UserID:    userID,
		Issuer:    auth.PrivyIssuer,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return token
}

// Verify implements auth.Verifier.
func (f *FakeVerifier) Verify(ctx context.Context, token string) (*model.Claims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if token == "" {
		return nil, auth.ErrMissingToken
	}
	claims, ok := f.tokens[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return claims, nil
}

// Calls returns the number of Verify calls.
func (f *FakeVerifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Bearer sets the Authorization header of r.
func Bearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// ============================================================================
// Ledger
// ============================================================================

// Ledger operations recorded by FakeLedger.
const (
	OpCreateCredential = "create_credential"
	OpDeleteCredential = "delete_credential"
	OpGetCredential    = "get_credential"
	OpListCredentials  = "list_credentials"
	OpGetRateLimits    = "get_rate_limits"
	OpUpdateRateLimits = "update_rate_limits"
	OpGetSpending      = "get_spending"
	OpCreateUser       = "create_user"
	OpGetUser          = "get_user"
	OpTopUp            = "top_up"
)

// LedgerCall is one recorded ledger call.
type LedgerCall struct {
	Op     string
	ID     string
	Body   any
	Amount float64
}

// FakeLedger is an in-memory ledger service.
type FakeLedger struct {
	mu          sync.Mutex
	calls       []LedgerCall
	credentials map[string]*model.Credential

	// Responses overrides the body returned per operation.
	Responses map[string]json.RawMessage
	// Errors makes an operation fail.
	Errors map[string]error
}

// NewFakeLedger returns an empty ledger.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		credentials: make(map[string]*model.Credential),
		Responses:   make(map[string]json.RawMessage),
		Errors:      make(map[string]error),
	}
}

// AddCredential stores a credential for ownership lookups and listings.
func (f *FakeLedger) AddCredential(c *model.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentials[c.ID] = c
}

// Fail makes op answer with the given downstream status.
func (f *FakeLedger) Fail(op string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[op] = &ledger.StatusError{Op: op, Status: status, Body: `{"detail":"fake failure"}`}
}

// Calls returns every recorded call.
func (f *FakeLedger) Calls() []LedgerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LedgerCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded calls of one operation.
func (f *FakeLedger) CallsTo(op string) []LedgerCall {
	var out []LedgerCall
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeLedger) record(call LedgerCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.Errors[call.Op]
}

func (f *FakeLedger) respond(op string, fallback any) (json.RawMessage, error) {
	f.mu.Lock()
	override, ok := f.Responses[op]
	f.mu.Unlock()
	if ok {
		return override, nil
	}
	data, err := json.Marshal(fallback)
	if err != nil {
		return nil, fmt.Errorf("fake ledger: %w", err)
	}
	return data, nil
}

// CreateCredential implements the ledger client method.
func (f *FakeLedger) CreateCredential(ctx context.Context, req model.LedgerCredentialCreate) (json.RawMessage, error) {
	if err := f.record(LedgerCall{Op: OpCreateCredential, ID: req.UserID, Body: req}); err != nil {
		return nil, err
	}
	cred := &model.Credential{
		ID:            "cred_" + req.UserID,
		UserID:        req.UserID,
		CredentialKey: req.CredentialKey,
		IsPublic:      req.IsPublic,
		IsActive:      true,
	}
	f.AddCredential(cred)
	return f.respond(OpCreateCredential, cred)
}

// DeleteCredential implements the ledger client method.
func (f *FakeLedger) DeleteCredential(ctx context.Context, credentialID string) error {
	if err := f.record(LedgerCall{Op: OpDeleteCredential, ID: credentialID}); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.credentials, credentialID)
	f.mu.Unlock()
	return nil
}

// GetCredential implements the ledger client method.
func (f *FakeLedger) GetCredential(ctx context.Context, credentialID string) (*model.Credential, error) {
	if err := f.record(LedgerCall{Op: OpGetCredential, ID: credentialID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.credentials[credentialID]
	if !ok {
		return nil, &ledger.StatusError{Op: OpGetCredential, Status: http.StatusNotFound, Body: `{"detail":"not found"}`}
	}
	cp := *c
	return &cp, nil
}

// ListCredentials implements the ledger client method.
func (f *FakeLedger) ListCredentials(ctx context.Context, userID string) (json.RawMessage, error) {
	if err := f.record(LedgerCall{Op: OpListCredentials, ID: userID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	list := model.CredentialList{Credentials: []model.Credential{}}
	for _, c := range f.credentials {
		if c.UserID == userID {
			list.Credentials = append(list.Credentials, *c)
		}
	}
	f.mu.Unlock()
	return f.respond(OpListCredentials, list)
}

// GetRateLimits implements the ledger client method.
func (f *FakeLedger) GetRateLimits(ctx context.Context, credentialID string) (json.RawMessage, error) {
	if err := f.record(LedgerCall{Op: OpGetRateLimits, ID: credentialID}); err != nil {
		return nil, err
	}
	return f.respond(OpGetRateLimits, model.RateLimits{})
}

// UpdateRateLimits implements the ledger client method.
func (f *FakeLedger) UpdateRateLimits(ctx context.Context, credentialID string, limits any) (json.RawMessage, error) {
	if err := f.record(LedgerCall{Op: OpUpdateRateLimits, ID: credentialID, Body: limits}); err != nil {
		return nil, err
	}
	return f.respond(OpUpdateRateLimits, limits)
}

// GetSpending implements the ledger client method.
func (f *FakeLedger) GetSpending(ctx context.Context, credentialID string) (json.RawMessage, error) {
	if err := f.record(LedgerCall{Op: OpGetSpending, ID: credentialID}); err != nil {
		return nil, err
	}
	return f.respond(OpGetSpending, []model.SpendingEvent{})
}

// CreateUser implements the ledger client method.
func (f *FakeLedger) CreateUser(ctx context.Context, userID string) (json.RawMessage, error) {
	if err := f.record(LedgerCall{Op: OpCreateUser, ID: userID}); err != nil {
		return nil, err
	}
	return f.respond(OpCreateUser, model.User{UserID: userID})
}

// GetUser implements the ledger client method.
func (f *FakeLedger) GetUser(ctx context.Context, userID string) (json.RawMessage, error) {
	if err := f.record(LedgerCall{Op: OpGetUser, ID: userID}); err != nil {
		return nil, err
	}
	return f.respond(OpGetUser, model.User{UserID: userID, Balance: 1})
}

// TopUp implements the ledger client method.
func (f *FakeLedger) TopUp(ctx context.Context, userID string, amount float64) (json.RawMessage, error) {
	if err := f.record(LedgerCall{Op: OpTopUp, ID: userID, Amount: amount}); err != nil {
		return nil, err
	}
	return f.respond(OpTopUp, model.User{UserID: userID, Balance: amount})
}

// ============================================================================
// Payments
// ============================================================================

// FakeProcessor is an in-memory payment processor.
type FakeProcessor struct {
	mu sync.Mutex

	customers map[string]*model.Customer
	paid      map[string]bool

	// Injected failures.
	FindErr         error
	HistoryErr      error
	CheckoutErr     error
	PortalErr       error
	TransactionsErr error
	LinkErr         error

	Transactions []model.Transaction
	// Verify backs ConstructEvent, e.g. a real payments.Stripe verifier.
	Verify func(payload []byte, signature string) (*model.PaymentEvent, error)

	Checkouts []payments.CheckoutParams
	Portals   []string
	Links     []string
	Created   []string
}

// NewFakeProcessor returns a processor with no customers.
func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{
		customers: make(map[string]*model.Customer),
		paid:      make(map[string]bool),
	}
}

// AddCustomer links a customer to userID; paid sets its payment history.
func (f *FakeProcessor) AddCustomer(userID, customerID string, paid bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[userID] = &model.Customer{ID: customerID, Metadata: map[string]string{model.MetadataUserID: userID}}
	f.paid[customerID] = paid
}

// FindCustomer implements payments.Processor.
func (f *FakeProcessor) FindCustomer(ctx context.Context, userID string) (*model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FindErr != nil {
		return nil, f.FindErr
	}
	c, ok := f.customers[userID]
	if !ok {
		return nil, payments.ErrCustomerNotFound
	}
	return c, nil
}

// FindOrCreateCustomer implements payments.Processor.
func (f *FakeProcessor) FindOrCreateCustomer(ctx context.Context, userID, email string) (*model.Customer, error) {
	if c, err := f.FindCustomer(ctx, userID); err == nil {
		return c, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &model.Customer{ID: "cus_" + userID, Email: email, Metadata: map[string]string{model.MetadataUserID: userID}}
	f.customers[userID] = c
	f.Created = append(f.Created, userID)
	return c, nil
}

// LinkCustomer implements payments.Processor.
func (f *FakeProcessor) LinkCustomer(ctx context.Context, customerID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Links = append(f.Links, customerID+"->"+userID)
	return f.LinkErr
}

// HasPaymentHistory implements payments.Processor.
func (f *FakeProcessor) HasPaymentHistory(ctx context.Context, customerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HistoryErr != nil {
		return false, f.HistoryErr
	}
	return f.paid[customerID], nil
}

// CreateCheckoutSession implements payments.Processor.
func (f *FakeProcessor) CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CheckoutErr != nil {
		return nil, f.CheckoutErr
	}
	f.Checkouts = append(f.Checkouts, p)
	id := fmt.Sprintf("cs_test_%d", len(f.Checkouts))
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

// CreatePortalSession implements payments.Processor.
func (f *FakeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PortalErr != nil {
		return "", f.PortalErr
	}
	f.Portals = append(f.Portals, returnURL)
	return "https://billing.example/" + customerID, nil
}

// ListTransactions implements payments.Processor.
func (f *FakeProcessor) ListTransactions(ctx context.Context, customerID string) ([]model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TransactionsErr != nil {
		return nil, f.TransactionsErr
	}
	return f.Transactions, nil
}

// ConstructEvent implements payments.Processor.
func (f *FakeProcessor) ConstructEvent(payload []byte, signature string) (*model.PaymentEvent, error) {
	if f.Verify == nil {
		return nil, payments.ErrInvalidSignature
	}
	return f.Verify(payload, signature)
}

// SignStripePayload builds a Stripe-Signature header for payload.
func SignStripePayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// CheckoutCompletedEvent renders a checkout.session.completed event payload.
func CheckoutCompletedEvent(eventID, userID, amount, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_%s",
			"object": "checkout.session",
			"payment_status": %q,
			"customer": "cus_%s",
			"metadata": {"user_id": %q, "amount": %q}
		}}
	}`, eventID, eventID, paymentStatus, eventID, userID, amount))
}

// FakeEventLog is an in-memory webhook event log.
type FakeEventLog struct {
	mu     sync.Mutex
	Events map[string]*model.WebhookEvent
	Err    error
}

// NewFakeEventLog returns an empty event log.
func NewFakeEventLog() *FakeEventLog {
	return &FakeEventLog{Events: make(map[string]*model.WebhookEvent)}
}

// IsCredited implements the event log.
func (f *FakeEventLog) IsCredited(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	e, ok := f.Events[eventID]
	return ok && e.Status == model.WebhookEventCredited, nil
}

// Record implements the event log.
func (f *FakeEventLog) Record(ctx context.Context, event *model.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	cp := *event
	f.Events[event.EventID] = &cp
	return nil
}

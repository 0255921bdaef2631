package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	HTTPRequests     uint64
	AuthFailures     uint64
	OwnershipDenials uint64
	LedgerCalls      uint64
	LedgerFailures   uint64
	CheckoutsCreated uint64
	// TopUps is keyed by "source/outcome".
	TopUps map[string]uint64
	// WebhookEvents is keyed by "type/outcome".
	WebhookEvents map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	httpRequests     uint64
	authFailures     uint64
	ownershipDenials uint64
	ledgerCalls      uint64
	ledgerFailures   uint64
	checkoutsCreated uint64

	mu            sync.Mutex
	topUps        map[string]uint64
	webhookEvents map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		topUps:        make(map[string]uint64),
		webhookEvents: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	topUps := make(map[string]uint64, len(m.topUps))
	for k, v := range m.topUps {
		topUps[k] = v
	}
	events := make(map[string]uint64, len(m.webhookEvents))
	for k, v := range m.webhookEvents {
		events[k] = v
	}

	return Snapshot{
		HTTPRequests:     atomic.LoadUint64(&m.httpRequests),
		AuthFailures:     atomic.LoadUint64(&m.authFailures),
		OwnershipDenials: atomic.LoadUint64(&m.ownershipDenials),
		LedgerCalls:      atomic.LoadUint64(&m.ledgerCalls),
		LedgerFailures:   atomic.LoadUint64(&m.ledgerFailures),
		CheckoutsCreated: atomic.LoadUint64(&m.checkoutsCreated),
		TopUps:           topUps,
		WebhookEvents:    events,
	}
}

// ObserveHTTPRequest increments the request counter.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	atomic.AddUint64(&m.httpRequests, 1)
}

// IncAuthFailure increments the auth failure counter.
func (m *InMemoryRecorder) IncAuthFailure(reason string) {
	atomic.AddUint64(&m.authFailures, 1)
}

// IncOwnershipDenied increments the ownership denial counter.
func (m *InMemoryRecorder) IncOwnershipDenied(gate string) {
	atomic.AddUint64(&m.ownershipDenials, 1)
}

// ObserveLedgerCall counts ledger calls and failures.
func (m *InMemoryRecorder) ObserveLedgerCall(op, outcome string, duration time.Duration) {
	atomic.AddUint64(&m.ledgerCalls, 1)
	if outcome != OutcomeSuccess {
		atomic.AddUint64(&m.ledgerFailures, 1)
	}
}

// IncTopUp counts top-ups by source and outcome.
func (m *InMemoryRecorder) IncTopUp(source, outcome string) {
	m.mu.Lock()
	m.topUps[source+"/"+outcome]++
	m.mu.Unlock()
}

// IncCheckoutCreated increments the checkout counter.
func (m *InMemoryRecorder) IncCheckoutCreated() {
	atomic.AddUint64(&m.checkoutsCreated, 1)
}

// IncWebhookEvent counts webhook events by type and outcome.
func (m *InMemoryRecorder) IncWebhookEvent(eventType, outcome string) {
	m.mu.Lock()
	m.webhookEvents[eventType+"/"+outcome]++
	m.mu.Unlock()
}

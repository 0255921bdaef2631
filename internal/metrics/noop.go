package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveHTTPRequest is a no-op.
func (n *NoopRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {}

// IncAuthFailure is a no-op.
func (n *NoopRecorder) IncAuthFailure(reason string) {}

// IncOwnershipDenied is a no-op.
func (n *NoopRecorder) IncOwnershipDenied(gate string) {}

// ObserveLedgerCall is a no-op.
func (n *NoopRecorder) ObserveLedgerCall(op, outcome string, duration time.Duration) {}

// IncTopUp is a no-op.
func (n *NoopRecorder) IncTopUp(source, outcome string) {}

// IncCheckoutCreated is a no-op.
func (n *NoopRecorder) IncCheckoutCreated() {}

// IncWebhookEvent is a no-op.
func (n *NoopRecorder) IncWebhookEvent(eventType, outcome string) {}

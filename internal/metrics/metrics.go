// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Outcome labels shared by recorder methods.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Top-up sources.
const (
	TopUpDirect  = "direct"
	TopUpWebhook = "webhook"
	TopUpWelcome = "welcome"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// HTTP surface
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Identity and ownership
	IncAuthFailure(reason string)
	IncOwnershipDenied(gate string)

	// Downstream calls
	ObserveLedgerCall(op, outcome string, duration time.Duration)

	// Billing
	IncTopUp(source, outcome string)
	IncCheckoutCreated()
	IncWebhookEvent(eventType, outcome string)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}

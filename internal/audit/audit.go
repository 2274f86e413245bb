// Package audit is the Metrics & Audit Sink (spec §4.10): every Settlement
// Engine state transition emits a structured PaymentEvent; a Sink renders it
// as logs, metrics, or both. Sinks are explicit services constructed at
// startup and threaded through request handlers, never ambient globals
// (spec §9 "Global mutable state").
package audit

import (
	"time"
)

// EventType classifies a PaymentEvent, mirrored on the Settlement Engine's
// state-machine transitions plus the bare verify-only path.
type EventType string

const (
	EventVerifyAttempt   EventType = "verify_attempt"
	EventVerifySuccess   EventType = "verify_success"
	EventVerifyFailure   EventType = "verify_failure"
	EventSettleAttempt   EventType = "settle_attempt"
	EventSettleSuccess   EventType = "settle_success"
	EventSettleFailure   EventType = "settle_failure"
	EventStateTransition EventType = "state_transition"
)

// PaymentEvent is one occurrence in a verify or settle lifecycle, grounded
// on the (scheme, network, payer, transaction) shape a payment event
// stream needs regardless of transport.
type PaymentEvent struct {
	Type        EventType
	Timestamp   time.Time
	RequestID   string
	Network     string
	Scheme      string
	Payer       string
	Hook        string
	State       string // Settlement Engine state name, set for EventStateTransition
	Reason      string // ErrorReason on failure
	Transaction string
	Duration    time.Duration
	Metadata    map[string]interface{}
}

// Sink receives PaymentEvents. Implementations must not block the
// Settlement Engine for long — a write should be effectively non-blocking
// (in-memory counters, a buffered log write).
type Sink interface {
	Record(e PaymentEvent)
}

// MultiSink fans a PaymentEvent out to every configured Sink, letting a
// caller combine a log sink and a metrics sink without either depending on
// the other.
type MultiSink []Sink

func (m MultiSink) Record(e PaymentEvent) {
	for _, s := range m {
		s.Record(e)
	}
}

// Package x402f provides the shared wire types and error taxonomy for the
// x402 settlement facilitator: the payment payload/requirements data model,
// amount conversion helpers, and the sentinel errors and SettlementError
// wrapper every internal component returns.
package x402f

import (
	"errors"
	"fmt"
)

// Sentinel errors mirroring the error-reason vocabulary surfaced verbatim to
// clients (see ErrorReason below). Infra sentinels at the bottom are
// process-level and never surfaced as a machine-readable reason.
var (
	ErrInvalidSignature              = errors.New("invalid_signature")
	ErrAuthorizationExpired          = errors.New("authorization_expired")
	ErrAuthorizationNotYetValid      = errors.New("authorization_not_yet_valid")
	ErrInvalidRecipient              = errors.New("invalid_recipient")
	ErrInsufficientFunds             = errors.New("insufficient_funds")
	ErrInvalidScheme                 = errors.New("invalid_scheme")
	ErrInvalidCommitment             = errors.New("invalid_commitment")
	ErrAlreadySettled                = errors.New("already_settled")
	ErrSettlementRouterNotConfigured = errors.New("settlement_router_not_configured")
	ErrInvalidTransactionState       = errors.New("invalid_transaction_state")
	ErrUnexpectedSettleError         = errors.New("unexpected_settle_error")

	// ErrUnsupportedNetwork is a client error (400): the request named a
	// network the registry has no NetworkConfig for.
	ErrUnsupportedNetwork = errors.New("unsupported network")
	// ErrInvalidParam flags a malformed address or 32-byte field passed to
	// the commitment codec.
	ErrInvalidParam = errors.New("invalid param")
	// ErrMalformedRequest flags a request body that does not parse into the
	// wire types.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrInvalidAmount flags an amount string that does not parse to an
	// exact atomic-unit integer.
	ErrInvalidAmount = errors.New("invalid amount")

	// Infrastructure sentinels. Never surfaced as ErrorReason strings; they
	// drive 5xx responses and signer-pool control flow.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")
	ErrNoSignerAvailable      = errors.New("no signer available")
	ErrRPCUnavailable         = errors.New("rpc unavailable")
)

// ErrorReason is one of the machine-readable strings from spec §6, returned
// verbatim to clients in VerifyResponse.InvalidReason / SettleResponse.ErrorReason.
type ErrorReason string

const (
	ReasonInvalidSignature              ErrorReason = "invalid_signature"
	ReasonAuthorizationExpired          ErrorReason = "authorization_expired"
	ReasonAuthorizationNotYetValid      ErrorReason = "authorization_not_yet_valid"
	ReasonInvalidRecipient              ErrorReason = "invalid_recipient"
	ReasonInsufficientFunds             ErrorReason = "insufficient_funds"
	ReasonInvalidScheme                 ErrorReason = "invalid_scheme"
	ReasonInvalidCommitment             ErrorReason = "invalid_commitment"
	ReasonAlreadySettled                ErrorReason = "already_settled"
	ReasonSettlementRouterNotConfigured ErrorReason = "settlement_router_not_configured"
	ReasonInvalidTransactionState       ErrorReason = "invalid_transaction_state"
	ReasonUnexpectedSettleError         ErrorReason = "unexpected_settle_error"
)

// reasonToSentinel maps a reason back to its sentinel so errors.Is works
// against a SettlementError built straight from a reason string.
var reasonToSentinel = map[ErrorReason]error{
	ReasonInvalidSignature:              ErrInvalidSignature,
	ReasonAuthorizationExpired:          ErrAuthorizationExpired,
	ReasonAuthorizationNotYetValid:      ErrAuthorizationNotYetValid,
	ReasonInvalidRecipient:              ErrInvalidRecipient,
	ReasonInsufficientFunds:             ErrInsufficientFunds,
	ReasonInvalidScheme:                 ErrInvalidScheme,
	ReasonInvalidCommitment:             ErrInvalidCommitment,
	ReasonAlreadySettled:                ErrAlreadySettled,
	ReasonSettlementRouterNotConfigured: ErrSettlementRouterNotConfigured,
	ReasonInvalidTransactionState:       ErrInvalidTransactionState,
	ReasonUnexpectedSettleError:         ErrUnexpectedSettleError,
}

// SettlementError wraps a machine-readable reason, a human message, and an
// optional cause. Unwrap exposes the cause when present, otherwise the
// reason's sentinel, so errors.Is/errors.As see through either way.
type SettlementError struct {
	Reason  ErrorReason
	Message string
	Cause   error
}

func (e *SettlementError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	}
	return string(e.Reason)
}

func (e *SettlementError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return reasonToSentinel[e.Reason]
}

// NewSettlementError builds a SettlementError for the given reason.
func NewSettlementError(reason ErrorReason, message string, cause error) *SettlementError {
	return &SettlementError{Reason: reason, Message: message, Cause: cause}
}

// AsSettlementError reports whether err carries a machine-readable reason.
func AsSettlementError(err error) (*SettlementError, bool) {
	var se *SettlementError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

package feeengine

import "errors"

var (
	// ErrHookNotWhitelisted is returned by CalculateMinFacilitatorFee when
	// hook whitelisting is enforced and the hook is not registered for the
	// network.
	ErrHookNotWhitelisted = errors.New("feeengine: hook not whitelisted for network")
	// ErrNonFinitePrice is returned when the payment-token USD price is
	// zero, negative, or non-finite — dividing by it would be unsafe.
	ErrNonFinitePrice = errors.New("feeengine: non-finite payment token price")
)

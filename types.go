package x402f

import "math/big"

// Authorization is the EIP-3009 primitive: a signed permission to move funds.
// Invariant: ValidAfter <= now <= ValidBefore; Nonce is 32 bytes and, in this
// protocol, equals the commitment digest (see internal/commitment).
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// EVMPayload is the scheme-specific body of a PaymentPayload: a signature
// over an Authorization plus the settlement parameters the commitment binds.
// SettlementMode, Salt, PayTo, FacilitatorFee, Hook and HookData are optional
// on the wire (a merchant may omit them and rely on PaymentRequirements.Extra
// instead); when present, all but SettlementMode must agree with the
// requirements' Extra or the commitment check fails. SettlementMode is not
// checked.
type EVMPayload struct {
	Signature     string         `json:"signature"`
	Authorization Authorization  `json:"authorization"`

	SettlementMode string `json:"settlementMode,omitempty"`
	Salt           string `json:"salt,omitempty"`
	PayTo          string `json:"payTo,omitempty"`
	FacilitatorFee string `json:"facilitatorFee,omitempty"`
	Hook           string `json:"hook,omitempty"`
	HookData       string `json:"hookData,omitempty"`
}

// PaymentPayload is the client-facing envelope carrying a signed payment.
type PaymentPayload struct {
	X402Version int        `json:"x402Version"`
	Scheme      string     `json:"scheme"`
	Network     string     `json:"network"`
	Payload     EVMPayload `json:"payload"`
}

// SettlementExtra is the merchant-advertised settlement contract carried in
// PaymentRequirements.Extra: the router to call, the hook to invoke, and the
// parameters the commitment binds beyond the bare authorization.
type SettlementExtra struct {
	SettlementRouter string `json:"settlementRouter"`
	Salt             string `json:"salt"`
	PayTo            string `json:"payTo"`
	FacilitatorFee   string `json:"facilitatorFee"`
	Hook             string `json:"hook"`
	HookData         string `json:"hookData,omitempty"`
}

// PaymentRequirements is the merchant-advertised contract a PaymentPayload is
// checked against.
type PaymentRequirements struct {
	Scheme            string          `json:"scheme"`
	Network           string          `json:"network"`
	MaxAmountRequired string          `json:"maxAmountRequired"`
	Resource          string          `json:"resource"`
	PayTo             string          `json:"payTo"`
	Asset             string          `json:"asset"`
	MimeType          string          `json:"mimeType,omitempty"`
	MaxTimeoutSeconds int             `json:"maxTimeoutSeconds,omitempty"`
	Extra             SettlementExtra `json:"extra"`
}

// VerifyResponse is the /verify response body.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	Payer         string `json:"payer,omitempty"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// GasMetrics is produced post-receipt by the Settlement Engine's Accounted
// transition (spec §4.9).
type GasMetrics struct {
	GasUsed             uint64  `json:"gasUsed"`
	EffectiveGasPrice   string  `json:"effectiveGasPrice"`
	ActualGasCostNative string  `json:"actualGasCostNative"`
	ActualGasCostUSD    float64 `json:"actualGasCostUSD"`
	FacilitatorFee      string  `json:"facilitatorFee"`
	FacilitatorFeeUSD   float64 `json:"facilitatorFeeUSD"`
	ProfitUSD           float64 `json:"profitUSD"`
	ProfitMarginPercent float64 `json:"profitMarginPercent"`
	Profitable          bool    `json:"profitable"`
}

// SettleResponse is the /settle response body.
type SettleResponse struct {
	Success     bool        `json:"success"`
	Transaction string      `json:"transaction,omitempty"`
	Network     string      `json:"network"`
	Payer       string      `json:"payer,omitempty"`
	ErrorReason string      `json:"errorReason,omitempty"`
	GasMetrics  *GasMetrics `json:"gasMetrics,omitempty"`
}

// SupportedKind is one (scheme, network) combination the facilitator accepts,
// with per-network enrichment so resource servers can self-configure
// (router address, hook whitelist) without a side channel.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is the /supported response body.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// AmountToBigInt converts a decimal amount string to *big.Int in atomic
// units, e.g. "1.5" with 6 decimals becomes 1500000. Uses big.Rat rather
// than big.Float so the conversion is exact rather than subject to binary
// floating-point rounding.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))

	if !r.IsInt() {
		return nil, ErrInvalidAmount
	}
	return r.Num(), nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal string,
// e.g. 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}

	r := new(big.Rat).SetInt(value)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Quo(r, new(big.Rat).SetInt(scale))

	return r.FloatString(decimals)
}

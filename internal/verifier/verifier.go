// Package verifier is the Verifier (spec §4.8): runs the canonical EIP-3009
// authorization checks — signature recovery, validity window, recipient,
// amount, and EIP-712 domain — without touching any state-changing chain
// operation. It returns a result rather than raising on an invalid payload
// (spec §9's "Dynamic typing and schema leniency" note): {valid, payer} or
// {invalid, reason}. Result has a Tolerated flag, but Verify never sets it,
// so no result is ever tolerated.
package verifier

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	x402f "github.com/x402labs/facilitator"
	"github.com/x402labs/facilitator/internal/balance"
	"github.com/x402labs/facilitator/internal/registry"
)

// Result is the Verifier's outcome.
type Result struct {
	Valid     bool
	Payer     string
	Reason    x402f.ErrorReason
	Tolerated bool // never set by Verify; always false
}

// Verifier checks a PaymentPayload against PaymentRequirements.
type Verifier struct {
	registry *registry.Registry
	balances *balance.Checker
}

// New builds a Verifier. balances may be nil to skip the balance
// short-circuit entirely (some callers — e.g. a second verification inside
// the Settlement Engine — may choose to rely on the pre-settle balance
// check instead).
func New(reg *registry.Registry, balances *balance.Checker) *Verifier {
	return &Verifier{registry: reg, balances: balances}
}

// eip3009Types is the TransferWithAuthorization typed-data schema, shared
// with the commitment-signing path this is the mirror image of.
var eip3009Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// Verify runs the full authorization check (spec §4.8).
func (v *Verifier) Verify(ctx context.Context, payload x402f.PaymentPayload, req x402f.PaymentRequirements) (Result, error) {
	cfg, err := v.registry.Get(payload.Network)
	if err != nil {
		// Per spec §4.2, a network absent from the registry is
		// UNSUPPORTED_NETWORK, the same hard error the Settlement Engine
		// raises for the identical condition. The Verifier tolerates no
		// unknown network, and Verify has no tolerated case for a known
		// one either.
		return Result{}, fmt.Errorf("verifier: %w", err)
	}

	auth := payload.Payload.Authorization
	token := common.HexToAddress(req.Asset)

	payer, err := recoverPayer(payload, cfg.ChainID, token, cfg.DefaultAsset.EIP712)
	if err != nil || !strings.EqualFold(payer.Hex(), auth.From) {
		return Result{Valid: false, Reason: x402f.ReasonInvalidSignature}, nil
	}

	now := time.Now().Unix()
	validAfter, ok1 := parseInt64(auth.ValidAfter)
	validBefore, ok2 := parseInt64(auth.ValidBefore)
	if !ok1 || !ok2 {
		return Result{Valid: false, Payer: payer.Hex(), Reason: x402f.ReasonInvalidSignature}, nil
	}
	if now < validAfter {
		return Result{Valid: false, Payer: payer.Hex(), Reason: x402f.ReasonAuthorizationNotYetValid}, nil
	}
	if now > validBefore {
		return Result{Valid: false, Payer: payer.Hex(), Reason: x402f.ReasonAuthorizationExpired}, nil
	}

	if !strings.EqualFold(auth.To, req.PayTo) && !strings.EqualFold(auth.To, req.Extra.SettlementRouter) {
		return Result{Valid: false, Payer: payer.Hex(), Reason: x402f.ReasonInvalidRecipient}, nil
	}

	required, okReq := new(big.Int).SetString(req.MaxAmountRequired, 10)
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !okReq {
		required = nil
	}
	if !ok || required == nil || value.Cmp(required) < 0 {
		return Result{Valid: false, Payer: payer.Hex(), Reason: x402f.ReasonInvalidRecipient}, nil
	}

	if v.balances != nil {
		res := v.balances.CheckBalance(ctx, payload.Network, token, payer, value)
		if !res.HasSufficient {
			return Result{Valid: false, Payer: payer.Hex(), Reason: x402f.ReasonInsufficientFunds}, nil
		}
	}

	return Result{Valid: true, Payer: payer.Hex()}, nil
}

func parseInt64(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

// recoverPayer reconstructs the EIP-712 digest for the authorization and
// recovers the signer's address from the (possibly ERC-6492-wrapped)
// signature.
func recoverPayer(payload x402f.PaymentPayload, chainID int64, token common.Address, domain registry.EIP712Domain) (common.Address, error) {
	sigHex := payload.Payload.Signature
	sig, wrapped, err := UnwrapERC6492(sigHex)
	if err != nil {
		return common.Address{}, err
	}
	_ = wrapped // not used; the Verifier does not surface it

	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("verifier: signature must be 65 bytes, got %d", len(sig))
	}

	auth := payload.Payload.Authorization
	value, _ := new(big.Int).SetString(auth.Value, 10)
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)

	typedData := apitypes.TypedData{
		Types:       eip3009Types,
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(chainID)),
			VerifyingContract: token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       value,
			"validAfter":  validAfter,
			"validBefore": validBefore,
			"nonce":       auth.Nonce,
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Address{}, fmt.Errorf("verifier: domain hash: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Address{}, fmt.Errorf("verifier: message hash: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	digest := crypto.Keccak256(rawData)

	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("verifier: recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Package settlement is the Settlement Engine (spec §4.9): the state
// machine that drives a verified payment payload through commitment
// verification, signer leasing, gas pricing, simulation, submission, and
// on-chain confirmation to a final SettleResponse. Every other component is
// a dependency injected at construction; the engine itself holds no
// package-level state (spec §9 "Global mutable state").
package settlement

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	x402f "github.com/x402labs/facilitator"
	"github.com/x402labs/facilitator/internal/audit"
	"github.com/x402labs/facilitator/internal/balance"
	"github.com/x402labs/facilitator/internal/commitment"
	"github.com/x402labs/facilitator/internal/feeengine"
	"github.com/x402labs/facilitator/internal/gasoracle"
	"github.com/x402labs/facilitator/internal/priceoracle"
	"github.com/x402labs/facilitator/internal/registry"
	"github.com/x402labs/facilitator/internal/router"
	"github.com/x402labs/facilitator/internal/signerpool"
	"github.com/x402labs/facilitator/internal/verifier"
)

// State names one step of the Settlement Engine's state machine (spec
// §4.9). Every state but Done and Failed has exactly one successor on
// success and a Failed transition on any error.
type State string

const (
	StateReceived          State = "received"
	StateValidated         State = "validated"
	StateVerified          State = "verified"
	StateCommitmentChecked State = "commitment_checked"
	StateSignerLeased      State = "signer_leased"
	StateGasPriced         State = "gas_priced"
	StateSimulated         State = "simulated"
	StateSubmitted         State = "submitted"
	StateConfirmed         State = "confirmed"
	StateAccounted         State = "accounted"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Config wires every dependency the engine drives. Nil optional fields
// (Sink) degrade to no-ops rather than panicking.
type Config struct {
	Registry    *registry.Registry
	Verifier    *verifier.Verifier
	Balances    *balance.Checker
	FeeEngine   *feeengine.Engine
	PriceOracle *priceoracle.Oracle
	GasOracle   *gasoracle.Oracle
	Signers     *signerpool.Pool
	Chain       Chain
	Sink        audit.Sink
	Logger      *zap.Logger

	Environment          feeengine.Environment
	EnforceHookWhitelist bool
	// EnforceAssetWhitelist restricts settlement to each network's
	// DefaultAsset when true; when false DefaultAsset or any asset in
	// SupportedAssets (or any asset at all, if that list is empty) is
	// accepted. Settlement
	// policy is stricter than the Verifier's, which never checks asset
	// identity at all (spec §9 open question, resolved conservatively).
	EnforceAssetWhitelist bool
	// HookTypes classifies a hook address for gas-overhead/fee purposes;
	// an unlisted hook defaults to feeengine.HookTypeGeneric.
	HookTypes map[string]feeengine.HookType

	// SubmitTimeout bounds the Submitted->Confirmed wait. Zero means no
	// additional timeout beyond the caller's context.
	SubmitTimeout time.Duration
}

// Engine is the Settlement Engine.
type Engine struct {
	registry    *registry.Registry
	verifier    *verifier.Verifier
	balances    *balance.Checker
	feeEngine   *feeengine.Engine
	priceOracle *priceoracle.Oracle
	gasOracle   *gasoracle.Oracle
	signers     *signerpool.Pool
	chain       Chain
	sink        audit.Sink
	log         *zap.Logger

	env                   feeengine.Environment
	enforceHookWhitelist  bool
	enforceAssetWhitelist bool
	hookTypes             map[string]feeengine.HookType
	submitTimeout         time.Duration
}

// New builds a Settlement Engine from cfg.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = audit.MultiSink{}
	}
	return &Engine{
		registry:              cfg.Registry,
		verifier:              cfg.Verifier,
		balances:              cfg.Balances,
		feeEngine:             cfg.FeeEngine,
		priceOracle:           cfg.PriceOracle,
		gasOracle:             cfg.GasOracle,
		signers:               cfg.Signers,
		chain:                 cfg.Chain,
		sink:                  sink,
		log:                   log,
		env:                   cfg.Environment,
		enforceHookWhitelist:  cfg.EnforceHookWhitelist,
		enforceAssetWhitelist: cfg.EnforceAssetWhitelist,
		hookTypes:             cfg.HookTypes,
		submitTimeout:         cfg.SubmitTimeout,
	}
}

// fail builds the (SettleResponse, error) pair for a business-outcome
// failure (spec §6: these are 200-status responses, not errors) and emits
// the corresponding audit event.
func (e *Engine) fail(atState string, network string, reason x402f.ErrorReason, start time.Time) (x402f.SettleResponse, error) {
	e.sink.Record(audit.PaymentEvent{
		Type:     audit.EventSettleFailure,
		Network:  network,
		Reason:   string(reason),
		State:    atState,
		Duration: time.Since(start),
	})
	return x402f.SettleResponse{Success: false, Network: network, ErrorReason: string(reason)}, nil
}

// Settle drives payload/req through every Settlement Engine state and
// returns the final response. A non-nil error means a client or
// infrastructure problem (unsupported network, no signer available, RPC
// failure) rather than a business-outcome rejection; those are reported as
// SettleResponse{Success: false, ErrorReason: ...} with a nil error
// instead, mirroring Verifier.Verify's two-channel convention.
func (e *Engine) Settle(ctx context.Context, payload x402f.PaymentPayload, req x402f.PaymentRequirements) (x402f.SettleResponse, error) {
	start := time.Now()
	requestID := uuid.New().String()
	state := StateReceived
	e.sink.Record(audit.PaymentEvent{Type: audit.EventSettleAttempt, RequestID: requestID, Network: payload.Network, Scheme: payload.Scheme})

	transition := func(next State) {
		state = next
		e.sink.Record(audit.PaymentEvent{Type: audit.EventStateTransition, RequestID: requestID, Network: payload.Network, State: string(next)})
	}

	// Validated: network, router, asset, and hook whitelisting.
	cfg, err := e.registry.Get(payload.Network)
	if err != nil {
		return x402f.SettleResponse{}, fmt.Errorf("settlement: %w", x402f.ErrUnsupportedNetwork)
	}
	extra := req.Extra
	if !e.registry.IsRouterWhitelisted(payload.Network, extra.SettlementRouter) {
		return e.fail(string(state), payload.Network, x402f.ReasonSettlementRouterNotConfigured, start)
	}
	if !e.assetWhitelisted(cfg, req.Asset) {
		return e.fail(string(state), payload.Network, x402f.ReasonInvalidScheme, start)
	}
	hookAddr := extra.Hook
	if !e.registry.IsHookWhitelisted(payload.Network, hookAddr) {
		if e.enforceHookWhitelist {
			return e.fail(string(state), payload.Network, x402f.ReasonUnexpectedSettleError, start)
		}
		e.log.Warn("hook not in network whitelist, proceeding (enforcement disabled)",
			zap.String("network", payload.Network), zap.String("hook", hookAddr))
	}
	transition(StateValidated)

	// Verified: the canonical EIP-3009 checks, plus a direct, independent
	// balance check (spec §9: "the engine also depends on the Balance
	// Checker directly", not solely through the Verifier's own call).
	result, err := e.verifier.Verify(ctx, payload, req)
	if err != nil {
		return x402f.SettleResponse{}, fmt.Errorf("settlement: verify: %w", err)
	}
	if !result.Valid {
		return e.fail(string(state), payload.Network, result.Reason, start)
	}
	payer := common.HexToAddress(result.Payer)
	token := common.HexToAddress(req.Asset)
	value, _ := new(big.Int).SetString(payload.Payload.Authorization.Value, 10)
	if e.balances != nil && value != nil {
		bal := e.balances.CheckBalance(ctx, payload.Network, token, payer, value)
		if !bal.HasSufficient {
			return e.fail(string(state), payload.Network, x402f.ReasonInsufficientFunds, start)
		}
	}
	transition(StateVerified)

	// CommitmentChecked: any payload-level override fields must agree with
	// the merchant's advertised Extra before the cryptographic recompute
	// even runs — a cheap string-equality pre-check that turns an obvious
	// tamper attempt into a clear reason rather than a generic mismatch.
	params, err := e.buildCommitmentParams(cfg.ChainID, payload, req)
	if err != nil {
		return e.fail(string(state), payload.Network, x402f.ReasonInvalidCommitment, start)
	}
	if !payloadOverridesAgree(payload.Payload, extra) {
		return e.fail(string(state), payload.Network, x402f.ReasonInvalidCommitment, start)
	}
	nonce, err := decodeNonce(payload.Payload.Authorization.Nonce)
	if err != nil {
		return e.fail(string(state), payload.Network, x402f.ReasonInvalidCommitment, start)
	}
	ok, err := commitment.VerifyCommitment(nonce, params)
	if err != nil || !ok {
		return e.fail(string(state), payload.Network, x402f.ReasonInvalidCommitment, start)
	}
	contextKey := commitment.ContextKey(params.From, params.Token, nonce)

	alreadySettled, err := e.chain.IsSettled(ctx, payload.Network, contextKey)
	if err != nil {
		return x402f.SettleResponse{}, fmt.Errorf("settlement: is-settled check: %w", err)
	}
	if alreadySettled {
		return e.fail(string(state), payload.Network, x402f.ReasonAlreadySettled, start)
	}
	transition(StateCommitmentChecked)

	// SignerLeased.
	lease, err := e.signers.Acquire(ctx, payload.Network)
	if err != nil {
		return x402f.SettleResponse{}, fmt.Errorf("settlement: acquire signer: %w", err)
	}
	leaseReleased := false
	release := func(outcome signerpool.Outcome) {
		if !leaseReleased {
			lease.Release(outcome)
			leaseReleased = true
		}
	}
	defer release(signerpool.OutcomeFailure)
	transition(StateSignerLeased)

	// GasPriced: gas price, USD prices, minimum fee, and effective gas
	// limit, all under the current market conditions at submit time.
	gasPriceWei, err := e.gasOracle.GetGasPrice(ctx, payload.Network)
	if err != nil {
		return x402f.SettleResponse{}, fmt.Errorf("settlement: gas price: %w", err)
	}
	nativePriceUSD, err := e.priceOracle.GetNativePriceUSD(ctx, payload.Network, cfg.NativeToken)
	if err != nil {
		return x402f.SettleResponse{}, fmt.Errorf("settlement: native price: %w", err)
	}
	tokenPriceUSD, err := e.priceOracle.GetPaymentTokenPriceUSD(ctx, payload.Network, cfg.DefaultAsset.Symbol)
	if err != nil {
		return x402f.SettleResponse{}, fmt.Errorf("settlement: token price: %w", err)
	}
	hookType := e.hookTypeFor(hookAddr)
	minFee, err := e.feeEngine.CalculateMinFacilitatorFee(payload.Network, hookAddr, hookType, cfg.DefaultAsset.Decimals, gasPriceWei, nativePriceUSD, tokenPriceUSD, e.env, e.enforceHookWhitelist)
	if err != nil {
		release(signerpool.OutcomeSuccess)
		return e.fail(string(state), payload.Network, x402f.ReasonUnexpectedSettleError, start)
	}
	if params.FacilitatorFee.Cmp(minFee.FeeAtomic) < 0 {
		release(signerpool.OutcomeSuccess)
		return e.fail(string(state), payload.Network, x402f.ReasonUnexpectedSettleError, start)
	}
	gasLimit := e.feeEngine.CalculateEffectiveGasLimit(payload.Network, minFee.FeeUSD, gasPriceWei, nativePriceUSD, hookType)
	transition(StateGasPriced)

	settleParams := SettleParams{
		Token:          params.Token,
		From:           params.From,
		Value:          params.Value,
		ValidAfter:     params.ValidAfter,
		ValidBefore:    params.ValidBefore,
		Nonce:          nonce,
		Signature:      mustHexDecode(payload.Payload.Signature),
		Salt:           params.Salt,
		PayTo:          params.PayTo,
		FacilitatorFee: params.FacilitatorFee,
		Hook:           params.Hook,
		HookData:       params.HookData,
	}

	// Simulated: a dry-run eth_call against the exact calldata Submitted
	// will sign. Simulation is advisory (spec §4.9): most reverts are
	// logged and submission proceeds anyway, since some hooks only
	// resolve state at execution height. Only the handful of known
	// non-transient revert reasons abort here, before a nonce is spent.
	if err := e.chain.Simulate(ctx, payload.Network, gasLimit, settleParams); err != nil {
		revertReason, decoded := decodeRevertReason(err)
		if decoded && isDeterministicSimulationRevert(revertReason) {
			reason, _ := classifyRevert(err)
			release(signerpool.OutcomeSuccess)
			return e.fail(string(state), payload.Network, reason, start)
		}
		e.log.Warn("simulation failed, proceeding to submission anyway",
			zap.String("network", payload.Network), zap.Bool("decoded", decoded), zap.String("reason", revertReason), zap.Error(err))
	}
	transition(StateSimulated)

	// Submitted.
	submitCtx := ctx
	var cancel context.CancelFunc
	if e.submitTimeout > 0 {
		submitCtx, cancel = context.WithTimeout(ctx, e.submitTimeout)
		defer cancel()
	}
	txHash, err := e.chain.Submit(submitCtx, payload.Network, lease.Signer, cfg.ChainID, gasPriceWei, gasLimit, settleParams)
	if err != nil {
		if reason, ok := classifyRevert(err); ok {
			release(signerpool.OutcomeSuccess)
			return e.fail(string(state), payload.Network, reason, start)
		}
		return x402f.SettleResponse{}, fmt.Errorf("settlement: submit: %w", err)
	}
	transition(StateSubmitted)

	// Confirmed: the signer behaved correctly once a receipt exists at
	// all, whatever its revert status — quarantine is reserved for
	// pre-submit/submit RPC failures, not on-chain business outcomes.
	receipt, err := e.chain.WaitMined(submitCtx, payload.Network, txHash)
	if err != nil {
		return x402f.SettleResponse{}, fmt.Errorf("settlement: wait mined: %w", err)
	}
	release(signerpool.OutcomeSuccess)
	transition(StateConfirmed)

	if receipt.Status == 0 {
		return e.fail(string(state), payload.Network, x402f.ReasonInvalidTransactionState, start)
	}

	// Accounted: gas cost, fee, and profitability accounting.
	metrics := e.accountGasMetrics(receipt, gasPriceWei, nativePriceUSD, params.FacilitatorFee, minFee.FeeUSD, cfg.DefaultAsset.Decimals, tokenPriceUSD)
	if !metrics.Profitable {
		e.log.Warn("settlement confirmed but unprofitable", zap.String("network", payload.Network), zap.String("transaction", txHash.Hex()), zap.Float64("profitUSD", metrics.ProfitUSD))
	}
	transition(StateAccounted)

	e.sink.Record(audit.PaymentEvent{
		Type:        audit.EventSettleSuccess,
		RequestID:   requestID,
		Network:     payload.Network,
		Payer:       payer.Hex(),
		Hook:        hookAddr,
		Transaction: txHash.Hex(),
		Duration:    time.Since(start),
		Metadata:    map[string]interface{}{"gasUsed": receipt.GasUsed},
	})
	transition(StateDone)

	return x402f.SettleResponse{
		Success:     true,
		Transaction: txHash.Hex(),
		Network:     payload.Network,
		Payer:       payer.Hex(),
		GasMetrics:  &metrics,
	}, nil
}

func (e *Engine) assetWhitelisted(cfg registry.NetworkConfig, asset string) bool {
	if strings.EqualFold(cfg.DefaultAsset.Address, asset) {
		return true
	}
	if e.enforceAssetWhitelist {
		return false
	}
	if len(cfg.SupportedAssets) == 0 {
		return true
	}
	for _, a := range cfg.SupportedAssets {
		if strings.EqualFold(a.Address, asset) {
			return true
		}
	}
	return false
}

func (e *Engine) hookTypeFor(hook string) feeengine.HookType {
	for addr, t := range e.hookTypes {
		if strings.EqualFold(addr, hook) {
			return t
		}
	}
	return feeengine.HookTypeGeneric
}

// buildCommitmentParams assembles the canonical commitment input from the
// merchant-advertised Extra — the source of truth the engine checks
// payload-level overrides against, never the reverse.
func (e *Engine) buildCommitmentParams(chainID int64, payload x402f.PaymentPayload, req x402f.PaymentRequirements) (commitment.Params, error) {
	auth := payload.Payload.Authorization
	extra := req.Extra

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return commitment.Params{}, fmt.Errorf("settlement: invalid authorization value")
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return commitment.Params{}, fmt.Errorf("settlement: invalid validAfter")
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return commitment.Params{}, fmt.Errorf("settlement: invalid validBefore")
	}
	salt, err := decodeNonce(extra.Salt)
	if err != nil {
		return commitment.Params{}, fmt.Errorf("settlement: invalid salt: %w", err)
	}
	fee, ok := new(big.Int).SetString(extra.FacilitatorFee, 10)
	if !ok {
		fee = big.NewInt(0)
	}

	return commitment.Params{
		ChainID:        chainID,
		Router:         common.HexToAddress(extra.SettlementRouter),
		Token:          common.HexToAddress(req.Asset),
		From:           common.HexToAddress(auth.From),
		Value:          value,
		ValidAfter:     validAfter,
		ValidBefore:    validBefore,
		Salt:           salt,
		PayTo:          common.HexToAddress(extra.PayTo),
		FacilitatorFee: fee,
		Hook:           common.HexToAddress(extra.Hook),
		HookData:       mustHexDecode(extra.HookData),
	}, nil
}

// payloadOverridesAgree reports whether any optional settlement fields the
// payload itself carries match the merchant's advertised Extra. A merchant
// advertising one router/payTo/fee while the payload claims another is a
// tamper attempt, not a legitimate override.
func payloadOverridesAgree(p x402f.EVMPayload, extra x402f.SettlementExtra) bool {
	if p.Salt != "" && !strings.EqualFold(p.Salt, extra.Salt) {
		return false
	}
	if p.PayTo != "" && !strings.EqualFold(p.PayTo, extra.PayTo) {
		return false
	}
	if p.FacilitatorFee != "" && p.FacilitatorFee != extra.FacilitatorFee {
		return false
	}
	if p.Hook != "" && !strings.EqualFold(p.Hook, extra.Hook) {
		return false
	}
	if p.HookData != "" && !strings.EqualFold(p.HookData, extra.HookData) {
		return false
	}
	return true
}

// accountGasMetrics turns a receipt plus the fee/price figures already
// computed at GasPriced time into the client-facing GasMetrics (spec
// §4.9 "Accounted").
func (e *Engine) accountGasMetrics(receipt *Receipt, gasPriceWei *big.Int, nativePriceUSD float64, facilitatorFeeAtomic *big.Int, feeUSD float64, tokenDecimals int, tokenPriceUSD float64) x402f.GasMetrics {
	effectivePrice := receipt.EffectiveGasPrice
	if effectivePrice == nil {
		effectivePrice = gasPriceWei
	}
	costWei := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), effectivePrice)
	costNative := new(big.Float).Quo(new(big.Float).SetInt(costWei), big.NewFloat(1e18))
	costUSD, _ := new(big.Float).Mul(costNative, big.NewFloat(nativePriceUSD)).Float64()

	profitUSD := feeUSD - costUSD
	marginPct := 0.0
	if feeUSD > 0 {
		marginPct = (profitUSD / feeUSD) * 100
	}

	return x402f.GasMetrics{
		GasUsed:             receipt.GasUsed,
		EffectiveGasPrice:   effectivePrice.String(),
		ActualGasCostNative: costNative.Text('f', 18),
		ActualGasCostUSD:    costUSD,
		FacilitatorFee:      x402f.BigIntToAmount(facilitatorFeeAtomic, tokenDecimals),
		FacilitatorFeeUSD:   feeUSD,
		ProfitUSD:           profitUSD,
		ProfitMarginPercent: marginPct,
		Profitable:          profitUSD > 0,
	}
}

// decodeRevertReason extracts the decoded on-chain revert string from err,
// if err carries ABI-encoded revert data the router package recognizes.
func decodeRevertReason(err error) (string, bool) {
	type dataErr interface{ ErrorData() interface{} }
	de, ok := err.(dataErr)
	if !ok {
		return "", false
	}
	raw, ok := de.ErrorData().([]byte)
	if !ok {
		if s, ok := de.ErrorData().(string); ok {
			raw = []byte(s)
		} else {
			return "", false
		}
	}
	return router.DecodeRevert(raw)
}

// isDeterministicSimulationRevert reports whether a decoded simulation
// revert reason is known to be non-transient — it will fail identically on
// resubmission, so aborting before a nonce is spent is strictly better than
// letting Submitted spend one pointlessly. Every other decodable (or
// undecodable) simulation failure is logged and submission proceeds anyway,
// per spec §4.9's "simulation is advisory" guidance.
func isDeterministicSimulationRevert(reason string) bool {
	switch {
	case strings.Contains(reason, "UnsupportedToken"),
		strings.Contains(reason, "AuthorizationUsed"),
		strings.Contains(reason, "HookNotWhitelisted"):
		return true
	default:
		return false
	}
}

// classifyRevert maps a decoded on-chain revert reason to a client-facing
// ErrorReason, for Submit-time failures (where, unlike Simulate, every
// revert is terminal — no nonce-preserving retry is possible once
// writeContract has been attempted). A decodable revert string that matches
// none of the known reasons maps to invalid_transaction_state; ok is false
// only when err carries no decodable revert reason, and the caller then
// treats it as an infra-level error.
func classifyRevert(err error) (x402f.ErrorReason, bool) {
	reason, ok := decodeRevertReason(err)
	if !ok {
		return "", false
	}
	switch {
	case strings.Contains(reason, "AlreadySettled"), strings.Contains(reason, "AuthorizationUsed"):
		return x402f.ReasonAlreadySettled, true
	case strings.Contains(reason, "InvalidSignature"):
		return x402f.ReasonInvalidSignature, true
	case strings.Contains(reason, "AuthorizationExpired"):
		return x402f.ReasonAuthorizationExpired, true
	case strings.Contains(reason, "HookNotWhitelisted"), strings.Contains(reason, "UnsupportedToken"):
		return x402f.ReasonUnexpectedSettleError, true
	default:
		return x402f.ReasonInvalidTransactionState, true
	}
}

func decodeNonce(hexStr string) ([32]byte, error) {
	var out [32]byte
	b := mustHexDecode(hexStr)
	if len(b) != 32 {
		return out, fmt.Errorf("settlement: expected 32-byte field, got %d bytes", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// mustHexDecode decodes an optionally 0x-prefixed hex string, returning nil
// on a malformed input rather than erroring — every call site either checks
// the resulting length itself (decodeNonce) or feeds the bytes into a hash
// comparison where a wrong decode simply fails that comparison
// (buildCommitmentParams' hookData).
func mustHexDecode(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil
	}
	return b
}

// Package feeengine is the Fee & Gas-Limit Engine (spec §4.5): computes the
// minimum facilitator fee the service will accept and the effective gas
// limit a submitted transaction may spend, under three simultaneous
// constraints (minimum, maximum, affordability).
package feeengine

import (
	"math"
	"math/big"
	"strings"

	"github.com/x402labs/facilitator/internal/registry"
)

// Environment selects the USD fee floor.
type Environment string

const (
	Testnet Environment = "testnet"
	Mainnet Environment = "mainnet"
)

// floorUSD is the per-environment minimum fee floor (spec §4.5 step 3).
var floorUSD = map[Environment]float64{
	Testnet: 0.001,
	Mainnet: 0.01,
}

// HookType classifies a hook for gas-overhead purposes. The router treats
// hooks as opaque callees (spec §1 Non-goals: "does not interpret Hook
// semantics"); this classification is purely an economic estimate, not a
// semantic one, and defaults to Generic for any hook this engine doesn't
// have a specific overhead for.
type HookType string

const (
	HookTypeTransfer HookType = "transfer"
	HookTypeSplit    HookType = "split"
	HookTypeMint     HookType = "mint"
	HookTypeGeneric  HookType = "generic"
)

// Defaults grounded in a typical ERC-3009 settlement's intrinsic cost
// (authorization check + transfer) plus headroom for the hook call.
const (
	baseMinGasLimit    uint64 = 120_000
	baseMaxGasLimit    uint64 = 2_000_000
	safetyMultiplier          = 1.3
	affordabilityMargin       = 0.2 // facilitator keeps 20% margin before affordability bites

	fevmGasLimit uint64 = 150_000_000
)

var hookGasOverhead = map[HookType]uint64{
	HookTypeTransfer: 0,
	HookTypeSplit:    60_000,
	HookTypeMint:     90_000,
	HookTypeGeneric:  150_000,
}

// networkMinGasLimit lets a specific network override the computed
// min-gas-limit entirely (spec §4.5 step 2's `networkMinGasLimit[network] ?? ...`).
var networkMinGasLimit = map[string]uint64{}

// Engine is constructed with the Network Registry so it can check hook
// whitelisting. The FEVM family is detected from the network name (see
// bounds), not from the registry.
type Engine struct {
	registry *registry.Registry
}

// New builds a Fee & Gas-Limit Engine.
func New(reg *registry.Registry) *Engine {
	return &Engine{registry: reg}
}

// MinFeeResult is calculateMinFacilitatorFee's return value.
type MinFeeResult struct {
	FeeAtomic *big.Int // minimum fee in the payment token's base units
	FeeUSD    float64
}

// CalculateMinFacilitatorFee returns the minimum fee the facilitator will
// accept for network/hook, in token base units and USD (spec §4.5).
func (e *Engine) CalculateMinFacilitatorFee(
	network, hook string,
	hookType HookType,
	tokenDecimals int,
	gasPriceWei *big.Int,
	nativePriceUSD float64,
	paymentTokenPriceUSD float64,
	env Environment,
	enforceHookWhitelist bool,
) (MinFeeResult, error) {
	if enforceHookWhitelist && !e.registry.IsHookWhitelisted(network, hook) {
		return MinFeeResult{}, ErrHookNotWhitelisted
	}

	gasLimit := networkMinGasLimit[strings.ToLower(network)]
	if gasLimit == 0 {
		gasLimit = baseMinGasLimit + hookGasOverhead[hookType]
	}

	costWei := new(big.Float).SetInt(new(big.Int).Mul(big.NewInt(int64(gasLimit)), gasPriceWei))
	costWei.Mul(costWei, big.NewFloat(safetyMultiplier))

	costNative := new(big.Float).Quo(costWei, big.NewFloat(1e18))
	costUSD, _ := new(big.Float).Mul(costNative, big.NewFloat(nativePriceUSD)).Float64()

	floor := floorUSD[env]
	if floor == 0 {
		floor = floorUSD[Mainnet]
	}
	feeUSD := math.Max(costUSD, floor)

	if paymentTokenPriceUSD <= 0 || math.IsNaN(paymentTokenPriceUSD) || math.IsInf(paymentTokenPriceUSD, 0) {
		return MinFeeResult{}, ErrNonFinitePrice
	}
	feeTokenAmount := feeUSD / paymentTokenPriceUSD

	atomic := new(big.Float).Mul(big.NewFloat(feeTokenAmount), new(big.Float).SetInt(pow10(tokenDecimals)))
	feeAtomic, _ := atomic.Int(nil)

	return MinFeeResult{FeeAtomic: feeAtomic, FeeUSD: feeUSD}, nil
}

// CalculateEffectiveGasLimit returns the gas ceiling for the submitted
// transaction under the minimum/maximum/affordability constraints (spec
// §4.5). hookOverhead is added to the computed result afterward so the hook
// itself has headroom once base settlement is paid.
func (e *Engine) CalculateEffectiveGasLimit(
	network string,
	facilitatorFeeUSD float64,
	gasPriceWei *big.Int,
	nativePriceUSD float64,
	hookType HookType,
) uint64 {
	minLimit, maxLimit := e.bounds(network)

	if nativePriceUSD <= 0 || math.IsNaN(nativePriceUSD) || math.IsInf(nativePriceUSD, 0) {
		return minLimit
	}
	if gasPriceWei == nil || gasPriceWei.Sign() <= 0 {
		return minLimit
	}

	// affordability = (fee_USD * (1 - margin)) / nativePrice_USD * 1e18 / gasPrice
	numerator := facilitatorFeeUSD * (1 - affordabilityMargin)
	nativeUnits := numerator / nativePriceUSD // in native token units
	weiAffordable := new(big.Float).Mul(big.NewFloat(nativeUnits), big.NewFloat(1e18))
	gasAffordable := new(big.Float).Quo(weiAffordable, new(big.Float).SetInt(gasPriceWei))

	affordability, _ := gasAffordable.Uint64()

	limit := minLimit
	if affordability > limit {
		limit = affordability
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if limit < minLimit {
		limit = minLimit
	}

	return limit + hookGasOverhead[hookType]
}

// bounds returns (min, max) for network, applying the FEVM hard
// floor/ceiling override (spec §4.5: "the engine hard-codes a 150M-gas
// floor and ceiling for networks whose name contains 'filecoin'").
func (e *Engine) bounds(network string) (uint64, uint64) {
	if strings.Contains(strings.ToLower(network), "filecoin") {
		return fevmGasLimit, fevmGasLimit
	}
	return baseMinGasLimit, baseMaxGasLimit
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

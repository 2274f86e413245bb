package feeengine

import (
	"math/big"
	"testing"

	"github.com/x402labs/facilitator/internal/registry"
)

func testEngine() *Engine {
	cfgs := registry.Defaults()
	return New(registry.New(cfgs))
}

func TestCalculateMinFacilitatorFee_MeetsFloor(t *testing.T) {
	e := testEngine()

	// Gas price low enough that raw cost is well under the USD floor, so
	// the floor must dominate (spec §8 "Fee floor").
	res, err := e.CalculateMinFacilitatorFee(
		"base-sepolia", "", HookTypeTransfer, 6,
		big.NewInt(1), // 1 wei
		3000.0,        // nativePriceUSD
		1.0,           // paymentTokenPriceUSD (USDC ~ $1)
		Testnet, false,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FeeUSD < floorUSD[Testnet] {
		t.Errorf("FeeUSD = %v, want >= floor %v", res.FeeUSD, floorUSD[Testnet])
	}
}

func TestCalculateMinFacilitatorFee_MainnetFloorHigherThanTestnet(t *testing.T) {
	e := testEngine()

	testnetFee, _ := e.CalculateMinFacilitatorFee("base-sepolia", "", HookTypeTransfer, 6, big.NewInt(1), 3000.0, 1.0, Testnet, false)
	mainnetFee, _ := e.CalculateMinFacilitatorFee("base", "", HookTypeTransfer, 6, big.NewInt(1), 3000.0, 1.0, Mainnet, false)

	if mainnetFee.FeeUSD <= testnetFee.FeeUSD {
		t.Errorf("expected mainnet floor (%v) > testnet floor (%v)", mainnetFee.FeeUSD, testnetFee.FeeUSD)
	}
}

func TestCalculateMinFacilitatorFee_RejectsNonFinitePrice(t *testing.T) {
	e := testEngine()
	if _, err := e.CalculateMinFacilitatorFee("base", "", HookTypeTransfer, 6, big.NewInt(1e9), 3000.0, 0, Mainnet, false); err == nil {
		t.Error("expected error for zero payment token price")
	}
}

func TestCalculateMinFacilitatorFee_HookWhitelistEnforced(t *testing.T) {
	cfgs := registry.Defaults()
	for i := range cfgs {
		if cfgs[i].Network == "base" {
			cfgs[i].Hooks = map[string]string{"transfer": "0xTransferHook"}
		}
	}
	e := New(registry.New(cfgs))

	_, err := e.CalculateMinFacilitatorFee("base", "0xNotWhitelisted", HookTypeTransfer, 6, big.NewInt(1e9), 3000.0, 1.0, Mainnet, true)
	if err == nil {
		t.Error("expected ErrHookNotWhitelisted for an unregistered hook")
	}
}

// TestGasLimitBounds is the spec §8 "Gas-limit bounds" property:
// min <= limit <= max + hookOverhead for all (fee, gasPrice, nativePrice).
func TestGasLimitBounds(t *testing.T) {
	e := testEngine()
	min, max := e.bounds("base-sepolia")

	cases := []struct {
		feeUSD     float64
		gasPrice   *big.Int
		nativeUSD  float64
	}{
		{0.01, big.NewInt(1_000_000_000), 3000.0},
		{1000.0, big.NewInt(1), 3000.0},
		{0.0001, big.NewInt(500_000_000_000), 3000.0},
	}

	for _, c := range cases {
		limit := e.CalculateEffectiveGasLimit("base-sepolia", c.feeUSD, c.gasPrice, c.nativeUSD, HookTypeTransfer)
		if limit < min {
			t.Errorf("limit %d below min %d for case %+v", limit, min, c)
		}
		if limit > max+hookGasOverhead[HookTypeTransfer] {
			t.Errorf("limit %d above max+overhead %d for case %+v", limit, max+hookGasOverhead[HookTypeTransfer], c)
		}
	}
}

func TestCalculateEffectiveGasLimit_NonFiniteNativePriceReturnsMin(t *testing.T) {
	e := testEngine()
	min, _ := e.bounds("base-sepolia")

	limit := e.CalculateEffectiveGasLimit("base-sepolia", 10.0, big.NewInt(1_000_000_000), 0, HookTypeTransfer)
	if limit != min {
		t.Errorf("limit = %d, want min %d when nativePrice <= 0", limit, min)
	}

	limit = e.CalculateEffectiveGasLimit("base-sepolia", 10.0, big.NewInt(1_000_000_000), -5, HookTypeTransfer)
	if limit != min {
		t.Errorf("limit = %d, want min %d when nativePrice negative", limit, min)
	}
}

func TestCalculateEffectiveGasLimit_FEVMHardBounds(t *testing.T) {
	e := testEngine()
	limit := e.CalculateEffectiveGasLimit("filecoin-calibration", 1000.0, big.NewInt(1), 3000.0, HookTypeTransfer)
	if limit != fevmGasLimit {
		t.Errorf("limit = %d, want fixed FEVM limit %d", limit, fevmGasLimit)
	}
}

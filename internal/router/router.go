// Package router is a hand-written Go ABI binding for the SettlementRouter
// contract (spec §6's "On-chain interface"), built on bind.BoundContract the
// way an abigen binding is, but as a single type serving both calls and
// transactions (no Caller/Transactor split) and trimmed to only the methods
// and events the Settlement Engine actually drives.
package router

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// settlementRouterABI is the fixed ABI this package targets: the router's
// atomic settle-and-execute entry point, its idempotency reads, and its fee
// accounting surface.
const settlementRouterABI = `[
  {"type":"function","name":"settleAndExecute","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"from","type":"address"},
    {"name":"value","type":"uint256"},
    {"name":"validAfter","type":"uint256"},
    {"name":"validBefore","type":"uint256"},
    {"name":"nonce","type":"bytes32"},
    {"name":"signature","type":"bytes"},
    {"name":"salt","type":"bytes32"},
    {"name":"payTo","type":"address"},
    {"name":"facilitatorFee","type":"uint256"},
    {"name":"hook","type":"address"},
    {"name":"hookData","type":"bytes"}
  ],"outputs":[]},
  {"type":"function","name":"isSettled","stateMutability":"view","inputs":[
    {"name":"contextKey","type":"bytes32"}
  ],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"calculateContextKey","stateMutability":"view","inputs":[
    {"name":"from","type":"address"},
    {"name":"token","type":"address"},
    {"name":"nonce","type":"bytes32"}
  ],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"getPendingFees","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"},
    {"name":"token","type":"address"}
  ],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"claimFees","stateMutability":"nonpayable","inputs":[
    {"name":"tokens","type":"address[]"}
  ],"outputs":[]},
  {"type":"event","name":"Settled","anonymous":false,"inputs":[
    {"name":"contextKey","type":"bytes32","indexed":true},
    {"name":"payer","type":"address","indexed":true},
    {"name":"payTo","type":"address","indexed":true},
    {"name":"token","type":"address","indexed":false},
    {"name":"value","type":"uint256","indexed":false},
    {"name":"facilitatorFee","type":"uint256","indexed":false},
    {"name":"hook","type":"address","indexed":false}
  ]},
  {"type":"event","name":"HookExecuted","anonymous":false,"inputs":[
    {"name":"contextKey","type":"bytes32","indexed":true},
    {"name":"hook","type":"address","indexed":true},
    {"name":"success","type":"bool","indexed":false}
  ]}
]`

// MetaData mirrors the abigen convention of a package-level parsed-ABI holder.
var MetaData = &bind.MetaData{ABI: settlementRouterABI}

// SettlementRouter is a bound instance of the router contract.
type SettlementRouter struct {
	address  common.Address
	contract *bind.BoundContract
}

// New binds a SettlementRouter at address using backend for both calls and
// transactions (the facilitator never needs a read-only-only binding, unlike
// the teacher's split Caller/Transactor/Filterer constructors).
func New(address common.Address, backend bind.ContractBackend) (*SettlementRouter, error) {
	parsed, err := MetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("router: parse abi: %w", err)
	}
	contract := bind.NewBoundContract(address, *parsed, backend, backend, backend)
	return &SettlementRouter{address: address, contract: contract}, nil
}

// Address returns the bound router's address.
func (r *SettlementRouter) Address() common.Address { return r.address }

// SettleAndExecute is the router's single state-changing entry point (spec
// §4.9 "Submitted"): it atomically validates the EIP-3009 authorization,
// moves funds, and invokes hook with hookData.
func (r *SettlementRouter) SettleAndExecute(
	opts *bind.TransactOpts,
	token, from common.Address,
	value, validAfter, validBefore *big.Int,
	nonce [32]byte,
	signature []byte,
	salt [32]byte,
	payTo common.Address,
	facilitatorFee *big.Int,
	hook common.Address,
	hookData []byte,
) (*types.Transaction, error) {
	return r.contract.Transact(opts, "settleAndExecute",
		token, from, value, validAfter, validBefore, nonce,
		signature, salt, payTo, facilitatorFee, hook, hookData)
}

// EncodeSettleAndExecute ABI-encodes a settleAndExecute call (selector plus
// packed arguments) for use as eth_call data — the Settlement Engine's
// Simulated step packs with this before the real Submitted transaction is
// signed, so both stages commit to the same calldata.
func (r *SettlementRouter) EncodeSettleAndExecute(
	token, from common.Address,
	value, validAfter, validBefore *big.Int,
	nonce [32]byte,
	signature []byte,
	salt [32]byte,
	payTo common.Address,
	facilitatorFee *big.Int,
	hook common.Address,
	hookData []byte,
) ([]byte, error) {
	parsed, err := MetaData.GetAbi()
	if err != nil {
		return nil, fmt.Errorf("router: parse abi: %w", err)
	}
	return parsed.Pack("settleAndExecute",
		token, from, value, validAfter, validBefore, nonce,
		signature, salt, payTo, facilitatorFee, hook, hookData)
}

// IsSettled reports whether contextKey has already been settled on-chain —
// the facilitator's idempotency check ahead of a resubmission (spec §4.9
// "Idempotency").
func (r *SettlementRouter) IsSettled(opts *bind.CallOpts, contextKey [32]byte) (bool, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "isSettled", contextKey); err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// CalculateContextKey asks the router for its own idempotency key derivation
// so the facilitator's internal/commitment.ContextKey stays in lockstep with
// the deployed contract.
func (r *SettlementRouter) CalculateContextKey(opts *bind.CallOpts, from, token common.Address, nonce [32]byte) ([32]byte, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "calculateContextKey", from, token, nonce); err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// GetPendingFees returns the facilitator fee balance owner has accrued for
// token, pending a claimFees call.
func (r *SettlementRouter) GetPendingFees(opts *bind.CallOpts, owner, token common.Address) (*big.Int, error) {
	var out []interface{}
	if err := r.contract.Call(opts, &out, "getPendingFees", owner, token); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// ClaimFees withdraws accrued facilitator fees in tokens to the caller.
func (r *SettlementRouter) ClaimFees(opts *bind.TransactOpts, tokens []common.Address) (*types.Transaction, error) {
	return r.contract.Transact(opts, "claimFees", tokens)
}

// Settled is the event the router emits on a successful settleAndExecute.
type Settled struct {
	ContextKey     [32]byte
	Payer          common.Address
	PayTo          common.Address
	Token          common.Address
	Value          *big.Int
	FacilitatorFee *big.Int
	Hook           common.Address
	Raw            types.Log
}

// HookExecuted is emitted after the router invokes the settlement hook.
type HookExecuted struct {
	ContextKey [32]byte
	Hook       common.Address
	Success    bool
	Raw        types.Log
}

// ParseSettled decodes a raw log into a Settled event.
func (r *SettlementRouter) ParseSettled(log types.Log) (*Settled, error) {
	event := new(Settled)
	if err := r.contract.UnpackLog(event, "Settled", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// ParseHookExecuted decodes a raw log into a HookExecuted event.
func (r *SettlementRouter) ParseHookExecuted(log types.Log) (*HookExecuted, error) {
	event := new(HookExecuted)
	if err := r.contract.UnpackLog(event, "HookExecuted", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// revertReason extracts a decoded require/revert string from a failed call's
// return data, used by the Settlement Engine's Simulated/Submitted steps to
// classify a revert (spec §4.9).
func revertReason(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	// Standard Error(string) selector: 0x08c379a0.
	if data[0] != 0x08 || data[1] != 0xc3 || data[2] != 0x79 || data[3] != 0xa0 {
		return "", false
	}
	strType, _ := abi.NewType("string", "", nil)
	args := abi.Arguments{{Type: strType}}
	values, err := args.Unpack(data[4:])
	if err != nil || len(values) == 0 {
		return "", false
	}
	reason, ok := values[0].(string)
	return reason, ok
}

// DecodeRevert is the exported form of revertReason, used by callers that
// only have an error's raw data (e.g. from eth_call).
func DecodeRevert(data []byte) (string, bool) {
	return revertReason(data)
}

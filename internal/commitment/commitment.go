// Package commitment implements the Commitment Codec (spec §4.1): the
// canonical hash binding every settlement parameter into the EIP-3009
// authorization nonce. Field order, the protocol tag, and pre-hashing
// hookData are the wire contract — any change here is a protocol break.
package commitment

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402f "github.com/x402labs/facilitator"
)

// ProtocolTag is the first field packed into every commitment. Changing it
// invalidates every previously signed authorization.
const ProtocolTag = "x402-settlement-v1"

// Params carries every field the commitment binds, in wire order.
type Params struct {
	ChainID        int64
	Router         common.Address
	Token          common.Address
	From           common.Address
	Value          *big.Int
	ValidAfter     *big.Int
	ValidBefore    *big.Int
	Salt           [32]byte
	PayTo          common.Address
	FacilitatorFee *big.Int
	Hook           common.Address
	HookData       []byte
}

// ComputeCommitment returns the 32-byte keccak256 digest that binds p,
// following spec §3's definition:
//
//	keccak256(encodePacked(PROTOCOL_TAG, chainId, router, token, from,
//	  value, validAfter, validBefore, salt, payTo, facilitatorFee, hook,
//	  keccak256(hookData)))
//
// This is Solidity's tight packing, not standard ABI encoding: the string
// tag contributes its raw bytes with no length prefix, every address is 20
// bytes with no left-pad, and there are no dynamic-type offset pointers.
// Using abi.Arguments.Pack here (standard abi.encode) would silently produce
// a digest no on-chain SettlementRouter using abi.encodePacked could ever
// reproduce, so every integer and address field is packed by hand below.
func ComputeCommitment(p Params) ([32]byte, error) {
	if p.Value == nil || p.ValidAfter == nil || p.ValidBefore == nil {
		return [32]byte{}, fmt.Errorf("%w: nil integer field", x402f.ErrInvalidParam)
	}
	fee := p.FacilitatorFee
	if fee == nil {
		fee = big.NewInt(0)
	}
	if p.ChainID < 0 {
		return [32]byte{}, fmt.Errorf("%w: negative chainId", x402f.ErrInvalidParam)
	}
	for _, v := range []*big.Int{p.Value, p.ValidAfter, p.ValidBefore, fee} {
		if v.Sign() < 0 {
			return [32]byte{}, fmt.Errorf("%w: negative uint256 field", x402f.ErrInvalidParam)
		}
	}

	hookDataHash := crypto.Keccak256Hash(p.HookData)

	buf := make([]byte, 0, len(ProtocolTag)+32*7+20*4+32+32)
	buf = append(buf, []byte(ProtocolTag)...)
	buf = append(buf, leftPad32(big.NewInt(p.ChainID))...)
	buf = append(buf, p.Router.Bytes()...)
	buf = append(buf, p.Token.Bytes()...)
	buf = append(buf, p.From.Bytes()...)
	buf = append(buf, leftPad32(p.Value)...)
	buf = append(buf, leftPad32(p.ValidAfter)...)
	buf = append(buf, leftPad32(p.ValidBefore)...)
	buf = append(buf, p.Salt[:]...)
	buf = append(buf, p.PayTo.Bytes()...)
	buf = append(buf, leftPad32(fee)...)
	buf = append(buf, p.Hook.Bytes()...)
	buf = append(buf, hookDataHash.Bytes()...)

	return crypto.Keccak256Hash(buf), nil
}

// leftPad32 encodes a non-negative integer as a 32-byte big-endian word,
// the tight-packed form Solidity's abi.encodePacked uses for any uintN.
func leftPad32(v *big.Int) []byte {
	b := v.Bytes()
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// GenerateSalt returns 32 cryptographically random bytes, contributed by the
// payer to bind a commitment to a unique event (spec glossary: Salt).
func GenerateSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("commitment: generate salt: %w", err)
	}
	return salt, nil
}

// VerifyCommitment recomputes the commitment from params and compares it,
// case-insensitively (both are raw 32-byte digests so comparison is exact),
// to nonce — the authorization's own nonce field. A mismatch means a
// settlement parameter was tampered with after the payer signed.
func VerifyCommitment(nonce [32]byte, params Params) (bool, error) {
	computed, err := ComputeCommitment(params)
	if err != nil {
		return false, err
	}
	return computed == nonce, nil
}

// ContextKey is the idempotency identifier mirrored on-chain by the router:
// keccak256(from‖token‖nonce).
func ContextKey(from, token common.Address, nonce [32]byte) [32]byte {
	buf := make([]byte, 0, 20+20+32)
	buf = append(buf, from.Bytes()...)
	buf = append(buf, token.Bytes()...)
	buf = append(buf, nonce[:]...)
	return crypto.Keccak256Hash(buf)
}

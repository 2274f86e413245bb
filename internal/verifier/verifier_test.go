package verifier

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	x402f "github.com/x402labs/facilitator"
	"github.com/x402labs/facilitator/internal/balance"
	"github.com/x402labs/facilitator/internal/cache"
	"github.com/x402labs/facilitator/internal/registry"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testSigner(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// signAuthorization builds the same EIP-712 digest recoverPayer recomputes
// and signs it with key, returning the 65-byte hex signature (v in [27,28]).
func signAuthorization(t *testing.T, key *ecdsa.PrivateKey, chainID int64, token common.Address, domain registry.EIP712Domain, auth x402f.Authorization) string {
	t.Helper()

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
		t.Fatalf("domain hash: %v", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		t.Fatalf("message hash: %v", err)
	}
	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	digest := crypto.Keccak256(rawData)

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func testRegistry() *registry.Registry {
	return registry.New([]registry.NetworkConfig{registry.BaseSepolia})
}

func validAuth(t *testing.T, key *ecdsa.PrivateKey, payer, router common.Address, token common.Address, cfg registry.NetworkConfig) (x402f.Authorization, string) {
	now := time.Now().Unix()
	auth := x402f.Authorization{
		From:        payer.Hex(),
		To:          router.Hex(),
		Value:       "1000000",
		ValidAfter:  fmt.Sprintf("%d", now-60),
		ValidBefore: fmt.Sprintf("%d", now+600),
		Nonce:       "0x" + hex.EncodeToString(crypto.Keccak256([]byte("nonce-1"))),
	}
	sig := signAuthorization(t, key, cfg.ChainID, token, cfg.DefaultAsset.EIP712, auth)
	return auth, sig
}

func TestVerify_HappyPath(t *testing.T) {
	reg := testRegistry()
	cfg, _ := reg.Get("base-sepolia")
	token := common.HexToAddress(cfg.DefaultAsset.Address)
	key, payer := testSigner(t)
	router := common.HexToAddress("0x1111111111111111111111111111111111111111")

	auth, sig := validAuth(t, key, payer, router, token, cfg)

	v := New(reg, nil)
	payload := x402f.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload:     x402f.EVMPayload{Signature: sig, Authorization: auth},
	}
	req := x402f.PaymentRequirements{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "1000000",
		PayTo:             router.Hex(),
		Asset:             cfg.DefaultAsset.Address,
		Extra:             x402f.SettlementExtra{SettlementRouter: router.Hex()},
	}

	res, err := v.Verify(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got reason %q", res.Reason)
	}
	if res.Payer != payer.Hex() {
		t.Errorf("expected payer %s, got %s", payer.Hex(), res.Payer)
	}
}

func TestVerify_ExpiredAuthorization(t *testing.T) {
	reg := testRegistry()
	cfg, _ := reg.Get("base-sepolia")
	token := common.HexToAddress(cfg.DefaultAsset.Address)
	key, payer := testSigner(t)
	router := common.HexToAddress("0x1111111111111111111111111111111111111111")

	now := time.Now().Unix()
	auth := x402f.Authorization{
		From:        payer.Hex(),
		To:          router.Hex(),
		Value:       "1000000",
		ValidAfter:  fmt.Sprintf("%d", now-1000),
		ValidBefore: fmt.Sprintf("%d", now-10),
		Nonce:       "0x" + hex.EncodeToString(crypto.Keccak256([]byte("nonce-2"))),
	}
	sig := signAuthorization(t, key, cfg.ChainID, token, cfg.DefaultAsset.EIP712, auth)

	v := New(reg, nil)
	payload := x402f.PaymentPayload{Network: "base-sepolia", Payload: x402f.EVMPayload{Signature: sig, Authorization: auth}}
	req := x402f.PaymentRequirements{
		MaxAmountRequired: "1000000",
		PayTo:             router.Hex(),
		Asset:             cfg.DefaultAsset.Address,
		Extra:             x402f.SettlementExtra{SettlementRouter: router.Hex()},
	}

	res, err := v.Verify(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid {
		t.Fatal("expected invalid for an expired authorization")
	}
	if res.Reason != x402f.ReasonAuthorizationExpired {
		t.Errorf("expected ReasonAuthorizationExpired, got %q", res.Reason)
	}
}

func TestVerify_NotYetValid(t *testing.T) {
	reg := testRegistry()
	cfg, _ := reg.Get("base-sepolia")
	token := common.HexToAddress(cfg.DefaultAsset.Address)
	key, payer := testSigner(t)
	router := common.HexToAddress("0x1111111111111111111111111111111111111111")

	now := time.Now().Unix()
	auth := x402f.Authorization{
		From:        payer.Hex(),
		To:          router.Hex(),
		Value:       "1000000",
		ValidAfter:  fmt.Sprintf("%d", now+1000),
		ValidBefore: fmt.Sprintf("%d", now+2000),
		Nonce:       "0x" + hex.EncodeToString(crypto.Keccak256([]byte("nonce-3"))),
	}
	sig := signAuthorization(t, key, cfg.ChainID, token, cfg.DefaultAsset.EIP712, auth)

	v := New(reg, nil)
	payload := x402f.PaymentPayload{Network: "base-sepolia", Payload: x402f.EVMPayload{Signature: sig, Authorization: auth}}
	req := x402f.PaymentRequirements{
		MaxAmountRequired: "1000000",
		PayTo:             router.Hex(),
		Asset:             cfg.DefaultAsset.Address,
		Extra:             x402f.SettlementExtra{SettlementRouter: router.Hex()},
	}

	res, err := v.Verify(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Reason != x402f.ReasonAuthorizationNotYetValid {
		t.Errorf("expected ReasonAuthorizationNotYetValid, got %q", res.Reason)
	}
}

func TestVerify_WrongSigner(t *testing.T) {
	reg := testRegistry()
	cfg, _ := reg.Get("base-sepolia")
	token := common.HexToAddress(cfg.DefaultAsset.Address)
	key, payer := testSigner(t)
	router := common.HexToAddress("0x1111111111111111111111111111111111111111")

	auth, sig := validAuth(t, key, payer, router, token, cfg)
	auth.From = common.HexToAddress("0x9999999999999999999999999999999999999999").Hex()

	v := New(reg, nil)
	payload := x402f.PaymentPayload{Network: "base-sepolia", Payload: x402f.EVMPayload{Signature: sig, Authorization: auth}}
	req := x402f.PaymentRequirements{
		MaxAmountRequired: "1000000",
		PayTo:             router.Hex(),
		Asset:             cfg.DefaultAsset.Address,
		Extra:             x402f.SettlementExtra{SettlementRouter: router.Hex()},
	}

	res, err := v.Verify(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Valid || res.Reason != x402f.ReasonInvalidSignature {
		t.Errorf("expected ReasonInvalidSignature, got valid=%v reason=%q", res.Valid, res.Reason)
	}
}

func TestVerify_InvalidRecipient(t *testing.T) {
	reg := testRegistry()
	cfg, _ := reg.Get("base-sepolia")
	token := common.HexToAddress(cfg.DefaultAsset.Address)
	key, payer := testSigner(t)
	router := common.HexToAddress("0x1111111111111111111111111111111111111111")
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")

	auth, sig := validAuth(t, key, payer, router, token, cfg)

	v := New(reg, nil)
	payload := x402f.PaymentPayload{Network: "base-sepolia", Payload: x402f.EVMPayload{Signature: sig, Authorization: auth}}
	req := x402f.PaymentRequirements{
		MaxAmountRequired: "1000000",
		PayTo:             other.Hex(),
		Asset:             cfg.DefaultAsset.Address,
		Extra:             x402f.SettlementExtra{SettlementRouter: other.Hex()},
	}

	res, err := v.Verify(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Reason != x402f.ReasonInvalidRecipient {
		t.Errorf("expected ReasonInvalidRecipient, got %q", res.Reason)
	}
}

func TestVerify_InsufficientBalance(t *testing.T) {
	reg := testRegistry()
	cfg, _ := reg.Get("base-sepolia")
	token := common.HexToAddress(cfg.DefaultAsset.Address)
	key, payer := testSigner(t)
	router := common.HexToAddress("0x1111111111111111111111111111111111111111")

	auth, sig := validAuth(t, key, payer, router, token, cfg)

	checker := balance.New(balance.Config{
		Clients: map[string]balance.TokenClient{"base-sepolia": &fakeClient{balance: big.NewInt(1)}},
		Cache:   cache.NewInProcess(),
	})

	v := New(reg, checker)
	payload := x402f.PaymentPayload{Network: "base-sepolia", Payload: x402f.EVMPayload{Signature: sig, Authorization: auth}}
	req := x402f.PaymentRequirements{
		MaxAmountRequired: "1000000",
		PayTo:             router.Hex(),
		Asset:             cfg.DefaultAsset.Address,
		Extra:             x402f.SettlementExtra{SettlementRouter: router.Hex()},
	}

	res, err := v.Verify(context.Background(), payload, req)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Reason != x402f.ReasonInsufficientFunds {
		t.Errorf("expected ReasonInsufficientFunds, got %q", res.Reason)
	}
}

func TestVerify_UnregisteredNetworkIsHardError(t *testing.T) {
	reg := testRegistry()
	key, payer := testSigner(t)
	router := common.HexToAddress("0x1111111111111111111111111111111111111111")
	auth, sig := validAuth(t, key, payer, router, common.Address{}, registry.NetworkConfig{ChainID: 0, DefaultAsset: registry.Asset{EIP712: registry.EIP712Domain{}}})

	v := New(reg, nil)
	payload := x402f.PaymentPayload{Network: "unknown-chain", Payload: x402f.EVMPayload{Signature: sig, Authorization: auth}}
	req := x402f.PaymentRequirements{MaxAmountRequired: "1000000", PayTo: router.Hex()}

	res, err := v.Verify(context.Background(), payload, req)
	if !errors.Is(err, x402f.ErrUnsupportedNetwork) {
		t.Fatalf("expected ErrUnsupportedNetwork, got %v", err)
	}
	if res.Valid {
		t.Errorf("expected zero-value result on error, got %+v", res)
	}
}

type fakeClient struct {
	balance *big.Int
	err     error
}

func (f *fakeClient) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return f.balance, f.err
}

func TestUnwrapERC6492_PassthroughForPlainSignature(t *testing.T) {
	plain := make([]byte, 65)
	sigHex := "0x" + hex.EncodeToString(plain)

	sig, wrapped, err := UnwrapERC6492(sigHex)
	if err != nil {
		t.Fatalf("UnwrapERC6492: %v", err)
	}
	if wrapped {
		t.Error("expected wasWrapped = false for a plain signature")
	}
	if len(sig) != 65 {
		t.Errorf("expected 65-byte signature passthrough, got %d", len(sig))
	}
}

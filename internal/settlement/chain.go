package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	x402f "github.com/x402labs/facilitator"
	"github.com/x402labs/facilitator/internal/router"
	"github.com/x402labs/facilitator/internal/signerpool"
)

// SettleParams is every argument settleAndExecute takes, gathered in one
// struct so Chain methods carry one value instead of a dozen positional
// parameters.
type SettleParams struct {
	Token, From    common.Address
	Value          *big.Int
	ValidAfter     *big.Int
	ValidBefore    *big.Int
	Nonce          [32]byte
	Signature      []byte
	Salt           [32]byte
	PayTo          common.Address
	FacilitatorFee *big.Int
	Hook           common.Address
	HookData       []byte
}

// Receipt is the subset of a mined transaction's receipt the Confirmed and
// Accounted steps need.
type Receipt struct {
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	TxHash            common.Hash
}

// Chain is the on-chain surface the Settlement Engine drives, narrowed so
// tests substitute a fake instead of a live RPC endpoint and deployed
// router — generalized from the teacher's single bound *Client (one
// ethclient + one contract) into a per-network map of both (spec §4.2
// networks are independent chains with independent routers).
type Chain interface {
	IsSettled(ctx context.Context, network string, contextKey [32]byte) (bool, error)
	Simulate(ctx context.Context, network string, gasLimit uint64, p SettleParams) error
	Submit(ctx context.Context, network string, signer *signerpool.Signer, chainID int64, gasPrice *big.Int, gasLimit uint64, p SettleParams) (common.Hash, error)
	WaitMined(ctx context.Context, network string, txHash common.Hash) (*Receipt, error)
}

// receiptPollInterval is how often WaitMined polls for a receipt — the same
// loop bind.WaitMined runs internally, reimplemented here because this
// package only carries a transaction hash across the Submitted/Confirmed
// boundary, not the *types.Transaction bind.WaitMined expects.
const receiptPollInterval = 500 * time.Millisecond

// EVMChain is the production Chain: one ethclient.Client and one bound
// SettlementRouter per network, grounded on
// 0gfoundation-0g-sandbox-billing/internal/chain/client.go's
// bind.NewKeyedTransactorWithChainID + bind.WaitMined pattern.
type EVMChain struct {
	clients  map[string]*ethclient.Client
	routers  map[string]*router.SettlementRouter
}

// NewEVMChain builds a Chain from a per-network client/router set.
func NewEVMChain(clients map[string]*ethclient.Client, routers map[string]*router.SettlementRouter) *EVMChain {
	return &EVMChain{clients: clients, routers: routers}
}

func (c *EVMChain) lookup(network string) (*ethclient.Client, *router.SettlementRouter, error) {
	client, ok := c.clients[network]
	if !ok {
		return nil, nil, fmt.Errorf("settlement: %w: no RPC client for %s", x402f.ErrSettlementRouterNotConfigured, network)
	}
	r, ok := c.routers[network]
	if !ok {
		return nil, nil, fmt.Errorf("settlement: %w: no router bound for %s", x402f.ErrSettlementRouterNotConfigured, network)
	}
	return client, r, nil
}

func (c *EVMChain) IsSettled(ctx context.Context, network string, contextKey [32]byte) (bool, error) {
	_, r, err := c.lookup(network)
	if err != nil {
		return false, err
	}
	return r.IsSettled(&bind.CallOpts{Context: ctx}, contextKey)
}

func (c *EVMChain) Simulate(ctx context.Context, network string, gasLimit uint64, p SettleParams) error {
	client, r, err := c.lookup(network)
	if err != nil {
		return err
	}
	data, err := r.EncodeSettleAndExecute(p.Token, p.From, p.Value, p.ValidAfter, p.ValidBefore, p.Nonce, p.Signature, p.Salt, p.PayTo, p.FacilitatorFee, p.Hook, p.HookData)
	if err != nil {
		return fmt.Errorf("settlement: encode simulate call: %w", err)
	}
	to := r.Address()
	_, err = client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data, Gas: gasLimit}, nil)
	return err
}

func (c *EVMChain) Submit(ctx context.Context, network string, signer *signerpool.Signer, chainID int64, gasPrice *big.Int, gasLimit uint64, p SettleParams) (common.Hash, error) {
	_, r, err := c.lookup(network)
	if err != nil {
		return common.Hash{}, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(signer.PrivateKey(), big.NewInt(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("settlement: build transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasPrice = gasPrice
	auth.GasLimit = gasLimit

	tx, err := r.SettleAndExecute(auth, p.Token, p.From, p.Value, p.ValidAfter, p.ValidBefore, p.Nonce, p.Signature, p.Salt, p.PayTo, p.FacilitatorFee, p.Hook, p.HookData)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

func (c *EVMChain) WaitMined(ctx context.Context, network string, txHash common.Hash) (*Receipt, error) {
	client, ok := c.clients[network]
	if !ok {
		return nil, fmt.Errorf("settlement: %w: no RPC client for %s", x402f.ErrSettlementRouterNotConfigured, network)
	}

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return &Receipt{Status: receipt.Status, GasUsed: receipt.GasUsed, EffectiveGasPrice: receipt.EffectiveGasPrice, TxHash: txHash}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollInterval):
		}
	}
}

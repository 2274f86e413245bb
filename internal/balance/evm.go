package balance

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// balanceOfSelector is the first 4 bytes of keccak256("balanceOf(address)").
// No bound Go binding exists for an arbitrary ERC-20 in this repo (only the
// settlement router is bound), so the calldata is built by hand.
var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// EVMTokenClient implements TokenClient against a live JSON-RPC endpoint
// with a raw eth_call, the same CallContract route
// internal/settlement.EVMChain.Simulate takes, rather than pulling in a
// generated ERC-20 binding for a single read-only method.
type EVMTokenClient struct {
	client *ethclient.Client
}

// NewEVMTokenClient wraps an existing ethclient.Client.
func NewEVMTokenClient(client *ethclient.Client) *EVMTokenClient {
	return &EVMTokenClient{client: client}
}

func (c *EVMTokenClient) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := make([]byte, 4+32)
	copy(data, balanceOfSelector)
	copy(data[4+12:], owner.Bytes())

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balance: balanceOf call: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balance: balanceOf returned no data")
	}
	return new(big.Int).SetBytes(out), nil
}

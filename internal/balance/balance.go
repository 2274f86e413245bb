// Package balance is the Balance Checker (spec §4.6): cached ERC-20
// balanceOf queries used both pre-verify and defensively pre-settle.
// Swallowed failures never override a successful verify — a broken RPC
// oracle must not block payments.
package balance

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/x402labs/facilitator/internal/cache"
	"github.com/x402labs/facilitator/retry"
)

// TokenClient queries an ERC-20 token's balanceOf. Narrowed so tests can
// substitute a fake instead of a real *ethclient.Client + bound contract.
type TokenClient interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Result is checkBalance's return value.
type Result struct {
	HasSufficient bool
	Balance       *big.Int
	Required      *big.Int
	Cached        bool
}

// Checker implements checkBalance(client, payer, token, required, network).
type Checker struct {
	clients map[string]TokenClient
	cache   cache.Cache
	ttl     time.Duration
	log     *zap.Logger
}

// Config configures a Checker.
type Config struct {
	Clients map[string]TokenClient
	Cache   cache.Cache
	TTL     time.Duration
	Logger  *zap.Logger
}

// New builds a Balance Checker. TTL defaults to 5s — short, per spec §4.6.
func New(cfg Config) *Checker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{clients: cfg.Clients, cache: cfg.Cache, ttl: ttl, log: log}
}

var retryConfig = retry.Config{
	MaxAttempts:  2,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     300 * time.Millisecond,
	Multiplier:   2.0,
}

// CheckBalance returns whether payer holds at least required units of
// token on network. A failed RPC read is swallowed: HasSufficient is
// reported true (never block on a broken oracle) and Balance is nil — the
// caller is expected to treat this result like "unknown, proceed" rather
// than refuse the payment outright.
func (c *Checker) CheckBalance(ctx context.Context, network string, token, payer common.Address, required *big.Int) Result {
	cacheKey := "bal:" + network + ":" + token.Hex() + ":" + payer.Hex()

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, cacheKey); ok {
			if bal, ok := new(big.Int).SetString(cached, 10); ok {
				return Result{HasSufficient: bal.Cmp(required) >= 0, Balance: bal, Required: required, Cached: true}
			}
		}
	}

	client, ok := c.clients[network]
	if !ok {
		c.log.Warn("balance check skipped: no client configured", zap.String("network", network))
		return Result{HasSufficient: true, Required: required}
	}

	bal, err := retry.WithRetry(ctx, retryConfig, retry.IsInfraError, func() (*big.Int, error) {
		return client.BalanceOf(ctx, token, payer)
	})
	if err != nil {
		c.log.Warn("balance check failed, not blocking settlement", zap.String("network", network), zap.Error(err))
		return Result{HasSufficient: true, Required: required}
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, bal.String(), c.ttl)
	}

	return Result{HasSufficient: bal.Cmp(required) >= 0, Balance: bal, Required: required}
}

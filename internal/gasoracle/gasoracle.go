// Package gasoracle is the Gas Oracle (spec §4.4): live gas-price sampling
// per network, cached with the same discipline as the Price Oracle, clamped
// to a sane floor so the Fee & Gas-Limit Engine never divides by (or
// multiplies against) zero.
package gasoracle

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/x402labs/facilitator/internal/cache"
	"github.com/x402labs/facilitator/retry"
)

// defaultFloorWei is the minimum gas price this oracle will ever report,
// regardless of what the network returns — a network briefly reporting
// near-zero gas price must not make settlements artificially "free" to
// simulate against.
const defaultFloorWei = 100_000_000 // 0.1 gwei

// Client is the subset of *ethclient.Client the oracle needs; narrowed so
// tests can substitute a fake.
type Client interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Oracle implements getGasPrice(network) -> wei.
type Oracle struct {
	clients map[string]Client
	cache   cache.Cache
	ttl     time.Duration
	floor   *big.Int
	log     *zap.Logger
}

// Config configures an Oracle.
type Config struct {
	Clients map[string]Client
	Cache   cache.Cache
	TTL     time.Duration
	FloorWei *big.Int
	Logger  *zap.Logger
}

// New builds a Gas Oracle. TTL defaults to 10s.
func New(cfg Config) *Oracle {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	floor := cfg.FloorWei
	if floor == nil {
		floor = big.NewInt(defaultFloorWei)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Oracle{clients: cfg.Clients, cache: cfg.Cache, ttl: ttl, floor: floor, log: log}
}

// NewEthClientAdapter wraps a real *ethclient.Client so it satisfies Client.
func NewEthClientAdapter(c *ethclient.Client) Client { return c }

var retryConfig = retry.Config{
	MaxAttempts:  2,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	Multiplier:   2.0,
}

// GetGasPrice returns the current gas price for network in wei, clamped to
// the configured floor.
func (o *Oracle) GetGasPrice(ctx context.Context, network string) (*big.Int, error) {
	cacheKey := "gas:" + network

	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, cacheKey); ok {
			if wei, ok := new(big.Int).SetString(cached, 10); ok {
				return o.clamp(wei), nil
			}
		}
	}

	client, ok := o.clients[network]
	if !ok {
		return nil, fmt.Errorf("gasoracle: no RPC client configured for network %q", network)
	}

	wei, err := retry.WithRetry(ctx, retryConfig, retry.IsInfraError, func() (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
	if err != nil {
		o.log.Warn("gas price fetch failed, using floor", zap.String("network", network), zap.Error(err))
		return o.floor, nil
	}

	clamped := o.clamp(wei)
	if o.cache != nil {
		_ = o.cache.Set(ctx, cacheKey, strconv.FormatUint(clamped.Uint64(), 10), o.ttl)
	}
	return clamped, nil
}

func (o *Oracle) clamp(wei *big.Int) *big.Int {
	if wei == nil || wei.Cmp(o.floor) < 0 {
		return new(big.Int).Set(o.floor)
	}
	return wei
}

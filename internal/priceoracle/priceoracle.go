// Package priceoracle is the Price Oracle (spec §4.3): cached native-token
// and payment-token USD prices with TTL and background refresh, falling
// back to a static price on upstream failure. Downstream consumers divide
// by these values, so a price oracle must never return zero or a
// non-finite number.
package priceoracle

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/x402labs/facilitator/internal/cache"
	"github.com/x402labs/facilitator/retry"
)

// Fetcher retrieves a live USD price for a token symbol (e.g. "ETH", "USDC")
// from an upstream source. Deliberately out of this repo's scope per
// spec.md §1 ("CoinGecko price lookups... a pluggable price oracle") — a
// caller supplies its own implementation.
type Fetcher func(ctx context.Context, symbol string) (float64, error)

// StaticFallback is consulted when the upstream fetch fails and no cached
// value is available. Populated from config per network/symbol.
type StaticFallback map[string]float64

// Oracle implements getNativePriceUSD / getPaymentTokenPriceUSD.
type Oracle struct {
	fetch    Fetcher
	cache    cache.Cache
	fallback StaticFallback
	ttl      time.Duration
	log      *zap.Logger

	// testnetStatic mirrors spec §4.3: testnets (except Filecoin testnet)
	// short-circuit to static prices so demo payments never need live
	// quotes.
	testnetStatic map[string]bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Config configures an Oracle.
type Config struct {
	Fetch         Fetcher
	Cache         cache.Cache
	Fallback      StaticFallback
	TTL           time.Duration
	TestnetStatic map[string]bool
	Logger        *zap.Logger
}

// New builds a Price Oracle. TTL defaults to 30s if zero.
func New(cfg Config) *Oracle {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Oracle{
		fetch:         cfg.Fetch,
		cache:         cfg.Cache,
		fallback:      cfg.Fallback,
		ttl:           ttl,
		log:           log,
		testnetStatic: cfg.TestnetStatic,
		stopCh:        make(chan struct{}),
	}
}

var retryConfig = retry.Config{
	MaxAttempts:  2,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	Multiplier:   2.0,
}

// isRetryable wraps retry.IsInfraError: a price feed is an external HTTP
// call, not a SettlementError source, so this is equivalent to
// retry.IsInfraError today, but keeps price()'s call site decoupled from the
// retry package's error taxonomy if a future Fetch starts returning
// x402f.SettlementError for, say, an unsupported-symbol response.
func isRetryable(err error) bool { return retry.IsInfraError(err) }

// GetNativePriceUSD returns the USD price of network's native gas token.
func (o *Oracle) GetNativePriceUSD(ctx context.Context, network, nativeToken string) (float64, error) {
	return o.price(ctx, network, nativeToken, "native:"+network)
}

// GetPaymentTokenPriceUSD returns the USD price of a payment token symbol
// on the given network.
func (o *Oracle) GetPaymentTokenPriceUSD(ctx context.Context, network, tokenSymbol string) (float64, error) {
	return o.price(ctx, network, tokenSymbol, "token:"+network+":"+tokenSymbol)
}

func (o *Oracle) price(ctx context.Context, network, symbol, cacheKey string) (float64, error) {
	// Testnets other than Filecoin's short-circuit to the static price:
	// demo payments should never require a live quote to settle.
	if o.testnetStatic[strings.ToLower(network)] && !strings.Contains(strings.ToLower(network), "filecoin") {
		if p, ok := o.fallback[symbol]; ok && isSane(p) {
			return p, nil
		}
	}

	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, cacheKey); ok {
			if p, err := strconv.ParseFloat(cached, 64); err == nil && isSane(p) {
				return p, nil
			}
		}
	}

	if o.fetch != nil {
		p, err := retry.WithRetry(ctx, retryConfig, isRetryable, func() (float64, error) {
			return o.fetch(ctx, symbol)
		})
		if err == nil && isSane(p) {
			if o.cache != nil {
				_ = o.cache.Set(ctx, cacheKey, strconv.FormatFloat(p, 'f', -1, 64), o.ttl)
			}
			return p, nil
		}
		o.log.Warn("price fetch failed, falling back", zap.String("network", network), zap.String("symbol", symbol), zap.Error(err))
	}

	if p, ok := o.fallback[symbol]; ok && isSane(p) {
		return p, nil
	}

	return 0, fmt.Errorf("priceoracle: no price available for %s on %s", symbol, network)
}

func isSane(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}

// StartBackgroundRefresh periodically repopulates cache entries for the
// given (network, symbol, cacheKey) tuples until ctx is cancelled or Stop
// is called.
func (o *Oracle) StartBackgroundRefresh(ctx context.Context, targets []RefreshTarget) {
	go func() {
		ticker := time.NewTicker(o.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stopCh:
				return
			case <-ticker.C:
				for _, t := range targets {
					if _, err := o.price(ctx, t.Network, t.Symbol, t.CacheKey); err != nil {
						o.log.Warn("background price refresh failed", zap.String("network", t.Network), zap.Error(err))
					}
				}
			}
		}
	}()
}

// Stop cancels the background refresher.
func (o *Oracle) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

// RefreshTarget names one cache entry the background refresher repopulates.
type RefreshTarget struct {
	Network  string
	Symbol   string
	CacheKey string
}

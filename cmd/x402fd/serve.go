package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/x402labs/facilitator/internal/audit"
	"github.com/x402labs/facilitator/internal/balance"
	"github.com/x402labs/facilitator/internal/cache"
	"github.com/x402labs/facilitator/internal/config"
	"github.com/x402labs/facilitator/internal/feeengine"
	"github.com/x402labs/facilitator/internal/gasoracle"
	"github.com/x402labs/facilitator/internal/httpapi"
	"github.com/x402labs/facilitator/internal/priceoracle"
	"github.com/x402labs/facilitator/internal/registry"
	"github.com/x402labs/facilitator/internal/router"
	"github.com/x402labs/facilitator/internal/settlement"
	"github.com/x402labs/facilitator/internal/signerpool"
	"github.com/x402labs/facilitator/internal/verifier"
)

func newServeCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the facilitator HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if configDir != "" {
				paths = []string{configDir}
			}
			return runServe(cmd.Context(), paths)
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory containing x402fd.yaml (defaults to cwd)")
	return cmd
}

// runServe wires the full dependency graph (registry → cache → oracles →
// fee engine → balance checker → signer pool → router bindings → chain →
// settlement engine → audit sinks → httpapi) and serves until terminated,
// following 0gfoundation-0g-sandbox-billing/cmd/billing/main.go's
// construction-then-graceful-shutdown shape.
func runServe(ctx context.Context, configPaths []string) error {
	var log *zap.Logger
	var err error
	if os.Getenv("X402FD_ENV") == "dev" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(configPaths...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ── Cache backend ──────────────────────────────────────────────────
	var c cache.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		c = cache.NewRedis(rdb, "x402fd")
		log.Info("cache backend: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		c = cache.NewInProcess()
		log.Info("cache backend: in-process")
	}

	// ── Registry: built-in network constants + operator-supplied router
	// and hook whitelists and RPC endpoints ────────────────────────────
	networkConfigs, err := buildNetworkConfigs(cfg)
	if err != nil {
		return fmt.Errorf("build network configs: %w", err)
	}
	reg := registry.New(networkConfigs)

	// ── Per-network RPC clients, settlement router bindings, and signer
	// pool ──────────────────────────────────────────────────────────────
	clients := make(map[string]*ethclient.Client, len(cfg.Networks))
	routers := make(map[string]*router.SettlementRouter, len(cfg.Networks))
	var signers []*signerpool.Signer
	gasClients := make(map[string]gasoracle.Client, len(cfg.Networks))
	balanceClients := make(map[string]balance.TokenClient, len(cfg.Networks))

	for name, n := range cfg.Networks {
		netCfg, err := reg.Get(name)
		if err != nil {
			return fmt.Errorf("network %q: %w", name, err)
		}

		client, err := ethclient.DialContext(ctx, n.RPCURL)
		if err != nil {
			return fmt.Errorf("network %q: dial RPC: %w", name, err)
		}
		clients[name] = client
		gasClients[name] = client
		balanceClients[name] = balance.NewEVMTokenClient(client)

		if len(n.Routers) > 0 {
			r, err := router.New(common.HexToAddress(n.Routers[0]), client)
			if err != nil {
				return fmt.Errorf("network %q: bind router: %w", name, err)
			}
			routers[name] = r
		}

		for _, key := range n.SignerKeys {
			s, err := signerpool.NewSigner(signerpool.WithPrivateKeyHex(key), signerpool.WithNetwork(netCfg.Network))
			if err != nil {
				return fmt.Errorf("network %q: signer: %w", name, err)
			}
			signers = append(signers, s)
		}
	}

	signerPool := signerpool.New(signers, log)
	chain := settlement.NewEVMChain(clients, routers)

	// ── Oracles ──────────────────────────────────────────────────────────
	testnetStatic := map[string]bool{}
	for _, nc := range networkConfigs {
		if nc.IsTestnet {
			testnetStatic[strings.ToLower(nc.Network)] = true
		}
	}
	priceOracle := priceoracle.New(priceoracle.Config{
		Cache:         c,
		TTL:           cfg.PriceOracle.TTL,
		TestnetStatic: testnetStatic,
		Fallback:      priceoracle.StaticFallback{"ETH": 3000, "POL": 0.5, "FIL": 4, "USDC": 1},
		Logger:        log,
	})
	gasOracle := gasoracle.New(gasoracle.Config{
		Clients: gasClients,
		Cache:   c,
		TTL:     cfg.GasOracle.TTL,
		Logger:  log,
	})
	balanceChecker := balance.New(balance.Config{Clients: balanceClients, Cache: c, Logger: log})
	feeEngine := feeengine.New(reg)
	v := verifier.New(reg, balanceChecker)

	// ── Metrics + audit sinks ──────────────────────────────────────────
	sink := audit.MultiSink{
		audit.NewZapSink(log),
		audit.NewMetricsSink(prometheus.DefaultRegisterer),
	}

	env := feeengine.Mainnet
	if cfg.Environment == "testnet" {
		env = feeengine.Testnet
	}

	engine := settlement.New(settlement.Config{
		Registry:              reg,
		Verifier:              v,
		Balances:              balanceChecker,
		FeeEngine:             feeEngine,
		PriceOracle:           priceOracle,
		GasOracle:             gasOracle,
		Signers:               signerPool,
		Chain:                 chain,
		Sink:                  sink,
		Logger:                log,
		Environment:           env,
		EnforceHookWhitelist:  cfg.EnforceHookWhitelist,
		EnforceAssetWhitelist: cfg.EnforceAssetWhitelist,
		SubmitTimeout:         cfg.Timeouts.SettleTimeout,
	})

	handler := httpapi.New(reg, v, engine, sink, log, cfg.Timeouts)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	handler.Register(r.Group("/"))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: r}

	// The HTTP server and its shutdown goroutine share one errgroup so a
	// fatal error in either stops the other and unblocks the wait below —
	// grounded on the corpus's several cmd/*/main.go
	// goroutine-plus-context-cancel patterns, generalized from bare `go`
	// statements to errgroup.WithContext's shared cancellation.
	g, gctx := errgroup.WithContext(ctx)

	// Background oracle refresher: runs on its own goroutine (not in the
	// errgroup) and re-reads the native- and payment-token prices for every
	// configured network (spec §4.3) until gctx is cancelled by the shutdown
	// path below. No Fetcher is configured here, so each refresh resolves to
	// the static fallback prices and writes nothing to the cache.
	priceOracle.StartBackgroundRefresh(gctx, priceRefreshTargets(networkConfigs))

	g.Go(func() error {
		log.Info("http server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", zap.Error(err))
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-quit:
		log.Info("shutting down")
	case <-gctx.Done():
	}
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// priceRefreshTargets builds one native-token and one payment-token
// refresh target per network, mirroring the cache keys
// priceoracle.Oracle.GetNativePriceUSD/GetPaymentTokenPriceUSD compute on a
// cache miss so the background refresher keeps the exact entries those
// calls read warm.
func priceRefreshTargets(networkConfigs []registry.NetworkConfig) []priceoracle.RefreshTarget {
	targets := make([]priceoracle.RefreshTarget, 0, len(networkConfigs)*2)
	for _, nc := range networkConfigs {
		targets = append(targets,
			priceoracle.RefreshTarget{Network: nc.Network, Symbol: nc.NativeToken, CacheKey: "native:" + nc.Network},
			priceoracle.RefreshTarget{Network: nc.Network, Symbol: nc.DefaultAsset.Symbol, CacheKey: "token:" + nc.Network + ":" + nc.DefaultAsset.Symbol},
		)
	}
	return targets
}

// buildNetworkConfigs merges the operator's per-network router/hook
// whitelists into the built-in protocol constants (chain id, default
// asset, EIP-712 domain); only networks present in cfg.Networks are
// included, so a deployment only ever sees the chains it configured
// signers and RPC endpoints for.
func buildNetworkConfigs(cfg *config.Config) ([]registry.NetworkConfig, error) {
	base := map[string]registry.NetworkConfig{}
	for _, nc := range registry.Defaults() {
		base[strings.ToLower(nc.Network)] = nc
	}

	out := make([]registry.NetworkConfig, 0, len(cfg.Networks))
	for name, n := range cfg.Networks {
		nc, ok := base[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown network %q (not in registry.Defaults)", name)
		}
		nc.Routers = n.Routers
		if len(n.Hooks) > 0 {
			nc.Hooks = n.Hooks
		}
		out = append(out, nc)
	}
	return out, nil
}

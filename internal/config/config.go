// Package config loads the facilitator's process configuration: per-network
// RPC endpoints and signer keys, oracle enable flags and TTLs, router/hook
// whitelists, and server settings. Grounded on
// 0gfoundation-0g-sandbox-billing/internal/config/config.go's viper
// loader (.env via godotenv, optional YAML file, explicit env bindings,
// post-unmarshal validation) generalized from one fixed chain to an
// arbitrary per-network map.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	x402f "github.com/x402labs/facilitator"
)

// NetworkSettings is the deployment-specific half of one network's config —
// the half internal/registry.NetworkConfig does not hardcode (chain id,
// default asset, and EIP-712 domain are protocol constants; RPC endpoint,
// signer keys, and whitelists are operator choices).
type NetworkSettings struct {
	RPCURL     string            `mapstructure:"rpc_url"`
	SignerKeys []string          `mapstructure:"signer_keys"`
	Routers    []string          `mapstructure:"routers"`
	Hooks      map[string]string `mapstructure:"hooks"`
}

// OracleConfig holds one of the Price/Gas Oracles' settings. TTL sets the
// oracle's cache lifetime; Enabled is loaded but no component reads it, so
// it does not switch an oracle off.
type OracleConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ServerConfig is the HTTP listener's own settings.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig points internal/cache at a shared Redis instance. Addr empty
// means "use the in-process cache" (spec §5: caches are read-mostly and
// stale reads are acceptable, so a shared backend is an optimization, not a
// requirement).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// Config is the full facilitator process configuration.
type Config struct {
	Environment string `mapstructure:"environment"` // "mainnet" or "testnet"

	Server      ServerConfig    `mapstructure:"server"`
	Redis       RedisConfig     `mapstructure:"redis"`
	PriceOracle OracleConfig    `mapstructure:"price_oracle"`
	GasOracle   OracleConfig    `mapstructure:"gas_oracle"`
	Timeouts    x402f.TimeoutConfig

	// EnforceAssetWhitelist restricts settlement to each network's default
	// asset rather than its broader SupportedAssets set (DESIGN.md's asset
	// whitelist open question).
	EnforceAssetWhitelist bool `mapstructure:"enforce_asset_whitelist"`
	// EnforceHookWhitelist rejects a hook address absent from the network's
	// Hooks map instead of merely logging it.
	EnforceHookWhitelist bool `mapstructure:"enforce_hook_whitelist"`

	// Networks is keyed by the same lowercase network name
	// internal/registry uses ("base", "base-sepolia", ...).
	Networks map[string]NetworkSettings `mapstructure:"networks"`
}

// Load reads .env (if present), an optional YAML config file named
// "x402fd" on the given search paths, then environment variables, in that
// precedence order (env wins). Per-network settings are most naturally
// supplied via the YAML file — env vars for a dynamic map of networks would
// need a naming convention viper does not support well — but top-level
// scalars bind to explicit env vars so a single-network deployment never
// needs a config file at all.
func Load(searchPaths ...string) (*Config, error) {
	_ = godotenv.Load() // local development convenience; ignored if absent

	v := viper.New()
	v.SetConfigName("x402fd")
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if len(searchPaths) == 0 {
		v.AddConfigPath(".")
	}
	_ = v.ReadInConfig() // optional; env-only deployments are valid

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("environment", "testnet")
	v.SetDefault("price_oracle.enabled", true)
	v.SetDefault("price_oracle.ttl", 30*time.Second)
	v.SetDefault("gas_oracle.enabled", true)
	v.SetDefault("gas_oracle.ttl", 15*time.Second)
	v.SetDefault("enforce_asset_whitelist", true)
	v.SetDefault("enforce_hook_whitelist", false)

	bindings := map[string]string{
		"server.port":             "PORT",
		"environment":             "X402FD_ENV",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"price_oracle.enabled":    "PRICE_ORACLE_ENABLED",
		"price_oracle.ttl":        "PRICE_ORACLE_TTL",
		"gas_oracle.enabled":      "GAS_ORACLE_ENABLED",
		"gas_oracle.ttl":          "GAS_ORACLE_TTL",
		"enforce_asset_whitelist": "ENFORCE_ASSET_WHITELIST",
		"enforce_hook_whitelist":  "ENFORCE_HOOK_WHITELIST",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", env, err)
		}
	}

	cfg := &Config{Timeouts: x402f.DefaultTimeouts}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects a configuration the facilitator cannot safely start
// with: no networks, a network with no RPC URL, or a network with no
// signer keys (spec §9 "Panic vs error" — missing chain coverage is a
// startup-time error, not a per-request one).
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("config: at least one network must be configured")
	}
	for name, n := range c.Networks {
		if n.RPCURL == "" {
			return fmt.Errorf("config: network %q: missing rpc_url", name)
		}
		if len(n.SignerKeys) == 0 {
			return fmt.Errorf("config: network %q: at least one signer key required", name)
		}
	}
	if err := c.Timeouts.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

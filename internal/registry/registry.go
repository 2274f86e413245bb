// Package registry is the Network Registry (spec §4.2): a read-only,
// init-time-frozen lookup of per-chain constants. It is a pure leaf in the
// dependency graph — nothing in this package calls out to any other
// component.
package registry

import (
	"fmt"
	"strings"

	x402f "github.com/x402labs/facilitator"
)

// EIP712Domain names the domain separator fields the payment token expects.
type EIP712Domain struct {
	Name    string
	Version string
}

// Asset is one ERC-3009-capable token a network supports.
type Asset struct {
	Address  string
	Symbol   string
	Decimals int
	EIP712   EIP712Domain
}

// NetworkConfig is the full per-chain constant bundle: chain id, default
// asset, EIP-712 domain, hook registry, and router whitelist.
type NetworkConfig struct {
	Network string
	ChainID int64

	// DefaultAsset is the single token current policy restricts settlement
	// to (see DESIGN.md's "asset whitelist" open question).
	DefaultAsset Asset
	// SupportedAssets holds the broader set the network config permits;
	// only consulted when the default-asset restriction feature flag is off.
	SupportedAssets []Asset

	NativeToken string
	IsTestnet   bool
	// IsFEVM marks the Filecoin EVM family, which the Fee & Gas-Limit
	// Engine bypasses the normal gas-limit bounds for (spec §4.5); the
	// engine detects that family from the network name and does not read
	// this flag.
	IsFEVM bool

	// Hooks maps a hook name (e.g. "transfer") to its whitelisted address.
	Hooks map[string]string
	// Routers is the whitelist of settlement-router addresses accepted for
	// this network (spec §4.9 Validated transition).
	Routers []string
}

// Registry is the frozen, read-only set of supported networks.
type Registry struct {
	networks map[string]NetworkConfig
}

// New builds a Registry from the given configs. Panics on a duplicate
// network name: that is a configuration error, not a runtime error (spec
// §9 "Panic vs error" — a registry that cannot be built correctly must not
// start the process at all).
func New(configs []NetworkConfig) *Registry {
	m := make(map[string]NetworkConfig, len(configs))
	for _, c := range configs {
		key := strings.ToLower(c.Network)
		if _, exists := m[key]; exists {
			panic(fmt.Sprintf("registry: duplicate network config for %q", c.Network))
		}
		m[key] = c
	}
	return &Registry{networks: m}
}

// Get returns the NetworkConfig for network, or ErrUnsupportedNetwork.
func (r *Registry) Get(network string) (NetworkConfig, error) {
	cfg, ok := r.networks[strings.ToLower(network)]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("%w: %s", x402f.ErrUnsupportedNetwork, network)
	}
	return cfg, nil
}

// GetSupportedNetworks returns every network name this registry holds. The
// Verifier and Settlement Engine treat this as the sole authority on what
// "supported" means (spec §4.2).
func (r *Registry) GetSupportedNetworks() []string {
	names := make([]string, 0, len(r.networks))
	for _, cfg := range r.networks {
		names = append(names, cfg.Network)
	}
	return names
}

// IsRouterWhitelisted reports whether router is an accepted settlement
// router for network, compared case-insensitively.
func (r *Registry) IsRouterWhitelisted(network, router string) bool {
	cfg, err := r.Get(network)
	if err != nil {
		return false
	}
	for _, allowed := range cfg.Routers {
		if strings.EqualFold(allowed, router) {
			return true
		}
	}
	return false
}

// IsHookWhitelisted reports whether hook is a registered hook address for
// network. An empty Hooks map means the network enforces no hook whitelist.
func (r *Registry) IsHookWhitelisted(network, hook string) bool {
	cfg, err := r.Get(network)
	if err != nil || len(cfg.Hooks) == 0 {
		return true
	}
	for _, allowed := range cfg.Hooks {
		if strings.EqualFold(allowed, hook) {
			return true
		}
	}
	return false
}

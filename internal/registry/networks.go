package registry

// Default network configurations. USDC addresses and EIP-3009 domain
// parameters carried over from the network constant table this registry
// generalizes (mainnet/testnet pairs, one default asset per chain).
var (
	BaseMainnet = NetworkConfig{
		Network: "base",
		ChainID: 8453,
		DefaultAsset: Asset{
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Symbol:   "USDC",
			Decimals: 6,
			EIP712:   EIP712Domain{Name: "USD Coin", Version: "2"},
		},
		NativeToken: "ETH",
		Routers:     []string{},
		Hooks:       map[string]string{},
	}

	BaseSepolia = NetworkConfig{
		Network: "base-sepolia",
		ChainID: 84532,
		DefaultAsset: Asset{
			Address:  "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			Symbol:   "USDC",
			Decimals: 6,
			EIP712:   EIP712Domain{Name: "USDC", Version: "2"},
		},
		NativeToken: "ETH",
		IsTestnet:   true,
		Routers:     []string{},
		Hooks:       map[string]string{},
	}

	PolygonMainnet = NetworkConfig{
		Network: "polygon",
		ChainID: 137,
		DefaultAsset: Asset{
			Address:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
			Symbol:   "USDC",
			Decimals: 6,
			EIP712:   EIP712Domain{Name: "USD Coin", Version: "2"},
		},
		NativeToken: "POL",
		Routers:     []string{},
		Hooks:       map[string]string{},
	}

	PolygonAmoy = NetworkConfig{
		Network: "polygon-amoy",
		ChainID: 80002,
		DefaultAsset: Asset{
			Address:  "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
			Symbol:   "USDC",
			Decimals: 6,
			EIP712:   EIP712Domain{Name: "USDC", Version: "2"},
		},
		NativeToken: "POL",
		IsTestnet:   true,
		Routers:     []string{},
		Hooks:       map[string]string{},
	}

	FilecoinMainnet = NetworkConfig{
		Network: "filecoin",
		ChainID: 314,
		DefaultAsset: Asset{
			Address:  "0x80B98d3aa09ffff255c3ba4A241111Ff1262F044",
			Symbol:   "USDC",
			Decimals: 6,
			EIP712:   EIP712Domain{Name: "USD Coin", Version: "2"},
		},
		NativeToken: "FIL",
		IsFEVM:      true,
		Routers:     []string{},
		Hooks:       map[string]string{},
	}

	FilecoinCalibration = NetworkConfig{
		Network: "filecoin-calibration",
		ChainID: 314159,
		DefaultAsset: Asset{
			Address:  "0xb3042734b608a1B16e9e86B374A3f3e389B4cDf0",
			Symbol:   "USDC",
			Decimals: 6,
			EIP712:   EIP712Domain{Name: "USDC", Version: "2"},
		},
		NativeToken: "FIL",
		IsTestnet:   true,
		IsFEVM:      true,
		Routers:     []string{},
		Hooks:       map[string]string{},
	}
)

// Defaults returns the built-in network set. cmd/x402fd merges in any
// router/hook whitelist addresses internal/config loaded from the
// environment before constructing the Registry.
func Defaults() []NetworkConfig {
	return []NetworkConfig{
		BaseMainnet, BaseSepolia,
		PolygonMainnet, PolygonAmoy,
		FilecoinMainnet, FilecoinCalibration,
	}
}

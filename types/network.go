package types

import (
	"fmt"
	"math/big"
	"strings"
)

// NativeCurrency describes the currency used to pay for gas on a network.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// NetworkDescriptor is everything a wallet needs to register a network it does
// not know yet.
type NetworkDescriptor struct {
	Network        Network        `json:"network"`
	ChainID        *big.Int       `json:"chainId"`
	DisplayName    string         `json:"chainName"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
	RPCURLs        []string       `json:"rpcUrls"`
	ExplorerURLs   []string       `json:"blockExplorerUrls"`
}

// ExplorerTxURL returns a link to the transaction on the first configured
// block explorer, or "" when the network has none.
func (d NetworkDescriptor) ExplorerTxURL(txHash string) string {
	if len(d.ExplorerURLs) == 0 || txHash == "" {
		return ""
	}
	return strings.TrimSuffix(d.ExplorerURLs[0], "/") + "/tx/" + txHash
}

// RPCURL returns the first RPC endpoint of the network.
func (d NetworkDescriptor) RPCURL() string {
	if len(d.RPCURLs) == 0 {
		return ""
	}
	return d.RPCURLs[0]
}

var ethCurrency = NativeCurrency{Name: "Ethereum", Symbol: "ETH", Decimals: 18}

var knownNetworks = map[Network]NetworkDescriptor{
	NetworkEthereum: {
		Network:        NetworkEthereum,
		ChainID:        big.NewInt(1),
		DisplayName:    "Ethereum",
		NativeCurrency: ethCurrency,
		RPCURLs:        []string{"https://cloudflare-eth.com"},
		ExplorerURLs:   []string{"https://etherscan.io"},
	},
	NetworkBase: {
		Network:        NetworkBase,
		ChainID:        big.NewInt(8453),
		DisplayName:    "Base",
		NativeCurrency: ethCurrency,
		RPCURLs:        []string{"https://mainnet.base.org"},
		ExplorerURLs:   []string{"https://basescan.org"},
	},
	NetworkBaseSepolia: {
		Network:        NetworkBaseSepolia,
		ChainID:        big.NewInt(84532),
		DisplayName:    "Base Sepolia",
		NativeCurrency: ethCurrency,
		RPCURLs:        []string{"https://sepolia.base.org"},
		ExplorerURLs:   []string{"https://sepolia.basescan.org"},
	},
	NetworkPolygon: {
		Network:        NetworkPolygon,
		ChainID:        big.NewInt(137),
		DisplayName:    "Polygon",
		NativeCurrency: NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		RPCURLs:        []string{"https://polygon-rpc.com"},
		ExplorerURLs:   []string{"https://polygonscan.com"},
	},
	NetworkPolygonAmoy: {
		Network:        NetworkPolygonAmoy,
		ChainID:        big.NewInt(80002),
		DisplayName:    "Polygon Amoy",
		NativeCurrency: NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18},
		RPCURLs:        []string{"https://rpc-amoy.polygon.technology"},
		ExplorerURLs:   []string{"https://amoy.polygonscan.com"},
	},
}

// LookupNetwork returns a copy of the descriptor registered for n.
func LookupNetwork(n Network) (NetworkDescriptor, error) {
	d, ok := knownNetworks[n]
	if !ok {
		return NetworkDescriptor{}, &X402Error{
			Code:    ErrUnsupportedNetwork,
			Message: fmt.Sprintf("unsupported network: %s", n),
		}
	}
	d.ChainID = new(big.Int).Set(d.ChainID)
	d.RPCURLs = append([]string(nil), d.RPCURLs...)
	d.ExplorerURLs = append([]string(nil), d.ExplorerURLs...)
	return d, nil
}

// NetworkByChainID finds the registered network for a chain id.
func NetworkByChainID(chainID *big.Int) (Network, bool) {
	if chainID == nil {
		return "", false
	}
	for n, d := range knownNetworks {
		if d.ChainID.Cmp(chainID) == 0 {
			return n, true
		}
	}
	return "", false
}

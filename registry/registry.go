// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/luxfi/geth/common"
)

// FHE coprocessor addresses on Lux chains. The first byte encodes the
// family page (4 = privacy) and the chain slot (2 = C-Chain, 6 = Z-Chain).
const (
	FHECChain     = "0x4240000000000000000000000000000000000000"
	GatewayCChain = "0x4244000000000000000000000000000000000000"

	FHEZChain     = "0x4640000000000000000000000000000000000000"
	GatewayZChain = "0x4644000000000000000000000000000000000000"
)

// Network describes a chain that hosts FHE contracts and, optionally, a
// decryption gateway.
type Network struct {
	ChainID    uint64 `json:"chainId"`
	Name       string `json:"name"`
	RPCURL     string `json:"rpcUrl"`
	GatewayURL string `json:"gatewayUrl,omitempty"`

	// Coprocessor contracts; zero when the chain does not expose them.
	FHEAddress     common.Address `json:"fheAddress,omitempty"`
	GatewayAddress common.Address `json:"gatewayAddress,omitempty"`
}

// HasGateway reports whether decryption requests can be routed for n.
func (n Network) HasGateway() bool {
	return n.GatewayURL != ""
}

func (n Network) String() string {
	return fmt.Sprintf("%s (chain %d)", n.Name, n.ChainID)
}

const (
	Sepolia     = "sepolia"
	Localhost   = "localhost"
	LuxMainnet  = "lux"
	LuxTestnet  = "lux-testnet"
	ZooMainnet  = "zoo"
	DefaultName = Localhost
)

// Networks is the set of known networks, keyed by short name.
var Networks = map[string]Network{
	// The hosted Sepolia gateway does not serve the /v1 API; decrypting on
	// Sepolia needs a gateway URL from configuration.
	Sepolia: {
		ChainID: 11155111,
		Name:    "Sepolia Testnet",
		RPCURL:  "https://sepolia.infura.io/v3",
	},
	Localhost: {
		ChainID: 31337,
		Name:    "Localhost",
		RPCURL:  "http://127.0.0.1:8545",
	},
	LuxMainnet: {
		ChainID:        96369,
		Name:           "Lux C-Chain",
		RPCURL:         "https://api.lux.network/ext/bc/C/rpc",
		FHEAddress:     common.HexToAddress(FHECChain),
		GatewayAddress: common.HexToAddress(GatewayCChain),
	},
	LuxTestnet: {
		ChainID:        96368,
		Name:           "Lux Testnet C-Chain",
		RPCURL:         "https://api.lux-test.network/ext/bc/C/rpc",
		FHEAddress:     common.HexToAddress(FHECChain),
		GatewayAddress: common.HexToAddress(GatewayCChain),
	},
	ZooMainnet: {
		ChainID:        200200,
		Name:           "Zoo",
		RPCURL:         "https://api.zoo.network/ext/bc/zoo/rpc",
		FHEAddress:     common.HexToAddress(FHEZChain),
		GatewayAddress: common.HexToAddress(GatewayZChain),
	},
}

// Default returns the network used when none is configured.
func Default() Network {
	return Networks[DefaultName]
}

// Lookup returns the network registered under name. Matching ignores case.
func Lookup(name string) (Network, error) {
	n, ok := Networks[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return n, nil
}

// ByChainID returns the network with the given chain id.
func ByChainID(id uint64) (Network, bool) {
	for _, n := range Networks {
		if n.ChainID == id {
			return n, true
		}
	}
	return Network{}, false
}

// Names lists registered network names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Networks))
	for name := range Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

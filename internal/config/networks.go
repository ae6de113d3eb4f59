package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var defaultNetworksYAML []byte

// Network describes a chain the marketplace client can talk to
type Network struct {
	ChainID      uint64   `yaml:"chain_id" json:"chain_id"`
	Name         string   `yaml:"name" json:"name"`
	NativeSymbol string   `yaml:"native_symbol" json:"native_symbol"`
	RPCURLs      []string `yaml:"rpc_urls" json:"rpc_urls"`
	WSURLs       []string `yaml:"ws_urls" json:"ws_urls"`
	ExplorerURL  string   `yaml:"explorer_url" json:"explorer_url"`
	// MarketplaceAddress overrides MARKETPLACE_ADDRESS when the marketplace runs on this network
	MarketplaceAddress string `yaml:"marketplace_address,omitempty" json:"marketplace_address,omitempty"`
}

// Endpoints returns the RPC endpoints in fallback order: HTTP first, then WebSocket.
func (n Network) Endpoints() []string {
	endpoints := make([]string, 0, len(n.RPCURLs)+len(n.WSURLs))
	endpoints = append(endpoints, n.RPCURLs...)
	endpoints = append(endpoints, n.WSURLs...)
	return endpoints
}

// NetworkTable is the read-only chain id -> network mapping
type NetworkTable struct {
	Networks []Network `yaml:"networks"`

	byChainID map[uint64]Network
}

// DefaultNetworkTable returns the embedded network table
func DefaultNetworkTable() (*NetworkTable, error) {
	return ParseNetworkTable(defaultNetworksYAML)
}

// LoadNetworkTable reads a network table from a YAML file.
// An empty path returns the embedded defaults.
func LoadNetworkTable(path string) (*NetworkTable, error) {
	if path == "" {
		return DefaultNetworkTable()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks file: %w", err)
	}
	return ParseNetworkTable(data)
}

// ParseNetworkTable parses and validates a YAML network table
func ParseNetworkTable(data []byte) (*NetworkTable, error) {
	var table NetworkTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse networks: %w", err)
	}

	if len(table.Networks) == 0 {
		return nil, fmt.Errorf("network table is empty")
	}

	table.byChainID = make(map[uint64]Network, len(table.Networks))
	for _, network := range table.Networks {
		if network.ChainID == 0 {
			return nil, fmt.Errorf("network %q: chain_id is required", network.Name)
		}
		if _, exists := table.byChainID[network.ChainID]; exists {
			return nil, fmt.Errorf("network %d: duplicate chain_id", network.ChainID)
		}
		if len(network.Endpoints()) == 0 {
			return nil, fmt.Errorf("network %d: at least one rpc or ws url is required", network.ChainID)
		}
		if network.ExplorerURL != "" {
			if _, err := url.ParseRequestURI(network.ExplorerURL); err != nil {
				return nil, fmt.Errorf("network %d: invalid explorer_url: %w", network.ChainID, err)
			}
		}
		table.byChainID[network.ChainID] = network
	}

	return &table, nil
}

// Get returns the network for a chain id
func (t *NetworkTable) Get(chainID uint64) (Network, bool) {
	network, ok := t.byChainID[chainID]
	return network, ok
}

// All returns every network ordered by chain id
func (t *NetworkTable) All() []Network {
	networks := make([]Network, 0, len(t.byChainID))
	for _, network := range t.byChainID {
		networks = append(networks, network)
	}
	sort.Slice(networks, func(i, j int) bool {
		return networks[i].ChainID < networks[j].ChainID
	})
	return networks
}

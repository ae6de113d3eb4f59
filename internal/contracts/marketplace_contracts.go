package contracts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed marketplace/LPMarketplace.json
var marketplaceJSON []byte

// ContractArtifact is the subset of a build artifact this client needs. The
// marketplace is deployed externally, so no bytecode is shipped.
type ContractArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
}

var (
	marketplaceABIOnce sync.Once
	marketplaceABI     abi.ABI
	marketplaceABIErr  error
)

// GetMarketplaceArtifact returns the embedded marketplace artifact
func GetMarketplaceArtifact() (*ContractArtifact, error) {
	var artifact ContractArtifact
	if err := json.Unmarshal(marketplaceJSON, &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal marketplace artifact: %w", err)
	}
	return &artifact, nil
}

// MarketplaceABI returns the parsed marketplace ABI. It is parsed once and shared.
func MarketplaceABI() (abi.ABI, error) {
	marketplaceABIOnce.Do(func() {
		artifact, err := GetMarketplaceArtifact()
		if err != nil {
			marketplaceABIErr = err
			return
		}
		marketplaceABI, marketplaceABIErr = abi.JSON(bytes.NewReader(artifact.ABI))
		if marketplaceABIErr != nil {
			marketplaceABIErr = fmt.Errorf("failed to parse marketplace abi: %w", marketplaceABIErr)
		}
	})
	return marketplaceABI, marketplaceABIErr
}

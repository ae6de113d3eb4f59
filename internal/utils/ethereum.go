package utils

import (
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsValidEthereumAddress requires the 0x prefix; common.IsHexAddress alone also accepts bare hex.
func IsValidEthereumAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// IsZeroAddress reports whether the address is the all-zero address
func IsZeroAddress(address common.Address) bool {
	return address == (common.Address{})
}

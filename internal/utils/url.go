package utils

import (
	"fmt"
	"net/url"
)

// ExplorerTxURL builds the block explorer link for a transaction hash
func ExplorerTxURL(explorerBase, txHash string) (string, error) {
	return explorerURL(explorerBase, "tx", txHash)
}

// ExplorerAddressURL builds the block explorer link for an account or contract
func ExplorerAddressURL(explorerBase, address string) (string, error) {
	return explorerURL(explorerBase, "address", address)
}

func explorerURL(explorerBase, kind, value string) (string, error) {
	if explorerBase == "" {
		return "", fmt.Errorf("explorer url not configured")
	}
	if value == "" {
		return "", fmt.Errorf("%s value is empty", kind)
	}
	return url.JoinPath(explorerBase, kind, value)
}

// GetTransactionRecordUrl returns the API url where a transaction record can be polled.
// baseURL overrides the localhost default when set.
func GetTransactionRecordUrl(baseURL string, serverPort int, recordID string) (string, error) {
	return serverURL(baseURL, serverPort, "api", "transactions", recordID)
}

// GetSigningUrl returns the page where a browser wallet signs a pending write
func GetSigningUrl(baseURL string, serverPort int, requestID string) (string, error) {
	return serverURL(baseURL, serverPort, "tx", requestID)
}

// GetWalletConnectUrl returns the page that connects a browser wallet
func GetWalletConnectUrl(baseURL string, serverPort int, token string) (string, error) {
	return serverURL(baseURL, serverPort, "connect", token)
}

func serverURL(baseURL string, serverPort int, elem ...string) (string, error) {
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", serverPort)
	}
	parsedUrl, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid BASE_URL: %w", err)
	}
	return parsedUrl.JoinPath(elem...).String(), nil
}

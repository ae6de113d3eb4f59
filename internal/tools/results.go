package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/services"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/utils"
)

// jsonResult returns a label followed by the JSON encoding of v
func jsonResult(label string, v interface{}) (*mcp.CallToolResult, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(label),
			mcp.NewTextContent(string(resultJSON)),
		},
	}, nil
}

// readErrorResult maps a listing read error to a tool error
func readErrorResult(listingID uint64, err error) *mcp.CallToolResult {
	if errors.Is(err, services.ErrListingNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Listing %d not found", listingID))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to read listing %d: %v", listingID, err))
}

// WriteResult is a submitted write plus the URL its record can be polled at.
// SigningURL is set while the write waits for the user's browser wallet.
type WriteResult struct {
	services.TxState
	RecordURL  string `json:"record_url,omitempty"`
	SigningURL string `json:"signing_url,omitempty"`
}

// NewWriteResult links the write's record and, if it still needs a
// signature, the page that asks the user's wallet for it
func NewWriteResult(state services.TxState, baseURL string, serverPort int) WriteResult {
	result := WriteResult{TxState: state}
	if state.RecordID == "" {
		return result
	}
	if url, err := utils.GetTransactionRecordUrl(baseURL, serverPort, state.RecordID); err == nil {
		result.RecordURL = url
	}
	if state.AwaitingSignature {
		if url, err := utils.GetSigningUrl(baseURL, serverPort, state.RecordID); err == nil {
			result.SigningURL = url
		}
	}
	return result
}

type writeResponder struct {
	baseURL    string
	serverPort int
}

func (w writeResponder) respond(state services.TxState, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		txErr := services.ClassifyTxError(err)
		return mcp.NewToolResultError(fmt.Sprintf("Transaction failed [%s]: %s", txErr.Kind, txErr.UserMessage())), nil
	}

	result := NewWriteResult(state, w.baseURL, w.serverPort)
	if result.SigningURL != "" {
		return jsonResult("Open signing_url to sign the transaction in your wallet: ", result)
	}
	return jsonResult("Transaction submitted: ", result)
}

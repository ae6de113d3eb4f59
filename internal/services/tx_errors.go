package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// TxErrorKind is the category a failed write is reported under
type TxErrorKind string

const (
	TxErrorUserRejected       TxErrorKind = "user_rejected"
	TxErrorInsufficientFunds  TxErrorKind = "insufficient_funds"
	TxErrorWrongNetwork       TxErrorKind = "wrong_network"
	TxErrorGasFailure         TxErrorKind = "gas_failure"
	TxErrorContractRevert     TxErrorKind = "contract_revert"
	TxErrorUnknown            TxErrorKind = "unknown"
	TxErrorInvalidInput       TxErrorKind = "invalid_input"
	TxErrorWalletDisconnected TxErrorKind = "wallet_disconnected"
	TxErrorStale              TxErrorKind = "stale"
)

// EIP-1193 code wallets return when the user declines a request
const userRejectedCode = 4001

// TxError is a classified write failure. Error() is safe to show to users;
// the underlying cause is kept for logs via Unwrap.
type TxError struct {
	Kind   TxErrorKind
	Reason string
	Err    error
}

func (e *TxError) Error() string {
	return e.UserMessage()
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// UserMessage returns the human readable message for the error kind
func (e *TxError) UserMessage() string {
	switch e.Kind {
	case TxErrorUserRejected:
		return "Transaction was rejected in the wallet."
	case TxErrorInsufficientFunds:
		return "Insufficient funds to cover the transaction value and gas."
	case TxErrorWrongNetwork:
		if e.Reason != "" {
			return fmt.Sprintf("Wrong network. Switch your wallet to %s and try again.", e.Reason)
		}
		return "Wrong network. Switch your wallet to the marketplace network and try again."
	case TxErrorGasFailure:
		return "Gas estimation failed. The transaction would not succeed with the current parameters."
	case TxErrorContractRevert:
		return revertMessage(e.Reason)
	case TxErrorInvalidInput:
		return e.Reason
	case TxErrorWalletDisconnected:
		return "Connect a wallet before submitting a transaction."
	case TxErrorStale:
		return "The network changed while the transaction was pending. Check its status on the original network."
	}
	return "Transaction failed. Please try again."
}

// known revert reasons, matched case-insensitively as substrings
var revertReasons = []struct {
	match   string
	message string
}{
	{"incorrect fee", "Incorrect listing fee. The fee may have changed, please try again."},
	{"incorrect price", "Payment does not match the listing price."},
	{"invalid address", "The contract rejected one of the addresses as invalid."},
	{"empty string", "A required text field was empty."},
	{"not seller", "Only the seller can perform this action."},
	{"not buyer", "Only the buyer can perform this action."},
	{"not available", "This listing is no longer available."},
	{"invalid status", "The listing is not in the right state for this action."},
}

func revertMessage(reason string) string {
	lower := strings.ToLower(reason)
	for _, known := range revertReasons {
		if strings.Contains(lower, known.match) {
			return known.message
		}
	}
	if reason == "" {
		return "Transaction reverted by the contract."
	}
	return "Transaction reverted: " + reason
}

// ClassifyTxError maps any error returned along the write path into a *TxError
func ClassifyTxError(err error) *TxError {
	if err == nil {
		return nil
	}

	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return &TxError{Kind: TxErrorInvalidInput, Reason: validationErr.Message, Err: err}
	}

	switch {
	case errors.Is(err, ErrWrongNetwork):
		return &TxError{Kind: TxErrorWrongNetwork, Err: err}
	case errors.Is(err, ErrWalletDisconnected):
		return &TxError{Kind: TxErrorWalletDisconnected, Err: err}
	case errors.Is(err, ErrNetworkChanged):
		return &TxError{Kind: TxErrorStale, Err: err}
	}

	var codeErr rpc.Error
	if errors.As(err, &codeErr) && codeErr.ErrorCode() == userRejectedCode {
		return &TxError{Kind: TxErrorUserRejected, Err: err}
	}

	// revert data carries the exact reason, prefer it over the message text
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := decodeRevertData(dataErr.ErrorData()); ok {
			return &TxError{Kind: TxErrorContractRevert, Reason: reason, Err: err}
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "user rejected", "user denied", "rejected by user", "request rejected"):
		return &TxError{Kind: TxErrorUserRejected, Err: err}
	case strings.Contains(msg, "insufficient funds"):
		return &TxError{Kind: TxErrorInsufficientFunds, Err: err}
	case strings.Contains(msg, "execution reverted"):
		return &TxError{Kind: TxErrorContractRevert, Reason: revertReasonFromMessage(err.Error()), Err: err}
	case containsAny(msg, "gas required exceeds", "intrinsic gas too low", "out of gas", "failed to estimate gas", "gas limit"):
		return &TxError{Kind: TxErrorGasFailure, Err: err}
	case containsAny(msg, "chain id mismatch", "invalid chain id", "wrong chain"):
		return &TxError{Kind: TxErrorWrongNetwork, Err: err}
	}

	return &TxError{Kind: TxErrorUnknown, Err: err}
}

func decodeRevertData(data interface{}) (string, bool) {
	hexData, ok := data.(string)
	if !ok {
		return "", false
	}
	raw, err := hexutil.Decode(hexData)
	if err != nil {
		return "", false
	}
	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}

func revertReasonFromMessage(msg string) string {
	const marker = "execution reverted:"
	idx := strings.Index(strings.ToLower(msg), marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(msg[idx+len(marker):])
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

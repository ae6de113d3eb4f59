package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type SigningStatus string

const (
	SigningStatusPending  SigningStatus = "pending"
	SigningStatusSigned   SigningStatus = "signed"
	SigningStatusRejected SigningStatus = "rejected"
	SigningStatusExpired  SigningStatus = "expired"
)

// SigningRequest is a transaction waiting for the user's browser wallet.
// Data and Value are encoded the way eth_sendTransaction expects them.
type SigningRequest struct {
	ID              string        `json:"id"`
	Method          string        `json:"method"`
	From            string        `json:"from"`
	To              string        `json:"to"`
	Data            string        `json:"data"`
	Value           string        `json:"value"`
	ChainID         uint64        `json:"chain_id"`
	Status          SigningStatus `json:"status"`
	TransactionHash string        `json:"transaction_hash,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
}

// SigningResult is what the signing page reports once the wallet answered
type SigningResult struct {
	TransactionHash string
	ChainID         uint64
	// ErrorCode is the EIP-1193 provider error code when the wallet refused, e.g. 4001
	ErrorCode    int
	ErrorMessage string
}

// providerError is an EIP-1193 error relayed from the browser wallet
type providerError struct {
	code    int
	message string
}

func (e *providerError) Error() string  { return e.message }
func (e *providerError) ErrorCode() int { return e.code }

type pendingSigning struct {
	request SigningRequest
	result  chan SigningResult
}

// BrowserWallet hands every write to the user's own wallet. The server
// prepares the call data, the signing page at /tx/{id} asks the wallet to
// send it, and the page reports the hash (or the wallet's refusal) back.
// Reads and receipts go through the RPC endpoints of the current chain.
type BrowserWallet struct {
	reader       ChainReader
	timeout      time.Duration
	connectToken string

	mu       sync.Mutex
	address  common.Address
	chainID  uint64
	epoch    uint64
	requests map[string]*pendingSigning
}

// NewBrowserWallet creates a disconnected browser wallet on chainID.
// Signing requests expire after timeout.
func NewBrowserWallet(reader ChainReader, chainID uint64, timeout time.Duration) *BrowserWallet {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &BrowserWallet{
		reader:       reader,
		timeout:      timeout,
		connectToken: uuid.NewString(),
		chainID:      chainID,
		requests:     make(map[string]*pendingSigning),
	}
}

func (w *BrowserWallet) AwaitsSignature() bool {
	return true
}

// ConnectToken authorizes the connect page to report the user's account
func (w *BrowserWallet) ConnectToken() string {
	return w.connectToken
}

// Connect records the account and chain the user's wallet reported. A chain
// change bumps the network epoch like SwitchChain does.
func (w *BrowserWallet) Connect(address string, chainID uint64) error {
	if !common.IsHexAddress(address) {
		return &ValidationError{Field: "address", Message: "Address must be 0x followed by 40 hexadecimal characters"}
	}
	if chainID == 0 {
		return &ValidationError{Field: "chain_id", Message: "Chain ID must be greater than 0"}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.address = common.HexToAddress(address)
	if w.chainID != chainID {
		w.chainID = chainID
		w.epoch++
	}
	logrus.WithFields(logrus.Fields{
		"address":  w.address.Hex(),
		"chain_id": chainID,
	}).Info("browser wallet connected")
	return nil
}

func (w *BrowserWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.address = common.Address{}
}

func (w *BrowserWallet) Account() WalletAccount {
	w.mu.Lock()
	defer w.mu.Unlock()

	account := WalletAccount{ChainID: w.chainID}
	if w.address != (common.Address{}) {
		account.Address = w.address.Hex()
		account.IsConnected = true
	}
	return account
}

func (w *BrowserWallet) NetworkEpoch() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.epoch
}

func (w *BrowserWallet) currentChain() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID
}

// SwitchChain moves the session to chainID. The signing page asks the
// wallet to follow before it sends anything.
func (w *BrowserWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.chainID != chainID {
		logrus.WithFields(logrus.Fields{"from": w.chainID, "to": chainID}).Info("wallet switched network")
		w.chainID = chainID
		w.epoch++
	}
	return nil
}

func (w *BrowserWallet) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	w.mu.Lock()
	chainID := w.chainID
	if msg.From == (common.Address{}) {
		msg.From = w.address
	}
	w.mu.Unlock()
	return w.reader.CallContractOn(ctx, chainID, msg, blockNumber)
}

func (w *BrowserWallet) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return w.reader.TransactionReceiptOn(ctx, w.currentChain(), hash)
}

// WriteContract publishes a signing request and blocks until the page
// reports back, the request expires or ctx ends. The request id is the
// transaction record id when there is one.
func (w *BrowserWallet) WriteContract(ctx context.Context, req WriteContractRequest) (common.Hash, error) {
	data, err := req.ABI.Pack(req.Method, req.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode %s call: %w", req.Method, err)
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	w.mu.Lock()
	if w.address == (common.Address{}) {
		w.mu.Unlock()
		return common.Hash{}, ErrWalletDisconnected
	}
	if err := req.CheckTarget(w.chainID, w.epoch); err != nil {
		w.mu.Unlock()
		return common.Hash{}, err
	}
	w.pruneLocked(time.Now())

	id := req.RecordID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := w.requests[id]; exists {
		w.mu.Unlock()
		return common.Hash{}, fmt.Errorf("signing request %s already exists", id)
	}

	now := time.Now()
	pending := &pendingSigning{
		request: SigningRequest{
			ID:        id,
			Method:    req.Method,
			From:      w.address.Hex(),
			To:        req.To.Hex(),
			Data:      hexutil.Encode(data),
			Value:     hexutil.EncodeBig(value),
			ChainID:   req.ChainID,
			Status:    SigningStatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(w.timeout),
		},
		result: make(chan SigningResult, 1),
	}
	w.requests[id] = pending
	w.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"signing_id": id,
		"method":     req.Method,
		"chain_id":   req.ChainID,
	})
	log.Info("transaction awaiting browser signature")
	if req.Published != nil {
		req.Published()
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case result := <-pending.result:
		return settleSigning(req, result)
	case <-timer.C:
		if result, ok := w.expire(pending); ok {
			return settleSigning(req, result)
		}
		log.Warn("signing request expired")
		return common.Hash{}, fmt.Errorf("%w after %s", ErrSigningExpired, w.timeout)
	case <-ctx.Done():
		if result, ok := w.expire(pending); ok {
			return settleSigning(req, result)
		}
		return common.Hash{}, ctx.Err()
	}
}

// expire closes a pending request. If the page answered in the meantime its
// result wins, since the wallet may already have sent the transaction.
func (w *BrowserWallet) expire(pending *pendingSigning) (SigningResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pending.request.Status == SigningStatusPending {
		pending.request.Status = SigningStatusExpired
		return SigningResult{}, false
	}
	return <-pending.result, true
}

// pruneLocked forgets answered requests once they are past their expiry
func (w *BrowserWallet) pruneLocked(now time.Time) {
	for id, pending := range w.requests {
		if pending.request.Status != SigningStatusPending && now.After(pending.request.ExpiresAt) {
			delete(w.requests, id)
		}
	}
}

func settleSigning(req WriteContractRequest, result SigningResult) (common.Hash, error) {
	if result.ErrorCode != 0 {
		message := result.ErrorMessage
		if message == "" {
			message = fmt.Sprintf("wallet returned error code %d", result.ErrorCode)
		}
		return common.Hash{}, &providerError{code: result.ErrorCode, message: message}
	}
	if result.ChainID != 0 && result.ChainID != req.ChainID {
		return common.Hash{}, fmt.Errorf("%w: transaction %s was sent on chain %d", ErrWrongNetwork, result.TransactionHash, result.ChainID)
	}
	return common.HexToHash(result.TransactionHash), nil
}

// SigningRequest returns a copy of the request with id
func (w *BrowserWallet) SigningRequest(id string) (SigningRequest, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	pending, ok := w.requests[id]
	if !ok {
		return SigningRequest{}, false
	}
	return pending.request, true
}

// CompleteSigning hands the page's answer to the waiting write. Each request
// accepts exactly one answer.
func (w *BrowserWallet) CompleteSigning(id string, result SigningResult) error {
	if result.ErrorCode == 0 && !isTransactionHash(result.TransactionHash) {
		return &ValidationError{Field: "transaction_hash", Message: "Transaction hash must be 0x followed by 64 hexadecimal characters"}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	pending, ok := w.requests[id]
	if !ok {
		return ErrSigningRequestNotFound
	}
	if pending.request.Status != SigningStatusPending {
		return fmt.Errorf("%w: request is %s", ErrSigningRequestClosed, pending.request.Status)
	}

	if result.ErrorCode != 0 {
		pending.request.Status = SigningStatusRejected
	} else {
		pending.request.Status = SigningStatusSigned
		pending.request.TransactionHash = result.TransactionHash
	}
	pending.result <- result

	logrus.WithFields(logrus.Fields{
		"signing_id": id,
		"status":     pending.request.Status,
		"error_code": result.ErrorCode,
	}).Info("browser wallet answered signing request")
	return nil
}

func isTransactionHash(value string) bool {
	if len(value) != 66 || !strings.HasPrefix(value, "0x") {
		return false
	}
	_, err := hexutil.Decode(value)
	return err == nil
}

package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// WalletAccount is the connection state a write needs
type WalletAccount struct {
	Address     string `json:"address"`
	IsConnected bool   `json:"is_connected"`
	ChainID     uint64 `json:"chain_id"`
}

// WriteContractRequest is one contract call to sign and send. ChainID and
// Epoch pin the network the call was prepared against; a wallet that has
// moved since must refuse to send it.
type WriteContractRequest struct {
	To     common.Address
	ABI    abi.ABI
	Method string
	Args   []interface{}
	Value  *big.Int

	ChainID uint64
	Epoch   uint64
	// RecordID is the transaction record the write belongs to, if any
	RecordID string
	// Published, if set, runs once a deferred signer has put the write up for signing
	Published func()
}

// CheckTarget fails when a wallet on chainID at epoch must not send r
func (r WriteContractRequest) CheckTarget(chainID, epoch uint64) error {
	if r.ChainID != chainID {
		return fmt.Errorf("%w: wallet on chain %d, transaction is for chain %d", ErrWrongNetwork, chainID, r.ChainID)
	}
	if r.Epoch != epoch {
		return ErrNetworkChanged
	}
	return nil
}

// WalletSession is the wallet boundary. Reads (CallContract) and writes run
// against the wallet's current chain.
type WalletSession interface {
	ethereum.ContractCaller

	Account() WalletAccount
	// NetworkEpoch changes every time the wallet switches chain
	NetworkEpoch() uint64
	SwitchChain(ctx context.Context, chainID uint64) error
	// WriteContract signs and broadcasts exactly one transaction
	WriteContract(ctx context.Context, req WriteContractRequest) (common.Hash, error)
	// TransactionReceipt returns ethereum.NotFound while the transaction is pending
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// DeferredSigner is implemented by wallets whose writes wait for a person to
// approve them somewhere else. Submissions through such a wallet return once
// the write is published for signing instead of blocking until it is signed.
type DeferredSigner interface {
	AwaitsSignature() bool
}

type keyedWallet struct {
	pool    *RPCClientPool
	key     *ecdsa.PrivateKey
	address common.Address

	mu      sync.RWMutex
	chainID uint64
	epoch   uint64
}

// NewKeyedWalletSession creates a wallet that signs with a local private key.
// An empty key yields a disconnected wallet that can still read.
func NewKeyedWalletSession(pool *RPCClientPool, privateKeyHex string, chainID uint64) (WalletSession, error) {
	wallet := &keyedWallet{pool: pool, chainID: chainID}

	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return wallet, nil
	}

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet private key: %w", err)
	}
	wallet.key = key
	wallet.address = crypto.PubkeyToAddress(key.PublicKey)
	return wallet, nil
}

func (w *keyedWallet) Account() WalletAccount {
	w.mu.RLock()
	defer w.mu.RUnlock()

	account := WalletAccount{ChainID: w.chainID, IsConnected: w.key != nil}
	if w.key != nil {
		account.Address = w.address.Hex()
	}
	return account
}

func (w *keyedWallet) NetworkEpoch() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.epoch
}

func (w *keyedWallet) currentChain() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID
}

// SwitchChain connects to chainID before switching so a failed dial leaves the wallet where it was
func (w *keyedWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	if _, err := w.pool.Client(ctx, chainID); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.chainID != chainID {
		logrus.WithFields(logrus.Fields{"from": w.chainID, "to": chainID}).Info("wallet switched network")
		w.chainID = chainID
		w.epoch++
	}
	return nil
}

func (w *keyedWallet) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if w.key != nil && msg.From == (common.Address{}) {
		msg.From = w.address
	}
	return w.pool.CallContractOn(ctx, w.currentChain(), msg, blockNumber)
}

// WriteContract holds the read lock until the transaction is sent, so a
// concurrent SwitchChain waits for the broadcast instead of racing it.
func (w *keyedWallet) WriteContract(ctx context.Context, req WriteContractRequest) (common.Hash, error) {
	if w.key == nil {
		return common.Hash{}, ErrWalletDisconnected
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if err := req.CheckTarget(w.chainID, w.epoch); err != nil {
		return common.Hash{}, err
	}
	chainID := w.chainID
	client, err := w.pool.Client(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	auth, err := bind.NewKeyedTransactorWithChainID(w.key, new(big.Int).SetUint64(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create transactor: %w", err)
	}
	auth.Context = ctx
	auth.Value = req.Value

	contract := bind.NewBoundContract(req.To, req.ABI, client, client, client)
	tx, err := contract.Transact(auth, req.Method, req.Args...)
	if err != nil {
		// never resent; the next call redials if the endpoint went away
		w.pool.dropOnTransportError(chainID, client, err)
		return common.Hash{}, err
	}

	logrus.WithFields(logrus.Fields{
		"method":   req.Method,
		"tx_hash":  tx.Hash().Hex(),
		"chain_id": chainID,
	}).Info("transaction broadcast")
	return tx.Hash(), nil
}

func (w *keyedWallet) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return w.pool.TransactionReceiptOn(ctx, w.currentChain(), hash)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/metrics"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/sirupsen/logrus"
)

// TxState is a snapshot of a tracker's current write
type TxState struct {
	RecordID     string                   `json:"record_id,omitempty"`
	Action       models.MarketplaceAction `json:"action,omitempty"`
	ListingID    uint64                   `json:"listing_id,omitempty"`
	ChainID      uint64                   `json:"chain_id,omitempty"`
	Hash         string                   `json:"hash,omitempty"`
	ExplorerURL  string                   `json:"explorer_url,omitempty"`
	Value        string                   `json:"value,omitempty"`
	IsSubmitting bool                     `json:"is_submitting"`
	IsPending    bool                     `json:"is_pending"`
	IsConfirmed  bool                     `json:"is_confirmed"`
	Error        *string                  `json:"error"`
	ErrorKind    TxErrorKind              `json:"error_kind,omitempty"`

	// AwaitingSignature is set on writes handed to a browser wallet that has not answered yet
	AwaitingSignature bool `json:"awaiting_signature,omitempty"`
}

// IsFinal reports whether the write has stopped changing
func (s TxState) IsFinal() bool {
	return !s.IsSubmitting && !s.IsPending
}

// TxTracker owns the lifecycle of one write at a time. Starting a new write
// detaches the previous one; Close stops watching for receipts.
type TxTracker struct {
	svc    *marketplaceService
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       TxState
	current     *trackedWrite
	generation  uint64
	closed      bool
	idle        chan struct{}
	onConfirmed func(TxState)

	// published closes once a write is waiting for a browser signature
	published     chan struct{}
	publishedOnce sync.Once
}

type trackedWrite struct {
	gen       uint64
	action    models.MarketplaceAction
	listingID uint64
	recordID  string
	hash      common.Hash
	epoch     uint64
	sentAt    time.Time

	done     chan struct{}
	doneOnce sync.Once
}

func (w *trackedWrite) finish() {
	w.doneOnce.Do(func() { close(w.done) })
}

// OnConfirmed registers fn to run once for each write that confirms while attached to this tracker
func (t *TxTracker) OnConfirmed(fn func(TxState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConfirmed = fn
}

// State returns a copy of the current lifecycle flags
func (t *TxTracker) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

func (t *TxTracker) snapshot() TxState {
	state := t.state
	if t.state.Error != nil {
		msg := *t.state.Error
		state.Error = &msg
	}
	return state
}

// Wait blocks until the current write is final, the tracker closes or ctx ends
func (t *TxTracker) Wait(ctx context.Context) (TxState, error) {
	t.mu.Lock()
	done := t.idle
	if t.current != nil {
		done = t.current.done
	}
	t.mu.Unlock()

	select {
	case <-done:
		return t.State(), nil
	case <-ctx.Done():
		return t.State(), ctx.Err()
	}
}

// Close detaches the tracker and cancels its receipt watches
func (t *TxTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.cancel()
}

func (t *TxTracker) CreateListing(ctx context.Context, intent CreateListingIntent) (TxState, error) {
	return t.submit(ctx, createListingWrite(intent))
}

func (t *TxTracker) PurchaseListing(ctx context.Context, intent ListingActionIntent) (TxState, error) {
	return t.submit(ctx, purchaseListingWrite(intent))
}

func (t *TxTracker) SubmitTransferProof(ctx context.Context, intent TransferProofIntent) (TxState, error) {
	return t.submit(ctx, submitTransferProofWrite(intent))
}

func (t *TxTracker) ConfirmReceipt(ctx context.Context, intent ListingActionIntent) (TxState, error) {
	return t.submit(ctx, confirmReceiptWrite(intent))
}

func (t *TxTracker) EditPrice(ctx context.Context, intent EditPriceIntent) (TxState, error) {
	return t.submit(ctx, editPriceWrite(intent))
}

func (t *TxTracker) CancelListing(ctx context.Context, intent ListingActionIntent) (TxState, error) {
	return t.submit(ctx, cancelListingWrite(intent))
}

func (t *TxTracker) begin(w marketplaceWrite) (*trackedWrite, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTrackerClosed
	}
	if t.state.IsSubmitting {
		return nil, ErrTrackerBusy
	}

	t.generation++
	run := &trackedWrite{
		gen:       t.generation,
		action:    w.action,
		listingID: w.listingID,
		done:      make(chan struct{}),
	}
	t.current = run
	t.state = TxState{
		Action:       w.action,
		ListingID:    w.listingID,
		ChainID:      t.svc.network.ChainID,
		IsSubmitting: true,
	}
	return run, nil
}

// update applies fn if run is still the tracker's current write
func (t *TxTracker) update(run *trackedWrite, fn func(state *TxState)) (TxState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || run.gen != t.generation {
		return TxState{}, false
	}
	fn(&t.state)
	return t.snapshot(), true
}

// submit runs one write: validate, check the wallet network, read live values,
// then send exactly one transaction. Nothing is retried.
func (t *TxTracker) submit(ctx context.Context, w marketplaceWrite) (TxState, error) {
	run, err := t.begin(w)
	if err != nil {
		return t.State(), err
	}

	svc := t.svc
	log := logrus.WithFields(logrus.Fields{
		"action":     w.action,
		"listing_id": w.listingID,
	})

	if err := svc.validator.Validate(w.intent); err != nil {
		return t.fail(run, err)
	}

	account := svc.wallet.Account()
	if !account.IsConnected {
		return t.fail(run, ErrWalletDisconnected)
	}
	if account.ChainID != svc.network.ChainID {
		return t.fail(run, &TxError{
			Kind:   TxErrorWrongNetwork,
			Reason: fmt.Sprintf("%s (chain %d)", svc.network.Name, svc.network.ChainID),
			Err:    fmt.Errorf("%w: wallet on chain %d", ErrWrongNetwork, account.ChainID),
		})
	}
	run.epoch = svc.wallet.NetworkEpoch()

	args, value, err := w.prepare(ctx, svc.contract.WithCaller(svc.wallet))
	if err != nil {
		return t.fail(run, err)
	}
	if value == nil {
		value = big.NewInt(0)
	}
	if svc.wallet.NetworkEpoch() != run.epoch {
		return t.fail(run, staleError())
	}

	record, err := svc.transactions.CreateTransaction(CreateTransactionRequest{
		Action:    w.action,
		ListingID: w.listingID,
		ChainID:   svc.network.ChainID,
		From:      account.Address,
		Value:     value.String(),
	})
	if err != nil {
		return t.fail(run, fmt.Errorf("failed to record transaction: %w", err))
	}
	run.recordID = record.ID
	t.update(run, func(state *TxState) {
		state.RecordID = record.ID
		state.Value = value.String()
	})

	published := func() { t.publishedOnce.Do(func() { close(t.published) }) }
	hash, err := svc.wallet.WriteContract(ctx, WriteContractRequest{
		To:        svc.contract.Address(),
		ABI:       svc.contract.ABI(),
		Method:    w.method,
		Args:      args,
		Value:     value,
		ChainID:   svc.network.ChainID,
		Epoch:     run.epoch,
		RecordID:  record.ID,
		Published: published,
	})
	if err != nil {
		return t.fail(run, err)
	}

	run.hash = hash
	run.sentAt = time.Now()
	if err := svc.transactions.UpdateTransaction(run.recordID, TransactionUpdate{
		Status:          models.TransactionStatusPending,
		TransactionHash: hash.Hex(),
	}); err != nil {
		log.WithError(err).Warn("failed to mark transaction pending")
	}

	explorerURL := svc.explorerTxURL(hash)
	state, ok := t.update(run, func(state *TxState) {
		state.IsSubmitting = false
		state.IsPending = true
		state.Hash = hash.Hex()
		state.ExplorerURL = explorerURL
	})
	if !ok {
		state = TxState{
			RecordID:    run.recordID,
			Action:      w.action,
			ListingID:   w.listingID,
			ChainID:     svc.network.ChainID,
			Hash:        hash.Hex(),
			ExplorerURL: explorerURL,
			Value:       value.String(),
			IsPending:   true,
		}
	}
	log.WithField("tx_hash", hash.Hex()).Info("marketplace transaction submitted")

	svc.wg.Add(1)
	go t.watch(run)

	return state, nil
}

func staleError() *TxError {
	return &TxError{Kind: TxErrorStale, Err: ErrNetworkChanged}
}

// fail records a final error for run and returns the resulting state
func (t *TxTracker) fail(run *trackedWrite, cause error) (TxState, error) {
	defer run.finish()

	txErr := ClassifyTxError(cause)
	msg := txErr.UserMessage()

	status := models.TransactionStatusFailed
	if txErr.Kind == TxErrorStale {
		status = models.TransactionStatusStale
	}

	logrus.WithFields(logrus.Fields{
		"action":     run.action,
		"listing_id": run.listingID,
		"error_kind": txErr.Kind,
	}).WithError(cause).Warn("marketplace transaction failed")

	if run.recordID != "" {
		if err := t.svc.transactions.UpdateTransaction(run.recordID, TransactionUpdate{
			Status:       status,
			ErrorKind:    string(txErr.Kind),
			ErrorMessage: msg,
		}); err != nil {
			logrus.WithField("record_id", run.recordID).WithError(err).Warn("failed to record transaction failure")
		}
	}
	metrics.Marketplace().ObserveWrite(string(run.action), string(status), string(txErr.Kind))

	state, ok := t.update(run, func(state *TxState) {
		state.IsSubmitting = false
		state.IsPending = false
		state.IsConfirmed = false
		state.Error = &msg
		state.ErrorKind = txErr.Kind
	})
	if !ok {
		state = TxState{Action: run.action, ListingID: run.listingID, RecordID: run.recordID, Error: &msg, ErrorKind: txErr.Kind}
	}
	return state, txErr
}

// watch polls for the receipt until it arrives, the network changes or the tracker closes
func (t *TxTracker) watch(run *trackedWrite) {
	defer t.svc.wg.Done()
	defer run.finish()

	ticker := time.NewTicker(t.svc.pollInterval)
	defer ticker.Stop()

	log := logrus.WithFields(logrus.Fields{
		"action":  run.action,
		"tx_hash": run.hash.Hex(),
	})

	for {
		if t.svc.wallet.NetworkEpoch() != run.epoch {
			_, _ = t.fail(run, staleError())
			return
		}

		receipt, err := t.svc.wallet.TransactionReceipt(t.ctx, run.hash)
		switch {
		case err == nil && receipt != nil:
			t.complete(run, receipt)
			return
		case err != nil && !errors.Is(err, ethereum.NotFound) && t.ctx.Err() == nil:
			log.WithError(err).Debug("receipt poll failed")
		}

		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *TxTracker) complete(run *trackedWrite, receipt *types.Receipt) {
	svc := t.svc
	metrics.Marketplace().ObserveConfirmation(string(run.action), time.Since(run.sentAt))

	if receipt.Status != types.ReceiptStatusSuccessful {
		_, _ = t.fail(run, &TxError{
			Kind:   TxErrorContractRevert,
			Reason: "reverted on-chain",
			Err:    fmt.Errorf("transaction %s reverted in block %s", run.hash.Hex(), receipt.BlockNumber),
		})
		return
	}

	listingID := run.listingID
	if run.action == models.MarketplaceActionCreateListing {
		if id, ok := svc.contract.ParseListingCreated(receipt); ok {
			listingID = id
		}
	}

	var blockNumber uint64
	if receipt.BlockNumber != nil {
		blockNumber = receipt.BlockNumber.Uint64()
	}

	log := logrus.WithFields(logrus.Fields{
		"action":     run.action,
		"listing_id": listingID,
		"tx_hash":    run.hash.Hex(),
	})

	if err := svc.transactions.UpdateTransaction(run.recordID, TransactionUpdate{
		Status:      models.TransactionStatusConfirmed,
		ListingID:   listingID,
		BlockNumber: blockNumber,
	}); err != nil {
		log.WithError(err).Warn("failed to mark transaction confirmed")
	}
	metrics.Marketplace().ObserveWrite(string(run.action), string(models.TransactionStatusConfirmed), "")

	if svc.hooks != nil {
		record, err := svc.transactions.GetTransaction(run.recordID)
		if err != nil {
			record = &models.MarketplaceTransaction{
				ID:              run.recordID,
				Action:          run.action,
				ListingID:       listingID,
				ChainID:         svc.network.ChainID,
				TransactionHash: run.hash.Hex(),
				Status:          models.TransactionStatusConfirmed,
				BlockNumber:     blockNumber,
			}
		}
		if err := svc.hooks.OnTransactionConfirmed(*record); err != nil {
			log.WithError(err).Warn("confirmation hook failed")
		}
	}

	var callback func(TxState)
	state, ok := t.update(run, func(state *TxState) {
		state.IsPending = false
		state.IsConfirmed = true
		state.ListingID = listingID
		callback = t.onConfirmed
	})
	log.Info("marketplace transaction confirmed")

	if ok && callback != nil {
		callback(state)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrListingNotFound)
}

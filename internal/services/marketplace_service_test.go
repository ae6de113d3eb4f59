package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreateIntent() CreateListingIntent {
	return CreateListingIntent{
		Price:         "1.5",
		TokenAddress:  testToken,
		LPAddress:     testLP,
		LockURL:       "https://example.com/lock/1",
		ContactMethod: "telegram: @user",
	}
}

func waitFinal(t *testing.T, tracker *TxTracker) TxState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := tracker.Wait(ctx)
	require.NoError(t, err)
	return state
}

func TestCreateListingSubmitsWithLiveFee(t *testing.T) {
	env := newMarketplaceEnv(t)
	env.chain.fee = big.NewInt(25_000_000_000_000_000) // 0.025

	tracker := env.svc.NewTracker()
	defer tracker.Close()

	state, err := tracker.CreateListing(context.Background(), validCreateIntent())
	require.NoError(t, err)

	assert.False(t, state.IsSubmitting)
	assert.True(t, state.IsPending)
	assert.False(t, state.IsConfirmed)
	assert.Nil(t, state.Error)
	assert.Equal(t, env.wallet.nextHash.Hex(), state.Hash)
	assert.Equal(t, "https://bscscan.com/tx/"+env.wallet.nextHash.Hex(), state.ExplorerURL)
	assert.Equal(t, "25000000000000000", state.Value)
	assert.NotEmpty(t, state.RecordID)

	require.Equal(t, 1, env.wallet.writeCount())
	write := env.wallet.lastWrite()
	assert.Equal(t, "createListing", write.Method)
	assert.Equal(t, common.HexToAddress(testMarketplaceAddr), write.To)
	assert.Equal(t, 0, env.chain.fee.Cmp(write.Value), "value must be the live listing fee only")
	assert.Equal(t, 0, wei(t, "1500000000000000000").Cmp(write.Args[0].(*big.Int)))
	assert.Equal(t, [2]common.Address{common.HexToAddress(testToken), common.HexToAddress(testLP)}, write.Args[1])
	assert.Equal(t, "https://example.com/lock/1", write.Args[2])
	assert.Equal(t, "telegram: @user", write.Args[3])
	assert.Equal(t, 1, env.chain.callCount("listingFee"))

	record, err := env.txs.GetTransaction(state.RecordID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPending, record.Status)
	assert.Equal(t, state.Hash, record.TransactionHash)

	env.wallet.setReceipt(env.wallet.nextHash, env.successReceipt(7))
	final := waitFinal(t, tracker)

	assert.True(t, final.IsConfirmed)
	assert.False(t, final.IsPending)
	assert.Equal(t, uint64(7), final.ListingID)

	record, err = env.txs.GetTransaction(state.RecordID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusConfirmed, record.Status)
	assert.Equal(t, uint64(7), record.ListingID)
	assert.Equal(t, uint64(1234), record.BlockNumber)
	assert.Equal(t, 1, env.hook.count())
}

func TestCreateListingValidationRejectsBeforeAnyCall(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(intent *CreateListingIntent)
		field   string
		message string
	}{
		{"zero_price", func(i *CreateListingIntent) { i.Price = "0" }, "price", "Price must be a positive number"},
		{"negative_price", func(i *CreateListingIntent) { i.Price = "-1" }, "price", "Price must be a positive number"},
		{"non_numeric_price", func(i *CreateListingIntent) { i.Price = "abc" }, "price", "Price must be a positive number"},
		{"empty_price", func(i *CreateListingIntent) { i.Price = "" }, "price", "Price is required"},
		{"price_above_uint256", func(i *CreateListingIntent) { i.Price = "1" + strings.Repeat("0", 70) }, "price", "Price must be a positive number"},
		{"short_token", func(i *CreateListingIntent) { i.TokenAddress = "0x123" }, "token_address", "Token address must be 0x followed by 40 hexadecimal characters"},
		{"token_without_prefix", func(i *CreateListingIntent) { i.TokenAddress = testToken[2:] }, "token_address", "Token address must be 0x followed by 40 hexadecimal characters"},
		{"lp_bad_hex", func(i *CreateListingIntent) { i.LPAddress = "0xZZb9a82891338f9bA80E2D6970FddA79D1eb0daE" }, "lp_address", "LP address must be 0x followed by 40 hexadecimal characters"},
		{"lock_url_not_url", func(i *CreateListingIntent) { i.LockURL = "example.com/lock" }, "lock_url", "Lock URL must be a valid http(s) URL"},
		{"blank_contact", func(i *CreateListingIntent) { i.ContactMethod = "   " }, "contact_method", "Contact method is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMarketplaceEnv(t)
			intent := validCreateIntent()
			tt.mutate(&intent)

			state, err := env.svc.CreateListing(context.Background(), intent)
			require.Error(t, err)

			var txErr *TxError
			require.True(t, errors.As(err, &txErr))
			assert.Equal(t, TxErrorInvalidInput, txErr.Kind)
			assert.Equal(t, tt.message, txErr.UserMessage())

			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)

			require.NotNil(t, state.Error)
			assert.Equal(t, tt.message, *state.Error)
			assert.False(t, state.IsSubmitting)
			assert.Zero(t, env.wallet.rpcCalls())
			assert.Zero(t, env.chain.totalCalls())

			records, err := env.txs.ListTransactions(TransactionFilter{})
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestWrongNetworkShortCircuits(t *testing.T) {
	env := newMarketplaceEnv(t)
	env.wallet.account.ChainID = 1

	writes := map[string]func() (TxState, error){
		"create": func() (TxState, error) {
			return env.svc.CreateListing(context.Background(), validCreateIntent())
		},
		"purchase": func() (TxState, error) {
			return env.svc.PurchaseListing(context.Background(), ListingActionIntent{ListingID: 1})
		},
		"cancel": func() (TxState, error) {
			return env.svc.CancelListing(context.Background(), ListingActionIntent{ListingID: 1})
		},
	}

	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			state, err := write()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrWrongNetwork))

			var txErr *TxError
			require.True(t, errors.As(err, &txErr))
			assert.Equal(t, TxErrorWrongNetwork, txErr.Kind)
			assert.Contains(t, txErr.UserMessage(), "BNB Smart Chain")
			assert.Equal(t, TxErrorWrongNetwork, state.ErrorKind)
		})
	}

	assert.Zero(t, env.wallet.rpcCalls())
	assert.Zero(t, env.chain.totalCalls())
}

func TestDisconnectedWallet(t *testing.T) {
	env := newMarketplaceEnv(t)
	env.wallet.account.IsConnected = false

	state, err := env.svc.ConfirmReceipt(context.Background(), ListingActionIntent{ListingID: 3})
	require.Error(t, err)
	assert.Equal(t, TxErrorWalletDisconnected, state.ErrorKind)
	assert.Zero(t, env.wallet.rpcCalls())
}

func TestPurchaseSendsListingPrice(t *testing.T) {
	env := newMarketplaceEnv(t)
	price := wei(t, "2000000000000000000")
	env.chain.addListing(4, price, models.ListingStatusAvailable)

	state, err := env.svc.PurchaseListing(context.Background(), ListingActionIntent{ListingID: 4})
	require.NoError(t, err)
	assert.True(t, state.IsPending)

	write := env.wallet.lastWrite()
	assert.Equal(t, "purchaseListing", write.Method)
	assert.Equal(t, 0, price.Cmp(write.Value))
	assert.Equal(t, uint64(4), write.Args[0].(*big.Int).Uint64())
	assert.Zero(t, env.chain.callCount("listingFee"))
}

func TestPurchaseMissingListing(t *testing.T) {
	env := newMarketplaceEnv(t)

	state, err := env.svc.PurchaseListing(context.Background(), ListingActionIntent{ListingID: 9})
	require.Error(t, err)
	assert.Equal(t, TxErrorInvalidInput, state.ErrorKind)
	assert.Equal(t, "Listing 9 does not exist", *state.Error)
	assert.Zero(t, env.wallet.writeCount())
}

func TestZeroValueActions(t *testing.T) {
	tests := []struct {
		name   string
		submit func(svc MarketplaceService) (TxState, error)
		method string
		args   int
	}{
		{
			name: "submit_transfer_proof",
			submit: func(svc MarketplaceService) (TxState, error) {
				return svc.SubmitTransferProof(context.Background(), TransferProofIntent{ListingID: 2, TransferProofHash: "0xproof"})
			},
			method: "submitTransferProof",
			args:   2,
		},
		{
			name: "confirm_receipt",
			submit: func(svc MarketplaceService) (TxState, error) {
				return svc.ConfirmReceipt(context.Background(), ListingActionIntent{ListingID: 2})
			},
			method: "confirmReceiptAndRelease",
			args:   1,
		},
		{
			name: "edit_price",
			submit: func(svc MarketplaceService) (TxState, error) {
				return svc.EditPrice(context.Background(), EditPriceIntent{ListingID: 2, NewPrice: "3"})
			},
			method: "editPrice",
			args:   2,
		},
		{
			name: "cancel_listing",
			submit: func(svc MarketplaceService) (TxState, error) {
				return svc.CancelListing(context.Background(), ListingActionIntent{ListingID: 2})
			},
			method: "cancelListing",
			args:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMarketplaceEnv(t)

			state, err := tt.submit(env.svc)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), state.ListingID)
			assert.Equal(t, "0", state.Value)

			write := env.wallet.lastWrite()
			assert.Equal(t, tt.method, write.Method)
			assert.Equal(t, 0, write.Value.Sign())
			assert.Len(t, write.Args, tt.args)
			assert.Equal(t, 1, env.wallet.writeCount())
		})
	}

	t.Run("edit_price_scales_units", func(t *testing.T) {
		env := newMarketplaceEnv(t)
		_, err := env.svc.EditPrice(context.Background(), EditPriceIntent{ListingID: 2, NewPrice: "0.5"})
		require.NoError(t, err)
		assert.Equal(t, "500000000000000000", env.wallet.lastWrite().Args[1].(*big.Int).String())
	})

	t.Run("listing_id_required", func(t *testing.T) {
		env := newMarketplaceEnv(t)
		_, err := env.svc.CancelListing(context.Background(), ListingActionIntent{})
		require.Error(t, err)
		assert.Equal(t, "Listing ID must be greater than 0", err.Error())
		assert.Zero(t, env.wallet.rpcCalls())
	})
}

func TestWriteErrorsAreClassifiedAndNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind TxErrorKind
	}{
		{"user_rejected", &fakeRPCError{code: 4001, msg: "User rejected the request."}, TxErrorUserRejected},
		{"insufficient_funds", errors.New("insufficient funds for gas * price + value"), TxErrorInsufficientFunds},
		{"gas_failure", errors.New("gas required exceeds allowance (30000000)"), TxErrorGasFailure},
		{"revert", errors.New("failed to estimate gas needed: execution reverted: Incorrect fee"), TxErrorContractRevert},
		{"unknown", errors.New("connection reset by peer"), TxErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMarketplaceEnv(t)
			env.wallet.writeErr = tt.err

			state, err := env.svc.CreateListing(context.Background(), validCreateIntent())
			require.Error(t, err)
			assert.Equal(t, tt.kind, state.ErrorKind)
			assert.False(t, state.IsSubmitting)
			assert.False(t, state.IsPending)
			assert.Equal(t, 1, env.wallet.writeCount(), "a failed submission must not be retried")

			record, err := env.txs.GetTransaction(state.RecordID)
			require.NoError(t, err)
			assert.Equal(t, models.TransactionStatusFailed, record.Status)
			assert.Equal(t, string(tt.kind), record.ErrorKind)
		})
	}
}

func TestConfirmedCallbackFiresExactlyOnce(t *testing.T) {
	env := newMarketplaceEnv(t)
	env.chain.addListing(5, big.NewInt(1000), models.ListingStatusAwaitingConfirmation)

	tracker := env.svc.NewTracker()
	defer tracker.Close()

	var fired int32
	tracker.OnConfirmed(func(state TxState) {
		atomic.AddInt32(&fired, 1)
	})

	_, err := tracker.ConfirmReceipt(context.Background(), ListingActionIntent{ListingID: 5})
	require.NoError(t, err)

	env.wallet.setReceipt(env.wallet.nextHash, env.successReceipt(0))
	final := waitFinal(t, tracker)
	assert.True(t, final.IsConfirmed)

	// keep reading state for several poll intervals
	for i := 0; i < 5; i++ {
		assert.True(t, tracker.State().IsConfirmed)
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Equal(t, 1, env.hook.count())
}

func TestNetworkSwitchMarksPendingWriteStale(t *testing.T) {
	env := newMarketplaceEnv(t)

	tracker := env.svc.NewTracker()
	defer tracker.Close()

	var fired int32
	tracker.OnConfirmed(func(TxState) { atomic.AddInt32(&fired, 1) })

	state, err := tracker.CancelListing(context.Background(), ListingActionIntent{ListingID: 2})
	require.NoError(t, err)
	require.True(t, state.IsPending)

	account, err := env.svc.SwitchNetwork(context.Background(), 97)
	require.NoError(t, err)
	assert.Equal(t, uint64(97), account.ChainID)

	final := waitFinal(t, tracker)
	assert.Equal(t, TxErrorStale, final.ErrorKind)
	assert.False(t, final.IsConfirmed)
	require.NotNil(t, final.Error)

	// a late receipt on the old network must not confirm the stale write
	env.wallet.setReceipt(env.wallet.nextHash, env.successReceipt(0))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fired))
	assert.Zero(t, env.hook.count())

	record, err := env.txs.GetTransaction(state.RecordID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusStale, record.Status)
}

// switchingTransactions moves the wallet through chains while the write is being recorded,
// after the tracker's own network checks have passed
type switchingTransactions struct {
	TransactionService
	wallet *fakeWallet
	chains []uint64
}

func (s *switchingTransactions) CreateTransaction(req CreateTransactionRequest) (*models.MarketplaceTransaction, error) {
	for _, chainID := range s.chains {
		if err := s.wallet.SwitchChain(context.Background(), chainID); err != nil {
			return nil, err
		}
	}
	return s.TransactionService.CreateTransaction(req)
}

func TestNetworkSwitchBeforeBroadcastIsRefused(t *testing.T) {
	tests := []struct {
		name   string
		chains []uint64
		kind   TxErrorKind
		status models.TransactionStatus
	}{
		{"moved_to_other_chain", []uint64{1}, TxErrorWrongNetwork, models.TransactionStatusFailed},
		{"moved_away_and_back", []uint64{1, testChainID}, TxErrorStale, models.TransactionStatusStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newMarketplaceEnv(t)
			svc, err := NewMarketplaceService(MarketplaceServiceConfig{
				Contract:            env.contract,
				Wallet:              env.wallet,
				Networks:            testNetworks(t),
				Transactions:        &switchingTransactions{TransactionService: env.txs, wallet: env.wallet, chains: tt.chains},
				ReceiptPollInterval: 5 * time.Millisecond,
			})
			require.NoError(t, err)
			defer svc.Close()

			state, err := svc.CancelListing(context.Background(), ListingActionIntent{ListingID: 1})
			require.Error(t, err)
			assert.Equal(t, tt.kind, state.ErrorKind)
			assert.Empty(t, state.Hash)
			assert.Zero(t, env.wallet.broadcastCount(), "nothing may be sent after the network moved")

			write := env.wallet.lastWrite()
			assert.Equal(t, testChainID, write.ChainID)
			assert.Equal(t, uint64(0), write.Epoch)
			assert.Equal(t, state.RecordID, write.RecordID)

			record, err := env.txs.GetTransaction(state.RecordID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, record.Status)
		})
	}
}

func TestSwitchNetworkUnknownChain(t *testing.T) {
	env := newMarketplaceEnv(t)
	_, err := env.svc.SwitchNetwork(context.Background(), 424242)
	assert.Error(t, err)
	assert.Equal(t, uint64(0), env.wallet.NetworkEpoch())
}

func TestRevertedReceipt(t *testing.T) {
	env := newMarketplaceEnv(t)
	tracker := env.svc.NewTracker()
	defer tracker.Close()

	state, err := tracker.EditPrice(context.Background(), EditPriceIntent{ListingID: 3, NewPrice: "1"})
	require.NoError(t, err)

	env.wallet.setReceipt(env.wallet.nextHash, &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9)})
	final := waitFinal(t, tracker)

	assert.Equal(t, TxErrorContractRevert, final.ErrorKind)
	assert.False(t, final.IsConfirmed)
	assert.Zero(t, env.hook.count())

	record, err := env.txs.GetTransaction(state.RecordID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, record.Status)
}

func TestTrackerRejectsConcurrentSubmission(t *testing.T) {
	env := newMarketplaceEnv(t)
	release := make(chan struct{})
	env.wallet.writeBlock = release

	tracker := env.svc.NewTracker()
	defer tracker.Close()

	result := make(chan error, 1)
	go func() {
		_, err := tracker.CancelListing(context.Background(), ListingActionIntent{ListingID: 1})
		result <- err
	}()

	require.Eventually(t, func() bool { return env.wallet.writeCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, tracker.State().IsSubmitting)

	_, err := tracker.CancelListing(context.Background(), ListingActionIntent{ListingID: 1})
	assert.ErrorIs(t, err, ErrTrackerBusy)

	close(release)
	require.NoError(t, <-result)
	assert.Equal(t, 1, env.wallet.writeCount())
}

func TestNewWriteDetachesPreviousOne(t *testing.T) {
	env := newMarketplaceEnv(t)
	tracker := env.svc.NewTracker()
	defer tracker.Close()

	first, err := tracker.CancelListing(context.Background(), ListingActionIntent{ListingID: 1})
	require.NoError(t, err)

	env.wallet.nextHash = common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000002")
	second, err := tracker.CancelListing(context.Background(), ListingActionIntent{ListingID: 2})
	require.NoError(t, err)
	assert.NotEqual(t, first.RecordID, second.RecordID)
	assert.Equal(t, uint64(2), tracker.State().ListingID)

	// the first write still completes in the background
	env.wallet.setReceipt(common.HexToHash(first.Hash), env.successReceipt(0))
	require.Eventually(t, func() bool {
		record, err := env.txs.GetTransaction(first.RecordID)
		return err == nil && record.Status == models.TransactionStatusConfirmed
	}, 5*time.Second, 5*time.Millisecond)

	assert.True(t, tracker.State().IsPending, "the tracker follows only its latest write")
}

func TestClosedTracker(t *testing.T) {
	env := newMarketplaceEnv(t)
	tracker := env.svc.NewTracker()
	tracker.Close()

	_, err := tracker.CancelListing(context.Background(), ListingActionIntent{ListingID: 1})
	assert.ErrorIs(t, err, ErrTrackerClosed)
	assert.Zero(t, env.wallet.rpcCalls())
}

package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/models"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/utils"
	"github.com/sirupsen/logrus"
)

// MarketplaceService submits marketplace writes. Every write goes through a
// TxTracker; the convenience methods create a tracker per call and release it
// once the transaction reaches a final state.
type MarketplaceService interface {
	NewTracker() *TxTracker

	CreateListing(ctx context.Context, intent CreateListingIntent) (TxState, error)
	PurchaseListing(ctx context.Context, intent ListingActionIntent) (TxState, error)
	SubmitTransferProof(ctx context.Context, intent TransferProofIntent) (TxState, error)
	ConfirmReceipt(ctx context.Context, intent ListingActionIntent) (TxState, error)
	EditPrice(ctx context.Context, intent EditPriceIntent) (TxState, error)
	CancelListing(ctx context.Context, intent ListingActionIntent) (TxState, error)

	// SwitchNetwork asks the wallet to move to chainID. Pending writes become stale.
	SwitchNetwork(ctx context.Context, chainID uint64) (WalletAccount, error)
	Wallet() WalletSession
	RequiredNetwork() config.Network
	// Close stops every receipt watch and waits for them to exit
	Close()
}

type MarketplaceServiceConfig struct {
	Contract            *MarketplaceContract
	Wallet              WalletSession
	Networks            *config.NetworkTable
	Chains              ChainService
	Transactions        TransactionService
	Hooks               HookService
	ReceiptPollInterval time.Duration
}

type marketplaceService struct {
	contract     *MarketplaceContract
	wallet       WalletSession
	network      config.Network
	networks     *config.NetworkTable
	chains       ChainService
	transactions TransactionService
	hooks        HookService
	validator    *IntentValidator
	pollInterval time.Duration

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewMarketplaceService(cfg MarketplaceServiceConfig) (MarketplaceService, error) {
	if cfg.Contract == nil || cfg.Wallet == nil || cfg.Networks == nil || cfg.Transactions == nil {
		return nil, fmt.Errorf("marketplace service requires a contract, wallet, network table and transaction service")
	}

	network, ok := cfg.Networks.Get(cfg.Contract.ChainID())
	if !ok {
		return nil, fmt.Errorf("marketplace chain %d is not in the network table", cfg.Contract.ChainID())
	}

	pollInterval := cfg.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	return &marketplaceService{
		contract:     cfg.Contract,
		wallet:       cfg.Wallet,
		network:      network,
		networks:     cfg.Networks,
		chains:       cfg.Chains,
		transactions: cfg.Transactions,
		hooks:        cfg.Hooks,
		validator:    NewIntentValidator(),
		pollInterval: pollInterval,
		rootCtx:      rootCtx,
		cancel:       cancel,
	}, nil
}

func (s *marketplaceService) NewTracker() *TxTracker {
	ctx, cancel := context.WithCancel(s.rootCtx)
	done := make(chan struct{})
	close(done)

	return &TxTracker{
		svc:       s,
		ctx:       ctx,
		cancel:    cancel,
		idle:      done,
		published: make(chan struct{}),
	}
}

func (s *marketplaceService) Wallet() WalletSession {
	return s.wallet
}

func (s *marketplaceService) RequiredNetwork() config.Network {
	return s.network
}

func (s *marketplaceService) SwitchNetwork(ctx context.Context, chainID uint64) (WalletAccount, error) {
	if _, ok := s.networks.Get(chainID); !ok {
		return s.wallet.Account(), fmt.Errorf("chain %d is not in the network table", chainID)
	}
	if err := s.wallet.SwitchChain(ctx, chainID); err != nil {
		return s.wallet.Account(), fmt.Errorf("failed to switch network: %w", err)
	}
	if s.chains != nil {
		if err := s.chains.SetActiveChainByNetworkID(chainID); err != nil {
			logrus.WithField("chain_id", chainID).WithError(err).Warn("failed to persist active chain")
		}
	}
	return s.wallet.Account(), nil
}

func (s *marketplaceService) CreateListing(ctx context.Context, intent CreateListingIntent) (TxState, error) {
	return s.runOnce(ctx, func(ctx context.Context, t *TxTracker) (TxState, error) {
		return t.CreateListing(ctx, intent)
	})
}

func (s *marketplaceService) PurchaseListing(ctx context.Context, intent ListingActionIntent) (TxState, error) {
	return s.runOnce(ctx, func(ctx context.Context, t *TxTracker) (TxState, error) {
		return t.PurchaseListing(ctx, intent)
	})
}

func (s *marketplaceService) SubmitTransferProof(ctx context.Context, intent TransferProofIntent) (TxState, error) {
	return s.runOnce(ctx, func(ctx context.Context, t *TxTracker) (TxState, error) {
		return t.SubmitTransferProof(ctx, intent)
	})
}

func (s *marketplaceService) ConfirmReceipt(ctx context.Context, intent ListingActionIntent) (TxState, error) {
	return s.runOnce(ctx, func(ctx context.Context, t *TxTracker) (TxState, error) {
		return t.ConfirmReceipt(ctx, intent)
	})
}

func (s *marketplaceService) EditPrice(ctx context.Context, intent EditPriceIntent) (TxState, error) {
	return s.runOnce(ctx, func(ctx context.Context, t *TxTracker) (TxState, error) {
		return t.EditPrice(ctx, intent)
	})
}

func (s *marketplaceService) CancelListing(ctx context.Context, intent ListingActionIntent) (TxState, error) {
	return s.runOnce(ctx, func(ctx context.Context, t *TxTracker) (TxState, error) {
		return t.CancelListing(ctx, intent)
	})
}

// runOnce submits through a throwaway tracker and closes it once the write is final
func (s *marketplaceService) runOnce(ctx context.Context, submit func(ctx context.Context, t *TxTracker) (TxState, error)) (TxState, error) {
	tracker := s.NewTracker()
	if signer, ok := s.wallet.(DeferredSigner); ok && signer.AwaitsSignature() {
		return s.runDeferred(ctx, tracker, submit)
	}

	state, err := submit(ctx, tracker)
	s.release(tracker)
	return state, err
}

// release closes tracker in the background once its write is final
func (s *marketplaceService) release(tracker *TxTracker) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = tracker.Wait(s.rootCtx)
		tracker.Close()
	}()
}

type submitOutcome struct {
	state TxState
	err   error
}

// runDeferred submits in the background and returns once the write is
// waiting for its signature, or earlier if it fails before that.
// The signature may arrive long after ctx ends, so the write only stops with
// the service.
func (s *marketplaceService) runDeferred(ctx context.Context, tracker *TxTracker, submit func(ctx context.Context, t *TxTracker) (TxState, error)) (TxState, error) {
	submitCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.rootCtx, cancel)

	done := make(chan submitOutcome, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer stop()

		state, err := submit(submitCtx, tracker)
		done <- submitOutcome{state: state, err: err}
		_, _ = tracker.Wait(s.rootCtx)
		tracker.Close()
	}()

	select {
	case out := <-done:
		return out.state, out.err
	case <-tracker.published:
		select {
		case out := <-done:
			return out.state, out.err
		default:
		}
		state := tracker.State()
		state.AwaitingSignature = state.IsSubmitting
		return state, nil
	case <-ctx.Done():
		return tracker.State(), ctx.Err()
	}
}

func (s *marketplaceService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *marketplaceService) explorerTxURL(hash common.Hash) string {
	link, err := utils.ExplorerTxURL(s.network.ExplorerURL, hash.Hex())
	if err != nil {
		return ""
	}
	return link
}

// marketplaceWrite describes one contract call. prepare reads any live
// values (fee, price) and returns the call arguments and the value to send.
type marketplaceWrite struct {
	action    models.MarketplaceAction
	listingID uint64
	intent    interface{}
	method    string
	prepare   func(ctx context.Context, contract *MarketplaceContract) ([]interface{}, *big.Int, error)
}

func createListingWrite(intent CreateListingIntent) marketplaceWrite {
	return marketplaceWrite{
		action: models.MarketplaceActionCreateListing,
		intent: intent,
		method: "createListing",
		prepare: func(ctx context.Context, contract *MarketplaceContract) ([]interface{}, *big.Int, error) {
			price, ok := parseNativeAmount(intent.Price)
			if !ok {
				return nil, nil, &ValidationError{Field: "price", Message: "Price must be a positive number"}
			}
			// the fee is charged on create; the price is only an argument
			fee, err := contract.ListingFee(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read listing fee: %w", err)
			}
			addresses := [2]common.Address{
				common.HexToAddress(intent.TokenAddress),
				common.HexToAddress(intent.LPAddress),
			}
			args := []interface{}{price, addresses, strings.TrimSpace(intent.LockURL), strings.TrimSpace(intent.ContactMethod)}
			return args, fee, nil
		},
	}
}

func purchaseListingWrite(intent ListingActionIntent) marketplaceWrite {
	return marketplaceWrite{
		action:    models.MarketplaceActionPurchaseListing,
		listingID: intent.ListingID,
		intent:    intent,
		method:    "purchaseListing",
		prepare: func(ctx context.Context, contract *MarketplaceContract) ([]interface{}, *big.Int, error) {
			listing, err := contract.GetListing(ctx, intent.ListingID)
			if err != nil {
				if isNotFound(err) {
					return nil, nil, &ValidationError{Field: "listing_id", Message: fmt.Sprintf("Listing %d does not exist", intent.ListingID)}
				}
				return nil, nil, fmt.Errorf("failed to read listing price: %w", err)
			}
			price := listing.PriceWei()
			if price == nil {
				return nil, nil, fmt.Errorf("listing %d has a malformed price %q", intent.ListingID, listing.Price)
			}
			return []interface{}{new(big.Int).SetUint64(intent.ListingID)}, price, nil
		},
	}
}

func submitTransferProofWrite(intent TransferProofIntent) marketplaceWrite {
	return marketplaceWrite{
		action:    models.MarketplaceActionSubmitTransferProof,
		listingID: intent.ListingID,
		intent:    intent,
		method:    "submitTransferProof",
		prepare: func(ctx context.Context, contract *MarketplaceContract) ([]interface{}, *big.Int, error) {
			return []interface{}{new(big.Int).SetUint64(intent.ListingID), strings.TrimSpace(intent.TransferProofHash)}, nil, nil
		},
	}
}

func confirmReceiptWrite(intent ListingActionIntent) marketplaceWrite {
	return listingOnlyWrite(models.MarketplaceActionConfirmReceipt, "confirmReceiptAndRelease", intent)
}

func cancelListingWrite(intent ListingActionIntent) marketplaceWrite {
	return listingOnlyWrite(models.MarketplaceActionCancelListing, "cancelListing", intent)
}

func listingOnlyWrite(action models.MarketplaceAction, method string, intent ListingActionIntent) marketplaceWrite {
	return marketplaceWrite{
		action:    action,
		listingID: intent.ListingID,
		intent:    intent,
		method:    method,
		prepare: func(ctx context.Context, contract *MarketplaceContract) ([]interface{}, *big.Int, error) {
			return []interface{}{new(big.Int).SetUint64(intent.ListingID)}, nil, nil
		},
	}
}

func editPriceWrite(intent EditPriceIntent) marketplaceWrite {
	return marketplaceWrite{
		action:    models.MarketplaceActionEditPrice,
		listingID: intent.ListingID,
		intent:    intent,
		method:    "editPrice",
		prepare: func(ctx context.Context, contract *MarketplaceContract) ([]interface{}, *big.Int, error) {
			price, ok := parseNativeAmount(intent.NewPrice)
			if !ok {
				return nil, nil, &ValidationError{Field: "new_price", Message: "New price must be a positive number"}
			}
			return []interface{}{new(big.Int).SetUint64(intent.ListingID), price}, nil, nil
		},
	}
}

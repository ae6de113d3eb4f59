package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const dialTimeout = 10 * time.Second

var errPoolClosed = errors.New("rpc client pool is closed")

// ChainReader serves read-only calls on an explicit chain
type ChainReader interface {
	CallContractOn(ctx context.Context, chainID uint64, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceiptOn(ctx context.Context, chainID uint64, hash common.Hash) (*types.Receipt, error)
}

// RPCClientPool hands out one verified ethclient per chain. Endpoints are
// tried in the network table's fallback order and the first one that answers
// with the expected chain id wins. A client that fails at the transport level
// is dropped, and the next call walks the endpoint list again.
type RPCClientPool struct {
	networks *config.NetworkTable
	// dials collapses concurrent dials of one chain; the mutex only guards the map
	dials singleflight.Group

	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
	closed  bool
}

func NewRPCClientPool(networks *config.NetworkTable) *RPCClientPool {
	return &RPCClientPool{
		networks: networks,
		clients:  make(map[uint64]*ethclient.Client),
	}
}

func (p *RPCClientPool) cached(chainID uint64) (*ethclient.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	client, ok := p.clients[chainID]
	return client, ok
}

// Client returns a connected client for chainID, dialing it on first use
func (p *RPCClientPool) Client(ctx context.Context, chainID uint64) (*ethclient.Client, error) {
	if client, ok := p.cached(chainID); ok {
		return client, nil
	}

	network, ok := p.networks.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("chain %d is not in the network table", chainID)
	}

	v, err, _ := p.dials.Do(strconv.FormatUint(chainID, 10), func() (interface{}, error) {
		if client, ok := p.cached(chainID); ok {
			return client, nil
		}

		// shared by every waiter, so one caller's cancellation must not fail the rest
		client, err := dialNetwork(context.WithoutCancel(ctx), network)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			client.Close()
			return nil, errPoolClosed
		}
		p.clients[chainID] = client
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ethclient.Client), nil
}

func dialNetwork(ctx context.Context, network config.Network) (*ethclient.Client, error) {
	var dialErrs []error
	for _, endpoint := range network.Endpoints() {
		client, err := dialVerified(ctx, endpoint, network.ChainID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"chain_id": network.ChainID,
				"endpoint": endpoint,
			}).WithError(err).Warn("rpc endpoint unavailable, trying next")
			dialErrs = append(dialErrs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		return client, nil
	}

	return nil, fmt.Errorf("no reachable rpc endpoint for chain %d: %w", network.ChainID, errors.Join(dialErrs...))
}

// dropOnTransportError invalidates client if err came from the connection
// rather than from the node. A client that was already replaced is left alone.
func (p *RPCClientPool) dropOnTransportError(chainID uint64, client *ethclient.Client, err error) bool {
	if !isTransportError(err) {
		return false
	}

	p.mu.Lock()
	if current, ok := p.clients[chainID]; ok && current == client {
		client.Close()
		delete(p.clients, chainID)
	}
	p.mu.Unlock()

	logrus.WithField("chain_id", chainID).WithError(err).Warn("rpc endpoint failed, will redial")
	return true
}

// isTransportError reports whether err means the endpoint itself is unusable.
// JSON-RPC errors (reverts, bad params, missing receipts) are answers, not outages.
func isTransportError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ethereum.NotFound) {
		return false
	}
	var codeErr rpc.Error
	if errors.As(err, &codeErr) {
		return false
	}
	var dataErr rpc.DataError
	return !errors.As(err, &dataErr)
}

// withClient runs call on chainID's client. After a transport failure the
// client is dropped and call runs once more on a fresh dial, so only
// read-only calls may go through here.
func withClient[T any](ctx context.Context, p *RPCClientPool, chainID uint64, call func(client *ethclient.Client) (T, error)) (T, error) {
	var zero T

	client, err := p.Client(ctx, chainID)
	if err != nil {
		return zero, err
	}
	out, err := call(client)
	if err == nil || ctx.Err() != nil || !p.dropOnTransportError(chainID, client, err) {
		return out, err
	}

	client, dialErr := p.Client(ctx, chainID)
	if dialErr != nil {
		return zero, fmt.Errorf("%w (redial failed: %v)", err, dialErr)
	}
	return call(client)
}

// CallContractOn runs a read-only call on chainID
func (p *RPCClientPool) CallContractOn(ctx context.Context, chainID uint64, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return withClient(ctx, p, chainID, func(client *ethclient.Client) ([]byte, error) {
		return client.CallContract(ctx, msg, blockNumber)
	})
}

// TransactionReceiptOn returns ethereum.NotFound while the transaction is pending
func (p *RPCClientPool) TransactionReceiptOn(ctx context.Context, chainID uint64, hash common.Hash) (*types.Receipt, error) {
	return withClient(ctx, p, chainID, func(client *ethclient.Client) (*types.Receipt, error) {
		return client.TransactionReceipt(ctx, hash)
	})
}

// Close closes every cached client
func (p *RPCClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for chainID, client := range p.clients {
		client.Close()
		delete(p.clients, chainID)
	}
}

// Caller returns a contract caller bound to chainID
func (p *RPCClientPool) Caller(chainID uint64) ethereum.ContractCaller {
	return &chainCaller{pool: p, chainID: chainID}
}

func dialVerified(ctx context.Context, endpoint string, chainID uint64) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, endpoint)
	if err != nil {
		return nil, err
	}

	remoteID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if remoteID.Uint64() != chainID {
		client.Close()
		return nil, fmt.Errorf("endpoint reports chain %s, expected %d", remoteID, chainID)
	}
	return client, nil
}

type chainCaller struct {
	pool    *RPCClientPool
	chainID uint64
}

func (c *chainCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.pool.CallContractOn(ctx, c.chainID, msg, blockNumber)
}

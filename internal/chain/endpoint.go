// Package chain manages the engine's RPC endpoints: an ordered list of
// [primary, backups...], health checking, transparent failover, and the
// new-head subscription that drives the scan loop. At most one endpoint is
// active at a time, so event order within the active connection is preserved;
// across a failover boundary consumers may see duplicates and must be
// idempotent.
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const dialTimeout = 10 * time.Second

// Endpoint is one RPC connection. The go-ethereum client satisfies it in
// production; tests substitute scripted endpoints.
type Endpoint interface {
	URL() string
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Dialer opens an Endpoint for a URL. The manager holds one so tests can
// inject fakes.
type Dialer func(ctx context.Context, url string) (Endpoint, error)

// Dial connects a go-ethereum client to the given RPC URL. New-head
// subscriptions require a websocket URL; http endpoints fail at subscribe
// time, which the manager treats like any other endpoint failure.
func Dial(ctx context.Context, url string) (Endpoint, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, url)
	if err != nil {
		return nil, err
	}
	return &rpcEndpoint{url: url, client: client}, nil
}

type rpcEndpoint struct {
	url    string
	client *ethclient.Client
}

func (e *rpcEndpoint) URL() string { return e.url }

func (e *rpcEndpoint) ChainID(ctx context.Context) (*big.Int, error) {
	return e.client.ChainID(ctx)
}

func (e *rpcEndpoint) BlockNumber(ctx context.Context) (uint64, error) {
	return e.client.BlockNumber(ctx)
}

func (e *rpcEndpoint) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return e.client.SubscribeNewHead(ctx, ch)
}

func (e *rpcEndpoint) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return e.client.SuggestGasPrice(ctx)
}

func (e *rpcEndpoint) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return e.client.SendTransaction(ctx, tx)
}

func (e *rpcEndpoint) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return e.client.TransactionReceipt(ctx, txHash)
}

func (e *rpcEndpoint) Close() { e.client.Close() }

package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prediction-market/callindexor/internal/common"
	pkgrpc "github.com/prediction-market/callindexor/pkg/rpc"
)

// Compile-time check to ensure Client implements pkgrpc.EthClient interface.
var _ pkgrpc.EthClient = (*Client)(nil)

// Client wraps the Ethereum RPC client used by the Base poller.
// Every request waits on the rate limiter and is recorded in the RPC metrics.
type Client struct {
	eth     *ethclient.Client
	limiter *RateLimiter
}

// NewClient creates a new RPC client connected to the given endpoint.
// A nil limiter disables rate limiting.
func NewClient(ctx context.Context, endpoint string, limiter *RateLimiter) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		eth:     ethclient.NewClient(rpcClient),
		limiter: limiter,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// GetLogs retrieves logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := instrument(ctx, c.limiter, common.ChainBase, "eth_getLogs", func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// GetLatestBlockHeader retrieves the latest block header.
func (c *Client) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.header(ctx, nil)
}

// GetFinalizedBlockHeader retrieves the finalized block header.
func (c *Client) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.header(ctx, big.NewInt(int64(rpc.FinalizedBlockNumber)))
}

// GetSafeBlockHeader retrieves the safe block header.
func (c *Client) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.header(ctx, big.NewInt(int64(rpc.SafeBlockNumber)))
}

func (c *Client) header(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := instrument(ctx, c.limiter, common.ChainBase, "eth_getBlockByNumber", func() error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

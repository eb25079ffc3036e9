package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthClient defines the EVM RPC operations the Base poller needs.
type EthClient interface {
	// Close closes the RPC client connection.
	Close()

	// GetLogs retrieves logs matching the given filter query.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// GetLatestBlockHeader retrieves the latest block header.
	GetLatestBlockHeader(ctx context.Context) (*types.Header, error)

	// GetFinalizedBlockHeader retrieves the finalized block header.
	GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error)

	// GetSafeBlockHeader retrieves the safe block header.
	GetSafeBlockHeader(ctx context.Context) (*types.Header, error)
}

// SorobanClient defines the Soroban RPC operations the Stellar poller needs.
type SorobanClient interface {
	// GetLatestLedger returns the sequence of the latest closed ledger.
	GetLatestLedger(ctx context.Context) (uint32, error)

	// GetEvents returns one page of contract events.
	GetEvents(ctx context.Context, req GetEventsRequest) (*GetEventsResponse, error)
}

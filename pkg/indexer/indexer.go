package indexer

import (
	"context"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/sink"
)

// ChainIndexer polls one chain for contract events and hands them to a sink.
// Implementations move through STOPPED -> INITIALIZED -> RUNNING -> STOPPED.
type ChainIndexer interface {
	// Chain returns the chain this indexer polls.
	Chain() common.Chain

	// Initialize validates the configuration and resolves the start cursor.
	// A failed Initialize leaves the indexer STOPPED and unable to start.
	Initialize(ctx context.Context) error

	// Start begins the poll loop. Starting a running indexer is a no-op.
	Start(ctx context.Context) error

	// Stop halts the poll loop and waits for the in-flight cycle to observe it.
	// Stopping an indexer that is not running is a no-op.
	Stop(ctx context.Context) error

	// Status returns a snapshot of the lifecycle state and cursor.
	Status() Status
}

// EventSink persists decoded events. A non-nil error means the batch was
// not fully written and the cursor must not advance.
type EventSink interface {
	Persist(ctx context.Context, events []*decoder.DecodedEvent) (sink.Result, error)
}

// CursorStore persists the next height each chain will fetch.
type CursorStore interface {
	// GetCursor returns store.ErrNotFound when nothing was persisted yet.
	GetCursor(ctx context.Context, chain common.Chain) (uint64, error)
	SaveCursor(ctx context.Context, chain common.Chain, nextHeight uint64) error
}

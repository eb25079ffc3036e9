package types

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prediction-market/callindexor/pkg/rpc"
)

// BlockFinality selects which EVM block tag bounds a poll cycle.
type BlockFinality string

const (
	FinalityFinalized BlockFinality = "finalized"
	FinalitySafe      BlockFinality = "safe"
	// FinalityLatest follows the chain head. Events may later be reorged away.
	FinalityLatest BlockFinality = "latest"
)

func (f BlockFinality) String() string {
	return string(f)
}

// IsValid checks if the BlockFinality value is valid.
func (f BlockFinality) IsValid() bool {
	switch f {
	case FinalityFinalized, FinalitySafe, FinalityLatest:
		return true
	default:
		return false
	}
}

// ParseBlockFinality parses a string into a BlockFinality. The empty string
// selects FinalityLatest.
func ParseBlockFinality(s string) (BlockFinality, error) {
	if s == "" {
		return FinalityLatest, nil
	}

	f := BlockFinality(s)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid block finality: %s (must be one of: finalized, safe, latest)", s)
	}
	return f, nil
}

// TipHeader fetches the header of the newest block with this finality.
func (f BlockFinality) TipHeader(ctx context.Context, client rpc.EthClient) (*types.Header, error) {
	switch f {
	case FinalityFinalized:
		return client.GetFinalizedBlockHeader(ctx)
	case FinalitySafe:
		return client.GetSafeBlockHeader(ctx)
	case FinalityLatest, "":
		return client.GetLatestBlockHeader(ctx)
	default:
		return nil, fmt.Errorf("invalid block finality: %s", f)
	}
}

package poller

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/logger"
	irpc "github.com/prediction-market/callindexor/internal/rpc"
	itypes "github.com/prediction-market/callindexor/internal/types"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/prediction-market/callindexor/pkg/indexer"
	"github.com/prediction-market/callindexor/pkg/rpc"
)

// EvmIndexer polls the CallRegistry contract on Base.
type EvmIndexer struct {
	*poller
	evm *evmSource
}

// NewEvmIndexer creates the Base poller. A nil client is dialed from
// cfg.RPCURL on Initialize.
func NewEvmIndexer(cfg *config.BaseConfig, deps indexer.Deps, client rpc.EthClient) (*EvmIndexer, error) {
	src := &evmSource{cfg: cfg, client: client, ownsClient: client == nil}

	p, err := newPoller(common.ChainBase, common.ComponentEVMIndexer, deps, src)
	if err != nil {
		return nil, err
	}
	src.log = p.log
	src.onDecodeError = p.decodeFailed

	return &EvmIndexer{poller: p, evm: src}, nil
}

type evmSource struct {
	cfg           *config.BaseConfig
	client        rpc.EthClient
	ownsClient    bool
	decoder       *decoder.EVMDecoder
	finality      itypes.BlockFinality
	address       ethcommon.Address
	log           *logger.Logger
	onDecodeError func(error)
}

func (s *evmSource) setup(ctx context.Context) error {
	if s.cfg == nil {
		return errors.New("base section is missing")
	}

	s.cfg.ApplyDefaults()
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	finality, err := itypes.ParseBlockFinality(s.cfg.Finality)
	if err != nil {
		return err
	}
	s.finality = finality
	s.address = ethcommon.HexToAddress(s.cfg.ContractAddress)

	if s.decoder == nil {
		if s.decoder, err = decoder.NewEVMDecoder(); err != nil {
			return err
		}
	}

	if s.client == nil {
		limiter := irpc.NewRateLimiter(s.cfg.RequestsPerSecond, s.cfg.Burst)
		client, err := irpc.NewClient(ctx, s.cfg.RPCURL, limiter)
		if err != nil {
			return fmt.Errorf("failed to dial %s: %w", s.cfg.RPCURL, err)
		}
		s.client = client
	}

	return nil
}

func (s *evmSource) pollerConfig() *config.PollerConfig {
	return &s.cfg.PollerConfig
}

func (s *evmSource) configuredStart() uint64 {
	return s.cfg.StartBlock
}

func (s *evmSource) defaultStart(context.Context) (uint64, error) {
	return 1, nil
}

// tip caps the finality tip so a cycle spans at most MaxBlockRange blocks.
func (s *evmSource) tip(ctx context.Context, from uint64) (uint64, error) {
	header, err := s.finality.TipHeader(ctx, s.client)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s block: %w", s.finality, err)
	}
	if header == nil || header.Number == nil {
		return 0, fmt.Errorf("%s block header is empty", s.finality)
	}

	tip := header.Number.Uint64()
	if s.cfg.MaxBlockRange > 0 {
		if limit := from + s.cfg.MaxBlockRange - 1; limit < tip {
			tip = limit
		}
	}

	return tip, nil
}

func (s *evmSource) fetch(ctx context.Context, from, to uint64) ([]*decoder.DecodedEvent, uint64, error) {
	logs, covered, err := s.getLogs(ctx, from, to)
	if err != nil {
		return nil, 0, err
	}

	events := make([]*decoder.DecodedEvent, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}

		ev, err := s.decoder.Decode(l)
		if err != nil {
			s.onDecodeError(err)
			continue
		}
		events = append(events, ev)
	}

	return events, covered, nil
}

// filterQuery selects the CallRegistry logs of [from, to] whose topic0 is a
// known event signature.
func (s *evmSource) filterQuery(from, to uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethcommon.Address{s.address},
		Topics:    [][]ethcommon.Hash{s.decoder.Topics()},
	}
}

// getLogs narrows the range when the provider reports too many results,
// preferring the range it suggests. The returned height is the last block
// actually covered.
func (s *evmSource) getLogs(ctx context.Context, from, to uint64) ([]ethtypes.Log, uint64, error) {
	logs, err := s.client.GetLogs(ctx, s.filterQuery(from, to))
	if err == nil {
		return logs, to, nil
	}

	ok, errData := irpc.IsTooManyResultsError(err)
	if !ok {
		return nil, 0, err
	}

	var newTo uint64
	if suggestedFrom, suggestedTo, ok := irpc.ParseSuggestedBlockRange(errData); ok &&
		suggestedFrom == from && suggestedTo >= from && suggestedTo < to {
		s.log.Infow("too many logs, retrying with suggested block range",
			"from", from, "to", suggestedTo, "original_to", to)
		newTo = suggestedTo
	} else {
		if to == from {
			return nil, 0, fmt.Errorf("cannot split range further, block %d has too many logs", from)
		}
		const splitBy = 2
		mid := from + (to-from)/splitBy
		s.log.Infow("too many logs, retrying with half the block range",
			"from", from, "to", mid, "original_to", to)
		newTo = mid
	}

	return s.getLogs(ctx, from, newTo)
}

func (s *evmSource) close() {
	if s.ownsClient && s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

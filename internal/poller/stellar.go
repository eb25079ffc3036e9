package poller

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	irpc "github.com/prediction-market/callindexor/internal/rpc"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/prediction-market/callindexor/pkg/indexer"
	"github.com/prediction-market/callindexor/pkg/rpc"
)

const (
	// defaultLedgerLookback is how far behind the tip a fresh Stellar poller starts.
	defaultLedgerLookback = 100

	// maxContractsPerFilter is the getEvents limit on contract ids per filter.
	maxContractsPerFilter = 5
)

// StellarIndexer polls Soroban contract events.
type StellarIndexer struct {
	*poller
	stellar *stellarSource
}

// NewStellarIndexer creates the Stellar poller. A nil client is built from
// cfg.RPCURL on Initialize.
func NewStellarIndexer(cfg *config.StellarConfig, deps indexer.Deps, client rpc.SorobanClient) (*StellarIndexer, error) {
	src := &stellarSource{cfg: cfg, client: client, decoder: decoder.NewSorobanDecoder()}

	p, err := newPoller(common.ChainStellar, common.ComponentStellarIndexer, deps, src)
	if err != nil {
		return nil, err
	}
	src.onDecodeError = p.decodeFailed

	return &StellarIndexer{poller: p, stellar: src}, nil
}

type stellarSource struct {
	cfg           *config.StellarConfig
	client        rpc.SorobanClient
	decoder       *decoder.SorobanDecoder
	filters       []rpc.EventFilter
	onDecodeError func(error)
}

func (s *stellarSource) setup(context.Context) error {
	if s.cfg == nil {
		return errors.New("stellar section is missing")
	}

	s.cfg.ApplyDefaults()
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.filters = contractFilters(s.cfg.ContractIDs)

	if s.client == nil {
		limiter := irpc.NewRateLimiter(s.cfg.RequestsPerSecond, s.cfg.Burst)
		s.client = irpc.NewSorobanClient(s.cfg.RPCURL, 0, limiter)
	}

	return nil
}

func contractFilters(ids []string) []rpc.EventFilter {
	filters := make([]rpc.EventFilter, 0, (len(ids)+maxContractsPerFilter-1)/maxContractsPerFilter)
	for start := 0; start < len(ids); start += maxContractsPerFilter {
		end := min(start+maxContractsPerFilter, len(ids))
		filters = append(filters, rpc.EventFilter{
			Type:        "contract",
			ContractIDs: append([]string(nil), ids[start:end]...),
		})
	}
	return filters
}

func (s *stellarSource) pollerConfig() *config.PollerConfig {
	return &s.cfg.PollerConfig
}

func (s *stellarSource) configuredStart() uint64 {
	return uint64(s.cfg.StartLedger)
}

// defaultStart starts a little behind the latest ledger, never below 1.
func (s *stellarSource) defaultStart(ctx context.Context) (uint64, error) {
	latest, err := s.client.GetLatestLedger(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest ledger: %w", err)
	}

	if latest <= defaultLedgerLookback {
		return 1, nil
	}
	return uint64(latest) - defaultLedgerLookback, nil
}

func (s *stellarSource) tip(ctx context.Context, _ uint64) (uint64, error) {
	latest, err := s.client.GetLatestLedger(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest ledger: %w", err)
	}
	return uint64(latest), nil
}

// fetch pages through getEvents from ledger from and keeps the events up to
// ledger to. Pages past to are not requested.
func (s *stellarSource) fetch(ctx context.Context, from, to uint64) ([]*decoder.DecodedEvent, uint64, error) {
	if from > math.MaxUint32 {
		return nil, 0, fmt.Errorf("ledger %d out of range", from)
	}

	limit := s.cfg.PageLimit
	req := rpc.GetEventsRequest{
		StartLedger: uint32(from),
		Filters:     s.filters,
		Pagination:  &rpc.Pagination{Limit: limit},
	}

	var events []*decoder.DecodedEvent
	for page := 1; ; page++ {
		resp, err := s.client.GetEvents(ctx, req)
		if err != nil {
			return nil, 0, fmt.Errorf("getEvents page %d: %w", page, err)
		}
		if resp == nil {
			return nil, 0, fmt.Errorf("getEvents page %d: empty response", page)
		}

		done := resp.Cursor == "" || uint(len(resp.Events)) < limit
		for _, raw := range resp.Events {
			ledger := uint64(raw.Ledger)
			if ledger > to {
				done = true
				break
			}
			if ledger < from {
				continue
			}

			ev, err := s.decoder.Decode(raw)
			if err != nil {
				s.onDecodeError(err)
				continue
			}
			events = append(events, ev)
		}

		if done {
			break
		}
		if resp.Cursor == req.Pagination.Cursor {
			return nil, 0, fmt.Errorf("getEvents page %d: cursor %q did not advance", page, resp.Cursor)
		}

		req = rpc.GetEventsRequest{
			Filters:    s.filters,
			Pagination: &rpc.Pagination{Limit: limit, Cursor: resp.Cursor},
		}
	}

	return events, to, nil
}

func (s *stellarSource) close() {}

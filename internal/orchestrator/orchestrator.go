package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/store"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/prediction-market/callindexor/pkg/indexer"
	"golang.org/x/sync/errgroup"
)

// CreateFunc builds the indexer of one chain. indexer.Create is the default.
type CreateFunc func(chain common.Chain, cfg *config.Config, deps indexer.Deps) (indexer.ChainIndexer, error)

// Status is the orchestrator view returned by the status endpoint.
type Status struct {
	IsRunning      bool                            `json:"is_running"`
	StellarEnabled bool                            `json:"stellar_enabled"`
	BaseEnabled    bool                            `json:"base_enabled"`
	Chains         map[common.Chain]indexer.Status `json:"chains"`
}

// Option configures a MultiChainIndexer.
type Option func(*MultiChainIndexer)

// WithCreateFunc replaces the registry based indexer construction.
func WithCreateFunc(create CreateFunc) Option {
	return func(m *MultiChainIndexer) {
		m.create = create
	}
}

// MultiChainIndexer owns the enabled chain indexers and fans lifecycle calls
// out to them. A failure in one chain never blocks the others.
type MultiChainIndexer struct {
	store  store.Store
	sink   indexer.EventSink
	create CreateFunc
	root   *logger.Logger
	log    *logger.Logger

	// lifecycle serializes Initialize, Start and Stop
	lifecycle sync.Mutex

	mu        sync.RWMutex
	flags     config.IndexerConfig
	indexers  map[common.Chain]indexer.ChainIndexer
	order     []common.Chain
	isRunning bool
}

// New creates an orchestrator persisting through sink and reading from st.
func New(st store.Store, sink indexer.EventSink, log *logger.Logger, opts ...Option) *MultiChainIndexer {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	m := &MultiChainIndexer{
		store:    st,
		sink:     sink,
		create:   indexer.Create,
		root:     log,
		log:      log.WithComponent(common.ComponentOrchestrator),
		indexers: make(map[common.Chain]indexer.ChainIndexer),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Initialize builds and initializes the indexers enabled in cfg.Indexer.
// An indexer whose Initialize fails stays registered and reports its error
// through Status; one that cannot be built is left out.
func (m *MultiChainIndexer) Initialize(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if len(m.indexers) > 0 {
		m.mu.Unlock()
		return errors.New("orchestrator already initialized")
	}
	m.flags = cfg.Indexer
	m.mu.Unlock()

	deps := indexer.Deps{Sink: m.sink, Cursors: m.store, Log: m.root}

	var enabled []common.Chain
	if cfg.Indexer.EnableBase {
		enabled = append(enabled, common.ChainBase)
	}
	if cfg.Indexer.EnableStellar {
		enabled = append(enabled, common.ChainStellar)
	}
	if len(enabled) == 0 {
		m.log.Warn("no chain indexer is enabled")
		return nil
	}

	for _, chain := range enabled {
		idx, err := m.create(chain, cfg, deps)
		if err != nil {
			m.log.Errorw("failed to create indexer", "chain", chain, "error", err)
			continue
		}

		m.mu.Lock()
		m.indexers[chain] = idx
		m.order = append(m.order, chain)
		m.mu.Unlock()

		if err := isolate(func() error { return idx.Initialize(ctx) }); err != nil {
			m.log.Warnw("indexer failed to initialize and will not run", "chain", chain, "error", err)
			continue
		}
		m.log.Infow("indexer initialized", "chain", chain)
	}

	return nil
}

// Start starts every indexer concurrently. Starting a running orchestrator
// logs a warning and returns.
func (m *MultiChainIndexer) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.IsRunning() {
		m.log.Warn("orchestrator is already running")
		return nil
	}

	m.fanOut("start", func(idx indexer.ChainIndexer) error { return idx.Start(ctx) })

	m.mu.Lock()
	m.isRunning = true
	m.mu.Unlock()

	m.log.Infow("orchestrator started", "chains", m.chains())
	return nil
}

// Stop stops every indexer concurrently.
func (m *MultiChainIndexer) Stop(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if !m.IsRunning() {
		m.log.Info("orchestrator is not running")
		return nil
	}

	m.fanOut("stop", func(idx indexer.ChainIndexer) error { return idx.Stop(ctx) })

	m.mu.Lock()
	m.isRunning = false
	m.mu.Unlock()

	m.log.Info("orchestrator stopped")
	return nil
}

// fanOut runs op on every indexer and waits for all of them. Each failure is
// logged and swallowed so the group never short-circuits.
func (m *MultiChainIndexer) fanOut(op string, fn func(indexer.ChainIndexer) error) {
	var g errgroup.Group
	for _, idx := range m.list() {
		g.Go(func() error {
			if err := isolate(func() error { return fn(idx) }); err != nil {
				m.log.Errorw("indexer "+op+" failed", "chain", idx.Chain(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// isolate turns a panic in fn into an error.
func isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// IsRunning reports whether Start has been called on every indexer since
// the last Stop.
func (m *MultiChainIndexer) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// Status returns the orchestrator flags and a snapshot of every indexer.
func (m *MultiChainIndexer) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chains := make(map[common.Chain]indexer.Status, len(m.indexers))
	for chain, idx := range m.indexers {
		chains[chain] = idx.Status()
	}

	return Status{
		IsRunning:      m.isRunning,
		StellarEnabled: m.flags.EnableStellar,
		BaseEnabled:    m.flags.EnableBase,
		Chains:         chains,
	}
}

// Indexer returns the indexer of chain, if it was built.
func (m *MultiChainIndexer) Indexer(chain common.Chain) (indexer.ChainIndexer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.indexers[chain]
	return idx, ok
}

func (m *MultiChainIndexer) list() []indexer.ChainIndexer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]indexer.ChainIndexer, 0, len(m.order))
	for _, chain := range m.order {
		out = append(out, m.indexers[chain])
	}
	return out
}

func (m *MultiChainIndexer) chains() []common.Chain {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]common.Chain(nil), m.order...)
}

// EventsByType returns indexed events of one type, newest first.
func (m *MultiChainIndexer) EventsByType(ctx context.Context, chain common.Chain, eventType string,
	limit, offset int) ([]*store.Event, error) {
	return m.store.EventsByType(ctx, chain, eventType, limit, offset)
}

// EventsByContract returns indexed events emitted by one contract, newest first.
func (m *MultiChainIndexer) EventsByContract(ctx context.Context, chain common.Chain, contractID string,
	limit, offset int) ([]*store.Event, error) {
	return m.store.EventsByContract(ctx, chain, contractID, limit, offset)
}

// Stats summarizes the indexed events of chain.
func (m *MultiChainIndexer) Stats(ctx context.Context, chain common.Chain) (*store.Stats, error) {
	return m.store.Stats(ctx, chain)
}

// Call returns one call by its on-chain id.
func (m *MultiChainIndexer) Call(ctx context.Context, chain common.Chain, onchainID string) (*store.Call, error) {
	return m.store.GetCall(ctx, chain, onchainID)
}

// Calls lists calls of chain, optionally filtered by status.
func (m *MultiChainIndexer) Calls(ctx context.Context, chain common.Chain, status string,
	limit, offset int) ([]*store.Call, error) {
	return m.store.ListCalls(ctx, chain, status, limit, offset)
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/sink"
	"github.com/prediction-market/callindexor/internal/store"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/prediction-market/callindexor/pkg/indexer"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	chain      common.Chain
	initErr    error
	startErr   error
	startPanic bool

	mu     sync.Mutex
	state  indexer.State
	starts int
	stops  int
}

func (f *fakeIndexer) Chain() common.Chain { return f.chain }

func (f *fakeIndexer) Initialize(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.state = indexer.StateInitialized
	return nil
}

func (f *fakeIndexer) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startPanic {
		panic("rpc client exploded")
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.state = indexer.StateRunning
	return nil
}

func (f *fakeIndexer) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = indexer.StateStopped
	return nil
}

func (f *fakeIndexer) Status() indexer.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return indexer.Status{State: indexer.StateStopped}
	}
	return indexer.Status{State: f.state}
}

func (f *fakeIndexer) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// createFrom serves prebuilt fakes. A chain without a fake fails to build.
func createFrom(fakes ...*fakeIndexer) CreateFunc {
	return func(chain common.Chain, _ *config.Config, deps indexer.Deps) (indexer.ChainIndexer, error) {
		if deps.Sink == nil || deps.Cursors == nil {
			return nil, errors.New("missing deps")
		}
		for _, f := range fakes {
			if f.chain == chain {
				return f, nil
			}
		}
		return nil, errors.New("no indexer registered for chain " + chain.String())
	}
}

func enabled(base, stellar bool) *config.Config {
	return &config.Config{Indexer: config.IndexerConfig{EnableBase: base, EnableStellar: stellar}}
}

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "orchestrator.db")}
	cfg.ApplyDefaults()

	s, err := store.Open(t.Context(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s
}

func newOrchestrator(t *testing.T, fakes ...*fakeIndexer) *MultiChainIndexer {
	t.Helper()

	st := newTestStore(t)
	log := logger.NewNopLogger()
	return New(st, sink.New(st, log), log, WithCreateFunc(createFrom(fakes...)))
}

func TestInitialize_EnabledChains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.Config
		chains  []common.Chain
		base    bool
		stellar bool
	}{
		{name: "both", cfg: enabled(true, true), chains: []common.Chain{common.ChainBase, common.ChainStellar}, base: true, stellar: true},
		{name: "base only", cfg: enabled(true, false), chains: []common.Chain{common.ChainBase}, base: true},
		{name: "stellar only", cfg: enabled(false, true), chains: []common.Chain{common.ChainStellar}, stellar: true},
		{name: "none", cfg: enabled(false, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newOrchestrator(t,
				&fakeIndexer{chain: common.ChainBase},
				&fakeIndexer{chain: common.ChainStellar})
			require.NoError(t, m.Initialize(t.Context(), tt.cfg))

			require.Equal(t, tt.chains, m.chains())
			status := m.Status()
			require.False(t, status.IsRunning)
			require.Equal(t, tt.base, status.BaseEnabled)
			require.Equal(t, tt.stellar, status.StellarEnabled)
			require.Len(t, status.Chains, len(tt.chains))
			for _, chain := range tt.chains {
				require.Equal(t, indexer.StateInitialized, status.Chains[chain].State)
			}
		})
	}
}

func TestInitialize_FailuresAreIsolated(t *testing.T) {
	t.Parallel()

	stellar := &fakeIndexer{chain: common.ChainStellar, initErr: errors.New("stellar.contract_ids: at least one contract must be configured")}
	m := newOrchestrator(t, stellar)

	// base cannot be built at all, stellar is built but fails to initialize
	require.NoError(t, m.Initialize(t.Context(), enabled(true, true)))

	_, ok := m.Indexer(common.ChainBase)
	require.False(t, ok)
	idx, ok := m.Indexer(common.ChainStellar)
	require.True(t, ok)
	require.Same(t, stellar, idx)

	require.ErrorContains(t, m.Initialize(t.Context(), enabled(true, true)), "already initialized")
	require.Error(t, m.Initialize(t.Context(), nil))
}

func TestStart_FaultIsolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base *fakeIndexer
	}{
		{name: "start error", base: &fakeIndexer{chain: common.ChainBase, startErr: errors.New("dial tcp: connection refused")}},
		{name: "start panic", base: &fakeIndexer{chain: common.ChainBase, startPanic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stellar := &fakeIndexer{chain: common.ChainStellar}
			m := newOrchestrator(t, tt.base, stellar)
			require.NoError(t, m.Initialize(t.Context(), enabled(true, true)))

			require.NoError(t, m.Start(t.Context()))

			status := m.Status()
			require.True(t, status.IsRunning)
			require.True(t, status.BaseEnabled)
			require.Equal(t, indexer.StateRunning, status.Chains[common.ChainStellar].State)
			require.NotEqual(t, indexer.StateRunning, status.Chains[common.ChainBase].State)

			starts, _ := tt.base.calls()
			require.Equal(t, 1, starts)
		})
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	t.Parallel()

	base := &fakeIndexer{chain: common.ChainBase}
	stellar := &fakeIndexer{chain: common.ChainStellar}
	m := newOrchestrator(t, base, stellar)
	require.NoError(t, m.Initialize(t.Context(), enabled(true, true)))

	require.NoError(t, m.Stop(t.Context()), "stop before start is a no-op")
	require.NoError(t, m.Start(t.Context()))
	require.NoError(t, m.Start(t.Context()))

	for _, f := range []*fakeIndexer{base, stellar} {
		starts, stops := f.calls()
		require.Equal(t, 1, starts)
		require.Equal(t, 0, stops)
	}

	require.NoError(t, m.Stop(t.Context()))
	require.NoError(t, m.Stop(t.Context()))
	require.False(t, m.IsRunning())

	for _, f := range []*fakeIndexer{base, stellar} {
		_, stops := f.calls()
		require.Equal(t, 1, stops)
		require.Equal(t, indexer.StateStopped, f.Status().State)
	}

	// restartable
	require.NoError(t, m.Start(t.Context()))
	require.True(t, m.IsRunning())
}

func TestStart_ConcurrentCallers(t *testing.T) {
	t.Parallel()

	base := &fakeIndexer{chain: common.ChainBase}
	m := newOrchestrator(t, base)
	require.NoError(t, m.Initialize(t.Context(), enabled(true, false)))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Start(t.Context())
		}()
	}
	wg.Wait()

	starts, _ := base.calls()
	require.Equal(t, 1, starts)
}

func TestStatus_JSON(t *testing.T) {
	t.Parallel()

	m := newOrchestrator(t, &fakeIndexer{chain: common.ChainStellar})
	require.NoError(t, m.Initialize(t.Context(), enabled(false, true)))

	raw, err := json.Marshal(m.Status())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, false, decoded["is_running"])
	require.Equal(t, true, decoded["stellar_enabled"])
	require.Equal(t, false, decoded["base_enabled"])

	chains, ok := decoded["chains"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, chains, "STELLAR")
}

func TestQueries(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	log := logger.NewNopLogger()
	s := sink.New(st, log)
	m := New(st, s, log, WithCreateFunc(createFrom()))

	created := decoder.NewEventData()
	created.Set("callId", "42")
	created.Set("creator", "0xcreator")
	created.Set("stakeToken", "0xusdc")
	created.Set("stakeAmount", "1000")
	created.Set("startTs", "1700000000")
	created.Set("endTs", "1700086400")
	created.Set("tokenAddress", "0xtoken")
	created.Set("pairId", "0xpair")
	created.Set("ipfsCID", "bafy")

	staked := decoder.NewEventData()
	staked.Set("callId", "42")
	staked.Set("position", true)
	staked.Set("amount", "100")

	res, err := s.Persist(t.Context(), []*decoder.DecodedEvent{
		{Chain: common.ChainBase, Type: decoder.EventCallCreated, ContractID: "0xregistry", Ledger: 10, TxHash: "0xa", Data: created},
		{Chain: common.ChainBase, Type: decoder.EventStakeAdded, ContractID: "0xregistry", Ledger: 11, TxHash: "0xb", Data: staked},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Inserted)
	require.NoError(t, st.SaveCursor(t.Context(), common.ChainBase, 12))

	ctx := t.Context()

	events, err := m.EventsByType(ctx, common.ChainBase, decoder.EventStakeAdded, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "0xb", events[0].TxHash)

	events, err = m.EventsByContract(ctx, common.ChainBase, "0xregistry", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	stats, err := m.Stats(ctx, common.ChainBase)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.TotalEvents)
	require.Equal(t, uint64(11), stats.LastIndexedHeight)

	call, err := m.Call(ctx, common.ChainBase, "42")
	require.NoError(t, err)
	require.Equal(t, store.CallStatusActive, call.Status)
	require.Equal(t, "100", call.TotalStakeYes.String())

	calls, err := m.Calls(ctx, common.ChainBase, store.CallStatusActive, 10, 0)
	require.NoError(t, err)
	require.Len(t, calls, 1)

	_, err = m.Call(ctx, common.ChainStellar, "42")
	require.ErrorIs(t, err, store.ErrNotFound)
}

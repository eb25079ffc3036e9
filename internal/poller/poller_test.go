package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/sink"
	"github.com/prediction-market/callindexor/internal/store"
	"github.com/prediction-market/callindexor/pkg/indexer"
	"github.com/prediction-market/callindexor/pkg/rpc"
	"github.com/prediction-market/callindexor/pkg/rpc/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memCursors is an in-memory CursorStore.
type memCursors struct {
	mu    sync.Mutex
	next  map[common.Chain]uint64
	saves []uint64
}

func newMemCursors() *memCursors {
	return &memCursors{next: make(map[common.Chain]uint64)}
}

func (m *memCursors) GetCursor(_ context.Context, chain common.Chain) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.next[chain]
	if !ok {
		return 0, store.ErrNotFound
	}
	return next, nil
}

func (m *memCursors) SaveCursor(_ context.Context, chain common.Chain, next uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next[chain] = next
	m.saves = append(m.saves, next)
	return nil
}

func (m *memCursors) savedHeights() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.saves...)
}

// recordingSink keeps every batch it is handed. When block is set, Persist
// waits for it to be closed or for ctx to end.
type recordingSink struct {
	mu      sync.Mutex
	batches [][]*decoder.DecodedEvent
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (s *recordingSink) Persist(ctx context.Context, events []*decoder.DecodedEvent) (sink.Result, error) {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return sink.Result{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches = append(s.batches, events)
	if s.err != nil {
		return sink.Result{Failed: len(events)}, s.err
	}
	return sink.Result{Inserted: len(events)}, nil
}

func (s *recordingSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *recordingSink) recorded() [][]*decoder.DecodedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]*decoder.DecodedEvent(nil), s.batches...)
}

func testDeps(cursors *memCursors, s indexer.EventSink) indexer.Deps {
	return indexer.Deps{Sink: s, Cursors: cursors, Log: logger.NewNopLogger()}
}

func TestNewPoller_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := NewStellarIndexer(stellarConfig(), indexer.Deps{Cursors: newMemCursors()}, nil)
	require.ErrorContains(t, err, "sink is required")

	_, err = NewEvmIndexer(baseConfig(), indexer.Deps{Sink: &recordingSink{}}, nil)
	require.ErrorContains(t, err, "cursor store is required")
}

func TestPoller_ConfigErrorDisablesIndexer(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	idx, err := NewStellarIndexer(nil, testDeps(newMemCursors(), &recordingSink{}), nil)
	require.NoError(t, err)

	err = idx.Initialize(ctx)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, common.ChainStellar, cfgErr.Chain)

	require.NoError(t, idx.Start(ctx))
	require.Equal(t, indexer.StateStopped, idx.Status().State)
	require.NotEmpty(t, idx.Status().LastError)
	require.NoError(t, idx.Stop(ctx))

	require.ErrorAs(t, idx.Initialize(ctx), &cfgErr, "the error sticks")
}

func TestPoller_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	cursors := newMemCursors()
	cursors.next[common.ChainStellar] = 10
	recorder := &recordingSink{}

	client := mocks.NewSorobanClient(t)
	client.On("GetLatestLedger", mock.Anything).Return(uint32(12), nil).Maybe()
	client.On("GetEvents", mock.Anything, mock.MatchedBy(func(r rpc.GetEventsRequest) bool {
		return r.StartLedger == 10
	})).Return(&rpc.GetEventsResponse{LatestLedger: 12}, nil).Once()

	cfg := stellarConfig()
	cfg.PollInterval = common.NewDuration(5 * time.Millisecond)

	idx, err := NewStellarIndexer(cfg, testDeps(cursors, recorder), client)
	require.NoError(t, err)
	require.Equal(t, indexer.StateStopped, idx.Status().State)

	require.NoError(t, idx.Initialize(ctx))
	require.Equal(t, indexer.StateInitialized, idx.Status().State)
	require.Equal(t, uint64(10), idx.Status().NextCursor)
	require.NoError(t, idx.Initialize(ctx), "initializing twice is a no-op")

	require.NoError(t, idx.Start(ctx))
	require.NoError(t, idx.Start(ctx), "starting twice is a no-op")
	require.Equal(t, indexer.StateRunning, idx.Status().State)

	require.Eventually(t, func() bool {
		return idx.Status().NextCursor == 13
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, idx.Stop(ctx))
	require.NoError(t, idx.Stop(ctx), "stopping twice is a no-op")

	status := idx.Status()
	require.Equal(t, indexer.StateStopped, status.State)
	require.Equal(t, uint64(13), status.NextCursor)
	require.NotNil(t, status.LastCycleAt)
	require.Empty(t, status.LastError)
	require.Equal(t, []uint64{13}, cursors.savedHeights())

	// a restart resumes from the persisted cursor
	require.NoError(t, idx.Start(ctx))
	require.Equal(t, uint64(13), idx.Status().NextCursor)
	require.NoError(t, idx.Stop(ctx))
}

func TestPoller_SkipsTickWhileBusy(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	cursors := newMemCursors()
	cursors.next[common.ChainStellar] = 1
	recorder := &recordingSink{block: make(chan struct{}), entered: make(chan struct{}, 1)}

	client := mocks.NewSorobanClient(t)
	client.On("GetLatestLedger", mock.Anything).Return(uint32(5), nil).Once()
	client.On("GetEvents", mock.Anything, mock.Anything).Return(&rpc.GetEventsResponse{}, nil).Once()

	cfg := stellarConfig()
	cfg.PollInterval = common.NewDuration(2 * time.Millisecond)

	idx, err := NewStellarIndexer(cfg, testDeps(cursors, recorder), client)
	require.NoError(t, err)
	require.NoError(t, idx.Start(ctx))

	select {
	case <-recorder.entered:
	case <-time.After(time.Second):
		t.Fatal("cycle never reached the sink")
	}

	require.Eventually(t, func() bool {
		return idx.Status().SkippedCycles >= 2
	}, time.Second, 2*time.Millisecond)

	// stopping cancels the blocked cycle, which must not save a cursor
	require.NoError(t, idx.Stop(ctx))
	require.Empty(t, cursors.savedHeights())
	require.Equal(t, uint64(1), idx.Status().NextCursor)
}

func TestPoller_StopGuardDiscardsResults(t *testing.T) {
	t.Parallel()

	cursors := newMemCursors()
	cursors.next[common.ChainStellar] = 1
	recorder := &recordingSink{}

	client := mocks.NewSorobanClient(t)
	client.On("GetLatestLedger", mock.Anything).Return(uint32(5), nil).Once()
	client.On("GetEvents", mock.Anything, mock.Anything).Return(&rpc.GetEventsResponse{}, nil).Once()

	idx, err := NewStellarIndexer(stellarConfig(), testDeps(cursors, recorder), client)
	require.NoError(t, err)
	require.NoError(t, idx.Initialize(t.Context()))

	// not running: the cycle fetches but hands nothing to the sink
	outcome, err := idx.poll(t.Context(), "cycle")
	require.NoError(t, err)
	require.Equal(t, "aborted", outcome)
	require.Empty(t, recorder.recorded())
	require.Empty(t, cursors.savedHeights())
}

// cancelSink ends the loop context of the cycle it serves, the way Stop does,
// and then reports success.
type cancelSink struct {
	cancel context.CancelFunc
}

func (s *cancelSink) Persist(_ context.Context, events []*decoder.DecodedEvent) (sink.Result, error) {
	s.cancel()
	return sink.Result{Inserted: len(events)}, nil
}

func TestPoller_StaleCycleAfterRestart(t *testing.T) {
	t.Parallel()

	cursors := newMemCursors()
	cursors.next[common.ChainStellar] = 1

	client := mocks.NewSorobanClient(t)
	client.On("GetLatestLedger", mock.Anything).Return(uint32(5), nil).Once()
	client.On("GetEvents", mock.Anything, mock.Anything).Return(&rpc.GetEventsResponse{}, nil).Once()

	loopCtx, cancel := context.WithCancel(t.Context())
	idx, err := NewStellarIndexer(stellarConfig(), testDeps(cursors, &cancelSink{cancel: cancel}), client)
	require.NoError(t, err)
	require.NoError(t, idx.Initialize(t.Context()))

	// a newer run has set running again while this cycle's loop is already cancelled
	idx.running.Store(true)

	outcome, err := idx.poll(loopCtx, "stale-cycle")
	require.NoError(t, err)
	require.Equal(t, "aborted", outcome)
	require.Empty(t, cursors.savedHeights())
	require.Equal(t, uint64(1), idx.Status().NextCursor)
}

func TestPoller_PersistFailureKeepsCursor(t *testing.T) {
	t.Parallel()

	cursors := newMemCursors()
	cursors.next[common.ChainStellar] = 40
	recorder := &recordingSink{err: &sink.PersistError{Chain: common.ChainStellar, Err: errors.New("disk full")}}

	client := mocks.NewSorobanClient(t)
	client.On("GetLatestLedger", mock.Anything).Return(uint32(45), nil).Times(2)
	client.On("GetEvents", mock.Anything, mock.MatchedBy(func(r rpc.GetEventsRequest) bool {
		return r.StartLedger == 40
	})).Return(&rpc.GetEventsResponse{}, nil).Times(2)

	idx, err := NewStellarIndexer(stellarConfig(), testDeps(cursors, recorder), client)
	require.NoError(t, err)
	require.NoError(t, idx.Initialize(t.Context()))
	idx.running.Store(true)

	outcome, err := idx.poll(t.Context(), "cycle-1")
	var perr *sink.PersistError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "persist_failed", outcome)
	require.Equal(t, uint64(40), idx.cursor.Load())
	require.Empty(t, cursors.savedHeights())

	recorder.setErr(nil)
	outcome, err = idx.poll(t.Context(), "cycle-2")
	require.NoError(t, err)
	require.Equal(t, "ok", outcome)
	require.Equal(t, uint64(46), idx.cursor.Load())
	require.Len(t, recorder.recorded(), 2)
}

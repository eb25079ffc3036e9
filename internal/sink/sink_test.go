package sink

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/store"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "sink.db")}
	cfg.ApplyDefaults()

	s, err := store.Open(t.Context(), cfg, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s
}

func event(chain common.Chain, eventType, tx string, seq uint64, kv ...any) *decoder.DecodedEvent {
	data := decoder.NewEventData()
	for i := 0; i+1 < len(kv); i += 2 {
		data.Set(kv[i].(string), kv[i+1])
	}

	return &decoder.DecodedEvent{
		Chain:      chain,
		Type:       eventType,
		ContractID: "0xregistry",
		Ledger:     100 + seq,
		TxHash:     tx,
		Sequence:   seq,
		Data:       data,
	}
}

func evmCallCreatedEvent(tx, callID string) *decoder.DecodedEvent {
	return event(common.ChainBase, decoder.EventCallCreated, tx, 0,
		"callId", callID,
		"creator", "0xcreator",
		"stakeToken", "0xusdc",
		"stakeAmount", "1000",
		"startTs", "1700000000",
		"endTs", "1700086400",
		"tokenAddress", "0xtoken",
		"pairId", "0xpair",
		"ipfsCID", "bafy",
	)
}

func evmStakeEvent(tx string, seq uint64, callID string, position bool, amount string) *decoder.DecodedEvent {
	return event(common.ChainBase, decoder.EventStakeAdded, tx, seq,
		"callId", callID, "staker", "0xstaker", "position", position, "amount", amount)
}

func requireBig(t *testing.T, want string, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, want, got.String())
}

func TestPersist_CallCreatedReplay(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	s := New(st, logger.NewNopLogger())

	batch := []*decoder.DecodedEvent{evmCallCreatedEvent("0xaaa", "42")}

	res, err := s.Persist(t.Context(), batch)
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 1}, res)

	call, err := st.GetCall(t.Context(), common.ChainBase, "42")
	require.NoError(t, err)
	require.Equal(t, store.CallStatusActive, call.Status)
	require.Equal(t, "0xcreator", call.CreatorWallet)
	require.Equal(t, "bafy", call.IpfsCID)
	requireBig(t, "1000", call.StakeAmount)
	requireBig(t, "0", call.TotalStakeYes)
	requireBig(t, "0", call.TotalStakeNo)

	res, err = s.Persist(t.Context(), batch)
	require.NoError(t, err)
	require.Equal(t, Result{Duplicates: 1}, res)

	calls, err := st.ListCalls(t.Context(), common.ChainBase, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, calls, 1)

	stats, err := st.Stats(t.Context(), common.ChainBase)
	require.NoError(t, err)
	require.Equal(t, uint64(1), stats.TotalEvents)
}

func TestPersist_CallCreatedFirstSeenWins(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	s := New(st, logger.NewNopLogger())

	second := evmCallCreatedEvent("0xbbb", "42")
	second.Data.Set("creator", "0xother")

	res, err := s.Persist(t.Context(), []*decoder.DecodedEvent{evmCallCreatedEvent("0xaaa", "42"), second})
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 2}, res)

	call, err := st.GetCall(t.Context(), common.ChainBase, "42")
	require.NoError(t, err)
	require.Equal(t, "0xcreator", call.CreatorWallet)
	require.Equal(t, "0xaaa", call.TxHash)
}

func TestPersist_StakeTotals(t *testing.T) {
	t.Parallel()

	stakes := map[string][]*decoder.DecodedEvent{
		"yes then no": {
			evmStakeEvent("0x01", 0, "42", true, "100"),
			evmStakeEvent("0x02", 0, "42", false, "50"),
		},
		"no then yes": {
			evmStakeEvent("0x02", 0, "42", false, "50"),
			evmStakeEvent("0x01", 0, "42", true, "100"),
		},
		"with replays": {
			evmStakeEvent("0x01", 0, "42", true, "100"),
			evmStakeEvent("0x01", 0, "42", true, "100"),
			evmStakeEvent("0x02", 0, "42", false, "50"),
			evmStakeEvent("0x02", 0, "42", false, "50"),
		},
	}

	for name, batch := range stakes {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			st := newTestStore(t)
			s := New(st, logger.NewNopLogger())

			_, err := s.Persist(t.Context(), []*decoder.DecodedEvent{evmCallCreatedEvent("0xaaa", "42")})
			require.NoError(t, err)

			res, err := s.Persist(t.Context(), batch)
			require.NoError(t, err)
			require.Equal(t, 2, res.Inserted)
			require.Equal(t, len(batch)-2, res.Duplicates)

			call, err := st.GetCall(t.Context(), common.ChainBase, "42")
			require.NoError(t, err)
			requireBig(t, "100", call.TotalStakeYes)
			requireBig(t, "50", call.TotalStakeNo)
		})
	}
}

func TestPersist_StakeForUnknownCall(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	s := New(st, logger.NewNopLogger())

	res, err := s.Persist(t.Context(), []*decoder.DecodedEvent{evmStakeEvent("0x01", 3, "7", true, "5")})
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 1}, res)

	events, err := st.EventsByType(t.Context(), common.ChainBase, decoder.EventStakeAdded, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = st.GetCall(t.Context(), common.ChainBase, "7")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPersist_OutcomeIsTerminal(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	s := New(st, logger.NewNopLogger())

	outcome := func(tx string, result bool, price string) *decoder.DecodedEvent {
		return event(common.ChainBase, decoder.EventOutcomeSubmitted, tx, 0,
			"callId", "42", "outcome", result, "finalPrice", price, "oracle", "0xoracle")
	}

	_, err := s.Persist(t.Context(), []*decoder.DecodedEvent{
		evmCallCreatedEvent("0xaaa", "42"),
		outcome("0xbbb", true, "31337"),
		outcome("0xccc", false, "1"),
	})
	require.NoError(t, err)

	call, err := st.GetCall(t.Context(), common.ChainBase, "42")
	require.NoError(t, err)
	require.Equal(t, store.CallStatusResolvedYes, call.Status)
	require.NotNil(t, call.Outcome)
	require.True(t, *call.Outcome)
	requireBig(t, "31337", call.FinalPrice)

	stats, err := st.Stats(t.Context(), common.ChainBase)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.EventsByType[decoder.EventOutcomeSubmitted])
}

func TestPersist_SorobanEvents(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	s := New(st, logger.NewNopLogger())

	stellar := func(eventType, tx string, seq uint64, kv ...any) *decoder.DecodedEvent {
		ev := event(common.ChainStellar, eventType, tx, seq, kv...)
		ev.ContractID = "CCONTRACT"
		return ev
	}

	batch := []*decoder.DecodedEvent{
		stellar(decoder.EventCallCreated, "tx1", 0,
			"topic_0", "CallCreated", "topic_1", "42", "topic_2", "GCREATOR",
			"data_0", []any{"CTOKEN", "500", "1700000000", "1700086400", "CASSET", "BTC/USD", "bafy"}),
		stellar(decoder.EventStakeAdded, "tx2", 0,
			"topic_0", "StakeAdded", "topic_1", "42", "topic_2", "GSTAKER",
			"data_0", []any{true, "100"}),
		stellar(decoder.EventStakeAdded, "tx3", 0,
			"topic_0", "StakeAdded", "topic_1", "42",
			"data_0", "50", "data_1", false),
		stellar(decoder.EventStakeAdded, "tx4", 0,
			"topic_0", "StakeAdded", "topic_1", "42", "data_0", "75"),
		stellar(decoder.EventOutcomeSubmitted, "tx5", 0,
			"topic_0", "outcome_submitted",
			"data_0", []any{"OutcomeSubmitted", "42", false, "2500", "deadbeef"}),
	}

	res, err := s.Persist(t.Context(), batch)
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 5, Unapplied: 1}, res)

	call, err := st.GetCall(t.Context(), common.ChainStellar, "42")
	require.NoError(t, err)
	require.Equal(t, "GCREATOR", call.CreatorWallet)
	require.Equal(t, "CTOKEN", call.StakeToken)
	require.Equal(t, "BTC/USD", call.PairID)
	require.Equal(t, "CCONTRACT", call.ContractID)
	requireBig(t, "500", call.StakeAmount)
	requireBig(t, "100", call.TotalStakeYes)
	requireBig(t, "50", call.TotalStakeNo)
	require.Equal(t, store.CallStatusResolvedNo, call.Status)
	requireBig(t, "2500", call.FinalPrice)

	_, err = st.GetCall(t.Context(), common.ChainBase, "42")
	require.ErrorIs(t, err, store.ErrNotFound, "calls are scoped per chain")
}

func TestPersist_MalformedPayloadStoredWithoutEffect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   *decoder.DecodedEvent
	}{
		{"missing call id", event(common.ChainBase, decoder.EventCallCreated, "0x1", 0, "creator", "0xc")},
		{"negative amount", evmStakeEvent("0x2", 0, "42", true, "-5")},
		{"non numeric amount", evmStakeEvent("0x3", 0, "42", true, "lots")},
		{"missing position", event(common.ChainBase, decoder.EventStakeAdded, "0x4", 0, "callId", "42", "amount", "1")},
		{"outcome not bool", event(common.ChainBase, decoder.EventOutcomeSubmitted, "0x5", 0, "callId", "42", "outcome", 1)},
		{"short soroban outcome", event(common.ChainStellar, decoder.EventOutcomeSubmitted, "0x6", 0, "data_0", []any{"x"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := extractEffect(tt.ev)
			var decodeErr *decoder.DecodeError
			require.ErrorAs(t, err, &decodeErr)
			require.Equal(t, tt.ev.TxHash, decodeErr.TxHash)
		})
	}

	st := newTestStore(t)
	s := New(st, logger.NewNopLogger())

	res, err := s.Persist(t.Context(), []*decoder.DecodedEvent{tests[0].ev, nil})
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 1, Unapplied: 1}, res)

	events, err := st.EventsByType(t.Context(), common.ChainBase, decoder.EventCallCreated, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "0x1", events[0].TxHash)

	res, err = s.Persist(t.Context(), []*decoder.DecodedEvent{tests[0].ev})
	require.NoError(t, err)
	require.Equal(t, Result{Duplicates: 1}, res)
}

func TestPersist_StellarStakeWithoutPosition(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	s := New(st, logger.NewNopLogger())

	created := event(common.ChainStellar, decoder.EventCallCreated, "tx1", 0,
		"topic_0", "CallCreated", "topic_1", "42", "topic_2", "GCREATOR",
		"data_0", []any{"CTOKEN", "500", "1700000000", "1700086400", "CASSET", "BTC/USD", "bafy"})
	_, err := s.Persist(t.Context(), []*decoder.DecodedEvent{created})
	require.NoError(t, err)

	// topics [StakeAdded, 42], data u64 100: no position to attribute the amount to
	stake := event(common.ChainStellar, decoder.EventStakeAdded, "tx2", 0,
		"topic_0", "StakeAdded", "topic_1", "42", "data_0", "100")

	res, err := s.Persist(t.Context(), []*decoder.DecodedEvent{stake})
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 1, Unapplied: 1}, res)

	stats, err := st.Stats(t.Context(), common.ChainStellar)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.TotalEvents)
	require.Equal(t, uint64(1), stats.EventsByType[decoder.EventStakeAdded])

	call, err := st.GetCall(t.Context(), common.ChainStellar, "42")
	require.NoError(t, err)
	requireBig(t, "0", call.TotalStakeYes)
	requireBig(t, "0", call.TotalStakeNo)
}

func TestPersist_UntrackedTypesStored(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	s := New(st, logger.NewNopLogger())

	res, err := s.Persist(t.Context(), []*decoder.DecodedEvent{
		event(common.ChainBase, decoder.EventPayoutWithdrawn, "0x1", 0, "callId", "42", "amount", "9"),
		event(common.ChainStellar, decoder.EventOracleUpdated, "0x2", 0, "topic_0", "oracle_updated"),
	})
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 2}, res)
}

// failingStore fails the event insert of the listed tx hashes.
type failingStore struct {
	store.Store
	failTx map[string]bool
	calls  int
}

func (f *failingStore) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	f.calls++
	return f.Store.RunInTx(ctx, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, failTx: f.failTx})
	})
}

type failingTx struct {
	store.Tx
	failTx map[string]bool
}

func (f *failingTx) InsertEvent(ctx context.Context, ev *store.Event) error {
	if f.failTx[ev.TxHash] {
		return errors.New("disk full")
	}
	return f.Tx.InsertEvent(ctx, ev)
}

func TestPersist_FailureContinuesBatch(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	fs := &failingStore{Store: st, failTx: map[string]bool{"0x02": true}}
	s := New(fs, logger.NewNopLogger())

	res, err := s.Persist(t.Context(), []*decoder.DecodedEvent{
		evmCallCreatedEvent("0xaaa", "42"),
		evmStakeEvent("0x02", 0, "42", true, "100"),
		evmStakeEvent("0x03", 0, "42", false, "50"),
	})

	var perr *PersistError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "0x02", perr.TxHash)
	require.Equal(t, common.ChainBase, perr.Chain)
	require.Contains(t, perr.Error(), "disk full")
	require.Equal(t, Result{Inserted: 2, Failed: 1}, res)
	require.Equal(t, 3, fs.calls)

	call, err := st.GetCall(t.Context(), common.ChainBase, "42")
	require.NoError(t, err)
	requireBig(t, "0", call.TotalStakeYes)
	requireBig(t, "50", call.TotalStakeNo)

	// the failed event is written on retry, the rest are duplicates
	retry := New(st, logger.NewNopLogger())
	res, err = retry.Persist(t.Context(), []*decoder.DecodedEvent{
		evmCallCreatedEvent("0xaaa", "42"),
		evmStakeEvent("0x02", 0, "42", true, "100"),
		evmStakeEvent("0x03", 0, "42", false, "50"),
	})
	require.NoError(t, err)
	require.Equal(t, Result{Inserted: 1, Duplicates: 2}, res)

	call, err = st.GetCall(t.Context(), common.ChainBase, "42")
	require.NoError(t, err)
	requireBig(t, "100", call.TotalStakeYes)
	requireBig(t, "50", call.TotalStakeNo)
}

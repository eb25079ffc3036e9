package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/metrics"
	"github.com/prediction-market/callindexor/internal/store"
)

// PersistError reports an event that could not be written to the store.
// Any PersistError fails the poll cycle that produced the batch.
type PersistError struct {
	Chain    common.Chain
	TxHash   string
	Sequence uint64
	Type     string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s %s event (tx %s, seq %d): %v", e.Chain, e.Type, e.TxHash, e.Sequence, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Result counts what happened to each event of a batch. Unapplied events are
// also counted as Inserted: the row is stored but the call was not updated.
type Result struct {
	Inserted   int
	Duplicates int
	Unapplied  int
	Failed     int
}

// Sink writes decoded events and their effects on calls to the store.
// Every event is handled in its own transaction.
type Sink struct {
	store store.Store
	log   *logger.Logger
}

// New creates a sink backed by st.
func New(st store.Store, log *logger.Logger) *Sink {
	return &Sink{
		store: st,
		log:   log.WithComponent(common.ComponentSink),
	}
}

// Persist writes events in order. Every event gets a row; when its payload
// cannot be read the call aggregates are left untouched. A failing event does
// not stop the rest of the batch, but the first PersistError is returned once
// the batch is done.
func (s *Sink) Persist(ctx context.Context, events []*decoder.DecodedEvent) (Result, error) {
	var (
		res      Result
		firstErr error
	)

	start := time.Now()

	for _, ev := range events {
		if ev == nil {
			continue
		}

		eff, effErr := extractEffect(ev)

		inserted, err := s.persistOne(ctx, ev, eff)
		if err != nil {
			res.Failed++
			metrics.PersistErrorsInc(ev.Chain)
			perr := &PersistError{Chain: ev.Chain, TxHash: ev.TxHash, Sequence: ev.Sequence, Type: ev.Type, Err: err}
			s.log.Errorw("failed to persist event", "error", perr)
			if firstErr == nil {
				firstErr = perr
			}
			continue
		}

		if !inserted {
			res.Duplicates++
			metrics.EventsDuplicateInc(ev.Chain)
			continue
		}

		res.Inserted++
		metrics.EventsIndexedInc(ev.Chain, ev.Type)

		if effErr != nil {
			res.Unapplied++
			metrics.DecodeErrorsInc(ev.Chain)
			s.log.Warnw("event stored without call update, payload unreadable", "chain", ev.Chain,
				"type", ev.Type, "tx_hash", ev.TxHash, "sequence", ev.Sequence, "error", effErr)
		}
	}

	if len(events) > 0 {
		s.log.Debugw("persisted batch",
			"events", len(events),
			"inserted", res.Inserted,
			"duplicates", res.Duplicates,
			"unapplied", res.Unapplied,
			"failed", res.Failed,
			"duration", time.Since(start))
	}

	return res, firstErr
}

// persistOne reports false if the event was already stored.
func (s *Sink) persistOne(ctx context.Context, ev *decoder.DecodedEvent, eff any) (bool, error) {
	inserted := false

	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		_, err := tx.FindEvent(ctx, ev.Chain, ev.TxHash, ev.Sequence)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("lookup event: %w", err)
		}

		if err := tx.InsertEvent(ctx, store.EventFromDecoded(ev)); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		if err := s.apply(ctx, tx, ev, eff); err != nil {
			return err
		}

		inserted = true
		return nil
	})

	return inserted, err
}

func (s *Sink) apply(ctx context.Context, tx store.Tx, ev *decoder.DecodedEvent, eff any) error {
	switch e := eff.(type) {
	case *callCreated:
		return s.applyCallCreated(ctx, tx, ev, e)
	case *stakeAdded:
		return s.applyStakeAdded(ctx, tx, ev, e)
	case *outcomeSubmitted:
		return s.applyOutcome(ctx, tx, ev, e)
	default:
		return nil
	}
}

// applyCallCreated inserts the call unless it already exists.
func (s *Sink) applyCallCreated(ctx context.Context, tx store.Tx, ev *decoder.DecodedEvent, e *callCreated) error {
	_, err := tx.FindCall(ctx, ev.Chain, e.callID)
	if err == nil {
		s.log.Debugw("call already exists", "chain", ev.Chain, "call_id", e.callID, "tx_hash", ev.TxHash)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup call %s: %w", e.callID, err)
	}

	call := &store.Call{
		Chain:         ev.Chain,
		CallOnchainID: e.callID,
		CreatorWallet: e.creator,
		StakeToken:    e.stakeToken,
		StakeAmount:   e.stakeAmount,
		StartTs:       e.startTs,
		EndTs:         e.endTs,
		TokenAddress:  e.tokenAddress,
		PairID:        e.pairID,
		IpfsCID:       e.ipfsCID,
		Status:        store.CallStatusActive,
		TxHash:        ev.TxHash,
		ContractID:    ev.ContractID,
	}
	if err := tx.InsertCall(ctx, call); err != nil {
		return fmt.Errorf("insert call %s: %w", e.callID, err)
	}

	s.log.Infow("call created", "chain", ev.Chain, "call_id", e.callID, "creator", e.creator)
	return nil
}

// applyStakeAdded keeps the event even when the call is unknown; only the
// totals are left untouched in that case.
func (s *Sink) applyStakeAdded(ctx context.Context, tx store.Tx, ev *decoder.DecodedEvent, e *stakeAdded) error {
	call, err := tx.FindCall(ctx, ev.Chain, e.callID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warnw("stake for unknown call", "chain", ev.Chain, "call_id", e.callID, "tx_hash", ev.TxHash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup call %s: %w", e.callID, err)
	}

	if err := tx.IncrementStake(ctx, call.ID, e.position, e.amount); err != nil {
		return fmt.Errorf("increment stake on call %s: %w", e.callID, err)
	}
	return nil
}

// applyOutcome settles an active call. Settled calls are left as they are.
func (s *Sink) applyOutcome(ctx context.Context, tx store.Tx, ev *decoder.DecodedEvent, e *outcomeSubmitted) error {
	call, err := tx.FindCall(ctx, ev.Chain, e.callID)
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warnw("outcome for unknown call", "chain", ev.Chain, "call_id", e.callID, "tx_hash", ev.TxHash)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup call %s: %w", e.callID, err)
	}

	if store.IsTerminalStatus(call.Status) {
		s.log.Warnw("outcome for settled call ignored", "chain", ev.Chain, "call_id", e.callID, "status", call.Status)
		return nil
	}

	if err := tx.SettleCall(ctx, call.ID, e.outcome, e.finalPrice); err != nil {
		return fmt.Errorf("settle call %s: %w", e.callID, err)
	}

	s.log.Infow("call settled", "chain", ev.Chain, "call_id", e.callID, "outcome", e.outcome)
	return nil
}

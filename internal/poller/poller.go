package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/metrics"
	"github.com/prediction-market/callindexor/internal/rpc"
	"github.com/prediction-market/callindexor/internal/store"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/prediction-market/callindexor/pkg/indexer"
)

// ConfigError reports a chain section that cannot be used. A poller that
// failed with a ConfigError never runs.
type ConfigError struct {
	Chain common.Chain
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s indexer configuration: %v", e.Chain, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// unresolvedCursor marks a poller whose chain default start could not be
// fetched yet. Real cursors start at 1.
const unresolvedCursor = 0

// source is the chain specific half of a poller.
type source interface {
	// setup validates the configuration and prepares the RPC client.
	setup(ctx context.Context) error
	// pollerConfig returns the shared options, with defaults applied by setup.
	pollerConfig() *config.PollerConfig
	// configuredStart returns the configured first height, 0 if unset.
	configuredStart() uint64
	// defaultStart returns the first height used when nothing else is known.
	defaultStart(ctx context.Context) (uint64, error)
	// tip returns the last height a cycle starting at from may fetch.
	tip(ctx context.Context, from uint64) (uint64, error)
	// fetch returns the decoded events of [from, to] and the last height
	// actually covered, which may be below to.
	fetch(ctx context.Context, from, to uint64) ([]*decoder.DecodedEvent, uint64, error)
	close()
}

// poller runs the poll loop shared by every chain.
type poller struct {
	chain    common.Chain
	log      *logger.Logger
	sink     indexer.EventSink
	cursors  indexer.CursorStore
	src      source
	interval time.Duration
	retry    rpc.RetryPolicy

	mu          sync.Mutex
	state       indexer.State
	configErr   error
	lastErr     string
	lastCycleAt *time.Time
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	cursor  atomic.Uint64
	running atomic.Bool
	busy    atomic.Bool
	skipped atomic.Uint64
}

func newPoller(chain common.Chain, component string, deps indexer.Deps, src source) (*poller, error) {
	if deps.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if deps.Cursors == nil {
		return nil, errors.New("cursor store is required")
	}
	log := deps.Log
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	p := &poller{
		chain:   chain,
		log:     log.WithComponent(component),
		sink:    deps.Sink,
		cursors: deps.Cursors,
		src:     src,
		state:   indexer.StateStopped,
	}
	p.setStateLocked(indexer.StateStopped)

	return p, nil
}

func (p *poller) Chain() common.Chain {
	return p.chain
}

// Initialize validates the configuration and resolves the start cursor:
// the persisted cursor, else the configured start, else the chain default.
func (p *poller) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.configErr != nil {
		p.log.Warnw("indexer has an invalid configuration", "error", p.configErr)
		return p.configErr
	}
	if p.state != indexer.StateStopped {
		p.log.Warnw("indexer already initialized", "state", p.state)
		return nil
	}

	return p.initializeLocked(ctx)
}

func (p *poller) initializeLocked(ctx context.Context) error {
	if err := p.src.setup(ctx); err != nil {
		p.configErr = &ConfigError{Chain: p.chain, Err: err}
		p.lastErr = p.configErr.Error()
		p.log.Errorw("indexer disabled", "error", p.configErr)
		return p.configErr
	}

	pc := p.src.pollerConfig()
	p.interval = pc.PollInterval.Duration
	p.retry = rpc.RetryPolicy{MaxRetries: pc.Retries(), Delay: pc.Delay()}

	next, origin, err := p.resolveStart(ctx)
	if err != nil {
		p.lastErr = err.Error()
		return fmt.Errorf("failed to resolve start cursor: %w", err)
	}

	p.cursor.Store(next)
	metrics.CursorHeightSet(p.chain, next)
	p.lastErr = ""
	p.setStateLocked(indexer.StateInitialized)

	p.log.Infow("indexer initialized",
		"next_cursor", next,
		"cursor_origin", origin,
		"poll_interval", p.interval,
		"max_retries", p.retry.MaxRetries,
		"retry_delay", p.retry.Delay)

	return nil
}

func (p *poller) resolveStart(ctx context.Context) (uint64, string, error) {
	next, err := p.cursors.GetCursor(ctx, p.chain)
	if err == nil {
		return next, "persisted", nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, "", fmt.Errorf("failed to load cursor: %w", err)
	}

	if start := p.src.configuredStart(); start > 0 {
		return start, "configured", nil
	}

	start, err := p.src.defaultStart(ctx)
	if err != nil {
		p.log.Warnw("chain default start unavailable, resolving it on the first cycle", "error", err)
		return unresolvedCursor, "deferred", nil
	}

	return start, "default", nil
}

// resolveDeferredStart runs at the top of a cycle while the cursor is still
// unresolved. Failures are retried like any fetch and leave the cursor unset.
func (p *poller) resolveDeferredStart(ctx context.Context, cycleID string) (uint64, error) {
	var start uint64
	err := rpc.Retry(ctx, p.chain, "default_start", p.retry, p.log, func(ctx context.Context) error {
		var err error
		start, err = p.src.defaultStart(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	if !p.cursor.CompareAndSwap(unresolvedCursor, start) {
		return p.cursor.Load(), nil
	}
	metrics.CursorHeightSet(p.chain, start)
	p.log.Infow("start cursor resolved", "cycle_id", cycleID, "next_cursor", start)

	return start, nil
}

// Start begins polling. A stopped poller is initialized again first, so a
// restart resumes from the persisted cursor.
func (p *poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.configErr != nil {
		p.log.Warnw("indexer has an invalid configuration and will not start", "error", p.configErr)
		return nil
	}

	switch p.state {
	case indexer.StateRunning:
		p.log.Warn("indexer is already running")
		return nil
	case indexer.StateStopped:
		if err := p.initializeLocked(ctx); err != nil {
			return err
		}
	}

	// the loop outlives the caller's request context
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.running.Store(true)
	p.setStateLocked(indexer.StateRunning)

	p.wg.Add(1)
	go p.loop(loopCtx)

	p.log.Infow("indexer started", "next_cursor", p.cursor.Load(), "poll_interval", p.interval)

	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to return, or for
// ctx to expire.
func (p *poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state != indexer.StateRunning {
		if p.configErr != nil {
			p.log.Warnw("indexer has an invalid configuration and is not running", "error", p.configErr)
		}
		p.mu.Unlock()
		return nil
	}

	p.running.Store(false)
	p.cancel()
	p.setStateLocked(indexer.StateStopped)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for %s indexer to stop: %w", p.chain, ctx.Err())
	}

	p.src.close()
	p.log.Infow("indexer stopped", "next_cursor", p.cursor.Load())

	return nil
}

func (p *poller) Status() indexer.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return indexer.Status{
		State:         p.state,
		NextCursor:    p.cursor.Load(),
		LastCycleAt:   p.lastCycleAt,
		LastError:     p.lastErr,
		SkippedCycles: p.skipped.Load(),
	}
}

func (p *poller) setStateLocked(state indexer.State) {
	p.state = state
	metrics.ChainIndexerStateSet(p.chain, state.String(), indexer.StateNames())
}

// loop runs one cycle right away and then one per tick. A tick that fires
// while the previous cycle is still running is skipped.
func (p *poller) loop(ctx context.Context) {
	defer p.wg.Done()

	p.tick(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *poller) tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		metrics.PollTickSkippedInc(p.chain)
		p.log.Debugw("previous cycle still running, skipping tick", "next_cursor", p.cursor.Load())
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		p.runCycle(ctx)
	}()
}

func (p *poller) runCycle(ctx context.Context) {
	start := time.Now()
	outcome, err := p.poll(ctx, uuid.NewString())

	metrics.PollCycleInc(p.chain, outcome)
	metrics.PollCycleDurationLog(p.chain, time.Since(start))

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case err != nil:
		p.lastErr = err.Error()
	case outcome == metrics.CycleOK || outcome == metrics.CycleIdle:
		now := time.Now()
		p.lastCycleAt = &now
		p.lastErr = ""
	}
}

// poll runs one cycle and returns its outcome. The cursor only moves when the
// whole range was persisted.
func (p *poller) poll(ctx context.Context, cycleID string) (string, error) {
	from := p.cursor.Load()
	if from == unresolvedCursor {
		var err error
		if from, err = p.resolveDeferredStart(ctx, cycleID); err != nil {
			return p.fetchFailed(ctx, cycleID, from, err)
		}
	}

	var to uint64
	err := rpc.Retry(ctx, p.chain, "tip", p.retry, p.log, func(ctx context.Context) error {
		var err error
		to, err = p.src.tip(ctx, from)
		return err
	})
	if err != nil {
		return p.fetchFailed(ctx, cycleID, from, err)
	}

	if from > to {
		p.log.Debugw("no new heights", "cycle_id", cycleID, "from", from, "tip", to)
		return metrics.CycleIdle, nil
	}

	var (
		events  []*decoder.DecodedEvent
		covered uint64
	)
	err = rpc.Retry(ctx, p.chain, "events", p.retry, p.log, func(ctx context.Context) error {
		var err error
		events, covered, err = p.src.fetch(ctx, from, to)
		return err
	})
	if err != nil {
		return p.fetchFailed(ctx, cycleID, from, err)
	}

	if !p.active(ctx) {
		p.log.Debugw("indexer stopped, discarding fetched events", "cycle_id", cycleID, "events", len(events))
		return metrics.CycleAborted, nil
	}

	res, err := p.sink.Persist(ctx, events)
	if err != nil {
		p.log.Errorw("failed to persist events, cursor not advanced",
			"cycle_id", cycleID, "from", from, "to", covered, "error", err)
		return metrics.CyclePersistError, err
	}

	if !p.active(ctx) {
		p.log.Debugw("indexer stopped, cursor not advanced", "cycle_id", cycleID)
		return metrics.CycleAborted, nil
	}

	next := covered + 1
	if err := p.cursors.SaveCursor(ctx, p.chain, next); err != nil {
		p.log.Errorw("failed to save cursor", "cycle_id", cycleID, "next_cursor", next, "error", err)
		return metrics.CyclePersistError, fmt.Errorf("failed to save cursor: %w", err)
	}

	p.cursor.Store(next)
	metrics.CursorHeightSet(p.chain, next)

	p.log.Infow("cycle complete",
		"cycle_id", cycleID,
		"from", from,
		"to", covered,
		"events", len(events),
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"unapplied", res.Unapplied)

	return metrics.CycleOK, nil
}

// active reports whether results of a cycle running under ctx may still be
// applied. ctx is the loop context of one Start, so a cycle left over from an
// earlier run stays inactive after a restart.
func (p *poller) active(ctx context.Context) bool {
	return p.running.Load() && ctx.Err() == nil
}

func (p *poller) fetchFailed(ctx context.Context, cycleID string, from uint64, err error) (string, error) {
	if ctx.Err() != nil {
		return metrics.CycleAborted, nil
	}

	p.log.Warnw("fetch failed, skipping cycle", "cycle_id", cycleID, "next_cursor", from, "error", err)
	return metrics.CycleFetchFailed, err
}

// decodeFailed records an event that could not be decoded.
func (p *poller) decodeFailed(err error) {
	metrics.DecodeErrorsInc(p.chain)
	p.log.Warnw("skipping undecodable event", "error", err)
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/db"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/migrations"
	"github.com/prediction-market/callindexor/pkg/config"
)

const (
	// DefaultLimit is used when a query is given a non-positive limit.
	DefaultLimit = 100
	// MaxLimit caps the page size of list queries.
	MaxLimit = 1000
)

// Compile-time check to ensure SQLStore implements the Store interface.
var _ Store = (*SQLStore)(nil)

// SQLStore implements Store over database/sql and meddler. The same code
// serves sqlite and postgres; the dialect only changes placeholders and locking.
type SQLStore struct {
	db          *db.DB
	log         *logger.Logger
	maintenance db.Maintenance
	now         func() time.Time
}

// New wraps an opened, migrated database.
func New(database *db.DB, maintenance db.Maintenance, log *logger.Logger) *SQLStore {
	if maintenance == nil {
		maintenance = db.NoOpMaintenance{}
	}

	return &SQLStore{
		db:          database,
		log:         log.WithComponent(common.ComponentStore),
		maintenance: maintenance,
		now:         time.Now,
	}
}

// Open opens the configured database, applies the schema migrations and
// returns a store on top of it.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*SQLStore, error) {
	database, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrations.RunMigrations(log, database.DB, database.Dialect()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := New(database, db.NewMaintenance(database, cfg, log), log)
	s.log.Infow("store opened", "driver", cfg.Driver, "dialect", database.Dialect())

	return s, nil
}

// Maintenance returns the maintenance coordinator bound to the database.
func (s *SQLStore) Maintenance() db.Maintenance {
	return s.maintenance
}

// RunInTx runs fn in a transaction. A panic in fn rolls the transaction back
// and is re-raised.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	start := time.Now()
	defer func() { observeOperation("tx", start, err) }()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(&txView{tx: sqlTx, db: s.db, now: s.now}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.Errorw("failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCursor returns the next height to fetch for chain.
func (s *SQLStore) GetCursor(ctx context.Context, chain common.Chain) (uint64, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var cursor Cursor
	err := s.db.Meddler().QueryRow(withContext(ctx, s.db), &cursor,
		s.db.Rebind(`SELECT * FROM cursors WHERE chain = ?`), string(chain))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor for %s: %w", chain, err)
	}

	return cursor.NextHeight, nil
}

// SaveCursor upserts the cursor of chain.
func (s *SQLStore) SaveCursor(ctx context.Context, chain common.Chain, nextHeight uint64) (err error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	start := time.Now()
	defer func() { observeOperation("save_cursor", start, err) }()

	const query = `
		INSERT INTO cursors (chain, next_height, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (chain) DO UPDATE SET next_height = excluded.next_height, updated_at = excluded.updated_at
	`
	if _, err = s.db.ExecContext(ctx, s.db.Rebind(query), string(chain), nextHeight, s.now().Unix()); err != nil {
		return fmt.Errorf("failed to save cursor for %s: %w", chain, err)
	}

	s.log.Debugw("cursor saved", "chain", chain, "next_height", nextHeight)

	return nil
}

// ResetCursor forgets the persisted cursor so the next start resolves it from config.
func (s *SQLStore) ResetCursor(ctx context.Context, chain common.Chain) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM cursors WHERE chain = ?`), string(chain)); err != nil {
		return fmt.Errorf("failed to reset cursor for %s: %w", chain, err)
	}

	s.log.Warnw("cursor reset", "chain", chain)

	return nil
}

// EventsByType returns events of one type, newest first.
func (s *SQLStore) EventsByType(ctx context.Context, chain common.Chain, eventType string,
	limit, offset int) ([]*Event, error) {
	const query = `
		SELECT * FROM indexed_events
		WHERE chain = ? AND event_type = ?
		ORDER BY ledger_height DESC, id DESC
		LIMIT ? OFFSET ?
	`
	return s.queryEvents(ctx, query, string(chain), eventType, limit, offset)
}

// EventsByContract returns events emitted by one contract, newest first.
func (s *SQLStore) EventsByContract(ctx context.Context, chain common.Chain, contractID string,
	limit, offset int) ([]*Event, error) {
	const query = `
		SELECT * FROM indexed_events
		WHERE chain = ? AND contract_id = ?
		ORDER BY ledger_height DESC, id DESC
		LIMIT ? OFFSET ?
	`
	return s.queryEvents(ctx, query, string(chain), contractID, limit, offset)
}

func (s *SQLStore) queryEvents(ctx context.Context, query, chain, filter string,
	limit, offset int) ([]*Event, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	limit, offset = normalizePage(limit, offset)

	var events []*Event
	err := s.db.Meddler().QueryAll(withContext(ctx, s.db), &events, s.db.Rebind(query), chain, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	return events, nil
}

// Stats returns event counts per type and the last indexed height of chain.
func (s *SQLStore) Stats(ctx context.Context, chain common.Chain) (*Stats, error) {
	stats := &Stats{EventsByType: make(map[string]uint64)}

	err := func() error {
		unlock := s.maintenance.AcquireOperationLock()
		defer unlock()

		rows, err := s.db.QueryContext(ctx, s.db.Rebind(`
			SELECT event_type, COUNT(*) FROM indexed_events
			WHERE chain = ?
			GROUP BY event_type
		`), string(chain))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				eventType string
				count     uint64
			)
			if err := rows.Scan(&eventType, &count); err != nil {
				return err
			}
			stats.EventsByType[eventType] = count
			stats.TotalEvents += count
		}
		return rows.Err()
	}()
	if err != nil {
		return nil, fmt.Errorf("failed to count events for %s: %w", chain, err)
	}

	next, err := s.GetCursor(ctx, chain)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	case next > 0:
		stats.LastIndexedHeight = next - 1
	}

	return stats, nil
}

// GetCall returns the call with the given on-chain id.
func (s *SQLStore) GetCall(ctx context.Context, chain common.Chain, onchainID string) (*Call, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	return findCall(withContext(ctx, s.db), s.db, chain, onchainID)
}

// ListCalls lists calls of chain, newest first, optionally filtered by status.
func (s *SQLStore) ListCalls(ctx context.Context, chain common.Chain, status string,
	limit, offset int) ([]*Call, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	limit, offset = normalizePage(limit, offset)

	query := `SELECT * FROM calls WHERE chain = ?`
	args := []any{string(chain)}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var calls []*Call
	if err := s.db.Meddler().QueryAll(withContext(ctx, s.db), &calls, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}

	return calls, nil
}

// Close stops maintenance and closes the database.
func (s *SQLStore) Close() error {
	if err := s.maintenance.Stop(); err != nil {
		s.log.Warnw("failed to stop maintenance", "error", err)
	}

	return s.db.Close()
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// queryer is the query surface meddler runs on.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// contextConn is satisfied by both *db.DB and *sql.Tx.
type contextConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ctxQueryer runs meddler's plain calls under ctx.
type ctxQueryer struct {
	ctx  context.Context
	conn contextConn
}

func withContext(ctx context.Context, conn contextConn) queryer {
	return ctxQueryer{ctx: ctx, conn: conn}
}

func (q ctxQueryer) Exec(query string, args ...any) (sql.Result, error) {
	return q.conn.ExecContext(q.ctx, query, args...)
}

func (q ctxQueryer) Query(query string, args ...any) (*sql.Rows, error) {
	return q.conn.QueryContext(q.ctx, query, args...)
}

func (q ctxQueryer) QueryRow(query string, args ...any) *sql.Row {
	return q.conn.QueryRowContext(q.ctx, query, args...)
}

func findCall(q queryer, database *db.DB, chain common.Chain, onchainID string) (*Call, error) {
	var call Call
	err := database.Meddler().QueryRow(q, &call,
		database.Rebind(`SELECT * FROM calls WHERE chain = ? AND call_onchain_id = ?`), string(chain), onchainID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find call %s/%s: %w", chain, onchainID, err)
	}

	return &call, nil
}

// txView implements Tx on top of one *sql.Tx.
type txView struct {
	tx  *sql.Tx
	db  *db.DB
	now func() time.Time
}

func (t *txView) FindEvent(ctx context.Context, chain common.Chain, txHash string, seq uint64) (*Event, error) {
	var ev Event
	err := t.db.Meddler().QueryRow(withContext(ctx, t.tx), &ev, t.db.Rebind(`
		SELECT * FROM indexed_events
		WHERE chain = ? AND tx_hash = ? AND event_sequence = ?
	`), string(chain), txHash, seq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event %s/%s/%d: %w", chain, txHash, seq, err)
	}

	return &ev, nil
}

func (t *txView) InsertEvent(ctx context.Context, ev *Event) error {
	if ev.CreatedAt == 0 {
		ev.CreatedAt = t.now().Unix()
	}

	if err := t.db.Meddler().Insert(withContext(ctx, t.tx), "indexed_events", ev); err != nil {
		return fmt.Errorf("failed to insert event %s/%s/%d: %w", ev.Chain, ev.TxHash, ev.EventSequence, err)
	}

	return nil
}

func (t *txView) FindCall(ctx context.Context, chain common.Chain, onchainID string) (*Call, error) {
	return findCall(withContext(ctx, t.tx), t.db, chain, onchainID)
}

func (t *txView) InsertCall(ctx context.Context, call *Call) error {
	now := t.now().Unix()
	if call.Status == "" {
		call.Status = CallStatusActive
	}
	if call.TotalStakeYes == nil {
		call.TotalStakeYes = new(big.Int)
	}
	if call.TotalStakeNo == nil {
		call.TotalStakeNo = new(big.Int)
	}
	if call.CreatedAt == 0 {
		call.CreatedAt = now
	}
	call.UpdatedAt = now

	if err := t.db.Meddler().Insert(withContext(ctx, t.tx), "calls", call); err != nil {
		return fmt.Errorf("failed to insert call %s/%s: %w", call.Chain, call.CallOnchainID, err)
	}

	return nil
}

func (t *txView) IncrementStake(ctx context.Context, callID int64, position bool, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid stake amount %v for call %d", amount, callID)
	}

	query := `SELECT total_stake_yes, total_stake_no FROM calls WHERE id = ?`
	if t.db.Dialect() == db.DialectPostgres {
		query += ` FOR UPDATE`
	}

	var yes, no sql.NullString
	err := t.tx.QueryRowContext(ctx, t.db.Rebind(query), callID).Scan(&yes, &no)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read stake totals of call %d: %w", callID, err)
	}

	column, current := "total_stake_no", no
	if position {
		column, current = "total_stake_yes", yes
	}

	total, err := parseDecimal(current)
	if err != nil {
		return fmt.Errorf("call %d %s: %w", callID, column, err)
	}
	total.Add(total, amount)

	update := `UPDATE calls SET ` + column + ` = ?, updated_at = ? WHERE id = ?`
	if _, err := t.tx.ExecContext(ctx, t.db.Rebind(update), total.String(), t.now().Unix(), callID); err != nil {
		return fmt.Errorf("failed to update %s of call %d: %w", column, callID, err)
	}

	return nil
}

func (t *txView) SettleCall(ctx context.Context, callID int64, outcome bool, finalPrice *big.Int) error {
	status := CallStatusResolvedNo
	if outcome {
		status = CallStatusResolvedYes
	}

	var price any
	if finalPrice != nil {
		price = finalPrice.String()
	}

	res, err := t.tx.ExecContext(ctx, t.db.Rebind(`
		UPDATE calls SET outcome = ?, final_price = ?, status = ?, updated_at = ?
		WHERE id = ?
	`), outcome, price, status, t.now().Unix(), callID)
	if err != nil {
		return fmt.Errorf("failed to settle call %d: %w", callID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to settle call %d: %w", callID, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func parseDecimal(ns sql.NullString) (*big.Int, error) {
	if !ns.Valid || ns.String == "" {
		return new(big.Int), nil
	}

	v, ok := new(big.Int).SetString(ns.String, 10) //nolint:mnd
	if !ok {
		return nil, fmt.Errorf("invalid decimal integer %q", ns.String)
	}
	return v, nil
}

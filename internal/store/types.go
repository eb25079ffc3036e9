package store

import (
	"context"
	"errors"
	"math/big"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Call statuses.
const (
	CallStatusActive      = "active"
	CallStatusResolvedYes = "resolved_yes"
	CallStatusResolvedNo  = "resolved_no"
)

// IsTerminalStatus reports whether a call with this status has been settled.
func IsTerminalStatus(status string) bool {
	return status == CallStatusResolvedYes || status == CallStatusResolvedNo
}

// Event is a row of indexed_events.
type Event struct {
	ID            int64              `meddler:"id,pk"`
	Chain         common.Chain       `meddler:"chain"`
	TxHash        string             `meddler:"tx_hash"`
	EventSequence uint64             `meddler:"event_sequence"`
	ContractID    string             `meddler:"contract_id"`
	EventType     string             `meddler:"event_type"`
	LedgerHeight  uint64             `meddler:"ledger_height"`
	Data          *decoder.EventData `meddler:"event_data,json"`
	CreatedAt     int64              `meddler:"created_at"`
}

// EventFromDecoded builds the row for a decoded event.
func EventFromDecoded(ev *decoder.DecodedEvent) *Event {
	data := ev.Data
	if data == nil {
		data = decoder.NewEventData()
	}

	return &Event{
		Chain:         ev.Chain,
		TxHash:        ev.TxHash,
		EventSequence: ev.Sequence,
		ContractID:    ev.ContractID,
		EventType:     ev.Type,
		LedgerHeight:  ev.Ledger,
		Data:          data,
	}
}

// Call is a row of calls.
type Call struct {
	ID            int64        `meddler:"id,pk"`
	Chain         common.Chain `meddler:"chain"`
	CallOnchainID string       `meddler:"call_onchain_id"`
	CreatorWallet string       `meddler:"creator_wallet"`
	StakeToken    string       `meddler:"stake_token"`
	StakeAmount   *big.Int     `meddler:"stake_amount,bigint"`
	StartTs       string       `meddler:"start_ts"`
	EndTs         string       `meddler:"end_ts"`
	TokenAddress  string       `meddler:"token_address"`
	PairID        string       `meddler:"pair_id"`
	IpfsCID       string       `meddler:"ipfs_cid"`
	Status        string       `meddler:"status"`
	Outcome       *bool        `meddler:"outcome"`
	FinalPrice    *big.Int     `meddler:"final_price,bigint"`
	TotalStakeYes *big.Int     `meddler:"total_stake_yes,bigint"`
	TotalStakeNo  *big.Int     `meddler:"total_stake_no,bigint"`
	TxHash        string       `meddler:"tx_hash"`
	ContractID    string       `meddler:"contract_id"`
	CreatedAt     int64        `meddler:"created_at"`
	UpdatedAt     int64        `meddler:"updated_at"`
}

// Cursor is a row of cursors. NextHeight is the first height not yet indexed.
type Cursor struct {
	Chain      common.Chain `meddler:"chain"`
	NextHeight uint64       `meddler:"next_height"`
	UpdatedAt  int64        `meddler:"updated_at"`
}

// Stats summarizes what has been indexed for one chain.
type Stats struct {
	TotalEvents       uint64            `json:"total_events"`
	EventsByType      map[string]uint64 `json:"events_by_type"`
	LastIndexedHeight uint64            `json:"last_indexed_height"`
}

// Tx is the transactional view used by the sink. All calls share one
// database transaction.
type Tx interface {
	// FindEvent returns ErrNotFound if no event has this identity.
	FindEvent(ctx context.Context, chain common.Chain, txHash string, seq uint64) (*Event, error)
	InsertEvent(ctx context.Context, ev *Event) error
	// FindCall returns ErrNotFound if the call does not exist.
	FindCall(ctx context.Context, chain common.Chain, onchainID string) (*Call, error)
	InsertCall(ctx context.Context, call *Call) error
	// IncrementStake adds amount to the yes or no total of the call.
	IncrementStake(ctx context.Context, callID int64, position bool, amount *big.Int) error
	// SettleCall records the outcome of a call and moves it to a terminal status.
	SettleCall(ctx context.Context, callID int64, outcome bool, finalPrice *big.Int) error
}

// Store is the persistence layer shared by all pollers and the API.
type Store interface {
	// RunInTx runs fn in a transaction. The transaction commits if fn returns nil.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// GetCursor returns ErrNotFound if the chain has no persisted cursor.
	GetCursor(ctx context.Context, chain common.Chain) (uint64, error)
	SaveCursor(ctx context.Context, chain common.Chain, nextHeight uint64) error
	ResetCursor(ctx context.Context, chain common.Chain) error

	EventsByType(ctx context.Context, chain common.Chain, eventType string, limit, offset int) ([]*Event, error)
	EventsByContract(ctx context.Context, chain common.Chain, contractID string, limit, offset int) ([]*Event, error)
	Stats(ctx context.Context, chain common.Chain) (*Stats, error)

	GetCall(ctx context.Context, chain common.Chain, onchainID string) (*Call, error)
	// ListCalls lists calls newest first. An empty status matches all calls.
	ListCalls(ctx context.Context, chain common.Chain, status string, limit, offset int) ([]*Call, error)

	Close() error
}

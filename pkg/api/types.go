package api

import (
	"time"

	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/orchestrator"
	"github.com/prediction-market/callindexor/internal/store"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// LifecycleResponse is returned by the start and stop endpoints.
type LifecycleResponse struct {
	Message string              `json:"message"`
	Status  orchestrator.Status `json:"status"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	IsRunning bool      `json:"is_running"`
}

// EventsResponse is a page of indexed events.
type EventsResponse struct {
	Events     []EventView      `json:"events"`
	Pagination PaginationResult `json:"pagination"`
}

// CallsResponse is a page of calls.
type CallsResponse struct {
	Calls      []CallView       `json:"calls"`
	Pagination PaginationResult `json:"pagination"`
}

// PaginationResult contains pagination metadata.
type PaginationResult struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// EventView is the JSON form of an indexed event.
type EventView struct {
	Chain         string             `json:"chain"`
	TxHash        string             `json:"tx_hash"`
	EventSequence uint64             `json:"event_sequence"`
	ContractID    string             `json:"contract_id"`
	EventType     string             `json:"event_type"`
	LedgerHeight  uint64             `json:"ledger_height"`
	Data          *decoder.EventData `json:"event_data" swaggertype:"object"`
	CreatedAt     time.Time          `json:"created_at"`
}

// CallView is the JSON form of a call. Amounts are decimal strings.
type CallView struct {
	Chain         string    `json:"chain"`
	CallOnchainID string    `json:"call_onchain_id"`
	CreatorWallet string    `json:"creator_wallet"`
	StakeToken    string    `json:"stake_token"`
	StakeAmount   string    `json:"stake_amount"`
	StartTs       string    `json:"start_ts"`
	EndTs         string    `json:"end_ts"`
	TokenAddress  string    `json:"token_address"`
	PairID        string    `json:"pair_id"`
	IpfsCID       string    `json:"ipfs_cid"`
	Status        string    `json:"status"`
	Outcome       *bool     `json:"outcome,omitempty"`
	FinalPrice    string    `json:"final_price,omitempty"`
	TotalStakeYes string    `json:"total_stake_yes"`
	TotalStakeNo  string    `json:"total_stake_no"`
	TxHash        string    `json:"tx_hash"`
	ContractID    string    `json:"contract_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newEventView(ev *store.Event) EventView {
	return EventView{
		Chain:         ev.Chain.String(),
		TxHash:        ev.TxHash,
		EventSequence: ev.EventSequence,
		ContractID:    ev.ContractID,
		EventType:     ev.EventType,
		LedgerHeight:  ev.LedgerHeight,
		Data:          ev.Data,
		CreatedAt:     time.Unix(ev.CreatedAt, 0).UTC(),
	}
}

func newCallView(c *store.Call) CallView {
	view := CallView{
		Chain:         c.Chain.String(),
		CallOnchainID: c.CallOnchainID,
		CreatorWallet: c.CreatorWallet,
		StakeToken:    c.StakeToken,
		StakeAmount:   "0",
		StartTs:       c.StartTs,
		EndTs:         c.EndTs,
		TokenAddress:  c.TokenAddress,
		PairID:        c.PairID,
		IpfsCID:       c.IpfsCID,
		Status:        c.Status,
		Outcome:       c.Outcome,
		TotalStakeYes: "0",
		TotalStakeNo:  "0",
		TxHash:        c.TxHash,
		ContractID:    c.ContractID,
		CreatedAt:     time.Unix(c.CreatedAt, 0).UTC(),
		UpdatedAt:     time.Unix(c.UpdatedAt, 0).UTC(),
	}

	if c.StakeAmount != nil {
		view.StakeAmount = c.StakeAmount.String()
	}
	if c.FinalPrice != nil {
		view.FinalPrice = c.FinalPrice.String()
	}
	if c.TotalStakeYes != nil {
		view.TotalStakeYes = c.TotalStakeYes.String()
	}
	if c.TotalStakeNo != nil {
		view.TotalStakeNo = c.TotalStakeNo.String()
	}

	return view
}

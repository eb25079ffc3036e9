package rpc

// EventFilter selects contract events by contract id.
type EventFilter struct {
	Type        string   `json:"type,omitempty"`
	ContractIDs []string `json:"contractIds,omitempty"`
}

// Pagination controls the getEvents page. Cursor and StartLedger are mutually exclusive.
type Pagination struct {
	Limit  uint   `json:"limit,omitempty"`
	Cursor string `json:"cursor,omitempty"`
}

// GetEventsRequest holds the named params of the getEvents method.
type GetEventsRequest struct {
	StartLedger uint32        `json:"startLedger,omitempty"`
	Filters     []EventFilter `json:"filters"`
	Pagination  *Pagination   `json:"pagination,omitempty"`
}

// SorobanEvent is a contract event as returned by getEvents.
// Topic and Value hold base64 encoded XDR ScVals.
type SorobanEvent struct {
	Type                     string   `json:"type"`
	Ledger                   uint32   `json:"ledger"`
	LedgerClosedAt           string   `json:"ledgerClosedAt"`
	ContractID               string   `json:"contractId"`
	ID                       string   `json:"id"`
	PagingToken              string   `json:"pagingToken,omitempty"`
	InSuccessfulContractCall bool     `json:"inSuccessfulContractCall"`
	TxHash                   string   `json:"txHash"`
	Topic                    []string `json:"topic"`
	Value                    string   `json:"value"`
}

// GetEventsResponse is one page of getEvents results.
type GetEventsResponse struct {
	Events       []SorobanEvent `json:"events"`
	Cursor       string         `json:"cursor"`
	LatestLedger uint32         `json:"latestLedger"`
}

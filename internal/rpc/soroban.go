package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	pkgrpc "github.com/prediction-market/callindexor/pkg/rpc"
)

const (
	defaultSorobanTimeout = 30 * time.Second
	maxErrorBodyBytes     = 512
)

// Compile-time check to ensure SorobanClient implements pkgrpc.SorobanClient interface.
var _ pkgrpc.SorobanClient = (*SorobanClient)(nil)

// JSONRPCError is an error object returned by a JSON-RPC server.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("json-rpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *JSONRPCError   `json:"error"`
}

// SorobanClient talks JSON-RPC 2.0 to a Stellar RPC (Soroban) endpoint.
type SorobanClient struct {
	endpoint string
	http     *http.Client
	limiter  *RateLimiter
	nextID   atomic.Uint64
}

// NewSorobanClient creates a client for endpoint. A zero timeout uses 30s;
// a nil limiter disables rate limiting.
func NewSorobanClient(endpoint string, timeout time.Duration, limiter *RateLimiter) *SorobanClient {
	if timeout <= 0 {
		timeout = defaultSorobanTimeout
	}

	return &SorobanClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		limiter:  limiter,
	}
}

// GetLatestLedger returns the sequence of the latest closed ledger.
func (c *SorobanClient) GetLatestLedger(ctx context.Context) (uint32, error) {
	var result struct {
		ID              string `json:"id"`
		ProtocolVersion uint32 `json:"protocolVersion"`
		Sequence        uint32 `json:"sequence"`
	}

	if err := c.call(ctx, "getLatestLedger", nil, &result); err != nil {
		return 0, err
	}

	return result.Sequence, nil
}

// GetEvents returns one page of contract events.
func (c *SorobanClient) GetEvents(ctx context.Context, req pkgrpc.GetEventsRequest) (*pkgrpc.GetEventsResponse, error) {
	var result pkgrpc.GetEventsResponse
	if err := c.call(ctx, "getEvents", req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *SorobanClient) call(ctx context.Context, method string, params, result any) error {
	return instrument(ctx, c.limiter, common.ChainStellar, method, func() error {
		id := c.nextID.Add(1)
		body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", method, err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create %s request: %w", method, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return fmt.Errorf("failed to send %s request: %w", method, err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyBytes))
			return fmt.Errorf("%s: unexpected status code %d: %s", method, httpResp.StatusCode, bytes.TrimSpace(snippet))
		}

		var resp jsonRPCResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if resp.ID != id {
			return fmt.Errorf("%s: response id %d does not match request id %d", method, resp.ID, id)
		}

		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}

		return nil
	})
}

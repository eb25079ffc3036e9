package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/orchestrator"
	"github.com/prediction-market/callindexor/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Indexer is the orchestrator surface the API needs: lifecycle control plus
// read access to the indexed data.
type Indexer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() orchestrator.Status

	EventsByType(ctx context.Context, chain common.Chain, eventType string, limit, offset int) ([]*store.Event, error)
	EventsByContract(ctx context.Context, chain common.Chain, contractID string, limit, offset int) ([]*store.Event, error)
	Stats(ctx context.Context, chain common.Chain) (*store.Stats, error)
	Call(ctx context.Context, chain common.Chain, onchainID string) (*store.Call, error)
	Calls(ctx context.Context, chain common.Chain, status string, limit, offset int) ([]*store.Call, error)
}

// Handler handles HTTP requests for the API.
type Handler struct {
	indexer Indexer
	log     *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(idx Indexer, log *logger.Logger) *Handler {
	return &Handler{
		indexer: idx,
		log:     log,
	}
}

// StartIndexer starts every enabled chain indexer.
// @Summary Start indexing
// @Description Start the poll loop of every enabled chain. Starting a running indexer is a no-op.
// @Tags Indexer
// @Produce json
// @Success 200 {object} LifecycleResponse "Indexer status after start"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /indexer/start [post]
func (h *Handler) StartIndexer(w http.ResponseWriter, r *http.Request) {
	if err := h.indexer.Start(r.Context()); err != nil {
		h.log.Errorw("failed to start indexer", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to start indexer")
		return
	}

	respondJSON(w, http.StatusOK, LifecycleResponse{Message: "indexer started", Status: h.indexer.Status()})
}

// StopIndexer stops every chain indexer.
// @Summary Stop indexing
// @Description Stop the poll loop of every chain. In-flight cycles do not advance their cursor.
// @Tags Indexer
// @Produce json
// @Success 200 {object} LifecycleResponse "Indexer status after stop"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /indexer/stop [post]
func (h *Handler) StopIndexer(w http.ResponseWriter, r *http.Request) {
	if err := h.indexer.Stop(r.Context()); err != nil {
		h.log.Errorw("failed to stop indexer", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to stop indexer")
		return
	}

	respondJSON(w, http.StatusOK, LifecycleResponse{Message: "indexer stopped", Status: h.indexer.Status()})
}

// GetStatus returns the orchestrator status.
// @Summary Indexer status
// @Description Running flag, enabled chains and the state and cursor of each chain indexer
// @Tags Indexer
// @Produce json
// @Success 200 {object} orchestrator.Status "Indexer status"
// @Router /indexer/status [get]
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.indexer.Status())
}

// GetEventsByType lists indexed events of one type.
// @Summary Events by type
// @Description List indexed events of one type, newest first
// @Tags Events
// @Produce json
// @Param chain path string true "Chain" Enums(base, stellar)
// @Param eventType path string true "Event type, e.g. CallCreated or stake_added"
// @Param limit query int false "Maximum number of events to return" default(100)
// @Param offset query int false "Number of events to skip" default(0)
// @Success 200 {object} EventsResponse "Events with pagination info"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /indexer/{chain}/events/type/{eventType} [get]
func (h *Handler) GetEventsByType(w http.ResponseWriter, r *http.Request) {
	chain, ok := parseChainParam(w, r)
	if !ok {
		return
	}
	eventType := decoder.NormalizeEventName(r.PathValue("eventType"))

	limit, offset, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
		return
	}

	events, err := h.indexer.EventsByType(r.Context(), chain, eventType, limit+1, offset)
	if err != nil {
		h.log.Errorw("failed to query events by type", "chain", chain, "event_type", eventType, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	respondJSON(w, http.StatusOK, eventsPage(events, limit, offset))
}

// GetEventsByContract lists indexed events emitted by one contract.
// @Summary Events by contract
// @Description List indexed events emitted by one contract, newest first
// @Tags Events
// @Produce json
// @Param chain path string true "Chain" Enums(base, stellar)
// @Param contractId path string true "Contract address (base) or contract id (stellar)"
// @Param limit query int false "Maximum number of events to return" default(100)
// @Param offset query int false "Number of events to skip" default(0)
// @Success 200 {object} EventsResponse "Events with pagination info"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /indexer/{chain}/events/contract/{contractId} [get]
func (h *Handler) GetEventsByContract(w http.ResponseWriter, r *http.Request) {
	chain, ok := parseChainParam(w, r)
	if !ok {
		return
	}
	contractID := r.PathValue("contractId")

	limit, offset, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
		return
	}

	events, err := h.indexer.EventsByContract(r.Context(), chain, contractID, limit+1, offset)
	if err != nil {
		h.log.Errorw("failed to query events by contract", "chain", chain, "contract_id", contractID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to query events")
		return
	}

	respondJSON(w, http.StatusOK, eventsPage(events, limit, offset))
}

// GetStats returns the event counts of one chain.
// @Summary Chain statistics
// @Description Event counts by type and the last indexed height of one chain
// @Tags Stats
// @Produce json
// @Param chain path string true "Chain" Enums(base, stellar)
// @Success 200 {object} store.Stats "Chain statistics"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /indexer/{chain}/stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	chain, ok := parseChainParam(w, r)
	if !ok {
		return
	}

	stats, err := h.indexer.Stats(r.Context(), chain)
	if err != nil {
		h.log.Errorw("failed to get stats", "chain", chain, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// ListCalls lists the calls of one chain.
// @Summary List calls
// @Description List calls newest first, optionally filtered by status
// @Tags Calls
// @Produce json
// @Param chain path string true "Chain" Enums(base, stellar)
// @Param status query string false "Call status" Enums(active, resolved_yes, resolved_no)
// @Param limit query int false "Maximum number of calls to return" default(100)
// @Param offset query int false "Number of calls to skip" default(0)
// @Success 200 {object} CallsResponse "Calls with pagination info"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /indexer/{chain}/calls [get]
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	chain, ok := parseChainParam(w, r)
	if !ok {
		return
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", store.CallStatusActive, store.CallStatusResolvedYes, store.CallStatusResolvedNo:
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid query parameters: %v", err))
		return
	}

	calls, err := h.indexer.Calls(r.Context(), chain, status, limit+1, offset)
	if err != nil {
		h.log.Errorw("failed to list calls", "chain", chain, "status", status, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}

	hasMore := len(calls) > limit
	if hasMore {
		calls = calls[:limit]
	}

	views := make([]CallView, 0, len(calls))
	for _, c := range calls {
		views = append(views, newCallView(c))
	}

	respondJSON(w, http.StatusOK, CallsResponse{
		Calls:      views,
		Pagination: PaginationResult{Limit: limit, Offset: offset, HasMore: hasMore},
	})
}

// GetCall returns one call by its on-chain id.
// @Summary Get call
// @Description Get one call with its stake totals and outcome
// @Tags Calls
// @Produce json
// @Param chain path string true "Chain" Enums(base, stellar)
// @Param callId path string true "On-chain call id"
// @Success 200 {object} CallView "Call"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 404 {object} ErrorResponse "Call not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /indexer/{chain}/calls/{callId} [get]
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	chain, ok := parseChainParam(w, r)
	if !ok {
		return
	}
	callID := r.PathValue("callId")

	call, err := h.indexer.Call(r.Context(), chain, callID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("call '%s' not found", callID))
		return
	}
	if err != nil {
		h.log.Errorw("failed to get call", "chain", chain, "call_id", callID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get call")
		return
	}

	respondJSON(w, http.StatusOK, newCallView(call))
}

// Health returns the health status of the API.
// @Summary Health check
// @Description Check that the API is serving and whether indexing is running
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "API health status"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		IsRunning: h.indexer.Status().IsRunning,
	})
}

func parseChainParam(w http.ResponseWriter, r *http.Request) (common.Chain, bool) {
	chain, err := common.ParseChain(r.PathValue("chain"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return chain, true
}

// parsePagination parses limit and offset query parameters.
func parsePagination(r *http.Request) (int, int, error) {
	limit, offset := defaultLimit, 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 || l > maxLimit {
			return 0, 0, fmt.Errorf("invalid limit: must be between 1 and %d", maxLimit)
		}
		limit = l
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil || o < 0 {
			return 0, 0, fmt.Errorf("invalid offset: must be non-negative")
		}
		offset = o
	}

	return limit, offset, nil
}

// eventsPage trims the extra row fetched to detect a following page.
func eventsPage(events []*store.Event, limit, offset int) EventsResponse {
	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	views := make([]EventView, 0, len(events))
	for _, ev := range events {
		views = append(views, newEventView(ev))
	}

	return EventsResponse{
		Events:     views,
		Pagination: PaginationResult{Limit: limit, Offset: offset, HasMore: hasMore},
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// encode first so a failure can still change the status
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

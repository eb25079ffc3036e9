package rpc

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prediction-market/callindexor/internal/common"
)

var (
	tooManyResultsRe = regexp.MustCompile(`Query returned more than \d+ results`)
	blockRangeRe     = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// FetchError is returned once a fetch operation has failed on every attempt.
type FetchError struct {
	Chain    common.Chain
	Op       string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Chain, e.Op, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTooManyResultsError checks if the error is an RPC "too many results" error (DataError with message in ErrorData).
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		errData := fmt.Sprintf("%v", dataErr.ErrorData())
		return tooManyResultsRe.MatchString(errData), errData
	}

	return false, ""
}

// ParseSuggestedBlockRange attempts to extract the suggested block range from the error message.
// Expected format: "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(err string) (fromBlock, toBlock uint64, ok bool) {
	if err == "" {
		return 0, 0, false
	}

	matches := blockRangeRe.FindStringSubmatch(err)

	const expectedMatches = 3 // full match + 2 groups
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := common.ParseUint64orHex(&matches[1])
	to, err2 := common.ParseUint64orHex(&matches[2])

	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return from, to, true
}

// errorType labels an error for the rpc_errors_total metric.
func errorType(err error) string {
	if ok, _ := IsTooManyResultsError(err); ok {
		return "too_many_results"
	}

	var rpcErr *JSONRPCError
	if errors.As(err, &rpcErr) {
		return "jsonrpc"
	}

	if retryableError(err) {
		return "transient"
	}

	return "other"
}

package decoder

import (
	"bytes"
	_ "embed"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prediction-market/callindexor/internal/common"
)

//go:embed abi/call_registry.json
var callRegistryABIJSON []byte

// callRegistryEvents fixes the order of Topics().
var callRegistryEvents = []string{EventCallCreated, EventStakeAdded, EventOutcomeSubmitted}

var (
	callRegistryABI     abi.ABI
	callRegistryABIOnce sync.Once
	callRegistryABIErr  error
)

// CallRegistryABI returns the parsed CallRegistry event ABI.
func CallRegistryABI() (abi.ABI, error) {
	callRegistryABIOnce.Do(func() {
		callRegistryABI, callRegistryABIErr = abi.JSON(bytes.NewReader(callRegistryABIJSON))
	})
	return callRegistryABI, callRegistryABIErr
}

// EVMDecoder decodes CallRegistry logs.
type EVMDecoder struct {
	abi    abi.ABI
	topics []ethcommon.Hash
}

// NewEVMDecoder builds a decoder for the CallRegistry ABI.
func NewEVMDecoder() (*EVMDecoder, error) {
	parsed, err := CallRegistryABI()
	if err != nil {
		return nil, fmt.Errorf("parse CallRegistry ABI: %w", err)
	}

	topics := make([]ethcommon.Hash, 0, len(callRegistryEvents))
	for _, name := range callRegistryEvents {
		ev, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("CallRegistry ABI has no %s event", name)
		}
		topics = append(topics, ev.ID)
	}

	return &EVMDecoder{abi: parsed, topics: topics}, nil
}

// Topics returns the topic0 of every known event, for use as a log filter.
func (d *EVMDecoder) Topics() []ethcommon.Hash {
	return append([]ethcommon.Hash(nil), d.topics...)
}

// Decode turns a log into a DecodedEvent with fields in ABI input order.
func (d *EVMDecoder) Decode(log types.Log) (*DecodedEvent, error) {
	fail := func(reason string, err error) (*DecodedEvent, error) {
		return nil, &DecodeError{
			Chain:    common.ChainBase,
			TxHash:   log.TxHash.Hex(),
			Sequence: uint64(log.Index),
			Reason:   reason,
			Err:      err,
		}
	}

	if len(log.Topics) == 0 {
		return fail("log has no topics", nil)
	}

	event, err := d.abi.EventByID(log.Topics[0])
	if err != nil {
		return fail("unknown event "+log.Topics[0].Hex(), err)
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics) != len(indexed)+1 {
		return fail(fmt.Sprintf("%s: expected %d topics, got %d", event.Name, len(indexed)+1, len(log.Topics)), nil)
	}

	values := make(map[string]any, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return fail(event.Name+": parse topics", err)
	}
	if err := event.Inputs.UnpackIntoMap(values, log.Data); err != nil {
		return fail(event.Name+": unpack data", err)
	}

	data := NewEventData()
	for _, arg := range event.Inputs {
		data.Set(arg.Name, normalizeABIValue(values[arg.Name]))
	}

	return &DecodedEvent{
		Chain:      common.ChainBase,
		Type:       event.Name,
		ContractID: log.Address.Hex(),
		Ledger:     log.BlockNumber,
		TxHash:     log.TxHash.Hex(),
		Sequence:   uint64(log.Index),
		Data:       data,
	}, nil
}

// normalizeABIValue converts unpacked ABI values into JSON-safe forms.
// Integers become decimal strings so no precision is lost.
func normalizeABIValue(v any) any {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return nil
		}
		return val.String()
	case ethcommon.Address:
		return val.Hex()
	case ethcommon.Hash:
		return val.Hex()
	case [32]byte:
		return hexutil.Encode(val[:])
	case []byte:
		return hexutil.Encode(val)
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return fmt.Sprint(val)
	default:
		return val
	}
}

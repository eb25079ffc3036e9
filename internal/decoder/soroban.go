package decoder

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/pkg/rpc"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// SorobanDecoder decodes Soroban contract events returned by getEvents.
type SorobanDecoder struct{}

// NewSorobanDecoder returns a Soroban event decoder.
func NewSorobanDecoder() *SorobanDecoder {
	return &SorobanDecoder{}
}

// Decode turns a raw getEvents entry into a DecodedEvent.
// Data keys are topic_1..topic_N followed by data_0.
func (d *SorobanDecoder) Decode(ev rpc.SorobanEvent) (*DecodedEvent, error) {
	seq := common.ParseEventSequence(ev.ID)
	fail := func(reason string, err error) (*DecodedEvent, error) {
		return nil, &DecodeError{
			Chain:    common.ChainStellar,
			TxHash:   ev.TxHash,
			Sequence: seq,
			Reason:   reason,
			Err:      err,
		}
	}

	topics := make([]xdr.ScVal, len(ev.Topic))
	for i, raw := range ev.Topic {
		if err := xdr.SafeUnmarshalBase64(raw, &topics[i]); err != nil {
			return fail(fmt.Sprintf("topic %d is not a valid ScVal", i), err)
		}
	}

	var value xdr.ScVal
	if ev.Value == "" {
		value.Type = xdr.ScValTypeScvVoid
	} else if err := xdr.SafeUnmarshalBase64(ev.Value, &value); err != nil {
		return fail("value is not a valid ScVal", err)
	}

	data := NewEventData()
	for i := 1; i < len(topics); i++ {
		data.Set("topic_"+strconv.Itoa(i), DecodeScVal(topics[i]))
	}
	data.Set("data_0", DecodeScVal(value))

	return &DecodedEvent{
		Chain:      common.ChainStellar,
		Type:       sorobanEventType(topics),
		ContractID: ev.ContractID,
		Ledger:     uint64(ev.Ledger),
		TxHash:     ev.TxHash,
		Sequence:   seq,
		Data:       data,
	}, nil
}

func sorobanEventType(topics []xdr.ScVal) string {
	if len(topics) == 0 {
		return EventUnknown
	}
	sym, ok := topics[0].GetSym()
	if !ok {
		return EventUnknown
	}
	return NormalizeEventName(string(sym))
}

// DecodeScVal converts an ScVal into plain Go values:
// integers and timestamps become decimal strings, bytes lowercase hex,
// addresses strkeys, vecs []any and maps map[string]any.
// Tags without a mapping decode to nil.
func DecodeScVal(v xdr.ScVal) any {
	switch v.Type {
	case xdr.ScValTypeScvBool:
		if b, ok := v.GetB(); ok {
			return b
		}
	case xdr.ScValTypeScvU32:
		if n, ok := v.GetU32(); ok {
			return strconv.FormatUint(uint64(n), 10)
		}
	case xdr.ScValTypeScvI32:
		if n, ok := v.GetI32(); ok {
			return strconv.FormatInt(int64(n), 10)
		}
	case xdr.ScValTypeScvU64:
		if n, ok := v.GetU64(); ok {
			return strconv.FormatUint(uint64(n), 10)
		}
	case xdr.ScValTypeScvI64:
		if n, ok := v.GetI64(); ok {
			return strconv.FormatInt(int64(n), 10)
		}
	case xdr.ScValTypeScvTimepoint:
		if n, ok := v.GetTimepoint(); ok {
			return strconv.FormatUint(uint64(n), 10)
		}
	case xdr.ScValTypeScvDuration:
		if n, ok := v.GetDuration(); ok {
			return strconv.FormatUint(uint64(n), 10)
		}
	case xdr.ScValTypeScvU128:
		if parts, ok := v.GetU128(); ok {
			hi := new(big.Int).SetUint64(uint64(parts.Hi))
			return hi.Lsh(hi, 64).Or(hi, new(big.Int).SetUint64(uint64(parts.Lo))).String() //nolint:mnd
		}
	case xdr.ScValTypeScvI128:
		if parts, ok := v.GetI128(); ok {
			hi := big.NewInt(int64(parts.Hi))
			return hi.Lsh(hi, 64).Add(hi, new(big.Int).SetUint64(uint64(parts.Lo))).String() //nolint:mnd
		}
	case xdr.ScValTypeScvBytes:
		if b, ok := v.GetBytes(); ok {
			return hex.EncodeToString(b)
		}
	case xdr.ScValTypeScvString:
		if s, ok := v.GetStr(); ok {
			return string(s)
		}
	case xdr.ScValTypeScvSymbol:
		if s, ok := v.GetSym(); ok {
			return string(s)
		}
	case xdr.ScValTypeScvAddress:
		if addr, ok := v.GetAddress(); ok {
			return encodeScAddress(addr)
		}
	case xdr.ScValTypeScvVec:
		out := []any{}
		if vec, ok := v.GetVec(); ok && vec != nil {
			for _, item := range *vec {
				out = append(out, DecodeScVal(item))
			}
		}
		return out
	case xdr.ScValTypeScvMap:
		out := map[string]any{}
		if m, ok := v.GetMap(); ok && m != nil {
			for _, entry := range *m {
				out[fmt.Sprint(DecodeScVal(entry.Key))] = DecodeScVal(entry.Val)
			}
		}
		return out
	}

	return nil
}

func encodeScAddress(addr xdr.ScAddress) any {
	var (
		s   string
		err error
	)

	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		if addr.AccountId == nil || addr.AccountId.Ed25519 == nil {
			return nil
		}
		s, err = strkey.Encode(strkey.VersionByteAccountID, addr.AccountId.Ed25519[:])
	case xdr.ScAddressTypeScAddressTypeContract:
		if addr.ContractId == nil {
			return nil
		}
		s, err = strkey.Encode(strkey.VersionByteContract, addr.ContractId[:])
	default:
		return nil
	}

	if err != nil {
		return nil
	}
	return s
}

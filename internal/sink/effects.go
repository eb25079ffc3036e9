package sink

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/decoder"
)

// callCreated carries the fields copied onto a new call row.
type callCreated struct {
	callID       string
	creator      string
	stakeToken   string
	stakeAmount  *big.Int
	startTs      string
	endTs        string
	tokenAddress string
	pairID       string
	ipfsCID      string
}

type stakeAdded struct {
	callID   string
	position bool
	amount   *big.Int
}

type outcomeSubmitted struct {
	callID     string
	outcome    bool
	finalPrice *big.Int
}

// extractEffect reads the per-type payload of ev. Event types without an
// effect on the call rows return nil. Malformed payloads yield a *decoder.DecodeError.
func extractEffect(ev *decoder.DecodedEvent) (any, error) {
	var (
		eff any
		err error
	)

	switch ev.Type {
	case decoder.EventCallCreated:
		if ev.Chain == common.ChainStellar {
			eff, err = sorobanCallCreated(ev.Data)
		} else {
			eff, err = evmCallCreated(ev.Data)
		}
	case decoder.EventStakeAdded:
		if ev.Chain == common.ChainStellar {
			eff, err = sorobanStakeAdded(ev.Data)
		} else {
			eff, err = evmStakeAdded(ev.Data)
		}
	case decoder.EventOutcomeSubmitted:
		if ev.Chain == common.ChainStellar {
			eff, err = sorobanOutcomeSubmitted(ev.Data)
		} else {
			eff, err = evmOutcomeSubmitted(ev.Data)
		}
	default:
		return nil, nil
	}

	if err != nil {
		return nil, &decoder.DecodeError{
			Chain:    ev.Chain,
			TxHash:   ev.TxHash,
			Sequence: ev.Sequence,
			Reason:   ev.Type + " payload",
			Err:      err,
		}
	}
	return eff, nil
}

func evmCallCreated(d *decoder.EventData) (*callCreated, error) {
	callID, err := requireID(d, "callId")
	if err != nil {
		return nil, err
	}

	stake, err := optionalAmount(d, "stakeAmount")
	if err != nil {
		return nil, err
	}

	return &callCreated{
		callID:       callID,
		creator:      stringField(d, "creator"),
		stakeToken:   stringField(d, "stakeToken"),
		stakeAmount:  stake,
		startTs:      stringField(d, "startTs"),
		endTs:        stringField(d, "endTs"),
		tokenAddress: stringField(d, "tokenAddress"),
		pairID:       stringField(d, "pairId"),
		ipfsCID:      stringField(d, "ipfsCID"),
	}, nil
}

func evmStakeAdded(d *decoder.EventData) (*stakeAdded, error) {
	callID, err := requireID(d, "callId")
	if err != nil {
		return nil, err
	}

	raw, _ := d.Get("position")
	position, ok := asBool(raw)
	if !ok {
		return nil, fmt.Errorf("position is missing or not a bool")
	}

	raw, _ = d.Get("amount")
	amount, err := asAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	return &stakeAdded{callID: callID, position: position, amount: amount}, nil
}

func evmOutcomeSubmitted(d *decoder.EventData) (*outcomeSubmitted, error) {
	callID, err := requireID(d, "callId")
	if err != nil {
		return nil, err
	}

	raw, _ := d.Get("outcome")
	outcome, ok := asBool(raw)
	if !ok {
		return nil, fmt.Errorf("outcome is missing or not a bool")
	}

	price, err := optionalAmount(d, "finalPrice")
	if err != nil {
		return nil, err
	}

	return &outcomeSubmitted{callID: callID, outcome: outcome, finalPrice: price}, nil
}

// sorobanCallCreated reads topics (call_id, creator) and the data tuple
// (stake_token, stake_amount, start_ts, end_ts, token_address, pair_id, ipfs_cid).
func sorobanCallCreated(d *decoder.EventData) (*callCreated, error) {
	callID, err := requireID(d, "topic_1")
	if err != nil {
		return nil, err
	}

	eff := &callCreated{callID: callID, creator: stringField(d, "topic_2")}

	raw, _ := d.Get("data_0")
	tuple, _ := raw.([]any)
	at := func(i int) any {
		if i < len(tuple) {
			return tuple[i]
		}
		return nil
	}

	eff.stakeToken = asString(at(0))
	if v := at(1); v != nil {
		if eff.stakeAmount, err = asAmount(v); err != nil {
			return nil, fmt.Errorf("stake_amount: %w", err)
		}
	}
	eff.startTs = asString(at(2))
	eff.endTs = asString(at(3))
	eff.tokenAddress = asString(at(4))
	eff.pairID = asString(at(5))
	eff.ipfsCID = asString(at(6))

	return eff, nil
}

// sorobanStakeAdded accepts data_0 as a (position, amount) tuple, or data_0
// as the amount with the position in data_1.
func sorobanStakeAdded(d *decoder.EventData) (*stakeAdded, error) {
	callID, err := requireID(d, "topic_1")
	if err != nil {
		return nil, err
	}

	raw, _ := d.Get("data_0")
	var positionRaw, amountRaw any
	if tuple, ok := raw.([]any); ok && len(tuple) == 2 {
		positionRaw, amountRaw = tuple[0], tuple[1]
	} else {
		amountRaw = raw
		positionRaw, _ = d.Get("data_1")
	}

	position, ok := asBool(positionRaw)
	if !ok {
		return nil, fmt.Errorf("stake position cannot be determined")
	}

	amount, err := asAmount(amountRaw)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	return &stakeAdded{callID: callID, position: position, amount: amount}, nil
}

// sorobanOutcomeSubmitted reads the enum payload
// (symbol, call_id, outcome, final_price, oracle_pubkey). A topic_1 call id
// takes precedence over the one in the payload.
func sorobanOutcomeSubmitted(d *decoder.EventData) (*outcomeSubmitted, error) {
	raw, _ := d.Get("data_0")
	payload, _ := raw.([]any)

	var outcomeRaw, priceRaw, callIDRaw any
	switch {
	case len(payload) >= 4:
		callIDRaw, outcomeRaw, priceRaw = payload[1], payload[2], payload[3]
	case len(payload) == 2:
		outcomeRaw, priceRaw = payload[0], payload[1]
	default:
		return nil, fmt.Errorf("unexpected outcome payload %v", raw)
	}

	callID := stringField(d, "topic_1")
	if callID == "" {
		callID = asString(callIDRaw)
	}
	if callID == "" {
		return nil, fmt.Errorf("call id is missing")
	}

	outcome, ok := asBool(outcomeRaw)
	if !ok {
		return nil, fmt.Errorf("outcome is missing or not a bool")
	}

	var price *big.Int
	if priceRaw != nil {
		var err error
		if price, err = asAmount(priceRaw); err != nil {
			return nil, fmt.Errorf("final_price: %w", err)
		}
	}

	return &outcomeSubmitted{callID: callID, outcome: outcome, finalPrice: price}, nil
}

func requireID(d *decoder.EventData, key string) (string, error) {
	id := stringField(d, key)
	if id == "" {
		return "", fmt.Errorf("%s is missing", key)
	}
	return id, nil
}

func stringField(d *decoder.EventData, key string) string {
	v, _ := d.Get(key)
	return asString(v)
}

func optionalAmount(d *decoder.EventData, key string) (*big.Int, error) {
	v, ok := d.Get(key)
	if !ok || v == nil {
		return nil, nil
	}

	amount, err := asAmount(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return amount, nil
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func asBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch val {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// asAmount parses a non-negative decimal integer.
func asAmount(v any) (*big.Int, error) {
	s := asString(v)
	if s == "" {
		return nil, fmt.Errorf("missing value")
	}

	n, ok := new(big.Int).SetString(s, 10) //nolint:mnd
	if !ok {
		return nil, fmt.Errorf("invalid decimal integer %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", s)
	}
	return n, nil
}

package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/prediction-market/callindexor/internal/common"
)

// Normalized event type names.
const (
	EventCallCreated      = "CallCreated"
	EventStakeAdded       = "StakeAdded"
	EventOutcomeSubmitted = "OutcomeSubmitted"
	EventPayoutWithdrawn  = "PayoutWithdrawn"
	EventOracleUpdated    = "OracleUpdated"
	EventUnknown          = "Unknown"
)

// DecodedEvent is the chain-agnostic form of a contract event.
type DecodedEvent struct {
	Chain      common.Chain
	Type       string
	ContractID string
	Ledger     uint64
	TxHash     string
	Sequence   uint64
	Data       *EventData
}

// DecodeError reports an event that could not be decoded. The event is skipped.
type DecodeError struct {
	Chain    common.Chain
	TxHash   string
	Sequence uint64
	Reason   string
	Err      error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s event (tx %s, seq %d): %s", e.Chain, e.TxHash, e.Sequence, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EventData is a string-keyed mapping that remembers insertion order.
// Its JSON form lists the keys in that order.
type EventData struct {
	keys   []string
	values map[string]any
}

// NewEventData returns an empty EventData.
func NewEventData() *EventData {
	return &EventData{values: make(map[string]any)}
}

// Set stores v under key. Re-setting a key keeps its original position.
func (d *EventData) Set(key string, v any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the value stored under key.
func (d *EventData) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// GetString returns the value under key if it is a string.
func (d *EventData) GetString(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Keys returns the keys in insertion order.
func (d *EventData) Keys() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.keys...)
}

// Len returns the number of keys.
func (d *EventData) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Map returns an unordered copy of the data.
func (d *EventData) Map() map[string]any {
	out := make(map[string]any, d.Len())
	if d == nil {
		return out
	}
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

func (d *EventData) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *EventData) UnmarshalJSON(data []byte) error {
	d.keys = nil
	d.values = make(map[string]any)

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("event data must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key token %v", tok)
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		d.Set(key, v)
	}

	_, err = dec.Token()
	return err
}

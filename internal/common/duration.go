package common

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
)

// Duration is a time.Duration that is read from and written to config files
// as a Go duration string (e.g. "12s", "500ms").
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText parses a duration string. A bare number without a unit is rejected.
func (d *Duration) UnmarshalText(data []byte) error {
	parsed, err := time.ParseDuration(string(data))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(data), err)
	}

	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// JSONSchema describes Duration as a string in generated config schemas.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units: [ns, us, ms, s, m, h]",
		Examples: []any{
			"1m",
			"300ms",
			"12s",
		},
	}
}

package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "milliseconds", input: "250ms", expected: 250 * time.Millisecond},
		{name: "poll interval", input: "12s", expected: 12 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "complex duration", input: "1h30m45s", expected: time.Hour + 30*time.Minute + 45*time.Second},
		{name: "zero", input: "0s", expected: 0},
		{name: "no unit", input: "12000", wantErr: true},
		{name: "invalid unit", input: "100x", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration)
		})
	}
}

func TestDuration_ConfigFormats(t *testing.T) {
	type pollerConfig struct {
		PollInterval Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	}

	t.Run("json", func(t *testing.T) {
		var cfg pollerConfig
		require.NoError(t, json.Unmarshal([]byte(`{"poll_interval":"12s"}`), &cfg))
		assert.Equal(t, 12*time.Second, cfg.PollInterval.Duration)

		require.Error(t, json.Unmarshal([]byte(`{"poll_interval":"soon"}`), &cfg))
	})

	t.Run("yaml", func(t *testing.T) {
		var cfg pollerConfig
		require.NoError(t, yaml.Unmarshal([]byte("poll_interval: 500ms\n"), &cfg))
		assert.Equal(t, 500*time.Millisecond, cfg.PollInterval.Duration)
	})

	t.Run("toml", func(t *testing.T) {
		var cfg pollerConfig
		_, err := toml.Decode(`poll_interval = "1m"`, &cfg)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, cfg.PollInterval.Duration)
	})

	t.Run("json marshal writes a duration string", func(t *testing.T) {
		data, err := json.Marshal(pollerConfig{PollInterval: NewDuration(5 * time.Second)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"poll_interval":"5s"}`, string(data))
	})
}

func TestDuration_JSONSchema(t *testing.T) {
	schema := Duration{}.JSONSchema()

	require.NotNil(t, schema)
	assert.Equal(t, "string", schema.Type)
	assert.Equal(t, "Duration", schema.Title)
	assert.Contains(t, schema.Examples, "12s")
}

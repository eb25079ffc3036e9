package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestChainIndexerStateSet(t *testing.T) {
	states := []string{"STOPPED", "INITIALIZED", "RUNNING"}

	ChainIndexerStateSet(common.ChainStellar, "RUNNING", states)
	require.InDelta(t, 1, testutil.ToFloat64(ChainIndexerState.WithLabelValues("STELLAR", "RUNNING")), 0)
	require.InDelta(t, 0, testutil.ToFloat64(ChainIndexerState.WithLabelValues("STELLAR", "STOPPED")), 0)

	ChainIndexerStateSet(common.ChainStellar, "STOPPED", states)
	require.InDelta(t, 0, testutil.ToFloat64(ChainIndexerState.WithLabelValues("STELLAR", "RUNNING")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(ChainIndexerState.WithLabelValues("STELLAR", "STOPPED")), 0)
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(EventsIndexed.WithLabelValues("BASE", "StakeAdded"))
	EventsIndexedInc(common.ChainBase, "StakeAdded")
	require.InDelta(t, before+1, testutil.ToFloat64(EventsIndexed.WithLabelValues("BASE", "StakeAdded")), 0)

	CursorHeightSet(common.ChainBase, 1234)
	require.InDelta(t, 1234, testutil.ToFloat64(CursorHeight.WithLabelValues("BASE")), 0)

	ComponentHealthSet("sink", false)
	require.InDelta(t, 0, testutil.ToFloat64(ComponentHealth.WithLabelValues("sink")), 0)
}

func TestServer_Handler(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	cfg.ApplyDefaults()

	PollCycleInc(common.ChainBase, CycleOK)

	srv := httptest.NewServer(NewServer(cfg, logger.NewNopLogger()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `callindexor_poll_cycles_total{chain="BASE",outcome="ok"}`)
}

func TestServer_StartStop(t *testing.T) {
	disabled := NewServer(&config.MetricsConfig{}, logger.NewNopLogger())
	require.NoError(t, disabled.Start(t.Context()))
	require.NoError(t, disabled.Stop(t.Context()))

	cfg := &config.MetricsConfig{Enabled: true, ListenAddress: "127.0.0.1:0"}
	cfg.ApplyDefaults()

	s := NewServer(cfg, logger.NewNopLogger())
	require.NoError(t, s.Start(t.Context()))
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(t.Context()))
}

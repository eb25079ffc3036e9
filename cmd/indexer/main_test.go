package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/logger"
	"github.com/prediction-market/callindexor/internal/store"
	"github.com/prediction-market/callindexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestResetCursorCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "indexer.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("db:\n  path: "+dbPath+"\n"), 0o600))

	dbCfg := config.DatabaseConfig{Path: dbPath}
	dbCfg.ApplyDefaults()

	st, err := store.Open(t.Context(), dbCfg, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, st.SaveCursor(t.Context(), common.ChainBase, 500))
	require.NoError(t, st.SaveCursor(t.Context(), common.ChainStellar, 70))
	require.NoError(t, st.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"reset-cursor", "-c", cfgPath, "--chain", "Base"})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), "Cursor of BASE reset")

	st, err = store.Open(t.Context(), dbCfg, logger.NewNopLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	_, err = st.GetCursor(t.Context(), common.ChainBase)
	require.ErrorIs(t, err, store.ErrNotFound)

	next, err := st.GetCursor(t.Context(), common.ChainStellar)
	require.NoError(t, err)
	require.EqualValues(t, 70, next)

	rootCmd.SetArgs([]string{"reset-cursor", "-c", cfgPath, "--chain", "solana"})
	require.Error(t, rootCmd.Execute())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8545", cfg.RPCAddress)
	require.Equal(t, uint64(15_000), cfg.SafetyMarginBps)
	require.Equal(t, uint64(9_000), cfg.YieldFractionBps)
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = \":9000\"\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.RPCAddress)
	require.Equal(t, uint64(10_000), cfg.SolvencyThresholdBps)
	require.Equal(t, int64(180*24*3600), cfg.FundDormancySeconds)
}

func TestLoadRejectsDegenerateMargin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("SafetyMarginBps = 9000\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "SafetyMarginBps")
}

func TestValidateRejectsThresholdAboveMargin(t *testing.T) {
	cfg := defaultConfig()
	cfg.SolvencyThresholdBps = cfg.SafetyMarginBps + 1
	require.ErrorContains(t, cfg.Validate(), "SolvencyThresholdBps")
}

func TestValidateRejectsOversizedYieldFraction(t *testing.T) {
	cfg := defaultConfig()
	cfg.YieldFractionBps = 10_001
	require.ErrorContains(t, cfg.Validate(), "YieldFractionBps")
}

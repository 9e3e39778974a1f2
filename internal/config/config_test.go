package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Venues = []VenueConfig{
		{ID: "uniswap_v2", Kind: "uniswap_v2", FeeBps: 30, Weight: 1.0},
	}
	return cfg
}

func TestValidateAcceptsDefaultsWithVenue(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "backtest" }, "unknown mode"},
		{"missing primary rpc", func(c *Config) { c.Chain.PrimaryRPC = "" }, "primary_rpc"},
		{"hard stop below heartbeat", func(c *Config) { c.Chain.HardStopWindow = Duration{time.Second} }, "hard_stop_window"},
		{"no base tokens", func(c *Config) { c.Engine.BaseTokens = nil }, "base_token"},
		{"bad borrow amount", func(c *Config) { c.Engine.BorrowAmountWei = "1.5 eth" }, "borrow_amount_wei"},
		{"max hops too small", func(c *Config) { c.Engine.MaxHops = 1 }, "max_hops"},
		{"slippage out of range", func(c *Config) { c.Engine.SlippageBps = 10_000 }, "slippage_bps"},
		{"bad queue policy", func(c *Config) { c.Execution.QueuePolicy = "defer" }, "queue_policy"},
		{"queue without size", func(c *Config) { c.Execution.QueuePolicy = "queue"; c.Execution.QueueSize = 0 }, "queue_size"},
		{"no venues", func(c *Config) { c.Venues = nil }, "at least one venue"},
		{"duplicate venue", func(c *Config) {
			c.Venues = append(c.Venues, c.Venues[0])
		}, "duplicate id"},
		{"bad venue kind", func(c *Config) { c.Venues[0].Kind = "orderbook" }, "unknown kind"},
		{"bad activation timestamp", func(c *Config) { c.Venues[0].ActivatedAt = "yesterday" }, "RFC3339"},
		{"audit score out of range", func(c *Config) { c.Risk.RequiredAuditScore = 150 }, "required_audit_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "trade"

[engine]
max_hops = 4
scan_timeout = "5s"

[[venues]]
id = "uniswap_v2"
kind = "uniswap_v2"
fee_bps = 30
weight = 1.0
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, 4, cfg.Engine.MaxHops)
	assert.Equal(t, 5*time.Second, cfg.Engine.ScanTimeout.Duration)
	// Untouched fields keep their defaults.
	assert.Equal(t, int64(1), cfg.Chain.ChainID)
	assert.Equal(t, "drop", cfg.Execution.QueuePolicy)
	require.Len(t, cfg.Venues, 1)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"monitor\"\n"), 0o600))

	t.Setenv("FLASHARB_MODE", "trade")
	t.Setenv("FLASHARB_CHAIN_BACKUP_RPCS", "wss://a.example, wss://b.example")
	t.Setenv("FLASHARB_ENGINE_MIN_PROFIT_WEI", "250000000000000")
	t.Setenv("FLASHARB_EXECUTION_CONFIRM_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, []string{"wss://a.example", "wss://b.example"}, cfg.Chain.BackupRPCs)
	assert.Equal(t, "250000000000000", cfg.Engine.MinProfitWei)
	assert.Equal(t, 45*time.Second, cfg.Execution.ConfirmTimeout.Duration)
}

func TestWeiAccessors(t *testing.T) {
	cfg := Defaults()
	assert.Zero(t, cfg.Engine.BorrowAmount().Cmp(big.NewInt(1e18)))
	assert.Zero(t, cfg.Engine.MinProfit().Cmp(big.NewInt(1e14)))
	assert.Zero(t, cfg.Risk.ExposureCap().Cmp(big.NewInt(1e18)))
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// The original is untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}

func TestDurationRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
}

// Package config defines the engine configuration and validation helpers.
// All values are immutable for the engine's running lifetime; changing any of
// them requires a restart.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FLASHARB_* environment
// variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Engine    EngineConfig    `toml:"engine"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Venues    []VenueConfig   `toml:"venues"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds RPC endpoint parameters for the connection manager.
type ChainConfig struct {
	PrimaryRPC          string   `toml:"primary_rpc"`
	BackupRPCs          []string `toml:"backup_rpcs"`
	ChainID             int64    `toml:"chain_id"`
	HealthCheckInterval Duration `toml:"health_check_interval"`
	HeartbeatTimeout    Duration `toml:"heartbeat_timeout"`
	ReprobeInterval     Duration `toml:"reprobe_interval"`
	HardStopWindow      Duration `toml:"hard_stop_window"`
}

// EngineConfig holds graph and path-search parameters.
type EngineConfig struct {
	BaseTokens      []string `toml:"base_tokens"`       // hex addresses scanned as cycle roots
	BorrowAmountWei string   `toml:"borrow_amount_wei"` // flash-loan principal per scan
	MinProfitWei    string   `toml:"min_profit_wei"`
	MaxHops         int      `toml:"max_hops"`
	GasPerHop       uint64   `toml:"gas_per_hop"`  // gas units amortized per swap hop
	SlippageBps     int64    `toml:"slippage_bps"` // haircut on every hop's estimated output
	FreshnessWindow Duration `toml:"freshness_window"`
	NewVenueDelay   Duration `toml:"new_venue_delay"`
	ScanTimeout     Duration `toml:"scan_timeout"`
	MaxCandidates   int      `toml:"max_candidates"` // cap per scan pass
}

// RiskConfig holds the policy thresholds applied before execution.
type RiskConfig struct {
	ExposureCapWei     string   `toml:"exposure_cap_wei"`
	TVLFloorUSD        float64  `toml:"tvl_floor_usd"`
	MinTokenAge        Duration `toml:"min_token_age"`
	RequiredAuditScore int      `toml:"required_audit_score"`
	SafetyMarginBps    int64    `toml:"safety_margin_bps"` // shaved off profit before threshold check
}

// ExecutionConfig holds the coordinator's retry and gas parameters.
type ExecutionConfig struct {
	MaxGasPriceGwei  int64    `toml:"max_gas_price_gwei"`
	MaxAttempts      int      `toml:"max_attempts"`
	GasBumpBps       int64    `toml:"gas_bump_bps"` // gas price increase per retry
	ConfirmTimeout   Duration `toml:"confirm_timeout"`
	PreflightTimeout Duration `toml:"preflight_timeout"`
	RetryBackoff     Duration `toml:"retry_backoff"`
	LockTTL          Duration `toml:"lock_ttl"`
	QueuePolicy      string   `toml:"queue_policy"` // "drop" or "queue" for candidates on a busy base token
	QueueSize        int      `toml:"queue_size"`
}

// VenueConfig declares one trading venue. Kind selects the adapter
// implementation; ActivatedAt defaults to process start when unset, which
// means a freshly added venue stays ignored until the new-venue delay
// elapses.
type VenueConfig struct {
	ID          string  `toml:"id"`
	Name        string  `toml:"name"`
	Kind        string  `toml:"kind"` // "uniswap_v2" or "quoted"
	FeedURL     string  `toml:"feed_url"`
	Weight      float64 `toml:"weight"`
	TVLUSD      float64 `toml:"tvl_usd"`
	FeeBps      int64   `toml:"fee_bps"`
	ActivatedAt string  `toml:"activated_at"` // RFC3339, optional
	Blacklisted bool    `toml:"blacklisted"`  // keep the entry but never trade through it
}

// DiscoveryConfig holds the token metadata refresh parameters.
type DiscoveryConfig struct {
	RefreshInterval Duration `toml:"refresh_interval"`
	Blacklist       []string `toml:"blacklist"` // token hex addresses, never inserted into the graph
	Whitelist       []string `toml:"whitelist"` // bypass age and audit checks
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the attempt
// journal.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	StatusInterval    Duration `toml:"status_interval"`
}

// Duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			PrimaryRPC:          "wss://ethereum-rpc.publicnode.com",
			BackupRPCs:          []string{"wss://eth.drpc.org"},
			ChainID:             1,
			HealthCheckInterval: Duration{10 * time.Second},
			HeartbeatTimeout:    Duration{30 * time.Second},
			ReprobeInterval:     Duration{1 * time.Minute},
			HardStopWindow:      Duration{5 * time.Minute},
		},
		Engine: EngineConfig{
			BaseTokens:      []string{"0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"}, // WETH
			BorrowAmountWei: "1000000000000000000",                                  // 1 ETH
			MinProfitWei:    "100000000000000",                                      // 0.0001 ETH
			MaxHops:         3,
			GasPerHop:       300_000,
			SlippageBps:     30,
			FreshnessWindow: Duration{30 * time.Second},
			NewVenueDelay:   Duration{1 * time.Hour},
			ScanTimeout:     Duration{10 * time.Second},
			MaxCandidates:   16,
		},
		Risk: RiskConfig{
			ExposureCapWei:     "1000000000000000000", // 1 ETH
			TVLFloorUSD:        100_000,
			MinTokenAge:        Duration{24 * time.Hour},
			RequiredAuditScore: 70,
			SafetyMarginBps:    50,
		},
		Execution: ExecutionConfig{
			MaxGasPriceGwei:  100,
			MaxAttempts:      3,
			GasBumpBps:       1_250, // +12.5% per retry, the usual replacement floor
			ConfirmTimeout:   Duration{90 * time.Second},
			PreflightTimeout: Duration{3 * time.Second},
			RetryBackoff:     Duration{2 * time.Second},
			LockTTL:          Duration{3 * time.Minute},
			QueuePolicy:      "drop",
			QueueSize:        4,
		},
		Discovery: DiscoveryConfig{
			RefreshInterval: Duration{5 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "flasharb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events:         []string{"confirmed", "abandoned", "all_endpoints_down"},
			StatusInterval: Duration{5 * time.Minute},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"trade":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validVenueKinds enumerates the adapter kinds the registry can build.
var validVenueKinds = map[string]bool{
	"uniswap_v2": true,
	"quoted":     true,
}

// BorrowAmount parses the configured flash-loan principal.
func (c *EngineConfig) BorrowAmount() *big.Int {
	return mustWei(c.BorrowAmountWei)
}

// MinProfit parses the configured profit threshold.
func (c *EngineConfig) MinProfit() *big.Int {
	return mustWei(c.MinProfitWei)
}

// ExposureCap parses the configured per-trade exposure cap.
func (c *RiskConfig) ExposureCap() *big.Int {
	return mustWei(c.ExposureCapWei)
}

// mustWei parses a base-10 wei string. Validate rejects unparseable values at
// startup, so accessors may assume success.
func mustWei(s string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func validWei(s string) bool {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	return ok && v.Sign() > 0
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. A validation failure means
// the engine must not start.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, trade)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.PrimaryRPC == "" {
		errs = append(errs, "chain: primary_rpc must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.HeartbeatTimeout.Duration <= 0 {
		errs = append(errs, "chain: heartbeat_timeout must be > 0")
	}
	if c.Chain.HardStopWindow.Duration < c.Chain.HeartbeatTimeout.Duration {
		errs = append(errs, "chain: hard_stop_window must be >= heartbeat_timeout")
	}

	// Engine
	if len(c.Engine.BaseTokens) == 0 {
		errs = append(errs, "engine: at least one base_token is required")
	}
	if !validWei(c.Engine.BorrowAmountWei) {
		errs = append(errs, fmt.Sprintf("engine: borrow_amount_wei %q is not a positive integer", c.Engine.BorrowAmountWei))
	}
	if !validWei(c.Engine.MinProfitWei) {
		errs = append(errs, fmt.Sprintf("engine: min_profit_wei %q is not a positive integer", c.Engine.MinProfitWei))
	}
	if c.Engine.MaxHops < 2 {
		errs = append(errs, fmt.Sprintf("engine: max_hops must be >= 2, got %d", c.Engine.MaxHops))
	}
	if c.Engine.SlippageBps < 0 || c.Engine.SlippageBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("engine: slippage_bps must be in [0, 10000), got %d", c.Engine.SlippageBps))
	}
	if c.Engine.FreshnessWindow.Duration <= 0 {
		errs = append(errs, "engine: freshness_window must be > 0")
	}

	// Risk
	if !validWei(c.Risk.ExposureCapWei) {
		errs = append(errs, fmt.Sprintf("risk: exposure_cap_wei %q is not a positive integer", c.Risk.ExposureCapWei))
	}
	if c.Risk.RequiredAuditScore < 0 || c.Risk.RequiredAuditScore > 100 {
		errs = append(errs, fmt.Sprintf("risk: required_audit_score must be 0-100, got %d", c.Risk.RequiredAuditScore))
	}
	if c.Risk.SafetyMarginBps < 0 {
		errs = append(errs, "risk: safety_margin_bps must be >= 0")
	}

	// Execution
	if c.Execution.MaxGasPriceGwei <= 0 {
		errs = append(errs, "execution: max_gas_price_gwei must be > 0")
	}
	if c.Execution.MaxAttempts < 1 {
		errs = append(errs, "execution: max_attempts must be >= 1")
	}
	if c.Execution.QueuePolicy != "drop" && c.Execution.QueuePolicy != "queue" {
		errs = append(errs, fmt.Sprintf("execution: queue_policy must be \"drop\" or \"queue\", got %q", c.Execution.QueuePolicy))
	}
	if c.Execution.QueuePolicy == "queue" && c.Execution.QueueSize < 1 {
		errs = append(errs, "execution: queue_size must be >= 1 when queue_policy is \"queue\"")
	}

	// Venues
	if len(c.Venues) == 0 {
		errs = append(errs, "venues: at least one venue is required")
	}
	seen := map[string]bool{}
	for i, v := range c.Venues {
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: id must not be empty", i))
			continue
		}
		if seen[v.ID] {
			errs = append(errs, fmt.Sprintf("venues[%d]: duplicate id %q", i, v.ID))
		}
		seen[v.ID] = true
		if !validVenueKinds[v.Kind] {
			errs = append(errs, fmt.Sprintf("venues[%d]: unknown kind %q (valid: uniswap_v2, quoted)", i, v.Kind))
		}
		if v.Weight <= 0 {
			errs = append(errs, fmt.Sprintf("venues[%d]: weight must be > 0", i))
		}
		if v.FeeBps < 0 || v.FeeBps >= 10_000 {
			errs = append(errs, fmt.Sprintf("venues[%d]: fee_bps must be in [0, 10000)", i))
		}
		if v.ActivatedAt != "" {
			if _, err := time.Parse(time.RFC3339, v.ActivatedAt); err != nil {
				errs = append(errs, fmt.Sprintf("venues[%d]: activated_at %q is not RFC3339", i, v.ActivatedAt))
			}
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

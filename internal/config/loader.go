package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FLASHARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FLASHARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.PrimaryRPC, "FLASHARB_CHAIN_PRIMARY_RPC")
	setStringSlice(&cfg.Chain.BackupRPCs, "FLASHARB_CHAIN_BACKUP_RPCS")
	setInt64(&cfg.Chain.ChainID, "FLASHARB_CHAIN_ID")
	setDuration(&cfg.Chain.HealthCheckInterval, "FLASHARB_CHAIN_HEALTH_CHECK_INTERVAL")
	setDuration(&cfg.Chain.HeartbeatTimeout, "FLASHARB_CHAIN_HEARTBEAT_TIMEOUT")
	setDuration(&cfg.Chain.ReprobeInterval, "FLASHARB_CHAIN_REPROBE_INTERVAL")
	setDuration(&cfg.Chain.HardStopWindow, "FLASHARB_CHAIN_HARD_STOP_WINDOW")

	// ── Engine ──
	setStringSlice(&cfg.Engine.BaseTokens, "FLASHARB_ENGINE_BASE_TOKENS")
	setStr(&cfg.Engine.BorrowAmountWei, "FLASHARB_ENGINE_BORROW_AMOUNT_WEI")
	setStr(&cfg.Engine.MinProfitWei, "FLASHARB_ENGINE_MIN_PROFIT_WEI")
	setInt(&cfg.Engine.MaxHops, "FLASHARB_ENGINE_MAX_HOPS")
	setUint64(&cfg.Engine.GasPerHop, "FLASHARB_ENGINE_GAS_PER_HOP")
	setInt64(&cfg.Engine.SlippageBps, "FLASHARB_ENGINE_SLIPPAGE_BPS")
	setDuration(&cfg.Engine.FreshnessWindow, "FLASHARB_ENGINE_FRESHNESS_WINDOW")
	setDuration(&cfg.Engine.NewVenueDelay, "FLASHARB_ENGINE_NEW_VENUE_DELAY")
	setDuration(&cfg.Engine.ScanTimeout, "FLASHARB_ENGINE_SCAN_TIMEOUT")
	setInt(&cfg.Engine.MaxCandidates, "FLASHARB_ENGINE_MAX_CANDIDATES")

	// ── Risk ──
	setStr(&cfg.Risk.ExposureCapWei, "FLASHARB_RISK_EXPOSURE_CAP_WEI")
	setFloat64(&cfg.Risk.TVLFloorUSD, "FLASHARB_RISK_TVL_FLOOR_USD")
	setDuration(&cfg.Risk.MinTokenAge, "FLASHARB_RISK_MIN_TOKEN_AGE")
	setInt(&cfg.Risk.RequiredAuditScore, "FLASHARB_RISK_REQUIRED_AUDIT_SCORE")
	setInt64(&cfg.Risk.SafetyMarginBps, "FLASHARB_RISK_SAFETY_MARGIN_BPS")

	// ── Execution ──
	setInt64(&cfg.Execution.MaxGasPriceGwei, "FLASHARB_EXECUTION_MAX_GAS_PRICE_GWEI")
	setInt(&cfg.Execution.MaxAttempts, "FLASHARB_EXECUTION_MAX_ATTEMPTS")
	setInt64(&cfg.Execution.GasBumpBps, "FLASHARB_EXECUTION_GAS_BUMP_BPS")
	setDuration(&cfg.Execution.ConfirmTimeout, "FLASHARB_EXECUTION_CONFIRM_TIMEOUT")
	setDuration(&cfg.Execution.PreflightTimeout, "FLASHARB_EXECUTION_PREFLIGHT_TIMEOUT")
	setDuration(&cfg.Execution.RetryBackoff, "FLASHARB_EXECUTION_RETRY_BACKOFF")
	setDuration(&cfg.Execution.LockTTL, "FLASHARB_EXECUTION_LOCK_TTL")
	setStr(&cfg.Execution.QueuePolicy, "FLASHARB_EXECUTION_QUEUE_POLICY")
	setInt(&cfg.Execution.QueueSize, "FLASHARB_EXECUTION_QUEUE_SIZE")

	// ── Discovery ──
	setDuration(&cfg.Discovery.RefreshInterval, "FLASHARB_DISCOVERY_REFRESH_INTERVAL")
	setStringSlice(&cfg.Discovery.Blacklist, "FLASHARB_DISCOVERY_BLACKLIST")
	setStringSlice(&cfg.Discovery.Whitelist, "FLASHARB_DISCOVERY_WHITELIST")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FLASHARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FLASHARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FLASHARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FLASHARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FLASHARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FLASHARB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FLASHARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FLASHARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FLASHARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FLASHARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FLASHARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FLASHARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FLASHARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FLASHARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FLASHARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FLASHARB_POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FLASHARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FLASHARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FLASHARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FLASHARB_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.StatusInterval, "FLASHARB_NOTIFY_STATUS_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "FLASHARB_MODE")
	setStr(&cfg.LogLevel, "FLASHARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// Package config loads runtime configuration from a YAML file, with
// KWH_* environment variables overriding individual fields.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for one exchange process.
type Config struct {
	Market     MarketConfig     `mapstructure:"market"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Book       BookConfig       `mapstructure:"book"`
	Store      StoreConfig      `mapstructure:"store"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	API        APIConfig        `mapstructure:"api"`
	WS         WSConfig         `mapstructure:"ws"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// MarketConfig tunes the matching engine for the single market this process
// serves.
type MarketConfig struct {
	Symbol      string        `mapstructure:"symbol"`
	MatchTick   time.Duration `mapstructure:"match_tick"`
	MaxOrderTTL time.Duration `mapstructure:"max_order_ttl"`
	FeeRate     float64       `mapstructure:"fee_rate"`
}

// SettlementConfig controls the settlement pipeline's retry policy.
type SettlementConfig struct {
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BaseDelay           time.Duration `mapstructure:"base_delay"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	Workers             int           `mapstructure:"workers"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
}

// SnapshotConfig controls the snapshot/recovery cadence.
type SnapshotConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Retention int           `mapstructure:"retention"`
}

// BookConfig caps API-facing order book reads.
type BookConfig struct {
	DepthMaxLevels int `mapstructure:"depth_max_levels"`
}

// StoreConfig is the durable store connection and journal durability
// trade-off knob.
type StoreConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	JournalFsync    string        `mapstructure:"journal_fsync"` // "per_mutation" or "batched"
	JournalBatchWin time.Duration `mapstructure:"journal_batch_window"`
}

// LedgerConfig points at the external settlement ledger.
type LedgerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	DryRun  bool          `mapstructure:"dry_run"`
}

// APIConfig controls the HTTP listener. AdminToken gates `POST
// /admin/control`; this process does no general authentication or
// authorization, so owner identity for order endpoints is carried by a
// trusted header instead.
type APIConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AdminToken     string   `mapstructure:"admin_token"`
}

// WSConfig controls the WebSocket fan-out.
type WSConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// Load reads config from a YAML file with KWH_* environment overrides and
// fills in documented defaults for anything the file omits.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("KWH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("market.symbol", "kwh-main")
	v.SetDefault("market.match_tick", time.Second)
	v.SetDefault("market.max_order_ttl", 7*24*time.Hour)
	v.SetDefault("market.fee_rate", 0.001)

	v.SetDefault("settlement.max_attempts", 3)
	v.SetDefault("settlement.base_delay", 5*time.Second)
	v.SetDefault("settlement.confirmation_timeout", 30*time.Second)
	v.SetDefault("settlement.workers", 2)
	v.SetDefault("settlement.poll_interval", time.Second)

	v.SetDefault("snapshot.interval", 5*time.Minute)
	v.SetDefault("snapshot.retention", 12)

	v.SetDefault("book.depth_max_levels", 100)

	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.journal_fsync", "batched")
	v.SetDefault("store.journal_batch_window", 50*time.Millisecond)

	v.SetDefault("ledger.timeout", 10*time.Second)
	v.SetDefault("ledger.dry_run", false)

	v.SetDefault("api.listen_addr", ":8080")

	v.SetDefault("ws.queue_capacity", 1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.MatchTick <= 0 {
		return fmt.Errorf("market.match_tick must be > 0")
	}
	if c.Market.FeeRate < 0 {
		return fmt.Errorf("market.fee_rate must be >= 0")
	}
	if c.Settlement.MaxAttempts <= 0 {
		return fmt.Errorf("settlement.max_attempts must be > 0")
	}
	if c.Settlement.BaseDelay <= 0 {
		return fmt.Errorf("settlement.base_delay must be > 0")
	}
	if c.Snapshot.Retention <= 0 {
		return fmt.Errorf("snapshot.retention must be > 0")
	}
	if c.Book.DepthMaxLevels <= 0 {
		return fmt.Errorf("book.depth_max_levels must be > 0")
	}
	switch c.Store.JournalFsync {
	case "per_mutation", "batched":
	default:
		return fmt.Errorf("store.journal_fsync must be one of: per_mutation, batched")
	}
	if !c.Ledger.DryRun && c.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger.base_url is required unless ledger.dry_run is true")
	}
	if c.WS.QueueCapacity <= 0 {
		return fmt.Errorf("ws.queue_capacity must be > 0")
	}
	return nil
}

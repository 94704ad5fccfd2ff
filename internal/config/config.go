package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"campaign-signal-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Query       QueryConfig       `mapstructure:"query"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Channels    []string          `mapstructure:"channels"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Owners      []string          `mapstructure:"owners"`
	Suppression SuppressionConfig `mapstructure:"suppression"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MetricsTable    string        `mapstructure:"metrics_table"`
	SignalRetention time.Duration `mapstructure:"signal_retention"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// QueryConfig tunes the storage query guard (timeout, retry, breaker).
type QueryConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BaseDelay          time.Duration `mapstructure:"base_delay"`
	MaxDelay           time.Duration `mapstructure:"max_delay"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`
}

// CatalogConfig bounds batch candidacy.
type CatalogConfig struct {
	RowCountCeiling int64 `mapstructure:"row_count_ceiling"`
}

// RulesConfig carries the rule-engine thresholds.
type RulesConfig struct {
	StopLossMinSpend float64 `mapstructure:"stop_loss_min_spend"`
	StopLossMaxROAS  float64 `mapstructure:"stop_loss_max_roas"`
	ScaleUpMinROAS   float64 `mapstructure:"scale_up_min_roas"`
	ScaleUpMinSpend  float64 `mapstructure:"scale_up_min_spend"`
	ScaleUpTargetCPI float64 `mapstructure:"scale_up_target_cpi"`
	CreativeCTRDrop  float64 `mapstructure:"creative_ctr_drop"`
	CreativeCTRFloor float64 `mapstructure:"creative_ctr_floor"`
	LookbackDays     int     `mapstructure:"lookback_days"`
}

// SuppressionConfig governs repeat-signal noise control.
type SuppressionConfig struct {
	Backend   string        `mapstructure:"backend"`
	Cycles    int           `mapstructure:"cycles"`
	Retention time.Duration `mapstructure:"retention"`
	FilePath  string        `mapstructure:"file_path"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

// RedisConfig covers the optional redis suppression store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AlertingConfig defines signal routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// LarkConfig describes a Lark custom-bot webhook.
type LarkConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TelegramConfig describes Telegram bot delivery.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADSPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "adspulse")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("query.timeout", "30s")
	v.SetDefault("query.max_attempts", 3)
	v.SetDefault("query.base_delay", "2s")
	v.SetDefault("query.max_delay", "30s")
	v.SetDefault("query.breaker_max_failures", 5)
	v.SetDefault("query.breaker_open_timeout", "60s")

	v.SetDefault("catalog.row_count_ceiling", int64(2500))

	v.SetDefault("channels", []string{"facebook", "tiktok"})

	v.SetDefault("rules.stop_loss_min_spend", 30.0)
	v.SetDefault("rules.stop_loss_max_roas", 0.10)
	v.SetDefault("rules.scale_up_min_roas", 0.40)
	v.SetDefault("rules.scale_up_min_spend", 50.0)
	v.SetDefault("rules.scale_up_target_cpi", 2.0)
	v.SetDefault("rules.creative_ctr_drop", 0.20)
	v.SetDefault("rules.creative_ctr_floor", 0.01)
	v.SetDefault("rules.lookback_days", 1)

	v.SetDefault("suppression.backend", "file")
	v.SetDefault("suppression.cycles", 3)
	v.SetDefault("suppression.retention", "24h")
	v.SetDefault("suppression.file_path", "signal_history.json")
	v.SetDefault("suppression.redis.addr", "localhost:6379")
	v.SetDefault("suppression.redis.db", 0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.lark.enabled", false)
	v.SetDefault("alerting.lark.request_timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.metrics_table", "campaign_metrics")
	v.SetDefault("database.signal_retention", "720h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// Threshold misconfiguration fails here, before any evaluation runs.
func (c *Config) Validate() error {
	if c.Database.SignalRetention <= 0 {
		return fmt.Errorf("database.signal_retention must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Query.MaxAttempts <= 0 {
		return fmt.Errorf("query.max_attempts must be greater than zero")
	}
	if c.Catalog.RowCountCeiling <= 0 {
		return fmt.Errorf("catalog.row_count_ceiling must be greater than zero")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("channels must not be empty")
	}
	if c.Rules.StopLossMinSpend < 0 || c.Rules.ScaleUpMinSpend < 0 {
		return fmt.Errorf("rule spend thresholds cannot be negative")
	}
	if c.Rules.StopLossMaxROAS < 0 || c.Rules.ScaleUpMinROAS < 0 {
		return fmt.Errorf("rule roas thresholds cannot be negative")
	}
	if c.Rules.ScaleUpTargetCPI <= 0 {
		return fmt.Errorf("rules.scale_up_target_cpi must be greater than zero")
	}
	if c.Rules.CreativeCTRDrop < 0 || c.Rules.CreativeCTRFloor < 0 {
		return fmt.Errorf("creative ctr thresholds cannot be negative")
	}
	if c.Rules.LookbackDays <= 0 {
		return fmt.Errorf("rules.lookback_days must be greater than zero")
	}
	if c.Suppression.Cycles <= 0 {
		return fmt.Errorf("suppression.cycles must be greater than zero")
	}
	if c.Suppression.Retention <= 0 {
		return fmt.Errorf("suppression.retention must be greater than zero")
	}
	switch c.Suppression.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("suppression.backend must be file or redis")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Lark.Enabled && c.Alerting.Lark.WebhookURL == "" {
		return fmt.Errorf("alerting.lark.webhook_url is required when lark is enabled")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

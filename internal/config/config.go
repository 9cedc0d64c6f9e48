package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"vault-capacity-alerts/internal/asset"
	"vault-capacity-alerts/internal/logging"
)

// EnvPrefix namespaces every environment override, e.g. CAPWATCH_SUI_RPC_URL.
const EnvPrefix = "CAPWATCH"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sui       SuiConfig       `mapstructure:"sui"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects the threshold store backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SuiConfig covers on-chain data access.
type SuiConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// AssetsConfig lists the pools the poller watches.
type AssetsConfig struct {
	Tracked []string `mapstructure:"tracked"`
}

// DispatchConfig bounds notification fan-out.
type DispatchConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	StoreTimeout   time.Duration `mapstructure:"store_timeout"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig enables the prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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

// loadDotEnv exports variables from a .env file without overriding the real environment.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
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
	v.SetDefault("app.name", "capwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "./capwatch.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.interval", "30s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x63617077))

	v.SetDefault("sui.rpc_url", "https://fullnode.mainnet.sui.io:443")
	v.SetDefault("sui.request_timeout", "10s")
	v.SetDefault("sui.breaker_failures", 5)
	v.SetDefault("sui.breaker_cooldown", "1m")

	v.SetDefault("assets.tracked", []string{"USDC", "SUI", "WAL", "DEEP"})

	v.SetDefault("dispatch.max_concurrency", 16)
	v.SetDefault("dispatch.store_timeout", "10s")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("metrics.listen", "")
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
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.StartupDelay < 0 {
		return fmt.Errorf("scheduler.startup_delay cannot be negative")
	}
	if c.Sui.RPCURL == "" {
		return fmt.Errorf("sui.rpc_url is required")
	}
	if c.Sui.RequestTimeout <= 0 {
		return fmt.Errorf("sui.request_timeout must be greater than zero")
	}
	if len(c.Assets.Tracked) == 0 {
		return fmt.Errorf("assets.tracked must list at least one asset")
	}
	tracked, err := asset.Select(c.Assets.Tracked)
	if err != nil {
		return fmt.Errorf("assets.tracked: %w", err)
	}
	if err := validateAssets(tracked); err != nil {
		return err
	}
	if c.Dispatch.MaxConcurrency <= 0 {
		return fmt.Errorf("dispatch.max_concurrency must be greater than zero")
	}
	if c.Dispatch.StoreTimeout <= 0 {
		return fmt.Errorf("dispatch.store_timeout must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled && c.Alerting.Telegram.BotToken == "" {
		return fmt.Errorf("alerting.telegram.bot_token 必须配置")
	}
	return nil
}

func validateAssets(assets []asset.Asset) error {
	for _, a := range assets {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("assets.tracked: %w", err)
		}
	}
	return nil
}

// TrackedAssets resolves assets.tracked into the asset table.
func (c *Config) TrackedAssets() ([]asset.Asset, error) {
	return asset.Select(c.Assets.Tracked)
}

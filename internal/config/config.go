package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simaogato/securesend-backend/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. SECURESEND_REDIS_ADDR
const EnvPrefix = "SECURESEND"

const defaultAPIToken = "dev-token"

// Config is the server configuration
type Config struct {
	GRPC     GRPCConfig               `mapstructure:"grpc"`
	APIToken string                   `mapstructure:"api_token"`
	DB       DBConfig                 `mapstructure:"db"`
	Redis    RedisConfig              `mapstructure:"redis"`
	Timeouts TimeoutConfig            `mapstructure:"timeouts"`
	Executor ExecutorConfig           `mapstructure:"executor"`
	Breaker  BreakerConfig            `mapstructure:"breaker"`
	Sessions SessionConfig            `mapstructure:"sessions"`
	Log      LogConfig                `mapstructure:"log"`
	Assets   []AssetConfig            `mapstructure:"assets"`
	Networks map[string]NetworkConfig `mapstructure:"networks"`

	// Flagged addresses are seeded into the blocklist at startup
	Flagged       []string            `mapstructure:"flagged"`
	FlaggedAssets map[string][]string `mapstructure:"flagged_assets"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

// DBConfig selects the receipt store. Without a host or connection string receipts stay in memory.
type DBConfig struct {
	ConnStr  string `mapstructure:"conn_str"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	FlaggedKey string `mapstructure:"flagged_key"`
}

type TimeoutConfig struct {
	Network    time.Duration `mapstructure:"network"`
	Reputation time.Duration `mapstructure:"reputation"`
	Execute    time.Duration `mapstructure:"execute"`
}

type ExecutorConfig struct {
	Latency     time.Duration `mapstructure:"latency"`
	FailMessage string        `mapstructure:"fail_message"`
}

type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// SessionConfig controls when unused sessions are dropped
type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AssetConfig is an extra asset rule set. Amounts are decimal strings.
type AssetConfig struct {
	Symbol        string `mapstructure:"symbol"`
	Pattern       string `mapstructure:"pattern"`
	MinAmount     string `mapstructure:"min_amount"`
	MaxAmount     string `mapstructure:"max_amount"`
	DefaultFee    string `mapstructure:"default_fee"`
	ExplorerTxURL string `mapstructure:"explorer_tx_url"`
}

// NetworkConfig is the JSON-RPC node probed for an EVM asset
type NetworkConfig struct {
	URL     string `mapstructure:"url"`
	ChainID int64  `mapstructure:"chain_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("grpc.addr", ":8080")
	v.SetDefault("api_token", defaultAPIToken)

	v.SetDefault("db.conn_str", "")
	v.SetDefault("db.host", "")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "securesend")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.flagged_key", "securesend:flagged")

	v.SetDefault("timeouts.network", 5*time.Second)
	v.SetDefault("timeouts.reputation", 5*time.Second)
	v.SetDefault("timeouts.execute", 30*time.Second)

	v.SetDefault("executor.latency", 2*time.Second)
	v.SetDefault("executor.fail_message", "")

	v.SetDefault("breaker.consecutive_failures", 5)
	v.SetDefault("breaker.timeout", 30*time.Second)

	v.SetDefault("sessions.idle_timeout", 30*time.Minute)
	v.SetDefault("sessions.sweep_interval", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration.
// Logic:
//  1. Defaults for every key
//  2. Optional YAML file at path (empty path skips it)
//  3. SECURESEND_* environment variables override both, "." becomes "_"
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &cfg, nil
}

// ConnString returns the Postgres connection string, or "" when no database is configured
func (c DBConfig) ConnString() string {
	if c.ConnStr != "" {
		return c.ConnStr
	}
	if c.Host == "" {
		return ""
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

// BuildRegistry returns the built-in assets plus the configured ones.
// Configured assets cannot replace a built-in; missing amounts use the built-in defaults.
func (c *Config) BuildRegistry() (*domain.Registry, error) {
	registry := domain.DefaultRegistry()
	defMin, defMax, defFee := domain.DefaultBounds()

	for i, a := range c.Assets {
		minAmount, err := parseAmount(a.MinAmount, defMin)
		if err != nil {
			return nil, fmt.Errorf("assets[%d].min_amount: %w", i, err)
		}
		maxAmount, err := parseAmount(a.MaxAmount, defMax)
		if err != nil {
			return nil, fmt.Errorf("assets[%d].max_amount: %w", i, err)
		}
		fee, err := parseAmount(a.DefaultFee, defFee)
		if err != nil {
			return nil, fmt.Errorf("assets[%d].default_fee: %w", i, err)
		}

		rules, err := domain.NewAssetRules(a.Symbol, a.Pattern, minAmount, maxAmount, fee, a.ExplorerTxURL)
		if err != nil {
			return nil, fmt.Errorf("assets[%d]: %w", i, err)
		}
		if err := registry.Register(rules); err != nil {
			return nil, fmt.Errorf("assets[%d]: %w", i, err)
		}
	}

	return registry, nil
}

func parseAmount(raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return decimal.NewFromString(raw)
}

// NewLogger builds the zap logger described by the log section
func NewLogger(c LogConfig) (*zap.Logger, error) {
	var cfg zap.Config
	if c.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.TrimSpace(c.Level) != "" {
		var level zapcore.Level
		if err := level.Set(c.Level); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

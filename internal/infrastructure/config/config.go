package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment    string               `mapstructure:"environment"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Chain          ChainConfig          `mapstructure:"chain"`
	Deposit        DepositConfig        `mapstructure:"deposit"`
	Withdrawal     WithdrawalConfig     `mapstructure:"withdrawal"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ChainConfig describes the monitored chain and token contract
type ChainConfig struct {
	Name          string `mapstructure:"name"`           // e.g. "bsc"
	RPCURL        string `mapstructure:"rpc_url"`        // JSON-RPC endpoint
	TokenContract string `mapstructure:"token_contract"` // monitored ERC-20 contract
	TokenSymbol   string `mapstructure:"token_symbol"`
	TokenDecimals int    `mapstructure:"token_decimals"`
	RPCTimeout    int    `mapstructure:"rpc_timeout"` // seconds, per call
}

// DepositConfig is the ingestion configuration surface. Snapshotted by the
// workers at cycle boundaries; never mutated mid-cycle.
type DepositConfig struct {
	Confirmations    int64  `mapstructure:"confirmations"`      // reorg safety margin in blocks
	MinDepositAmount string `mapstructure:"min_deposit_amount"` // floor below which events are recorded, never credited
	PollingEnabled   bool   `mapstructure:"polling_enabled"`    // fallback scanner on/off
	MaxRangePerCall  int64  `mapstructure:"max_range_per_call"` // block-range cap per scan iteration
	LoopMs           int    `mapstructure:"loop_ms"`            // scanner cadence
	IdleMs           int    `mapstructure:"idle_ms"`            // sleep when nothing to scan
	BatchSize        int    `mapstructure:"batch_size"`         // addresses per cycle
	StreamID         string `mapstructure:"stream_id"`          // provider stream identifier
	WebhookSecret    string `mapstructure:"webhook_secret"`     // HMAC secret for delivery signatures

}

// MinAmount parses the configured minimum deposit floor
func (c DepositConfig) MinAmount() decimal.Decimal {
	if c.MinDepositAmount == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(c.MinDepositAmount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// LoopInterval returns the scanner cadence as a duration
func (c DepositConfig) LoopInterval() time.Duration {
	return time.Duration(c.LoopMs) * time.Millisecond
}

// IdleInterval returns the idle sleep as a duration
func (c DepositConfig) IdleInterval() time.Duration {
	return time.Duration(c.IdleMs) * time.Millisecond
}

// WithdrawalConfig configures the auto-withdrawal worker
type WithdrawalConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	WithdrawalAddress string `mapstructure:"withdrawal_address"` // hot wallet source address
	TokenContract     string `mapstructure:"token_contract"`
	Confirmations     int64  `mapstructure:"confirmations"`
	LoopMs            int    `mapstructure:"loop_ms"`
	IdleMs            int    `mapstructure:"idle_ms"`
	SignerURL         string `mapstructure:"signer_url"` // transfer submission endpoint
}

// LoopInterval returns the worker cadence as a duration
func (c WithdrawalConfig) LoopInterval() time.Duration {
	return time.Duration(c.LoopMs) * time.Millisecond
}

// IdleInterval returns the idle sleep as a duration
func (c WithdrawalConfig) IdleInterval() time.Duration {
	return time.Duration(c.IdleMs) * time.Millisecond
}

// ReconciliationConfig configures the unresolved-event sweep
type ReconciliationConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CronSpec string `mapstructure:"cron_spec"` // robfig/cron spec
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "chain_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// Chain defaults
	viper.SetDefault("chain.name", "bsc")
	viper.SetDefault("chain.token_symbol", "USDT")
	viper.SetDefault("chain.token_decimals", 18)
	viper.SetDefault("chain.rpc_timeout", 15)

	// Deposit pipeline defaults
	viper.SetDefault("deposit.confirmations", 12)
	viper.SetDefault("deposit.min_deposit_amount", "1")
	viper.SetDefault("deposit.polling_enabled", true)
	viper.SetDefault("deposit.max_range_per_call", 2000)
	viper.SetDefault("deposit.loop_ms", 5000)
	viper.SetDefault("deposit.idle_ms", 30000)
	viper.SetDefault("deposit.batch_size", 50)
	viper.SetDefault("deposit.stream_id", "")
	viper.SetDefault("deposit.webhook_secret", "")

	// Withdrawal worker defaults
	viper.SetDefault("withdrawal.enabled", true)
	viper.SetDefault("withdrawal.confirmations", 12)
	viper.SetDefault("withdrawal.loop_ms", 5000)
	viper.SetDefault("withdrawal.idle_ms", 15000)

	// Reconciliation defaults
	viper.SetDefault("reconciliation.enabled", true)
	viper.SetDefault("reconciliation.cron_spec", "0 3 * * *")
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("database.url", url)
	}
	if url := os.Getenv("CHAIN_RPC_URL"); url != "" {
		viper.Set("chain.rpc_url", url)
	}
	if addr := os.Getenv("REDIS_URL"); addr != "" {
		viper.Set("redis.host", addr)
	}
}

func validate(cfg *Config) error {
	if cfg.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if cfg.Chain.TokenContract == "" {
		return fmt.Errorf("chain.token_contract is required")
	}
	if cfg.Deposit.Confirmations < 0 {
		return fmt.Errorf("deposit.confirmations cannot be negative")
	}
	if cfg.Deposit.MaxRangePerCall <= 0 {
		return fmt.Errorf("deposit.max_range_per_call must be positive")
	}
	if _, err := decimal.NewFromString(cfg.Deposit.MinDepositAmount); err != nil {
		return fmt.Errorf("deposit.min_deposit_amount is not a valid decimal: %w", err)
	}
	if cfg.Withdrawal.Enabled && cfg.Withdrawal.WithdrawalAddress == "" {
		return fmt.Errorf("withdrawal.withdrawal_address is required when withdrawal worker is enabled")
	}
	return nil
}

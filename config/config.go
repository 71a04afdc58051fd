package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig             `mapstructure:"server"`
	Storage    StorageConfig            `mapstructure:"storage"`
	Database   DatabaseConfig           `mapstructure:"database"`
	Redis      RedisConfig              `mapstructure:"redis"`
	JWT        JWTConfig                `mapstructure:"jwt"`
	Log        LogConfig                `mapstructure:"log"`
	Rates      RatesConfig              `mapstructure:"rates"`
	Channels   map[string]ChannelConfig `mapstructure:"channels"`
	Providers  ProvidersConfig          `mapstructure:"providers"`
	Settlement SettlementConfig         `mapstructure:"settlement"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// StorageConfig selects the storage binding for ledger and settlement records.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// RatesConfig supplies the external exchange rate input.
// Rates are decimal strings to avoid float drift in config parsing.
type RatesConfig struct {
	USDUGX string `mapstructure:"usd_ugx"`
}

// ChannelConfig holds per-channel fee and limit terms.
type ChannelConfig struct {
	FeeRate   string `mapstructure:"fee_rate"`   // e.g. "0.005" for 0.5%
	MinAmount string `mapstructure:"min_amount"` // in USDC
	MaxAmount string `mapstructure:"max_amount"` // in USDC
	Currency  string `mapstructure:"currency"`   // payout currency, e.g. UGX
}

// ProvidersConfig holds credentials and endpoints per settlement channel.
type ProvidersConfig struct {
	MTN    MTNConfig    `mapstructure:"mtn"`
	Airtel AirtelConfig `mapstructure:"airtel"`
	Bank   BankConfig   `mapstructure:"bank"`
}

type MTNConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	APIUser         string `mapstructure:"api_user"`
	APIKey          string `mapstructure:"api_key"`
	SubscriptionKey string `mapstructure:"subscription_key"`
	TargetEnv       string `mapstructure:"target_env"`
}

type AirtelConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type BankConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// SettlementConfig bounds dispatch retries and status polling.
type SettlementConfig struct {
	DispatchMaxRetries uint64        `mapstructure:"dispatch_max_retries"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	PollBaseDelay      time.Duration `mapstructure:"poll_base_delay"`
	PollMaxDelay       time.Duration `mapstructure:"poll_max_delay"`
	PollMaxAttempts    int           `mapstructure:"poll_max_attempts"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PAYVIA.
// Nested keys use underscore: PAYVIA_DATABASE_HOST, PAYVIA_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "payvia")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "payvia")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("rates.usd_ugx", "3800")
	v.SetDefault("channels.mtn_momo.fee_rate", "0.01")
	v.SetDefault("channels.mtn_momo.min_amount", "1")
	v.SetDefault("channels.mtn_momo.max_amount", "5000")
	v.SetDefault("channels.mtn_momo.currency", "UGX")
	v.SetDefault("channels.airtel_money.fee_rate", "0.01")
	v.SetDefault("channels.airtel_money.min_amount", "1")
	v.SetDefault("channels.airtel_money.max_amount", "5000")
	v.SetDefault("channels.airtel_money.currency", "UGX")
	v.SetDefault("channels.bank.fee_rate", "0.005")
	v.SetDefault("channels.bank.min_amount", "10")
	v.SetDefault("channels.bank.max_amount", "25000")
	v.SetDefault("channels.bank.currency", "UGX")
	v.SetDefault("settlement.dispatch_max_retries", 3)
	v.SetDefault("settlement.poll_interval", "5s")
	v.SetDefault("settlement.poll_base_delay", "10s")
	v.SetDefault("settlement.poll_max_delay", "2m")
	v.SetDefault("settlement.poll_max_attempts", 10)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PAYVIA_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PAYVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Log      LogConfig      `mapstructure:"log"`
}

// HTTPConfig holds REST API settings.
type HTTPConfig struct {
	Addr      string        `mapstructure:"addr"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// TelegramConfig holds Telegram bot configuration.
// An empty token disables the Telegram front end. An empty AllowedChats
// list allows every group chat.
type TelegramConfig struct {
	Token        string  `mapstructure:"token"`
	AdminIDs     []int64 `mapstructure:"admin_ids"`
	AllowedChats []int64 `mapstructure:"allowed_chats"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the de-duplication store settings.
// An empty address disables request de-duplication.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	DB       int           `mapstructure:"db"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

// StorageConfig holds bot package storage settings.
// An empty bucket disables uploads and remote deletion.
type StorageConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// LedgerConfig holds the currency and monetization rules.
type LedgerConfig struct {
	MonetizationThreshold int    `mapstructure:"monetization_threshold"`
	MaxTxRetries          int    `mapstructure:"max_tx_retries"`
	OfficialUserID        string `mapstructure:"official_user_id"`
	SignupBonus           int64  `mapstructure:"signup_bonus"`
}

// CleanupConfig holds the orphaned file sweeper settings.
type CleanupConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in configPath, the working directory and ./config.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. HTTP_JWT_SECRET, DATABASE_HOST, LEDGER_MAX_TX_RETRIES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can provide everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.token_ttl", "24h")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "botify")
	v.SetDefault("database.name", "botify")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dedup_ttl", "10m")

	v.SetDefault("storage.public_base_url", "https://storage.googleapis.com")

	// Ledger rules
	v.SetDefault("ledger.monetization_threshold", 2)
	v.SetDefault("ledger.max_tx_retries", 5)
	v.SetDefault("ledger.official_user_id", "bite-official")
	v.SetDefault("ledger.signup_bonus", 0)

	v.SetDefault("cleanup.interval", "10m")
	v.SetDefault("cleanup.batch_size", 50)
	v.SetDefault("cleanup.max_attempts", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	if c.HTTP.JWTSecret == "" {
		return fmt.Errorf("http.jwt_secret is required")
	}
	if c.Ledger.MonetizationThreshold < 1 {
		return fmt.Errorf("ledger.monetization_threshold must be at least 1")
	}
	if c.Ledger.MaxTxRetries < 1 {
		return fmt.Errorf("ledger.max_tx_retries must be at least 1")
	}
	if c.Ledger.SignupBonus < 0 {
		return fmt.Errorf("ledger.signup_bonus must not be negative")
	}
	if c.Ledger.OfficialUserID == "" {
		return fmt.Errorf("ledger.official_user_id is required")
	}
	return nil
}

// IsChatAllowed checks if a group chat may use the Telegram bot.
func (c *Config) IsChatAllowed(chatID int64) bool {
	if len(c.Telegram.AllowedChats) == 0 {
		return true
	}
	for _, id := range c.Telegram.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// IsAdmin checks if a Telegram user ID is in the admin list.
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

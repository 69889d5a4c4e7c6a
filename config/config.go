package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	OrderStatus OrderStatusConfig `mapstructure:"order_status"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// MigrateURL returns the connection string in the form golang-migrate's pgx/v5 driver expects.
func (d DatabaseConfig) MigrateURL() string {
	return "pgx5" + strings.TrimPrefix(d.DSN(), "postgres")
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

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"` // argon2id encoded
}

type WebhookConfig struct {
	Mode       string        `mapstructure:"mode"`        // abc, nas
	SecretKey  string        `mapstructure:"secret_key"`  // compared against the Authorization header
	SigningKey string        `mapstructure:"signing_key"` // optional Cko-Signature HMAC key
	Strategy   string        `mapstructure:"strategy"`    // inline, deferred
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`   // applied-action cache lifetime
}

type DispatchConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	ClaimLease    time.Duration `mapstructure:"claim_lease"`
	Interval      time.Duration `mapstructure:"interval"`
	EscalateAfter int           `mapstructure:"escalate_after"`
}

type CleanupConfig struct {
	RetentionDays           int           `mapstructure:"retention_days"`
	UnprocessedPolicy       string        `mapstructure:"unprocessed_policy"` // dead_letter, delete
	DeadLetterRetentionDays int           `mapstructure:"dead_letter_retention_days"`
	Interval                time.Duration `mapstructure:"interval"`
}

// OrderStatusConfig maps webhook outcomes to shop order statuses.
type OrderStatusConfig struct {
	Authorized string `mapstructure:"authorized"`
	Flagged    string `mapstructure:"flagged"`
	Captured   string `mapstructure:"captured"`
	Void       string `mapstructure:"void"`
	Failed     string `mapstructure:"failed"`
	Refunded   string `mapstructure:"refunded"`
	Disputed   string `mapstructure:"disputed"` // empty leaves status unchanged
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: WHQ_ (webhook queue).
// Nested keys use underscore: WHQ_DATABASE_HOST, WHQ_WEBHOOK_SECRET_KEY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "webhook_queue")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "payment-webhook-queue")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("webhook.mode", "nas")
	v.SetDefault("webhook.secret_key", "")
	v.SetDefault("webhook.signing_key", "")
	v.SetDefault("webhook.strategy", "deferred")
	v.SetDefault("webhook.cache_ttl", "72h")
	v.SetDefault("dispatch.batch_size", 50)
	v.SetDefault("dispatch.claim_lease", "2m")
	v.SetDefault("dispatch.interval", "30s")
	v.SetDefault("dispatch.escalate_after", 5)
	v.SetDefault("cleanup.retention_days", 7)
	v.SetDefault("cleanup.unprocessed_policy", "dead_letter")
	v.SetDefault("cleanup.dead_letter_retention_days", 30)
	v.SetDefault("cleanup.interval", "24h")
	v.SetDefault("order_status.authorized", "on-hold")
	v.SetDefault("order_status.flagged", "flagged")
	v.SetDefault("order_status.captured", "processing")
	v.SetDefault("order_status.void", "cancelled")
	v.SetDefault("order_status.failed", "failed")
	v.SetDefault("order_status.refunded", "refunded")
	v.SetDefault("order_status.disputed", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.enabled", true)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: WHQ_DATABASE_HOST -> database.host
	v.SetEnvPrefix("WHQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Webhook.Mode {
	case "abc", "nas":
	default:
		return fmt.Errorf("webhook.mode must be abc or nas, got %q", c.Webhook.Mode)
	}
	switch c.Webhook.Strategy {
	case "inline", "deferred":
	default:
		return fmt.Errorf("webhook.strategy must be inline or deferred, got %q", c.Webhook.Strategy)
	}
	switch c.Cleanup.UnprocessedPolicy {
	case "dead_letter", "delete":
	default:
		return fmt.Errorf("cleanup.unprocessed_policy must be dead_letter or delete, got %q", c.Cleanup.UnprocessedPolicy)
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Cleanup.RetentionDays < 1 {
		return fmt.Errorf("cleanup.retention_days must be at least 1")
	}
	if c.Cleanup.DeadLetterRetentionDays < c.Cleanup.RetentionDays {
		return fmt.Errorf("cleanup.dead_letter_retention_days must be at least cleanup.retention_days")
	}
	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("dispatch.batch_size must be at least 1")
	}
	return nil
}

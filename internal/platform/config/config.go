package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: db.dsn -> WATERLILY_DB_DSN.
const EnvPrefix = "WATERLILY"

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database Database
	Auth     Auth
	Redis    RedisConfig
	Kafka    Kafka
	Outbox   Outbox
	Log      Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	AllowedOrigins []string
	DebugErrors    bool
	RequestTimeout time.Duration
}

// Database selects the record store dialect and its connection.
type Database struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	InitSchema   bool
	TxTimeout    time.Duration
}

type Auth struct {
	JWTSecret string
}

// RedisConfig configures the composite view cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// Kafka configures outbox publishing. No brokers disables the relay.
type Kafka struct {
	Brokers []string
	Topic   string
}

type Outbox struct {
	PollInterval time.Duration
	BatchSize    int
}

type Log struct {
	Level  string
	Format string
}

const devJWTSecret = "dev-secret-key-change-in-production"

// SetDefaults registers every key with its default so environment overrides
// resolve even when no flag is bound.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":4000")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("debug_errors", false)
	v.SetDefault("http.request_timeout", 30*time.Second)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:waterlily.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.init_schema", false)
	v.SetDefault("tx.timeout", 5*time.Second)

	v.SetDefault("jwt.secret", devJWTSecret)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("cache.ttl", 5*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "waterlily.profile-events")
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// RegisterFlags defines the command-line overrides on flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("addr", ":4000", "HTTP listen address")
	flags.String("db-driver", "sqlite", "record store dialect: postgres, pgx, mysql, sqlite, memory")
	flags.String("db-dsn", "", "record store connection string")
	flags.Bool("init-schema", false, "create tables on start-up if they do not exist")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.Bool("debug-errors", false, "include storage causes in error responses")
}

// BindFlags binds the flags defined by RegisterFlags to their viper keys.
// Only flags set on the command line override other sources.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, flag := range map[string]string{
		"addr":           "addr",
		"db.driver":      "db-driver",
		"db.dsn":         "db-dsn",
		"db.init_schema": "init-schema",
		"log.level":      "log-level",
		"debug_errors":   "debug-errors",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment binding.
// A .env file in the working directory is loaded first when present.
func New() (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load materialises Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: Server{
			Addr:           v.GetString("addr"),
			AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
			DebugErrors:    v.GetBool("debug_errors"),
			RequestTimeout: v.GetDuration("http.request_timeout"),
		},
		Database: Database{
			Driver:       strings.ToLower(v.GetString("db.driver")),
			DSN:          v.GetString("db.dsn"),
			MaxOpenConns: v.GetInt("db.max_open_conns"),
			InitSchema:   v.GetBool("db.init_schema"),
			TxTimeout:    v.GetDuration("tx.timeout"),
		},
		Auth: Auth{
			JWTSecret: v.GetString("jwt.secret"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
			CacheTTL:     v.GetDuration("cache.ttl"),
		},
		Kafka: Kafka{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Outbox: Outbox{
			PollInterval: v.GetDuration("outbox.poll_interval"),
			BatchSize:    v.GetInt("outbox.batch_size"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "pgx", "mysql", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.DSN == "" {
		return fmt.Errorf("db.dsn is required for driver %s", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	return nil
}

// UsesDevSecret reports whether the built-in development JWT secret is active.
func (c *Config) UsesDevSecret() bool {
	return c.Auth.JWTSecret == devJWTSecret
}

// splitList accepts both repeated values and a single comma-separated value,
// which is how list settings arrive from the environment.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

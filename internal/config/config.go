// Package config loads service configuration from defaults, an optional YAML
// file and BANK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. BANK_STORAGE_DSN
const EnvPrefix = "BANK"

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Dynamo   DynamoConfig   `mapstructure:"dynamo"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	// Backend is sql, dynamo or memory
	Backend string `mapstructure:"backend"`
	// Driver is postgres or sqlite when Backend is sql
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type DynamoConfig struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	EventsTable    string `mapstructure:"events_table"`
	SnapshotsTable string `mapstructure:"snapshots_table"`
}

type KafkaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"group_id"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
}

type SnapshotConfig struct {
	// EveryEvents snapshots when the version is a multiple of it; 0 disables
	EveryEvents int `mapstructure:"every_events"`
	// Interval snapshots an aggregate at most this often; 0 disables
	Interval time.Duration `mapstructure:"interval"`
}

type CacheConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	TTL               time.Duration `mapstructure:"ttl"`
	InvalidateOnWrite bool          `mapstructure:"invalidate_on_write"`
	PurgeInterval     time.Duration `mapstructure:"purge_interval"`
}

type AuthConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	JWTSecret            string        `mapstructure:"jwt_secret"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	Operator             string        `mapstructure:"operator"`
	OperatorPasswordHash string        `mapstructure:"operator_password_hash"`
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Backend: "sql",
			Driver:  "sqlite",
			DSN:     "file:bank.db?_pragma=busy_timeout(5000)",
		},
		Dynamo: DynamoConfig{
			Region:         "us-east-1",
			EventsTable:    "events",
			SnapshotsTable: "snapshots",
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			Topic:          "account-events",
			GroupID:        "account-notifier",
			PublishTimeout: 5 * time.Second,
			RetryAttempts:  3,
		},
		Snapshot: SnapshotConfig{
			EveryEvents: 10,
		},
		Cache: CacheConfig{
			Enabled:       true,
			TTL:           5 * time.Minute,
			PurgeInterval: time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			Operator: "operator",
		},
	}
}

// Loader handles configuration loading and merging
type Loader struct {
	v          *viper.Viper
	configPath string
}

func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// WithConfigPath sets an explicit config file path
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// BindFlag lets a command-line flag override key
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %q", key)
	}
	return l.v.BindPFlag(key, flag)
}

func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal
func (l *Loader) setDefaults() {
	d := Default()

	l.v.SetDefault("http.addr", d.HTTP.Addr)
	l.v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)

	l.v.SetDefault("storage.backend", d.Storage.Backend)
	l.v.SetDefault("storage.driver", d.Storage.Driver)
	l.v.SetDefault("storage.dsn", d.Storage.DSN)

	l.v.SetDefault("dynamo.region", d.Dynamo.Region)
	l.v.SetDefault("dynamo.endpoint", d.Dynamo.Endpoint)
	l.v.SetDefault("dynamo.events_table", d.Dynamo.EventsTable)
	l.v.SetDefault("dynamo.snapshots_table", d.Dynamo.SnapshotsTable)

	l.v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	l.v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	l.v.SetDefault("kafka.topic", d.Kafka.Topic)
	l.v.SetDefault("kafka.group_id", d.Kafka.GroupID)
	l.v.SetDefault("kafka.publish_timeout", d.Kafka.PublishTimeout)
	l.v.SetDefault("kafka.retry_attempts", d.Kafka.RetryAttempts)

	l.v.SetDefault("snapshot.every_events", d.Snapshot.EveryEvents)
	l.v.SetDefault("snapshot.interval", d.Snapshot.Interval)

	l.v.SetDefault("cache.enabled", d.Cache.Enabled)
	l.v.SetDefault("cache.ttl", d.Cache.TTL)
	l.v.SetDefault("cache.invalidate_on_write", d.Cache.InvalidateOnWrite)
	l.v.SetDefault("cache.purge_interval", d.Cache.PurgeInterval)

	l.v.SetDefault("auth.enabled", d.Auth.Enabled)
	l.v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	l.v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	l.v.SetDefault("auth.operator", d.Auth.Operator)
	l.v.SetDefault("auth.operator_password_hash", d.Auth.OperatorPasswordHash)
}

// Validate rejects combinations the service cannot start with
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case "memory":
	case "sql":
		if c.Storage.Driver != "postgres" && c.Storage.Driver != "sqlite" {
			errs = append(errs, fmt.Errorf("storage.driver must be postgres or sqlite, got %q", c.Storage.Driver))
		}
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the sql backend"))
		}
	case "dynamo":
		if c.Dynamo.EventsTable == "" || c.Dynamo.SnapshotsTable == "" {
			errs = append(errs, errors.New("dynamo.events_table and dynamo.snapshots_table are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be sql, dynamo or memory, got %q", c.Storage.Backend))
	}

	if c.Snapshot.EveryEvents < 0 {
		errs = append(errs, errors.New("snapshot.every_events must not be negative"))
	}
	if c.Snapshot.Interval < 0 {
		errs = append(errs, errors.New("snapshot.interval must not be negative"))
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive when the cache is enabled"))
	}
	if c.Cache.Enabled && c.Cache.PurgeInterval <= 0 {
		errs = append(errs, errors.New("cache.purge_interval must be positive when the cache is enabled"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Auth.Enabled {
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters"))
		}
		if c.Auth.OperatorPasswordHash == "" {
			errs = append(errs, errors.New("auth.operator_password_hash is required when auth is enabled"))
		}
	}

	return errors.Join(errs...)
}

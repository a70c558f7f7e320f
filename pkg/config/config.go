// Package config loads and validates service configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Similarity, Store, etc.).
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Store      StoreConfig      `yaml:"store"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// CORSOrigins lists browser origins allowed to call the API; "*" allows
	// any. Empty disables CORS headers.
	CORSOrigins []string `yaml:"corsOrigins"`
	// RateLimit is the number of requests per minute a single client may
	// make. Zero disables limiting.
	RateLimit int `yaml:"rateLimit"`
	// APIKeys, when set, are required on every API request.
	APIKeys []string `yaml:"apiKeys"`
	// TrustedProxies lists addresses or CIDR prefixes whose X-Forwarded-For
	// header is believed when identifying clients.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables event publishing and consumption.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	NoteEvents      string `yaml:"noteEvents"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig holds Redis connection and shared matrix cache parameters.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"poolSize"`
	CacheTTL    time.Duration `yaml:"cacheTTL"`
	OpTimeout   time.Duration `yaml:"opTimeout"`
	BreakerTrip int           `yaml:"breakerTrip"`
}

// SimilarityConfig controls the similarity engine.
type SimilarityConfig struct {
	Workers        int  `yaml:"workers"`
	DisablePruning bool `yaml:"disablePruning"`
	MaxDocuments   int  `yaml:"maxDocuments"`
}

// StoreConfig selects the note store backend ("memory", "postgres" or
// "sqlite").
type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlitePath"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values, and fails if the result does not validate.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv exports variables from ./.env without overriding the real
// environment. A missing file is fine.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("reading .env: %w", err)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(strings.TrimSpace(p)) {
			return fmt.Errorf("invalid trusted proxy %q", p)
		}
	}
	if c.Similarity.Workers < 0 {
		return fmt.Errorf("similarity workers must not be negative, got %d", c.Similarity.Workers)
	}
	if c.Similarity.MaxDocuments < 0 {
		return fmt.Errorf("similarity maxDocuments must not be negative, got %d", c.Similarity.MaxDocuments)
	}
	switch c.Store.Driver {
	case "memory", "postgres":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store sqlitePath is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Kafka.Enabled() && c.Kafka.Topics.NoteEvents == "" {
		return fmt.Errorf("kafka noteEvents topic is required when brokers are set")
	}
	return nil
}

func validProxy(v string) bool {
	if strings.Contains(v, "/") {
		_, err := netip.ParsePrefix(v)
		return err == nil
	}
	_, err := netip.ParseAddr(v)
	return err == nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "constellation",
			User:            "constellation",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "constellation-group",
			Topics: KafkaTopics{
				NoteEvents:      "note-events",
				AnalyticsEvents: "constellation-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			CacheTTL:    10 * time.Minute,
			OpTimeout:   250 * time.Millisecond,
			BreakerTrip: 5,
		},
		Similarity: SimilarityConfig{
			MaxDocuments: 5000,
		},
		Store: StoreConfig{
			Driver:     "memory",
			SQLitePath: "constellation.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads NC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NC_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("NC_SERVER_API_KEYS"); v != "" {
		cfg.Server.APIKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("NC_SERVER_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("NC_SERVER_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = limit
		}
	}
	if v := os.Getenv("NC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("NC_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("NC_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("NC_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("NC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("NC_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("NC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("NC_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("NC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NC_SIMILARITY_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			cfg.Similarity.Workers = workers
		}
	}
	if v := os.Getenv("NC_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("NC_STORE_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("NC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

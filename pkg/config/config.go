// Package config loads and validates indexer configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// indexing pipeline, its stores, and the services it can feed (Kafka,
// Redis, PostgreSQL, metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	Blob     BlobConfig     `yaml:"blob"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexerConfig controls the document pipeline and the term index
// maintenance policy.
type IndexerConfig struct {
	DataDir string `yaml:"dataDir"`
	// MaxCorpusFileSize is the exclusive upper bound, in bytes, of a single
	// JSON corpus document.
	MaxCorpusFileSize        int64         `yaml:"maxCorpusFileSize"`
	SegmentMaxSize           int64         `yaml:"segmentMaxSize"`
	MaxSegmentsBeforeMerge   int           `yaml:"maxSegmentsBeforeMerge"`
	MaintenanceSettleTimeout time.Duration `yaml:"maintenanceSettleTimeout"`
	TexStrict                bool          `yaml:"texStrict"`
	// CorpusPattern selects files when indexing a corpus directory.
	CorpusPattern string `yaml:"corpusPattern"`
}

// DefaultMaxCorpusFileSize bounds a single corpus document.
const DefaultMaxCorpusFileSize int64 = 8 * 1024 * 1024

// BlobConfig selects where the URL and text blob channels live.
type BlobConfig struct {
	Backend string `yaml:"backend"`
}

const (
	BlobBackendBolt  = "bolt"
	BlobBackendRedis = "redis"
)

// RedisConfig holds Redis connection parameters for the redis blob backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
	// Notify enables publishing an event per indexed document.
	Notify bool `yaml:"notify"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Corpus        string `yaml:"corpus"`
	IndexComplete string `yaml:"indexComplete"`
}

// PostgresConfig holds the connection parameters of the indexed-document
// ledger.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used for local indexing runs.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			DataDir:                  "data",
			MaxCorpusFileSize:        DefaultMaxCorpusFileSize,
			CorpusPattern:            "**/*.json",
			SegmentMaxSize:           64 * 1024 * 1024,
			MaxSegmentsBeforeMerge:   8,
			MaintenanceSettleTimeout: 2 * time.Minute,
		},
		Blob: BlobConfig{
			Backend: BlobBackendBolt,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "mathsearch",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "mathsearch-indexer",
			Topics: KafkaTopics{
				Corpus:        "corpus-documents",
				IndexComplete: "index.complete",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "mathsearch",
			User:            "mathsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Indexer.DataDir == "" {
		return fmt.Errorf("indexer.dataDir is required")
	}
	if c.Indexer.MaxCorpusFileSize <= 0 {
		return fmt.Errorf("indexer.maxCorpusFileSize must be positive, got %d", c.Indexer.MaxCorpusFileSize)
	}
	if c.Indexer.SegmentMaxSize <= 0 {
		return fmt.Errorf("indexer.segmentMaxSize must be positive, got %d", c.Indexer.SegmentMaxSize)
	}
	if c.Indexer.MaxSegmentsBeforeMerge < 2 {
		return fmt.Errorf("indexer.maxSegmentsBeforeMerge must be at least 2, got %d", c.Indexer.MaxSegmentsBeforeMerge)
	}
	if !doublestar.ValidatePattern(c.Indexer.CorpusPattern) {
		return fmt.Errorf("invalid indexer.corpusPattern %q", c.Indexer.CorpusPattern)
	}
	if c.Indexer.MaintenanceSettleTimeout <= 0 {
		return fmt.Errorf("indexer.maintenanceSettleTimeout must be positive, got %s", c.Indexer.MaintenanceSettleTimeout)
	}
	if c.Kafka.Notify && c.Kafka.Topics.IndexComplete == "" {
		return fmt.Errorf("kafka.topics.indexComplete is required when kafka.notify is set")
	}
	switch c.Blob.Backend {
	case BlobBackendBolt, BlobBackendRedis:
	default:
		return fmt.Errorf("invalid blob.backend %q: must be one of bolt, redis", c.Blob.Backend)
	}
	return nil
}

// applyEnvOverrides reads MS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MS_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("MS_MAX_CORPUS_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.MaxCorpusFileSize = n
		}
	}
	if v := os.Getenv("MS_SEGMENT_MAX_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Indexer.SegmentMaxSize = n
		}
	}
	if v := os.Getenv("MS_CORPUS_PATTERN"); v != "" {
		cfg.Indexer.CorpusPattern = v
	}
	if v := os.Getenv("MS_SETTLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.MaintenanceSettleTimeout = d
		}
	}
	if v := os.Getenv("MS_TEX_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.TexStrict = b
		}
	}
	if v := os.Getenv("MS_BLOB_BACKEND"); v != "" {
		cfg.Blob.Backend = v
	}
	if v := os.Getenv("MS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MS_KAFKA_NOTIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Notify = b
		}
	}
	if v := os.Getenv("MS_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("MS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

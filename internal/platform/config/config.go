package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration of the audit service.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Retention RetentionConfig
	Recorder  RecorderConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	AdminToken  string
	// AdminTokenHash is a bcrypt hash of the admin token. When set it takes
	// precedence over AdminToken.
	AdminTokenHash  string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds Postgres pool settings. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds go-redis pool settings. An empty URL disables the statistics cache.
type RedisConfig struct {
	URL           string
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	StatisticsTTL time.Duration
}

// KafkaConfig holds broker, topic and outbox relay settings. No brokers disables messaging.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	GroupID           string
	Partitions        int32
	ReplicationFactor int16
	OutboxInterval    time.Duration
	OutboxBatchSize   int
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RetentionConfig controls how long audit events and relayed outbox entries are kept.
type RetentionConfig struct {
	Period       time.Duration
	OutboxPeriod time.Duration
	Interval     time.Duration
}

// Recorder modes.
const (
	RecorderModeDirect = "direct"
	RecorderModeOutbox = "outbox"
)

// RecorderConfig selects where recorded events go and whether saving blocks the caller.
type RecorderConfig struct {
	Mode       string
	Async      bool
	BufferSize int
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs envErrors

	cfg := Config{
		Server: Server{
			Addr:            getEnv("AUDIT_ADDR", ":8080"),
			Environment:     getEnv("AUDIT_ENV", "development"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			AdminToken:      getEnv("AUDIT_ADMIN_TOKEN", "dev-admin-token"),
			AdminTokenHash:  os.Getenv("AUDIT_ADMIN_TOKEN_HASH"),
			ReadTimeout:     errs.getDuration("AUDIT_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    errs.getDuration("AUDIT_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: errs.getDuration("AUDIT_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    errs.getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    errs.getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: errs.getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:           os.Getenv("REDIS_URL"),
			PoolSize:      errs.getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  errs.getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   errs.getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   errs.getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  errs.getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			StatisticsTTL: errs.getDuration("AUDIT_STATISTICS_TTL", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:           getEnvList("KAFKA_BROKERS"),
			Topic:             getEnv("KAFKA_AUDIT_TOPIC", "audit-events"),
			GroupID:           getEnv("KAFKA_CONSUMER_GROUP", "audit-trail"),
			Partitions:        int32(errs.getInt("KAFKA_AUDIT_PARTITIONS", 3)),
			ReplicationFactor: int16(errs.getInt("KAFKA_AUDIT_REPLICATION", 1)),
			OutboxInterval:    errs.getDuration("AUDIT_OUTBOX_INTERVAL", 500*time.Millisecond),
			OutboxBatchSize:   errs.getInt("AUDIT_OUTBOX_BATCH_SIZE", 100),
		},
		Retention: RetentionConfig{
			Period:       errs.getDuration("AUDIT_RETENTION", 365*24*time.Hour),
			OutboxPeriod: errs.getDuration("AUDIT_OUTBOX_RETENTION", 7*24*time.Hour),
			Interval:     errs.getDuration("AUDIT_RETENTION_INTERVAL", time.Hour),
		},
		Recorder: RecorderConfig{
			Mode:       getEnv("AUDIT_RECORDER_MODE", RecorderModeDirect),
			Async:      errs.getBool("AUDIT_RECORDER_ASYNC", true),
			BufferSize: errs.getInt("AUDIT_RECORDER_BUFFER", 1000),
		},
	}

	if err := errs.err(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Recorder.Mode {
	case RecorderModeDirect:
	case RecorderModeOutbox:
		if c.Database.URL == "" {
			return fmt.Errorf("AUDIT_RECORDER_MODE=outbox requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("AUDIT_RECORDER_MODE must be %q or %q, got %q", RecorderModeDirect, RecorderModeOutbox, c.Recorder.Mode)
	}
	if c.Retention.Period <= 0 {
		return fmt.Errorf("AUDIT_RETENTION must be positive, got %s", c.Retention.Period)
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("AUDIT_RETENTION_INTERVAL must be positive, got %s", c.Retention.Interval)
	}
	if c.Recorder.BufferSize < 1 {
		return fmt.Errorf("AUDIT_RECORDER_BUFFER must be >= 1, got %d", c.Recorder.BufferSize)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envErrors collects parse failures so every bad variable is reported at once.
type envErrors []string

func (e *envErrors) getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*e = append(*e, fmt.Sprintf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func (e *envErrors) getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*e = append(*e, fmt.Sprintf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (e *envErrors) getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*e = append(*e, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}

func (e envErrors) err() error {
	if len(e) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(e, "; "))
}

package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// Драйверы хранилища.
const (
	StorageDriverMongo    = "mongo"
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config - настройки запуска, читаются из окружения (и .env, если есть).
type Config struct {
	StorageDriver       string `env:"STORAGE_DRIVER" envDefault:"mongo"`
	MongoURI            string `env:"MONGODB_URI"`
	DBName              string `env:"DB_NAME" envDefault:"lesson_booking"`
	PostgresDSN         string `env:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"POSTGRES_AUTO_MIGRATE" envDefault:"true"`
	PostgresMaxConns    int    `env:"POSTGRES_MAX_CONNS" envDefault:"25"`

	Port            string        `env:"PORT" envDefault:"8080"`
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9090"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envSeparator:","`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	PublicDir       string        `env:"PUBLIC_DIR" envDefault:"public"`
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"300"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"lessonbook.order.events"`
	KafkaDLQTopic string   `env:"KAFKA_DLQ_TOPIC" envDefault:"lessonbook.dlq"`
	KafkaClientID string   `env:"KAFKA_CLIENT_ID" envDefault:"lessonbook"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"3"`
	OutboxRetryDelay   time.Duration `env:"OUTBOX_RETRY_DELAY" envDefault:"50ms"`

	IdempotencyTTL             time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyCleanupInterval time.Duration `env:"IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"10m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// DefaultConfig возвращает конфигурацию со значениями по умолчанию без чтения окружения.
func DefaultConfig() Config {
	var cfg Config
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// LoadConfig подгружает .env (если файл есть), читает окружение и валидирует результат.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load .env: %v", domain.ErrConfiguration, err)
	}
	return ParseConfig(nil)
}

// ParseConfig читает конфигурацию из environ (или из окружения процесса, если nil).
func ParseConfig(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("%w: parse env: %v", domain.ErrConfiguration, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.CORSOrigins = compact(c.CORSOrigins)
	c.TrustedProxies = compact(c.TrustedProxies)
	c.KafkaBrokers = compact(c.KafkaBrokers)
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// Validate проверяет обязательные параметры выбранного драйвера.
func (c Config) Validate() error {
	var problems []string

	switch c.StorageDriver {
	case StorageDriverMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			problems = append(problems, "MONGODB_URI is required for the mongo storage driver")
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			problems = append(problems, "POSTGRES_DSN is required for the postgres storage driver")
		}
		if c.PostgresMaxConns <= 0 {
			problems = append(problems, "POSTGRES_MAX_CONNS must be positive")
		}
	case StorageDriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unsupported storage driver %q", c.StorageDriver))
	}

	if strings.TrimSpace(c.Port) == "" {
		problems = append(problems, "PORT must not be empty")
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		problems = append(problems, "RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 || c.OutboxPollInterval <= 0 {
		problems = append(problems, "outbox settings must be positive")
	}
	if c.IdempotencyTTL <= 0 || c.IdempotencyCleanupInterval <= 0 {
		problems = append(problems, "IDEMPOTENCY_TTL and IDEMPOTENCY_CLEANUP_INTERVAL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "SHUTDOWN_TIMEOUT must be positive")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("invalid LOG_LEVEL %q", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("invalid LOG_FORMAT %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// HTTPAddr возвращает адрес основного HTTP-сервера.
func (c Config) HTTPAddr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return net.JoinHostPort("", c.Port)
}

// NewLogger настраивает logrus по LOG_LEVEL и LOG_FORMAT.
func NewLogger(cfg Config) *log.Logger {
	logger := log.New()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.StorageDriver != StorageDriverMongo {
		t.Fatalf("expected mongo driver by default, got %q", cfg.StorageDriver)
	}
	if cfg.DBName != "lesson_booking" {
		t.Fatalf("unexpected db name %q", cfg.DBName)
	}
	if cfg.Port != "8080" || cfg.HTTPAddr() != ":8080" {
		t.Fatalf("unexpected port %q (addr %q)", cfg.Port, cfg.HTTPAddr())
	}
	if cfg.RateLimitMax != 300 || cfg.RateLimitWindow != 15*time.Minute {
		t.Fatalf("unexpected rate limit %d/%s", cfg.RateLimitMax, cfg.RateLimitWindow)
	}
	if cfg.PostgresMaxConns != 25 {
		t.Fatalf("unexpected postgres pool size %d", cfg.PostgresMaxConns)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency ttl %s", cfg.IdempotencyTTL)
	}
	if cfg.KafkaTopic != "lessonbook.order.events" || cfg.KafkaDLQTopic != "lessonbook.dlq" {
		t.Fatalf("unexpected kafka topics %q %q", cfg.KafkaTopic, cfg.KafkaDLQTopic)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.RedisAddr != "" {
		t.Fatal("optional integrations must be disabled by default")
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{
		"STORAGE_DRIVER":    " Postgres ",
		"POSTGRES_DSN":      "postgres://localhost/lessons",
		"PORT":              "3000",
		"CORS_ORIGINS":      "https://a.example, ,https://b.example",
		"KAFKA_BROKERS":     "k1:9092,k2:9092",
		"RATE_LIMIT_WINDOW": "1m",
		"LOG_FORMAT":        "JSON",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StorageDriver != StorageDriverPostgres {
		t.Fatalf("driver must be normalized, got %q", cfg.StorageDriver)
	}
	if cfg.HTTPAddr() != ":3000" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr())
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSOrigins)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected window %s", cfg.RateLimitWindow)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("unexpected log format %q", cfg.LogFormat)
	}
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    string
	}{
		{
			name:    "mongo requires uri",
			environ: map[string]string{},
			want:    "MONGODB_URI is required",
		},
		{
			name:    "postgres requires dsn",
			environ: map[string]string{"STORAGE_DRIVER": "postgres"},
			want:    "POSTGRES_DSN is required",
		},
		{
			name:    "postgres pool must be positive",
			environ: map[string]string{"STORAGE_DRIVER": "postgres", "POSTGRES_DSN": "postgres://localhost/lessons", "POSTGRES_MAX_CONNS": "0"},
			want:    "POSTGRES_MAX_CONNS",
		},
		{
			name:    "unknown driver",
			environ: map[string]string{"STORAGE_DRIVER": "sqlite"},
			want:    `unsupported storage driver "sqlite"`,
		},
		{
			name:    "bad rate limit",
			environ: map[string]string{"STORAGE_DRIVER": "memory", "RATE_LIMIT_MAX": "0"},
			want:    "RATE_LIMIT_MAX",
		},
		{
			name:    "bad log level",
			environ: map[string]string{"STORAGE_DRIVER": "memory", "LOG_LEVEL": "loud"},
			want:    `invalid LOG_LEVEL "loud"`,
		},
		{
			name:    "unparsable duration",
			environ: map[string]string{"STORAGE_DRIVER": "memory", "SHUTDOWN_TIMEOUT": "soon"},
			want:    "parse env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.environ)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestHTTPAddrKeepsHostPort(t *testing.T) {
	cfg := Config{Port: "127.0.0.1:0"}
	if cfg.HTTPAddr() != "127.0.0.1:0" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr())
	}
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(Config{LogLevel: "debug", LogFormat: "json"})
	if logger.GetLevel().String() != "debug" {
		t.Fatalf("unexpected level %s", logger.GetLevel())
	}

	fallback := NewLogger(Config{LogLevel: "nope"})
	if fallback.GetLevel().String() != "info" {
		t.Fatalf("expected info fallback, got %s", fallback.GetLevel())
	}
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const (
	// DefaultMaxConns - размер пула по умолчанию (POSTGRES_MAX_CONNS).
	DefaultMaxConns = 25

	pingTimeout     = 5 * time.Second
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// Store - пул соединений к базе lessonbook через драйвер pgx.
type Store struct {
	db     *sql.DB
	logger *log.Entry
}

type storeOptions struct {
	maxConns int
	logger   *log.Entry
}

// Option настраивает Store.
type Option func(*storeOptions)

// WithMaxConns ограничивает число открытых соединений; простаивающих держится столько же.
func WithMaxConns(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// WithLogger задаёт logger хранилища и его мигратора.
func WithLogger(logger *log.Entry) Option {
	return func(o *storeOptions) { o.logger = logger }
}

// Open подключается к PostgreSQL и проверяет доступность базы.
// Пустой DSN - ErrConfiguration, недоступная база - ErrConnection.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%w: POSTGRES_DSN is not set", domain.ErrConfiguration)
	}

	opts := storeOptions{maxConns: DefaultMaxConns}
	for _, option := range options {
		option(&opts)
	}
	if opts.logger == nil {
		opts.logger = log.WithField("component", "postgres")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", domain.ErrConnection, err)
	}
	db.SetMaxOpenConns(opts.maxConns)
	db.SetMaxIdleConns(opts.maxConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	store := &Store{db: db, logger: opts.logger}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", domain.ErrConnection, err)
	}

	opts.logger.WithField("max_conns", opts.maxConns).Info("connected to postgres")
	return store, nil
}

// DB возвращает пул для репозиториев пакета.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health-проверкой /healthz.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return domain.ErrNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema доводит схему до последней встроенной версии
// (POSTGRES_AUTO_MIGRATE) и возвращает применённые миграции.
func (s *Store) EnsureSchema(ctx context.Context) ([]Migration, error) {
	return s.Migrator().Up(ctx, 0)
}

// Close закрывает пул; повторный вызов и nil-Store безопасны.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ domain.Pinger = (*Store)(nil)

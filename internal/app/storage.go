package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/storage/memory"
	"github.com/vladislavdragonenkov/lessonbook/internal/storage/mongo"
	"github.com/vladislavdragonenkov/lessonbook/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/lessonbook/internal/storage/redis"
)

const redisPingTimeout = 5 * time.Second

// Storage - репозитории выбранного драйвера и всё, что нужно закрыть при остановке.
type Storage struct {
	Driver      string
	Lessons     domain.LessonRepository
	Orders      domain.OrderRepository
	UnitOfWork  domain.UnitOfWork
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository
	Pinger      domain.Pinger

	// Redis задан, если ключи идемпотентности хранятся в Redis.
	Redis *redis.Client

	closers []func(ctx context.Context) error
}

// OpenStorage подключается к хранилищу по cfg.StorageDriver.
// Ошибки подключения оборачивают domain.ErrConnection, ошибки настроек - domain.ErrConfiguration.
func OpenStorage(ctx context.Context, cfg Config, logger *log.Entry) (*Storage, error) {
	if logger == nil {
		logger = log.WithField("component", "storage")
	}

	var (
		s   *Storage
		err error
	)
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		s = openMemory()
	case StorageDriverMongo:
		s, err = openMongo(ctx, cfg, logger)
	case StorageDriverPostgres:
		s, err = openPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported storage driver %q", domain.ErrConfiguration, cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}
	s.Driver = cfg.StorageDriver

	if cfg.RedisAddr != "" {
		if err := s.useRedis(ctx, cfg); err != nil {
			_ = s.Close(context.Background())
			return nil, err
		}
		logger.WithField("addr", cfg.RedisAddr).Info("idempotency keys are stored in redis")
	} else if idempotencyIsProcessLocal(cfg) {
		logger.Warn("REDIS_ADDR is not set: idempotency keys live in process memory, are lost on restart and are not shared between instances")
	}

	logger.WithField("driver", s.Driver).Info("storage initialized")
	return s, nil
}

// idempotencyIsProcessLocal: у mongo нет своего хранилища ключей идемпотентности,
// без Redis они держатся в памяти процесса.
func idempotencyIsProcessLocal(cfg Config) bool {
	return cfg.RedisAddr == "" && cfg.StorageDriver == StorageDriverMongo
}

func openMemory() *Storage {
	store := memory.NewStore()
	return &Storage{
		Lessons:     memory.NewLessonRepository(store),
		Orders:      memory.NewOrderRepository(store),
		UnitOfWork:  memory.NewUnitOfWork(store),
		Outbox:      store.Outbox(),
		Idempotency: memory.NewIdempotencyRepository(),
		Pinger:      store,
	}
}

func openMongo(ctx context.Context, cfg Config, logger *log.Entry) (*Storage, error) {
	accessor := mongo.NewAccessor(mongo.Config{
		URI:      cfg.MongoURI,
		Database: cfg.DBName,
	}, logger.WithField("driver", StorageDriverMongo))

	handle, err := accessor.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := accessor.EnsureIndexes(ctx); err != nil {
		_ = accessor.Close(context.Background())
		return nil, err
	}
	cols, err := accessor.Collections()
	if err != nil {
		_ = accessor.Close(context.Background())
		return nil, err
	}

	return &Storage{
		Lessons:     mongo.NewLessonRepository(cols),
		Orders:      mongo.NewOrderRepository(cols),
		UnitOfWork:  mongo.NewUnitOfWork(handle, cols),
		Outbox:      mongo.NewOutboxRepository(cols),
		Idempotency: memory.NewIdempotencyRepository(),
		Pinger:      accessor,
		closers:     []func(ctx context.Context) error{accessor.Close},
	}, nil
}

func openPostgres(ctx context.Context, cfg Config, logger *log.Entry) (*Storage, error) {
	store, err := postgres.Open(ctx, cfg.PostgresDSN,
		postgres.WithMaxConns(cfg.PostgresMaxConns),
		postgres.WithLogger(logger.WithField("driver", StorageDriverPostgres)),
	)
	if err != nil {
		return nil, err
	}

	if cfg.PostgresAutoMigrate {
		applied, err := store.EnsureSchema(ctx)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		logger.WithField("applied", len(applied)).Info("postgres schema is up to date")
	}

	return &Storage{
		Lessons:     postgres.NewLessonRepository(store),
		Orders:      postgres.NewOrderRepository(store),
		UnitOfWork:  postgres.NewUnitOfWork(store),
		Outbox:      postgres.NewOutboxRepository(store),
		Idempotency: postgres.NewIdempotencyRepository(store),
		Pinger:      store,
		closers: []func(ctx context.Context) error{func(context.Context) error {
			return store.Close()
		}},
	}, nil
}

func (s *Storage) useRedis(ctx context.Context, cfg Config) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: redis %s: %v", domain.ErrConnection, cfg.RedisAddr, err)
	}

	s.Redis = client
	s.Idempotency = redisstore.NewIdempotencyRepository(client)
	s.closers = append(s.closers, func(context.Context) error { return client.Close() })
	return nil
}

// Close освобождает подключения в обратном порядке.
func (s *Storage) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

package mongo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const (
	// DefaultDatabase - имя базы, если DB_NAME не задан.
	DefaultDatabase = "lesson_booking"

	lessonsCollection = "lessons"
	ordersCollection  = "orders"
	outboxCollection  = "outbox"

	defaultConnectTimeout = 10 * time.Second
	opTimeout             = 5 * time.Second
)

// Config - параметры подключения к MongoDB.
type Config struct {
	URI      string
	Database string
	// ConnectTimeout ограничивает выбор сервера и ping при подключении.
	ConnectTimeout time.Duration
}

// Handle - активное подключение: клиент и выбранная база.
type Handle struct {
	client *mongo.Client
	db     *mongo.Database
}

// Client возвращает драйверный клиент (нужен для сессий).
func (h *Handle) Client() *mongo.Client {
	return h.client
}

// Database возвращает выбранную базу.
func (h *Handle) Database() *mongo.Database {
	return h.db
}

// Collections - типизированные дескрипторы коллекций активного подключения.
type Collections struct {
	Lessons *mongo.Collection
	Orders  *mongo.Collection
	Outbox  *mongo.Collection
}

// Accessor владеет единственным подключением процесса к MongoDB.
// После Connect дескриптор только читается и безопасен для конкурентного использования.
type Accessor struct {
	cfg    Config
	logger *log.Entry

	mu     sync.Mutex
	handle *Handle
}

// NewAccessor создаёт Accessor без подключения.
func NewAccessor(cfg Config, logger *log.Entry) *Accessor {
	if logger == nil {
		logger = log.WithField("component", "mongo-accessor")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Accessor{cfg: cfg, logger: logger}
}

// Connect устанавливает подключение и проверяет его командой ping.
// Повторные и конкурентные вызовы возвращают тот же Handle.
func (a *Accessor) Connect(ctx context.Context) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle != nil {
		return a.handle, nil
	}

	uri := strings.TrimSpace(a.cfg.URI)
	if uri == "" {
		return nil, fmt.Errorf("%w: MONGODB_URI is not set", domain.ErrConfiguration)
	}

	serverAPI := options.ServerAPI(options.ServerAPIVersion1).SetStrict(true).SetDeprecationErrors(true)
	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(serverAPI).
		SetServerSelectionTimeout(a.cfg.ConnectTimeout).
		SetConnectTimeout(a.cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", domain.ErrConnection, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrConnection, err)
	}

	a.handle = &Handle{client: client, db: client.Database(a.cfg.Database)}
	a.logger.WithField("database", a.cfg.Database).Info("connected to MongoDB")
	return a.handle, nil
}

// Collections возвращает дескрипторы коллекций или ErrNotInitialized до Connect.
func (a *Accessor) Collections() (Collections, error) {
	h, err := a.current()
	if err != nil {
		return Collections{}, err
	}
	return Collections{
		Lessons: h.db.Collection(lessonsCollection),
		Orders:  h.db.Collection(ordersCollection),
		Outbox:  h.db.Collection(outboxCollection),
	}, nil
}

// EnsureIndexes создаёт индексы, которые нужны outbox-воркеру и экспорту заказов.
func (a *Accessor) EnsureIndexes(ctx context.Context) error {
	cols, err := a.Collections()
	if err != nil {
		return err
	}

	if _, err := cols.Outbox.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create outbox index: %w", err)
	}
	if _, err := cols.Orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create orders index: %w", err)
	}
	return nil
}

// Handle возвращает активное подключение или ErrNotInitialized до Connect.
func (a *Accessor) Handle() (*Handle, error) {
	return a.current()
}

// Ping проверяет доступность сервера (используется health-проверкой).
func (a *Accessor) Ping(ctx context.Context) error {
	h, err := a.current()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return h.client.Ping(pingCtx, readpref.Primary())
}

// Close разрывает подключение. Безопасно вызывать без предшествующего Connect.
func (a *Accessor) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle == nil {
		return nil
	}
	err := a.handle.client.Disconnect(ctx)
	a.handle = nil
	if err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	a.logger.Info("MongoDB connection closed")
	return nil
}

func (a *Accessor) current() (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handle == nil {
		return nil, domain.ErrNotInitialized
	}
	return a.handle, nil
}

var _ domain.Pinger = (*Accessor)(nil)

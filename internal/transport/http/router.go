package http

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/metrics"
)

// Значения по умолчанию.
const (
	DefaultBodyLimit       int64 = 1 << 20
	DefaultRateLimitMax          = 300
	DefaultRateLimitWindow       = 15 * time.Minute
	DefaultIdempotencyTTL        = 24 * time.Hour
)

// Config - параметры HTTP API.
type Config struct {
	CORSOrigins     []string
	RateLimitMax    int
	RateLimitWindow time.Duration
	BodyLimit       int64
	PublicDir       string
	IdempotencyTTL  time.Duration
	TrustedProxies  []string
}

// Deps - зависимости обработчиков.
type Deps struct {
	Catalog     Catalog
	Booker      Booker
	Idempotency domain.IdempotencyRepository
	Metrics     *metrics.HTTPMetrics
	Logger      *log.Entry
}

// NewRouter собирает gin.Engine со всеми маршрутами и middleware.
func NewRouter(cfg Config, deps Deps) (*gin.Engine, error) {
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = DefaultRateLimitMax
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = DefaultRateLimitWindow
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if cfg.PublicDir == "" {
		cfg.PublicDir = "public"
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		Metrics(deps.Metrics),
		RequestLogger(logger),
		Recovery(logger),
		SecurityHeaders(),
		CORS(cfg.CORSOrigins),
		RateLimit(cfg.RateLimitMax, cfg.RateLimitWindow, deps.Metrics),
		BodyLimit(cfg.BodyLimit),
	)

	h := &Handler{
		catalog:   deps.Catalog,
		booker:    deps.Booker,
		publicDir: cfg.PublicDir,
		logger:    logger,
		replay: &idempotencyGuard{
			repo:   deps.Idempotency,
			ttl:    cfg.IdempotencyTTL,
			now:    func() time.Time { return time.Now().UTC() },
			logger: logger,
		},
	}

	engine.Static("/public", cfg.PublicDir)
	engine.GET("/images/:filename", h.image)

	lessons := engine.Group("/lessons")
	lessons.GET("", h.listLessons)
	lessons.GET("/search", h.searchLessons)
	lessons.PUT("/:id", h.updateLesson)

	engine.GET("/search", h.searchLessons)
	engine.POST("/orders", h.placeOrder)
	engine.GET("/health", h.health)

	engine.NoRoute(h.notFound)
	return engine, nil
}

package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/lessonbook/internal/health"
	"github.com/vladislavdragonenkov/lessonbook/internal/metrics"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/booking"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/catalog"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/idempotency"
	"github.com/vladislavdragonenkov/lessonbook/internal/service/outbox"
	transport "github.com/vladislavdragonenkov/lessonbook/internal/transport/http"
	"github.com/vladislavdragonenkov/lessonbook/internal/version"
)

const metricsShutdownTimeout = 5 * time.Second

// Run поднимает хранилище, фоновые воркеры и HTTP-серверы и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	return run(ctx, cfg, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func run(ctx context.Context, cfg Config, registerer prometheus.Registerer, gatherer prometheus.Gatherer) error {
	base := NewLogger(cfg)
	logger := base.WithField("component", "app")
	logger.WithField("version", version.String()).Info("starting lesson booking service")

	storage, err := OpenStorage(ctx, cfg, base.WithField("component", "storage"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := storage.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	bookingMetrics := metrics.NewBookingMetrics(registerer)
	httpMetrics := metrics.NewHTTPMetrics(registerer)
	workerMetrics := metrics.NewWorkerMetrics(registerer)

	catalogSvc := catalog.NewService(storage.Lessons, base.WithField("component", "catalog"))
	bookingSvc := booking.NewService(storage.UnitOfWork,
		booking.WithLogger(base.WithField("component", "booking")),
		booking.WithMetrics(bookingMetrics),
	)

	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker(storage.Driver, storage.Pinger))
	if storage.Redis != nil {
		healthHandler.RegisterChecker("redis", healthcheck.NewOptionalChecker("redis", func(ctx context.Context) error {
			return storage.Redis.Ping(ctx).Err()
		}))
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var workers sync.WaitGroup

	publishers, kafkaErr := initKafka(cfg, base.WithField("component", "kafka"))
	defer closeKafka(publishers, logger)
	if len(cfg.KafkaBrokers) > 0 {
		healthHandler.RegisterChecker("kafka", healthcheck.NewOptionalChecker("kafka", func(context.Context) error {
			return kafkaErr
		}))
	}
	if publishers != nil {
		worker := outbox.NewWorker(storage.Outbox, publishers.events,
			outbox.WithLogger(base.WithField("component", "outbox-worker")),
			outbox.WithMetrics(workerMetrics),
			outbox.WithDLQPublisher(publishers.dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workerCtx)
		}()
	} else {
		logger.Info("kafka is not configured, order events stay in outbox")
	}

	cleanup := idempotency.NewCleanupWorker(storage.Idempotency,
		idempotency.WithLogger(base.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(workerMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
	)
	workers.Add(1)
	go func() {
		defer workers.Done()
		cleanup.Run(workerCtx)
	}()

	metricsSrv, err := startMetricsServer(ctx, cfg.MetricsAddr, logger, gatherer, healthHandler)
	if err != nil {
		stopWorkers()
		workers.Wait()
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := transport.NewRouter(transport.Config{
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		PublicDir:       cfg.PublicDir,
		IdempotencyTTL:  cfg.IdempotencyTTL,
		TrustedProxies:  cfg.TrustedProxies,
	}, transport.Deps{
		Catalog:     catalogSvc,
		Booker:      bookingSvc,
		Idempotency: storage.Idempotency,
		Metrics:     httpMetrics,
		Logger:      base.WithField("component", "http"),
	})
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		workers.Wait()
		return err
	}

	lis, err := net.Listen("tcp", cfg.HTTPAddr())
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		workers.Wait()
		return err
	}
	apiSrv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := apiSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("graceful shutdown превысил таймаут, принудительно закрываем")
			_ = apiSrv.Close()
		}
		cancel()
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		workers.Wait()
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopWorkers()
		workers.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health checks.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, gatherer prometheus.Gatherer, healthHandler *healthcheck.Handler) (*http.Server, error) {
	if addr == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Addr: lis.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", srv.Addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", srv.Addr, srv.Addr, srv.Addr)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv, nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}

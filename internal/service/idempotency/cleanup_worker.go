package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
	"github.com/vladislavdragonenkov/lessonbook/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

// CleanupOptions задаёт параметры воркера очистки idempotency-ключей.
type CleanupOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.WorkerMetrics
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithMetrics включает счётчик удалённых ключей.
func WithMetrics(m *metrics.WorkerMetrics) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Metrics = m
	}
}

// WithInterval задаёт интервал между циклами очистки.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт размер порции для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Now = now
	}
}

// CleanupWorker периодически удаляет просроченные ключи POST /orders.
// Для Redis удаление делает сам TTL, и репозиторий возвращает 0.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	metrics   *metrics.WorkerMetrics
	now       func() time.Time
	interval  time.Duration
	batchSize int
}

// NewCleanupWorker создаёт воркер очистки.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "idempotency-cleanup")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &CleanupWorker{
		repo:      repo,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.WithError(err).Warn("idempotency cleanup run failed")
		return
	}
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// DeleteExpired удаляет все записи с ttl <= before порциями batchSize.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		w.metrics.RecordPurged(deleted)

		if deleted < w.batchSize {
			return total, nil
		}
	}
}

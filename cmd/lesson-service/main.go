package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/app"
	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

// setupLogger настраивает формат и уровень логирования до чтения конфигурации.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// exitCode возвращает код завершения процесса по ошибке Run.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, domain.ErrConfiguration):
		return 2
	default:
		return 1
	}
}

func main() {
	setupLogger()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"storage":      cfg.StorageDriver,
		"http_addr":    cfg.HTTPAddr(),
		"metrics_addr": cfg.MetricsAddr,
	}).Info("запускаем LessonService")

	if err := app.Run(ctx, cfg); exitCode(err) != 0 {
		log.WithError(err).Error("приложение завершилось с ошибкой")
		os.Exit(exitCode(err))
	}

	log.Info("LessonService остановлен")
}

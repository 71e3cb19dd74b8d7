package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/app"
	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const seedTimeout = 30 * time.Second

// sampleLessons - стартовый каталог.
var sampleLessons = []domain.Lesson{
	{Subject: "Art", Location: "Manchester", Price: 75, Spaces: 2},
	{Subject: "Art", Location: "Bristol", Price: 80, Spaces: 5},
	{Subject: "English", Location: "London", Price: 90, Spaces: 5},
	{Subject: "English", Location: "York", Price: 85, Spaces: 5},
	{Subject: "English", Location: "Bristol", Price: 95, Spaces: 5},
	{Subject: "Math", Location: "London", Price: 100, Spaces: 4},
	{Subject: "Math", Location: "Oxford", Price: 100, Spaces: 5},
	{Subject: "Math", Location: "York", Price: 80, Spaces: 4},
	{Subject: "Music", Location: "Bristol", Price: 90, Spaces: 5},
	{Subject: "Music", Location: "Manchester", Price: 85, Spaces: 5},
	{Subject: "Science", Location: "London", Price: 110, Spaces: 5},
	{Subject: "Science", Location: "Oxford", Price: 120, Spaces: 5},
}

// seed заменяет каталог уроков образцом и печатает итог.
func seed(ctx context.Context, lessons domain.LessonRepository, out io.Writer) error {
	batch := make([]domain.Lesson, len(sampleLessons))
	copy(batch, sampleLessons)

	n, err := lessons.ReplaceAll(ctx, batch)
	if err != nil {
		return fmt.Errorf("replace lessons: %w", err)
	}
	_, _ = fmt.Fprintf(out, "Seeded %d lessons.\n", n)
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	storage, err := app.OpenStorage(ctx, cfg, log.WithField("component", "seed"))
	if err != nil {
		log.WithError(err).Fatal("не удалось подключиться к хранилищу")
	}
	defer func() { _ = storage.Close(context.Background()) }()

	if err := seed(ctx, storage.Lessons, os.Stdout); err != nil {
		_ = storage.Close(context.Background())
		log.WithError(err).Fatal("seed failed")
	}
}

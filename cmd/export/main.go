package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/app"
	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const exportTimeout = time.Minute

// exporter выгружает уроки и заказы в JSON-файлы.
type exporter struct {
	lessons domain.LessonRepository
	orders  domain.OrderRepository
	dir     string
	out     io.Writer
}

// summary - количество выгруженных документов.
type summary struct {
	Lessons int
	Orders  int
}

func (e exporter) run(ctx context.Context) (summary, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return summary{}, fmt.Errorf("create export dir: %w", err)
	}

	lessons, err := e.lessons.List(ctx)
	if err != nil {
		return summary{}, fmt.Errorf("list lessons: %w", err)
	}
	lessonsPath := filepath.Join(e.dir, "lessons.json")
	if err := writeJSON(lessonsPath, lessons); err != nil {
		return summary{}, err
	}
	_, _ = fmt.Fprintf(e.out, "Exported %d lessons to %s\n", len(lessons), lessonsPath)

	orders, err := e.orders.List(ctx)
	if err != nil {
		return summary{}, fmt.Errorf("list orders: %w", err)
	}
	ordersPath := filepath.Join(e.dir, "orders.json")
	if err := writeJSON(ordersPath, orders); err != nil {
		return summary{}, err
	}
	_, _ = fmt.Fprintf(e.out, "Exported %d orders to %s\n", len(orders), ordersPath)

	_, _ = fmt.Fprintf(e.out, "\nVerification:\n- Lessons: %d documents\n- Orders: %d documents\n", len(lessons), len(orders))
	if len(lessons) > 0 {
		_, _ = fmt.Fprintf(e.out, "Sample lesson fields: %s\n", strings.Join(fieldNames(lessons[0]), ", "))
	}
	if len(orders) > 0 {
		_, _ = fmt.Fprintf(e.out, "Sample order fields: %s\n", strings.Join(fieldNames(orders[0]), ", "))
	}

	return summary{Lessons: len(lessons), Orders: len(orders)}, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// fieldNames возвращает отсортированные JSON-ключи документа.
func fieldNames(v any) []string {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	names := make([]string, 0, len(doc))
	for k := range doc {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func main() {
	dir := flag.String("dir", "exports", "directory for lessons.json and orders.json")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
	defer cancel()

	storage, err := app.OpenStorage(ctx, cfg, log.WithField("component", "export"))
	if err != nil {
		log.WithError(err).Fatal("не удалось подключиться к хранилищу")
	}

	_, err = exporter{lessons: storage.Lessons, orders: storage.Orders, dir: *dir, out: os.Stdout}.run(ctx)
	_ = storage.Close(context.Background())
	if err != nil {
		log.WithError(err).Fatal("export failed")
	}
	fmt.Println("\nExport complete")
}

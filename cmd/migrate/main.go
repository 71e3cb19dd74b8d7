package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/lessonbook/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

var errUsage = errors.New("usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Getenv, os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		code := 1
		if errors.Is(err, errUsage) {
			code = 2
		}
		os.Exit(code)
	}
}

// run разбирает флаги и выполняет up | down | status над схемой lessonbook.
func run(ctx context.Context, args []string, getenv func(string) string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	direction := fs.String("direction", "up", "up | down | status")
	steps := fs.Int("steps", 0, "migrations to apply (0 = all) or roll back (0 = 1)")
	dsn := fs.String("dsn", "", "PostgreSQL DSN (default: POSTGRES_DSN)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	action := strings.ToLower(strings.TrimSpace(*direction))
	if action != "up" && action != "down" && action != "status" {
		return fmt.Errorf("%w: unsupported direction %q (use up|down|status)", errUsage, *direction)
	}
	if strings.TrimSpace(*dsn) == "" {
		*dsn = strings.TrimSpace(getenv("POSTGRES_DSN"))
	}
	if *dsn == "" {
		return fmt.Errorf("%w: POSTGRES_DSN (or -dsn) is required", errUsage)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, *dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	migrator := store.Migrator()

	var changed []postgres.Migration
	switch action {
	case "up":
		changed, err = migrator.Up(ctx, *steps)
	case "down":
		changed, err = migrator.Down(ctx, *steps)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", action, err)
	}
	for _, m := range changed {
		_, _ = fmt.Fprintf(out, "%s %s\n", action, m)
	}

	status, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	printStatus(out, status)
	return nil
}

func printStatus(out io.Writer, status postgres.SchemaStatus) {
	_, _ = fmt.Fprintf(out, "schema version %d: %d applied, %d pending\n",
		status.Version, status.Applied(), status.Pending())
	for _, m := range status.Migrations {
		state := "pending"
		if m.Applied() {
			state = "applied " + m.AppliedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(out, "  %-24s %s\n", m.Migration, state)
	}
}

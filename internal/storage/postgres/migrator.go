package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lessonbook/internal/domain"
)

const (
	// SchemaTable - таблица учёта применённых миграций.
	SchemaTable = "lessonbook_schema_migrations"

	migrationsDir = "sql/migrations"
	// schemaLockKey - ключ pg_advisory_lock, под которым мигрирует один процесс.
	schemaLockKey = int64(0x6c62_6d69_67) // "lbmig"
	lockTimeout   = 5 * time.Second
)

//go:embed sql/migrations/*.sql
var embeddedMigrations embed.FS

var migrationFileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration - одна версия схемы с up- и down-скриптом.
type Migration struct {
	Version int64
	Name    string

	up   string
	down string
}

func (m Migration) String() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// MigrationState - миграция и момент её применения (нулевой для pending).
type MigrationState struct {
	Migration
	AppliedAt time.Time
}

// Applied сообщает, применена ли миграция.
func (s MigrationState) Applied() bool { return !s.AppliedAt.IsZero() }

// SchemaStatus - состояние схемы: версия последней применённой миграции и все известные миграции.
type SchemaStatus struct {
	Version    int64
	Migrations []MigrationState
}

// Applied возвращает число применённых миграций.
func (s SchemaStatus) Applied() int {
	n := 0
	for _, m := range s.Migrations {
		if m.Applied() {
			n++
		}
	}
	return n
}

// Pending возвращает число ещё не применённых миграций.
func (s SchemaStatus) Pending() int { return len(s.Migrations) - s.Applied() }

// Migrator применяет встроенные миграции схемы lessonbook.
type Migrator struct {
	db     *sql.DB
	source fs.FS
	logger *log.Entry
}

// MigratorOption настраивает Migrator.
type MigratorOption func(*Migrator)

// WithMigrationSource подменяет встроенные скрипты (для тестов).
func WithMigrationSource(fsys fs.FS) MigratorOption {
	return func(m *Migrator) { m.source = fsys }
}

// WithMigrationLogger задаёт logger мигратора.
func WithMigrationLogger(logger *log.Entry) MigratorOption {
	return func(m *Migrator) { m.logger = logger }
}

// Migrator возвращает мигратор поверх подключения Store.
func (s *Store) Migrator(options ...MigratorOption) *Migrator {
	m := &Migrator{source: embeddedMigrations}
	if s != nil {
		m.db = s.db
		m.logger = s.logger
	}
	for _, option := range options {
		option(m)
	}
	if m.logger == nil {
		m.logger = log.WithField("component", "postgres")
	}
	return m
}

// Up применяет до steps pending-миграций по возрастанию версии (0 - все).
// Возвращает применённые миграции.
func (m *Migrator) Up(ctx context.Context, steps int) ([]Migration, error) {
	var done []Migration
	err := m.locked(ctx, func(conn *sql.Conn, known []Migration) error {
		applied, err := appliedAt(ctx, conn)
		if err != nil {
			return err
		}
		for _, mig := range known {
			if steps > 0 && len(done) == steps {
				break
			}
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			if err := m.step(ctx, conn, mig, true); err != nil {
				return err
			}
			done = append(done, mig)
		}
		return nil
	})
	return done, err
}

// Down откатывает steps последних применённых миграций (steps <= 0 - одну).
func (m *Migrator) Down(ctx context.Context, steps int) ([]Migration, error) {
	if steps <= 0 {
		steps = 1
	}

	var done []Migration
	err := m.locked(ctx, func(conn *sql.Conn, known []Migration) error {
		applied, err := appliedAt(ctx, conn)
		if err != nil {
			return err
		}

		byVersion := make(map[int64]Migration, len(known))
		for _, mig := range known {
			byVersion[mig.Version] = mig
		}
		versions := make([]int64, 0, len(applied))
		for version := range applied {
			versions = append(versions, version)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

		for _, version := range versions {
			if len(done) == steps {
				break
			}
			mig, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("applied migration %d has no down script", version)
			}
			if err := m.step(ctx, conn, mig, false); err != nil {
				return err
			}
			done = append(done, mig)
		}
		return nil
	})
	return done, err
}

// Status возвращает состояние схемы без блокировки.
func (m *Migrator) Status(ctx context.Context) (SchemaStatus, error) {
	if m == nil || m.db == nil {
		return SchemaStatus{}, domain.ErrNotInitialized
	}

	known, err := readMigrations(m.source)
	if err != nil {
		return SchemaStatus{}, err
	}
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if err := ensureSchemaTable(ctx, conn); err != nil {
		return SchemaStatus{}, err
	}
	applied, err := appliedAt(ctx, conn)
	if err != nil {
		return SchemaStatus{}, err
	}

	status := SchemaStatus{Migrations: make([]MigrationState, 0, len(known))}
	for _, mig := range known {
		at := applied[mig.Version]
		status.Migrations = append(status.Migrations, MigrationState{Migration: mig, AppliedAt: at})
		if !at.IsZero() && mig.Version > status.Version {
			status.Version = mig.Version
		}
	}
	return status, nil
}

// locked выполняет fn на выделенном соединении под advisory lock.
func (m *Migrator) locked(ctx context.Context, fn func(conn *sql.Conn, known []Migration) error) error {
	if m == nil || m.db == nil {
		return domain.ErrNotInitialized
	}

	known, err := readMigrations(m.source)
	if err != nil {
		return err
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, schemaLockKey)
	}()

	if err := ensureSchemaTable(ctx, conn); err != nil {
		return err
	}
	return fn(conn, known)
}

// step выполняет один скрипт и запись в SchemaTable в одной транзакции.
func (m *Migrator) step(ctx context.Context, conn *sql.Conn, mig Migration, up bool) error {
	direction, script := "up", mig.up
	record := `INSERT INTO ` + SchemaTable + ` (version, name, applied_at) VALUES ($1, $2, NOW())`
	args := []any{mig.Version, mig.Name}
	if !up {
		direction, script = "down", mig.down
		record = `DELETE FROM ` + SchemaTable + ` WHERE version = $1`
		args = args[:1]
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s %s: %w", direction, mig, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%s %s: %w", direction, mig, err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record %s %s: %w", direction, mig, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s %s: %w", direction, mig, err)
	}

	m.logger.WithFields(log.Fields{
		"migration": mig.String(),
		"direction": direction,
	}).Info("schema migration applied")
	return nil
}

func ensureSchemaTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+SchemaTable+` (
			version    BIGINT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("ensure %s: %w", SchemaTable, err)
	}
	return nil
}

func appliedAt(ctx context.Context, conn *sql.Conn) (map[int64]time.Time, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, applied_at FROM `+SchemaTable)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", SchemaTable, err)
	}
	defer rows.Close()

	applied := make(map[int64]time.Time)
	for rows.Next() {
		var (
			version int64
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan %s: %w", SchemaTable, err)
		}
		applied[version] = at.UTC()
	}
	return applied, rows.Err()
}

// readMigrations собирает пары NNNN_name.up.sql / NNNN_name.down.sql.
// Версии должны идти подряд с 1, у каждой должны быть оба скрипта.
func readMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration version in %s: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		script := strings.TrimSpace(string(raw))
		if script == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: parts[2]}
			byVersion[version] = mig
		}
		if mig.Name != parts[2] {
			return nil, fmt.Errorf("migration %d is named both %s and %s", version, mig.Name, parts[2])
		}

		target := &mig.up
		if parts[3] == "down" {
			target = &mig.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s script for migration %d", parts[3], version)
		}
		*target = script
	}
	if len(byVersion) == 0 {
		return nil, fmt.Errorf("no migrations in %s", migrationsDir)
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.up == "" || mig.down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down scripts", mig)
		}
		migrations = append(migrations, *mig)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	for i, mig := range migrations {
		if mig.Version != int64(i+1) {
			return nil, fmt.Errorf("migration versions must be contiguous from 1: got %s at position %d", mig, i+1)
		}
	}
	return migrations, nil
}
